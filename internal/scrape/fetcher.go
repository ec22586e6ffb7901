// -----------------------------------------------------------------------
// Fetcher - HTTP GET/HEAD with retries, 429 backoff, and per-host pacing
// -----------------------------------------------------------------------

package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultUserAgent identifies the pipeline to publisher sites.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) colligo/1.0"

	// DefaultAttemptTimeout bounds one HTTP attempt.
	DefaultAttemptTimeout = 30 * time.Second

	// DefaultMaxTries is the per-URL request budget.
	DefaultMaxTries = 3

	// DefaultRetrySleep is the pause after a network error.
	DefaultRetrySleep = 10 * time.Second

	// DefaultSleep429 is the pause after an HTTP 429.
	DefaultSleep429 = 5 * time.Minute

	// DefaultHostRate is the per-host politeness limit (requests per second).
	DefaultHostRate = rate.Limit(1)
)

// ErrNoAttempts is returned when the try budget is zero: the request is never
// sent.
var ErrNoAttempts = errors.New("max_tries is zero, request not sent")

// HTTPError is a response the budget will not retry out of: a client error, or
// a server error that persisted through every attempt.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// Fetcher performs the HTTP side of scrape actions under the retry budget:
// max_tries attempts per URL, a sleep after network errors and 5xx responses,
// a longer sleep after 429s, and immediate failure on any other non-2xx. Each
// host gets a politeness limiter independent of the between-action pacing.
type Fetcher struct {
	client         *http.Client
	logger         arbor.ILogger
	userAgent      string
	maxTries       int
	retrySleep     time.Duration
	sleep429       time.Duration
	attemptTimeout time.Duration
	hostRate       rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// FetcherOption configures the Fetcher.
type FetcherOption func(*Fetcher)

// WithMaxTries sets the per-URL request budget.
func WithMaxTries(n int) FetcherOption {
	return func(f *Fetcher) {
		f.maxTries = n
	}
}

// WithRetrySleep sets the pause after a network error.
func WithRetrySleep(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.retrySleep = d
	}
}

// WithSleep429 sets the pause after an HTTP 429.
func WithSleep429(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.sleep429 = d
	}
}

// WithAttemptTimeout sets the per-attempt timeout.
func WithAttemptTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.attemptTimeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithHostRate sets the per-host politeness limit.
func WithHostRate(r rate.Limit) FetcherOption {
	return func(f *Fetcher) {
		f.hostRate = r
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = client
	}
}

// NewFetcher creates a fetcher with the default pacing and retry settings.
func NewFetcher(logger arbor.ILogger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:         &http.Client{},
		logger:         logger,
		userAgent:      DefaultUserAgent,
		maxTries:       DefaultMaxTries,
		retrySleep:     DefaultRetrySleep,
		sleep429:       DefaultSleep429,
		attemptTimeout: DefaultAttemptTimeout,
		hostRate:       DefaultHostRate,
		limiters:       make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get fetches the URL body under the retry budget.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := f.withBudget(ctx, rawURL, func(attemptCtx context.Context) (int, error) {
		data, status, err := f.attemptGet(attemptCtx, rawURL)
		if err != nil {
			return 0, err
		}
		body = data
		return status, nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// ResolveDOI issues a HEAD with redirects followed and returns the final URL.
func (f *Fetcher) ResolveDOI(ctx context.Context, rawURL string) (string, error) {
	var resolved string
	err := f.withBudget(ctx, rawURL, func(attemptCtx context.Context) (int, error) {
		final, status, err := f.attemptHead(attemptCtx, rawURL)
		if err != nil {
			return 0, err
		}
		resolved = final
		return status, nil
	})
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// withBudget drives one attempt function under the retry budget. attempt
// returns the HTTP status on response, or an error on network failure.
func (f *Fetcher) withBudget(ctx context.Context, rawURL string, attempt func(ctx context.Context) (int, error)) error {
	tries := f.maxTries
	if tries <= 0 {
		return fmt.Errorf("%s: %w", rawURL, ErrNoAttempts)
	}

	for {
		if err := f.waitHost(ctx, rawURL); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
		status, err := attempt(attemptCtx)
		cancel()
		tries--

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if tries <= 0 {
				f.logger.Warn().Str("url", rawURL).Int("max_tries", f.maxTries).Err(err).Msg("Retry budget exhausted")
				return fmt.Errorf("fetch failed after %d tries: %w", f.maxTries, err)
			}
			f.logger.Debug().Str("url", rawURL).Int("tries_left", tries).Err(err).Msg("Network error, retrying")
			if err := sleepCtx(ctx, f.retrySleep); err != nil {
				return err
			}

		case status == http.StatusTooManyRequests:
			if tries <= 0 {
				f.logger.Warn().Str("url", rawURL).Int("max_tries", f.maxTries).Msg("Retry budget exhausted on 429")
				return fmt.Errorf("fetch failed after %d tries: %w", f.maxTries, &HTTPError{StatusCode: status, URL: rawURL})
			}
			f.logger.Debug().Str("url", rawURL).Int("tries_left", tries).Dur("sleep", f.sleep429).Msg("Rate limited, backing off")
			if err := sleepCtx(ctx, f.sleep429); err != nil {
				return err
			}

		case status >= 500:
			// Server errors retry like network errors; only client errors are
			// final on the first response.
			if tries <= 0 {
				f.logger.Warn().Str("url", rawURL).Int("max_tries", f.maxTries).Int("status", status).Msg("Retry budget exhausted")
				return fmt.Errorf("fetch failed after %d tries: %w", f.maxTries, &HTTPError{StatusCode: status, URL: rawURL})
			}
			f.logger.Debug().Str("url", rawURL).Int("tries_left", tries).Int("status", status).Msg("Server error, retrying")
			if err := sleepCtx(ctx, f.retrySleep); err != nil {
				return err
			}

		case status < 200 || status > 299:
			return &HTTPError{StatusCode: status, URL: rawURL}

		default:
			return nil
		}
	}
}

func (f *Fetcher) attemptGet(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (f *Fetcher) attemptHead(ctx context.Context, rawURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// resp.Request points at the request of the final hop after redirects
	return resp.Request.URL.String(), resp.StatusCode, nil
}

// waitHost blocks on the target host's politeness limiter.
func (f *Fetcher) waitHost(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		// Let the request itself produce the failure.
		return nil
	}

	f.mu.Lock()
	limiter, ok := f.limiters[u.Host]
	if !ok {
		limiter = rate.NewLimiter(f.hostRate, 1)
		f.limiters[u.Host] = limiter
	}
	f.mu.Unlock()

	return limiter.Wait(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
