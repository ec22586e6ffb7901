package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Global         GlobalConfig         `toml:"global"`
	ScrapeDefaults ScrapeDefaultsConfig `toml:"scrape_defaults"`
	Parse          ParseConfig          `toml:"parse"`
	Logging        LoggingConfig        `toml:"logging"`
}

// GlobalConfig holds settings shared by every pipeline stage
type GlobalConfig struct {
	DataDirectory string `toml:"data_directory" validate:"required"` // Base directory for downloads/, scrape/, *_logs/, parse/, db/
}

// ScrapeDefaultsConfig holds the per-request pacing and retry budget used by
// scrape jobs unless overridden per job.
type ScrapeDefaultsConfig struct {
	SleepTime      float64 `toml:"sleep_time" validate:"gte=0"`       // Seconds the driver sleeps between actions
	MaxTries       int     `toml:"max_tries" validate:"gte=0"`        // HTTP attempts per URL; 0 fails without a request
	RetrySleepTime float64 `toml:"retry_sleep_time" validate:"gte=0"` // Seconds to sleep after a network error
	Sleep429       float64 `toml:"429_sleep_time" validate:"gte=0"`   // Minutes to sleep after HTTP 429 (canonical key)

	// Alias429 accepts the legacy "_429_sleep_time" spelling. It is merged
	// into Sleep429 after decode and never read anywhere else.
	Alias429 *float64 `toml:"_429_sleep_time"`
}

// ParseConfig holds the parse-stage registries and normalization tunables
type ParseConfig struct {
	RegistryDir        string  `toml:"registry_dir"`                                 // Directory holding implemented_parsers.json and the name registries
	PublisherThreshold float64 `toml:"publisher_threshold" validate:"gte=0,lte=1"`   // Similarity ratio required to accept a publisher name match
	JournalThreshold   float64 `toml:"journal_threshold" validate:"gte=0,lte=1"`     // Similarity ratio required to accept a journal name match
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in colligo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			DataDirectory: "./data",
		},
		ScrapeDefaults: ScrapeDefaultsConfig{
			SleepTime:      1.0,  // 1 second between actions
			MaxTries:       3,    // Three attempts per URL
			RetrySleepTime: 10.0, // 10 seconds after a network error
			Sleep429:       5.0,  // 5 minutes after a 429
		},
		Parse: ParseConfig{
			RegistryDir:        "./registries",
			PublisherThreshold: 0.90,
			JournalThreshold:   0.97,
		},
		Logging: LoggingConfig{
			Level:  "info",                     // Info level for production (debug|info|warn|error)
			Output: []string{"stdout", "file"}, // Log to both console and file
		},
	}
}

// DefaultConfigPath returns the platform-standard location of colligo.toml.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(dir, "colligo", "colligo.toml"), nil
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}

		// Merge the legacy _429_sleep_time spelling after each decode
		if config.ScrapeDefaults.Alias429 != nil {
			config.ScrapeDefaults.Sleep429 = *config.ScrapeDefaults.Alias429
			config.ScrapeDefaults.Alias429 = nil
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks the configuration using go-playground/validator.
func (c *Config) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Global configuration
	if dataDir := os.Getenv("COLLIGO_DATA_DIRECTORY"); dataDir != "" {
		config.Global.DataDirectory = dataDir
	}

	// Scrape defaults
	if sleepTime := os.Getenv("COLLIGO_SLEEP_TIME"); sleepTime != "" {
		if v, err := strconv.ParseFloat(sleepTime, 64); err == nil {
			config.ScrapeDefaults.SleepTime = v
		}
	}
	if maxTries := os.Getenv("COLLIGO_MAX_TRIES"); maxTries != "" {
		if v, err := strconv.Atoi(maxTries); err == nil {
			config.ScrapeDefaults.MaxTries = v
		}
	}
	if retrySleep := os.Getenv("COLLIGO_RETRY_SLEEP_TIME"); retrySleep != "" {
		if v, err := strconv.ParseFloat(retrySleep, 64); err == nil {
			config.ScrapeDefaults.RetrySleepTime = v
		}
	}
	if sleep429 := os.Getenv("COLLIGO_429_SLEEP_TIME"); sleep429 != "" {
		if v, err := strconv.ParseFloat(sleep429, 64); err == nil {
			config.ScrapeDefaults.Sleep429 = v
		}
	}

	// Parse configuration
	if registryDir := os.Getenv("COLLIGO_REGISTRY_DIR"); registryDir != "" {
		config.Parse.RegistryDir = registryDir
	}

	// Logging configuration
	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// SleepBetweenActions returns the between-action pacing as a duration.
func (s ScrapeDefaultsConfig) SleepBetweenActions() time.Duration {
	return time.Duration(s.SleepTime * float64(time.Second))
}

// RetrySleep returns the network-error backoff as a duration.
func (s ScrapeDefaultsConfig) RetrySleep() time.Duration {
	return time.Duration(s.RetrySleepTime * float64(time.Second))
}

// Sleep429Duration returns the 429 backoff as a duration. The config value is
// in minutes.
func (s ScrapeDefaultsConfig) Sleep429Duration() time.Duration {
	return time.Duration(s.Sleep429 * float64(time.Minute))
}

// defaultConfigTOML is written on first run so users have a commented file to
// edit rather than an undocumented search path.
const defaultConfigTOML = `# colligo configuration
# Created automatically on first run. Values here override the built-in
# defaults; COLLIGO_* environment variables override values here.

[global]
# Base directory for downloads/, scrape/, scrape_logs/, parse/, parse_logs/,
# commit_logs/ and db/.
data_directory = "%s"

[scrape_defaults]
sleep_time = 1.0        # seconds the driver sleeps between actions
max_tries = 3           # HTTP attempts per URL before the action fails
retry_sleep_time = 10.0 # seconds to sleep after a network error
429_sleep_time = 5.0    # minutes to sleep after an HTTP 429

[parse]
registry_dir = "%s"
publisher_threshold = 0.90
journal_threshold = 0.97

[logging]
level = "info"
output = ["stdout", "file"]
`

// EnsureConfigFile writes a commented default colligo.toml at path unless one
// already exists. Returns true when a file was created.
func EnsureConfigFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	defaults := NewDefaultConfig()
	content := fmt.Sprintf(defaultConfigTOML, defaults.Global.DataDirectory, defaults.Parse.RegistryDir)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}
