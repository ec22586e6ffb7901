// Package logs routes per-job log lines into the job's own log file.
//
// Producers (the job driver and the stage engines) never touch the file:
// they enqueue entries on a bounded FIFO and return. A single consumer
// goroutine owns the file handle and drains the queue in arrival order, so
// log writes never stall an action on disk latency. Close blocks until the
// queue is drained and the file is synced, which makes the end-of-job report
// durable before the run returns.
package logs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
)

// sinkBuffer bounds the FIFO. Producers block when the consumer falls this
// far behind rather than dropping entries.
const sinkBuffer = 256

// Entry is one line of a job log file.
type Entry struct {
	Timestamp time.Time
	Level     log.Level
	Message   string
}

// levelCode converts a level to the 3-letter code used in job log files.
func levelCode(level log.Level) string {
	switch level {
	case log.DebugLevel, log.TraceLevel:
		return "DBG"
	case log.WarnLevel:
		return "WRN"
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		return "ERR"
	default:
		return "INF"
	}
}

// parseLevelCode converts a 3-letter code back to a level. Unknown codes map
// to info.
func parseLevelCode(code string) log.Level {
	switch strings.ToUpper(code) {
	case "DBG":
		return log.DebugLevel
	case "WRN":
		return log.WarnLevel
	case "ERR":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// FileSink owns one job log file and the FIFO feeding it.
type FileSink struct {
	path    string
	file    *os.File
	channel chan Entry
	logger  arbor.ILogger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// OpenFileSink creates (or appends to) the log file at path and starts the
// consumer goroutine.
func OpenFileSink(logger arbor.ILogger, path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	s := &FileSink{
		path:    path,
		file:    file,
		channel: make(chan Entry, sinkBuffer),
		logger:  logger,
	}
	s.wg.Add(1)
	go s.consumer()
	return s, nil
}

// Path returns the log file location.
func (s *FileSink) Path() string {
	return s.path
}

// Append enqueues one entry. It blocks while the FIFO is full and is a no-op
// after Close.
func (s *FileSink) Append(e Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.channel <- e
}

// Close drains the FIFO, syncs the file, and releases it. Entries appended
// before Close are guaranteed to reach disk.
func (s *FileSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.channel)
	s.mu.Unlock()

	s.wg.Wait()

	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	return s.file.Close()
}

// consumer drains the FIFO into the file until the channel closes.
func (s *FileSink) consumer() {
	defer s.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("path", s.path).
				Msg("Log sink panic recovered")
		}
	}()

	w := bufio.NewWriter(s.file)
	for e := range s.channel {
		line := e.Timestamp.Format("15:04:05") + " " + levelCode(e.Level) + " " + e.Message + "\n"
		if _, err := w.WriteString(line); err != nil {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to write job log entry")
		}
	}
	if err := w.Flush(); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to flush job log")
	}
}
