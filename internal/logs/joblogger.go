package logs

import (
	"fmt"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
)

// JobLogger is the logging surface handed to a running job. Every message
// goes two ways: to the process logger with the job label as correlation id
// (for console/structured output), and to the job's own log file through the
// bounded FIFO, so an action never waits on disk.
type JobLogger struct {
	logger arbor.ILogger
	sink   *FileSink
	label  string
}

// NewJobLogger binds a job label to its log file sink. The returned logger
// carries the label as arbor correlation id.
func NewJobLogger(baseLogger arbor.ILogger, sink *FileSink, label string) *JobLogger {
	return &JobLogger{
		logger: baseLogger.WithCorrelationId(label),
		sink:   sink,
		label:  label,
	}
}

// Label returns the job label.
func (jl *JobLogger) Label() string {
	return jl.label
}

// Debugf logs a debug message.
func (jl *JobLogger) Debugf(format string, args ...interface{}) {
	jl.emit(log.DebugLevel, format, args...)
}

// Infof logs an info message.
func (jl *JobLogger) Infof(format string, args ...interface{}) {
	jl.emit(log.InfoLevel, format, args...)
}

// Warnf logs a warning.
func (jl *JobLogger) Warnf(format string, args ...interface{}) {
	jl.emit(log.WarnLevel, format, args...)
}

// Errorf logs an error.
func (jl *JobLogger) Errorf(format string, args ...interface{}) {
	jl.emit(log.ErrorLevel, format, args...)
}

func (jl *JobLogger) emit(level log.Level, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)

	switch level {
	case log.DebugLevel:
		jl.logger.Debug().Msg(message)
	case log.WarnLevel:
		jl.logger.Warn().Msg(message)
	case log.ErrorLevel:
		jl.logger.Error().Msg(message)
	default:
		jl.logger.Info().Msg(message)
	}

	if jl.sink != nil {
		jl.sink.Append(Entry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
		})
	}
}

// Preamble writes the job creation header to the log.
func (jl *JobLogger) Preamble(stage, description string, created time.Time) {
	jl.Infof("==== %s job %s created %s ====", stage, jl.label, created.Format("2006-01-02 15:04:05"))
	if description != "" {
		jl.Infof("description: %s", description)
	}
}

// Close flushes the underlying sink. Safe to call more than once.
func (jl *JobLogger) Close() error {
	if jl.sink == nil {
		return nil
	}
	return jl.sink.Close()
}
