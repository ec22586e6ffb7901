package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const processLogName = "colligo.log"

// InitLogger builds the process logger from the logging config: a console
// writer, a file writer, or both, at the configured level. The process log
// lives under <data>/logs/, away from the per-job logs in <stage>_logs/.
func InitLogger(config *Config) arbor.ILogger {
	logger := arbor.NewLogger()

	for _, output := range config.Logging.Output {
		switch output {
		case "stdout", "console":
			logger = logger.WithConsoleWriter(writerConfig(models.LogWriterTypeConsole, ""))
		case "file":
			logsDir := filepath.Join(config.Global.DataDirectory, "logs")
			if err := os.MkdirAll(logsDir, 0755); err != nil {
				fmt.Printf("Warning: Failed to create logs directory: %v\n", err)
				continue
			}
			logger = logger.WithFileWriter(writerConfig(models.LogWriterTypeFile, filepath.Join(logsDir, processLogName)))
		}
	}

	return logger.WithLevelFromString(config.Logging.Level)
}

func writerConfig(kind models.LogWriterType, fileName string) models.WriterConfiguration {
	cfg := models.WriterConfiguration{
		Type:       kind,
		TimeFormat: "15:04:05",
		TextOutput: true,
	}
	if fileName != "" {
		cfg.FileName = fileName
		cfg.MaxSize = 100 * 1024 * 1024 // 100 MB
		cfg.MaxBackups = 3
	}
	return cfg
}
