package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// New builds a logger writing to stdout with the given level and format
func New(level, format string) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, format)
}

// NewWithOutput is New with an explicit destination
func NewWithOutput(out io.Writer, level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	SetLevel(logger, level)
	SetFormatter(logger, format)
	return logger
}

// SetLevel sets the logging level; unknown levels fall back to info
func SetLevel(logger *logrus.Logger, level string) {
	switch strings.ToLower(level) {
	case "trace":
		logger.SetLevel(logrus.TraceLevel)
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
}

// SetFormatter sets the logging formatter; anything but "text" is JSON
func SetFormatter(logger *logrus.Logger, format string) {
	switch format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	}
}
