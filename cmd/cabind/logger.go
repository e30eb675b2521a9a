package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cabin-dispatch/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogger builds the process logger. The returned closer flushes the
// rotating log file, if any.
func setupLogger(cfg config.LogConfig, devMode bool) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if devMode && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	}

	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "stderr":
		log.SetOutput(os.Stderr)
	case "file":
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		log.SetOutput(rotator)
		closer = rotator
	default:
		log.SetOutput(os.Stdout)
	}

	return log, closer, nil
}
