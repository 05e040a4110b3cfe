// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"voicepad/internal/config"
)

// New creates a logger for cfg. Unknown levels fall back to info. When a
// file is configured the logger appends to it instead of stderr; the returned
// closer releases it and points the logger back at stderr.
func New(cfg config.LogConfig) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		if lv, err := logrus.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level = lv
		}
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.SetOutput(os.Stderr)
	if cfg.File == "" {
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(file)

	return logger, &fileCloser{logger: logger, file: file}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type fileCloser struct {
	logger *logrus.Logger
	file   *os.File
	once   sync.Once
	err    error
}

func (c *fileCloser) Close() error {
	c.once.Do(func() {
		c.logger.SetOutput(os.Stderr)
		c.err = c.file.Close()
	})
	return c.err
}
