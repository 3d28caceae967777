// Package logging configures the process logger: a durable append-only
// file under the logs directory plus stderr.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lvcoi/freeytzone/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const fileName = "app.log"

// Logger bundles the configured logger with the file it writes to.
type Logger struct {
	*logrus.Logger
	Path string
	file io.Closer
}

// Close releases the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Setup creates cfg.Dir, opens app.log for appending and returns a logger
// writing to both the file and stderr.
func Setup(fs afero.Fs, cfg config.LogsConfig) (*Logger, error) {
	return setup(fs, cfg, os.Stderr)
}

func setup(fs afero.Fs, cfg config.LogsConfig, console io.Writer) (*Logger, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	dir := cfg.Dir
	if dir == "" {
		return nil, errors.New("log directory path is empty")
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, fileName)
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	log := logrus.New()
	if console != nil {
		log.SetOutput(io.MultiWriter(f, console))
	} else {
		log.SetOutput(f)
	}

	if cfg.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Logger{Logger: log, Path: path, file: f}, nil
}

// Discard returns a logger that writes nowhere, for tests and commands
// that must not touch the log directory.
func Discard() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Logger{Logger: log}
}
