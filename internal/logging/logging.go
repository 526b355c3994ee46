// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

// Config selects level, format ("text" or "json") and an optional log file.
type Config struct {
	Level  string
	Format string
	File   string
}

// Setup configures the standard logger and returns a cleanup func that
// closes the log file, if any. Diagnostics never go to stdout.
// When the log file cannot be opened, logging falls back to stderr.
func Setup(cfg Config) func() {
	var out io.Writer = os.Stderr
	cleanup := func() {}

	if cfg.File != "" {
		if f, err := openLogFile(cfg.File); err != nil {
			log.SetOutput(os.Stderr)
			log.WithError(err).Warn("Falling back to stderr logging")
		} else {
			out = f
			cleanup = func() { _ = f.Close() }
		}
	}
	log.SetOutput(out)
	log.SetFormatter(newFormatter(cfg.Format))

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		if cfg.Level != "" {
			log.Infof("Level setup default INFO, err: %v", err)
		}
	} else {
		log.SetLevel(level)
	}
	log.SetReportCaller(log.GetLevel() >= log.DebugLevel)
	return cleanup
}

func newFormatter(format string) log.Formatter {
	pretty := func(frame *runtime.Frame) (function string, file string) {
		return "", fmt.Sprintf("%s:%d", path.Base(frame.File), frame.Line)
	}
	if strings.EqualFold(format, "json") {
		return &log.JSONFormatter{
			CallerPrettyfier: pretty,
			TimestampFormat:  timestampFormat,
		}
	}
	return &log.TextFormatter{
		CallerPrettyfier: pretty,
		TimestampFormat:  timestampFormat,
		FullTimestamp:    true,
	}
}

func openLogFile(p string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
