// logger.go - Structured logging setup for the settlement daemon
package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// setupLogger configures the global logrus logger from the daemon config.
// Output goes to stdout and, when a log file is configured, to the file as
// well. The JSON formatter uses ISO 8601 timestamps.
func setupLogger(cfg *Config) (io.Closer, error) {
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	if cfg.LogFile == "" {
		log.SetOutput(os.Stdout)
		return nil, nil
	}

	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, file))
	return file, nil
}
