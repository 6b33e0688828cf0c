// Package logger builds the process-wide zerolog.Logger used across the
// pipeline, object pool, semaphore, and recorder packages.
package logger

import (
	"os"

	"github.com/alfred-ai/alfred-pipeline/pipelineconfig"
	"github.com/rs/zerolog"
)

// New returns a configured, console-formatted zerolog.Logger at the level
// named by cfg.LogLevel. Only when that name does not parse does the level
// fall back to debug in development and info otherwise.
func New(cfg *pipelineconfig.Config) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr}
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(out).With().Timestamp().Logger()
}
