// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

// Package logging provides the zerolog-based structured logger shared by the
// LeadChat API server, the widget runtime and the CLI.
//
// Initialize once at startup and log through the package-level helpers:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("project", id).Msg("Widget config saved")
//	logging.Ctx(ctx).Error().Err(err).Msg("Lead insert failed")
//
// Always terminate a chain with .Msg() or .Send(); an unterminated event is
// never written. Visitor phone numbers and API keys must pass through
// RedactPhone and RedactSecret before they reach a log field.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Service is stamped on every entry so server, widget and CLI output can
// share a log pipeline.
const Service = "leadchat"

// Config holds logging configuration.
type Config struct {
	Level  string    // trace, debug, info, warn, error, fatal, panic, disabled
	Format string    // json or console
	Caller bool      // add file:line
	// Timestamp is off for CLI output that a terminal already timestamps.
	Timestamp bool
	Output    io.Writer // default os.Stderr
}

// DefaultConfig is what the package uses before Init runs.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Timestamp: true, Output: os.Stderr}
}

var (
	mu   sync.RWMutex
	root zerolog.Logger
)

//nolint:gochecknoinits // logging must work before Init is called
func init() {
	root = build(DefaultConfig())
}

// Init replaces the global logger. Later calls reconfigure it.
func Init(cfg Config) {
	l := build(cfg)
	mu.Lock()
	root = l
	mu.Unlock()
}

func build(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: !isTerminal(out)}
	}
	ctx := zerolog.New(out).With().Str("service", Service)
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// isTerminal reports whether w is a character device; only those get color.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// parseLevel maps a config string to a level. Unknown or empty values map to info.
func parseLevel(level string) zerolog.Level {
	switch level = strings.ToLower(strings.TrimSpace(level)); level {
	case "":
		return zerolog.InfoLevel
	case "warning":
		return zerolog.WarnLevel
	case "off", "none":
		return zerolog.Disabled
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := root
	return &l
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger { return *current() }

// SetLogger replaces the global logger, typically with NewTestLogger output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	root = l
	mu.Unlock()
}

func Debug() *zerolog.Event { return current().Debug() }
func Info() *zerolog.Event  { return current().Info() }
func Warn() *zerolog.Event  { return current().Warn() }
func Error() *zerolog.Event { return current().Error() }

// Fatal logs and exits with status 1.
func Fatal() *zerolog.Event { return current().Fatal() }

// WithComponent returns a child logger tagged with a component field.
//
//	fetchLog := logging.WithComponent("widget.fetcher")
func WithComponent(component string) zerolog.Logger {
	return current().With().Str("component", component).Logger()
}

// NewTestLogger writes JSON to w without the service field, for assertions.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
