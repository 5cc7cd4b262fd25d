// Package logging configures the process-wide zerolog logger and derives
// scoped loggers for rooms, participants and components.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string
	// Output defaults to stdout.
	Output io.Writer
}

// Init replaces the global logger. Unknown levels fall back to info. Caller
// information is only attached at debug level and below.
func Init(cfg Config) {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithRoom tags the room and the local identity.
func WithRoom(room, identity string) zerolog.Logger {
	return log.With().
		Str("room", room).
		Str("identity", identity).
		Logger()
}

// WithParticipant tags a remote participant and one of its tracks.
func WithParticipant(component, identity, sid string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Str("participant", identity).
		Str("trackSid", sid).
		Logger()
}

// WithSegment tags one transcript segment.
func WithSegment(language, id string) zerolog.Logger {
	return log.With().
		Str("language", language).
		Str("segmentId", id).
		Logger()
}
