// Package logging builds the zerolog loggers shared by the broadcast server
// and client. Every entry carries a service name and a timestamp.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects how log entries are rendered.
type Format string

const (
	// FormatConsole renders human-readable, colourless lines.
	FormatConsole Format = "console"
	// FormatJSON renders one JSON object per line.
	FormatJSON Format = "json"
)

// Options controls logger construction.
type Options struct {
	Service string
	Level   string
	Format  Format
	Output  io.Writer
}

// New builds a zerolog.Logger from opts. An empty Output writes to stderr,
// an empty Level means info and an empty Format means console.
//
// Returns an error when Level or Format is not recognised.
func New(opts Options) (zerolog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	switch opts.Format {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    true,
			TimeFormat: time.TimeOnly,
		}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", opts.Format)
	}

	ctx := zerolog.New(out).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}

	return ctx.Logger().Level(level), nil
}

// ParseLevel maps a case-insensitive level name onto a zerolog.Level.
// The empty string is info.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}
