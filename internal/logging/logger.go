// Package logging is the structured logging facade (C11) used by every
// component above. It wraps zerolog behind an explicit value — constructed
// once at process start and passed down — rather than a package-level
// global, so tests can inject a capture sink.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is one of the four levels the contract requires.
type Level string

const (
	DebugLevel   Level = "debug"
	InfoLevel    Level = "info"
	WarningLevel Level = "warning"
	ErrorLevel   Level = "error"
)

// Config selects the logger's level and output shape.
type Config struct {
	Level   Level
	UseJSON bool
	Output  io.Writer
}

// Logger is a thin, copyable wrapper around zerolog.Logger. Every method
// is safe to call with zero fields; no call panics.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger from Config. A zero Config yields INFO-level,
// human-readable console output to stderr.
func New(cfg Config) Logger {
	level := toZerologLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var z zerolog.Logger
	if cfg.UseJSON {
		z = zerolog.New(output).Level(level).With().Timestamp().Logger()
	} else {
		z = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	}
	return Logger{z: z}
}

func toZerologLevel(l Level) zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarningLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case InfoLevel, "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child Logger carrying the given field, e.g.
// log.With("service", "nlu").With("topic", "user_message_raw").
func (l Logger) With(key string, value any) Logger {
	return Logger{z: l.z.With().Interface(key, value).Logger()}
}

func (l Logger) Debug(msg string)   { l.z.Debug().Msg(msg) }
func (l Logger) Info(msg string)    { l.z.Info().Msg(msg) }
func (l Logger) Warn(msg string)    { l.z.Warn().Msg(msg) }
func (l Logger) Error(msg string)   { l.z.Error().Msg(msg) }

// Errorf logs msg at ERROR with the given cause attached as a field.
func (l Logger) Errorf(msg string, err error) {
	l.z.Error().Err(err).Msg(msg)
}
