package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Setup initializes the global zerolog level and returns the root logger
// writing to stdout. format is "json" or "pretty".
func Setup(level, format string) zerolog.Logger {
	color := term.IsTerminal(int(os.Stdout.Fd()))
	return build(os.Stdout, level, format, color)
}

// New builds an uncoloured logger writing to w. Tests pass a buffer here.
func New(w io.Writer, level, format string) zerolog.Logger {
	return build(w, level, format, false)
}

func build(w io.Writer, level, format string, color bool) zerolog.Logger {
	writer := w
	if format == "pretty" {
		writer = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    !color,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	ctx := zerolog.New(writer).With().Timestamp()
	if lvl <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Str("service", "cbt-backend").Logger()
}
