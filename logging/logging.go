// Package logging builds the slog handlers hosts wire into the stores.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// ParseLevel converts a level name (debug, info, warn, error) to a
// slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging: invalid level %q: %w", s, err)
	}
	return l, nil
}

// NewHandler returns a compact human-readable handler writing to w.
func NewHandler(w io.Writer, level slog.Level, color bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000", // time.TimeOnly plus milliseconds.
		NoColor:    !color,
	})
}

// New returns a logger writing to f, with color when f is a terminal.
func New(f *os.File, level slog.Level) *slog.Logger {
	return slog.New(NewHandler(colorable.NewColorable(f), level, isatty.IsTerminal(f.Fd())))
}
