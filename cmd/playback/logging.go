package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/zsiec/playback/internal/config"
)

// setupLogging installs the default slog logger. "auto" picks the text
// handler on a terminal and JSON otherwise.
func setupLogging(cfg config.Config, w *os.File) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(newHandler(cfg.LogFormat, w, isTerminal(w), level)))
	return nil
}

func newHandler(format string, w io.Writer, tty bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	}
	if tty {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
