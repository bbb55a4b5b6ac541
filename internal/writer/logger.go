// Package writer manages the per-run output directory and the process logger.
package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LogOptions configures SetupLogger
type LogOptions struct {
	// ConsoleLevel filters the human-readable console output
	ConsoleLevel slog.Level
	// FileLevel filters the JSON run log
	FileLevel slog.Level
	// Console defaults to os.Stdout
	Console io.Writer
}

// fanout sends each record to every handler that accepts its level
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// SetupLogger logs text to the console and JSON to the run's log file.
// The caller closes the returned file.
func SetupLogger(run *RunManager, opts LogOptions) (*slog.Logger, *os.File, error) {
	logFile, err := os.OpenFile(run.GetLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	logger := slog.New(fanout{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: opts.ConsoleLevel}),
		slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: opts.FileLevel}),
	}).With("run", run.ID())

	return logger, logFile, nil
}
