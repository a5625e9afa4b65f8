package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"extranef/internal/nef"
)

// LogFileName is the log file inside the configured log dir.
const LogFileName = "nef.log"

// nefHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<session>\t<message>\t<key=value ...>
type nefHandler struct {
	w       io.Writer
	session string
	level   slog.Level
	attrs   []slog.Attr
}

func (h *nefHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *nefHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	_, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.session, r.Message)
	if err != nil {
		return err
	}
	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err = fmt.Fprintln(h.w)
	return err
}

func (h *nefHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &nefHandler{
		w:       h.w,
		session: h.session,
		level:   h.level,
		attrs:   append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *nefHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes to logDir/nef.log and,
// when echo is set, to stderr. The caller closes the returned file.
func newLogger(logDir, session string, level slog.Level, echo bool) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	var w io.Writer = f
	if echo {
		w = io.MultiWriter(f, os.Stderr)
	}
	return slog.New(&nefHandler{w: w, session: session, level: level}), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy nef.Logger.
type slogAdapter struct {
	l *slog.Logger
}

var _ nef.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
