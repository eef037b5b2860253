package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/benkokes/elite-EI65-robot-controller/pkg/buffer"
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: strings.EqualFold(level, "debug"),
	}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func setupLogger(level, format string) *slog.Logger {
	return withIdentity(slog.New(newHandler(os.Stderr, level, format)))
}

func withIdentity(logger *slog.Logger) *slog.Logger {
	return logger.With("service", appName, "version", Version)
}

// paneHandler writes one formatted line per record into the operator log
// pane. The pane is a bounded ring: old lines fall off the top.
type paneHandler struct {
	level slog.Level
	lines *buffer.CircularBuffer[string]
	attrs []slog.Attr
	group string
	now   func() time.Time
}

func newPaneHandler(level slog.Level, lines *buffer.CircularBuffer[string]) *paneHandler {
	return &paneHandler{level: level, lines: lines, now: time.Now}
}

func (h *paneHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *paneHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", h.now().Format("15:04:05"))
	if record.Level >= slog.LevelWarn {
		b.WriteString(record.Level.String())
		b.WriteByte(' ')
	}
	b.WriteString(record.Message)

	var parts []string
	add := func(a slog.Attr) bool {
		// Identity attrs repeat on every line.
		switch a.Key {
		case "service", "version", "component":
			return true
		}
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		parts = append(parts, key+"="+a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	record.Attrs(add)
	if len(parts) > 0 {
		b.WriteString(" (" + strings.Join(parts, ", ") + ")")
	}

	return h.lines.Write(b.String())
}

func (h *paneHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *paneHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

// fanoutHandler sends each record to every handler enabled for its level.
type fanoutHandler []slog.Handler

func (handlers fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range handlers {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (handlers fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(handlers))
	for i, h := range handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (handlers fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(handlers))
	for i, h := range handlers {
		out[i] = h.WithGroup(name)
	}
	return out
}

// setupPaneLogger routes logs to the TUI pane and, when logFile is set,
// also to that file. The caller closes the returned closer.
func setupPaneLogger(level, format, logFile string, lines *buffer.CircularBuffer[string]) (*slog.Logger, io.Closer, error) {
	pane := newPaneHandler(parseLevel(level), lines)
	if logFile == "" {
		return withIdentity(slog.New(pane)), io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", logFile, err)
	}
	handler := fanoutHandler{pane, newHandler(f, level, format)}
	return withIdentity(slog.New(handler)), f, nil
}
