// Package logger provides the process-wide slog handler: one line per
// record, "[15:04:05] [LEVEL] message key=value ...", filtered by a global
// level that can be changed at runtime.
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

var (
	globalLevel  = slog.LevelInfo
	handlerMutex sync.RWMutex
)

// SetLevel sets the global log level
func SetLevel(levelStr string) {
	level := ParseLevel(levelStr)
	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	globalLevel = level
}

// GetLevel returns the current log level as a string
func GetLevel() string {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()

	switch globalLevel {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelInfo:
		return "info"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel parses a string to an slog level
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// output is shared by a handler and everything derived from it via With.
type output struct {
	mu   sync.Mutex
	outs []io.Writer
}

// customHandler writes formatted records to every output
type customHandler struct {
	out    *output
	attrs  string // Pre-formatted attributes from WithAttrs
	prefix string   // Group prefix from WithGroup, e.g. "gateway."
}

// Handle implements slog.Handler
func (h *customHandler) Handle(ctx context.Context, record slog.Record) error {
	if !h.Enabled(ctx, record.Level) {
		return nil
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(record.Time.Format("15:04:05"))
	b.WriteString("] [")
	b.WriteString(strings.ToUpper(record.Level.String()))
	b.WriteString("] ")
	b.WriteString(record.Message)

	b.WriteString(h.attrs)
	record.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.prefix, a)
		return true
	})

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		b.WriteString(" trace_id=")
		b.WriteString(sc.TraceID().String())
	}
	b.WriteString("\n")

	line := []byte(b.String())
	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	for _, out := range h.out.outs {
		if out != nil {
			_, _ = out.Write(line)
		}
	}
	return nil
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, prefix, ga)
		}
		return
	}
	b.WriteString(" ")
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteString("=")
	b.WriteString(a.Value.String())
}

// WithAttrs implements slog.Handler
func (h *customHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	for _, a := range attrs {
		appendAttr(&b, h.prefix, a)
	}

	next := *h
	next.attrs = h.attrs + b.String()
	return &next
}

// WithGroup implements slog.Handler
func (h *customHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// Enabled implements slog.Handler
func (h *customHandler) Enabled(ctx context.Context, level slog.Level) bool {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	return level >= globalLevel
}

// New returns a logger writing to outputs without installing it as default.
func New(outputs ...io.Writer) *slog.Logger {
	return slog.New(&customHandler{out: &output{outs: outputs}})
}

// InitLogger initializes the global logger with one or more output writers
func InitLogger(outputs ...io.Writer) *slog.Logger {
	logger := New(outputs...)
	slog.SetDefault(logger)
	return logger
}
