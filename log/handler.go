package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// HandlerOption configures the handlers built by this package.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	format    string
	level     slog.Level
	addSource bool
}

func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		format: "text",
		level:  slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithFormat selects "text" or "json" output.
func WithFormat(format string) HandlerOption {
	return func(c *handlerConfig) {
		c.format = format
	}
}

// NewHandler creates the process log handler writing to w (stderr when nil).
func NewHandler(w io.Writer, opts ...HandlerOption) (slog.Handler, error) {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if w == nil {
		w = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: cfg.level, AddSource: cfg.addSource}
	switch cfg.format {
	case "", "text":
		return slog.NewTextHandler(w, hopts), nil
	case "json":
		return slog.NewJSONHandler(w, hopts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.format)
	}
}

// WireHandler implements slog.Handler by encoding each record as a
// LogMessageWire and passing it to a sink. A Go native library points the
// sink at its "log_message" import.
type WireHandler struct {
	sink   func([]byte)
	attrs  []slog.Attr
	groups []string
	opts   handlerConfig
}

// NewWireHandler creates a WireHandler. Only WithLevel applies.
func NewWireHandler(sink func([]byte), opts ...HandlerOption) *WireHandler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &WireHandler{sink: sink, opts: cfg}
}

// Enabled reports whether the handler handles records at the given level.
func (h *WireHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level
}

// Handle encodes the record and sends it to the sink.
func (h *WireHandler) Handle(_ context.Context, record slog.Record) error {
	if len(h.groups) > 0 {
		var attrs []any
		record.Attrs(func(a slog.Attr) bool {
			attrs = append(attrs, a)
			return true
		})
		nested := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
		if len(attrs) > 0 {
			nested.AddAttrs(h.group(slog.Group(h.groups[len(h.groups)-1], attrs...)))
		}
		record = nested
	}

	data, err := EncodeRecord(record, h.attrs...)
	if err != nil {
		return err
	}
	h.sink(data)
	return nil
}

// group wraps a innermost group in the enclosing open groups.
func (h *WireHandler) group(inner slog.Attr) slog.Attr {
	for i := len(h.groups) - 2; i >= 0; i-- {
		inner = slog.Group(h.groups[i], inner)
	}
	return inner
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *WireHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if len(h.groups) > 0 {
			a = h.group(slog.Group(h.groups[len(h.groups)-1], a))
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

// WithGroup returns a handler that nests subsequent attributes under name.
func (h *WireHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}
