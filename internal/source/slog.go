package source

import (
	"context"
	"log/slog"

	"github.com/clarabennett2626/logrecorder/internal/record"
)

// SlogHandler is a slog.Handler that doubles as a Registry: every record it
// handles is converted to a record.Entry and delivered to its listeners,
// then passed on to an optional next handler. Handlers derived with
// WithAttrs or WithGroup share the listener set of their root.
type SlogHandler struct {
	hub    *Hub
	next   slog.Handler
	level  slog.Leveler
	group  string
	preset []slog.Attr
}

// NewSlogHandler creates a handler named name that forwards to next, which
// may be nil. Records below opts.Level are neither captured nor forwarded;
// the default level is debug.
func NewSlogHandler(name string, next slog.Handler, opts *slog.HandlerOptions) *SlogHandler {
	var level slog.Leveler = slog.LevelDebug
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &SlogHandler{
		hub:   NewHub(name),
		next:  next,
		level: level,
	}
}

// RegisterListener implements Registry.
func (h *SlogHandler) RegisterListener(l Listener) { h.hub.RegisterListener(l) }

// UnregisterListener implements Registry.
func (h *SlogHandler) UnregisterListener(l Listener) bool { return h.hub.UnregisterListener(l) }

// Listeners returns the number of attached listeners.
func (h *SlogHandler) Listeners() int { return h.hub.Listeners() }

// Enabled reports whether records at level are captured or forwarded.
func (h *SlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.level.Level() {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

// Handle captures r and forwards it. A forwarding error is returned to the
// logger; capture itself cannot fail.
func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level.Level() && h.hub.Listeners() > 0 {
		h.hub.Emit(record.FromSlog(r, h.hub.Name(), h.group, h.preset))
	}
	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		c.preset = append(c.preset, a)
	}
	if h.next != nil {
		c.next = h.next.WithAttrs(attrs)
	}
	return c
}

// WithGroup returns a handler that qualifies later attributes with name.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	if c.group == "" {
		c.group = name
	} else {
		c.group = c.group + "." + name
	}
	if h.next != nil {
		c.next = h.next.WithGroup(name)
	}
	return c
}

func (h *SlogHandler) clone() *SlogHandler {
	c := *h
	c.preset = append([]slog.Attr(nil), h.preset...)
	return &c
}
