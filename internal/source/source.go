// Package source provides record producers that capture sessions attach to:
// an in-process slog handler, a file tailer and a stdin reader. Every
// producer dispatches records synchronously to its registered listeners on
// the producing goroutine.
package source

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/clarabennett2626/logrecorder/internal/record"
)

// Listener receives every record emitted by a Registry it is registered
// with. OnEntry runs on the producer's goroutine and must not block.
// Listeners are compared by identity, so implementations should be pointers.
type Listener interface {
	OnEntry(e record.Entry)
}

// Registry is the attach/detach capability a record source exposes.
type Registry interface {
	RegisterListener(l Listener)
	// UnregisterListener reports whether l was registered.
	UnregisterListener(l Listener) bool
}

// Source is a Registry that produces records from an external input.
type Source interface {
	Registry
	// Errors returns a channel of non-fatal read errors.
	Errors() <-chan error
	// Start begins reading.
	Start(ctx context.Context) error
	// Stop shuts the source down and waits for its goroutines.
	Stop() error
	// Done is closed once the source has stopped producing.
	Done() <-chan struct{}
}

// Hub is a Registry with copy-on-write listener registration. Emit never
// takes the registration lock, so a listener may register or unregister
// listeners while being called.
type Hub struct {
	name      string
	mu        sync.Mutex
	listeners atomic.Pointer[[]Listener]
}

// NewHub creates an empty Hub. The name is used as the default logger name
// of emitted records.
func NewHub(name string) *Hub {
	h := &Hub{name: name}
	h.listeners.Store(&[]Listener{})
	return h
}

// Name returns the hub's name.
func (h *Hub) Name() string { return h.name }

// RegisterListener adds l. Registering a listener twice has no effect.
func (h *Hub) RegisterListener(l Listener) {
	if l == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := *h.listeners.Load()
	for _, existing := range cur {
		if existing == l {
			return
		}
	}
	next := make([]Listener, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, l)
	h.listeners.Store(&next)
}

// UnregisterListener removes l and reports whether it was registered.
func (h *Hub) UnregisterListener(l Listener) bool {
	if l == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := *h.listeners.Load()
	for i, existing := range cur {
		if existing != l {
			continue
		}
		next := make([]Listener, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		h.listeners.Store(&next)
		return true
	}
	return false
}

// Listeners returns the number of registered listeners.
func (h *Hub) Listeners() int {
	return len(*h.listeners.Load())
}

// Emit delivers e to every listener registered at the time of the call.
func (h *Hub) Emit(e record.Entry) {
	if e.Logger == "" {
		e.Logger = h.name
	}
	for _, l := range *h.listeners.Load() {
		l.OnEntry(e)
	}
}
