package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clarabennett2626/logrecorder/internal/diag"
	"github.com/clarabennett2626/logrecorder/internal/layout"
	"github.com/clarabennett2626/logrecorder/internal/record"
	"github.com/clarabennett2626/logrecorder/internal/source"
)

var (
	// ErrInvalidSource is returned by Start for a nil or unsupported source.
	ErrInvalidSource = errors.New("capture: invalid source")
	// ErrSessionStopped is returned by Start on a stopped session.
	ErrSessionStopped = errors.New("capture: session stopped")
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateIdle State = iota
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Converter turns an emitted record into the stored record type. It runs on
// the producer's goroutine at push time.
type Converter[T any] func(record.Entry) (T, error)

// SessionObserver is notified when sessions start and stop. An Observer
// passed to WithObserver that also implements SessionObserver receives both.
type SessionObserver interface {
	SessionStarted()
	SessionStopped()
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	id  string
	obs Observer
}

// WithID overrides the generated session id.
func WithID(id string) SessionOption {
	return func(o *sessionOptions) { o.id = id }
}

// WithObserver reports buffer activity to obs.
func WithObserver(obs Observer) SessionOption {
	return func(o *sessionOptions) { o.obs = obs }
}

// Stats is a point-in-time view of a session's buffer.
type Stats struct {
	Records int
	Size    int64
	Limit   int64
	Evicted uint64
}

// Session attaches a Buffer to a record source for a bounded time.
//
// A session moves from idle to active on Start and from active to stopped on
// Stop. Stopped is terminal. Start and Stop are serialized and idempotent.
// Callers must Stop (or Close) every started session, typically with defer;
// Record and RecordEvents do this for a function scope.
type Session[T any] struct {
	id      string
	size    SizeFunc[T]
	convert Converter[T]
	obs     Observer

	mu         sync.Mutex
	state      State
	reg        source.Registry
	lis        *listener[T]
	buf        *Buffer[T]
	final      []T
	finalStats Stats
}

// NewSession returns an idle session storing records produced by convert
// and costed by size.
func NewSession[T any](size SizeFunc[T], convert Converter[T], opts ...SessionOption) *Session[T] {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	return &Session[T]{
		id:      o.id,
		size:    size,
		convert: convert,
		obs:     o.obs,
	}
}

// sessionLogger is resolved on every use so a logger installed with diag.Set
// after the session was created still applies.
func sessionLogger(id string) *zerolog.Logger {
	l := diag.Component("capture").With().Str("session", id).Logger()
	return &l
}

// NewEntrySession returns a session that stores structured records as they
// were emitted, costing each as 1.
func NewEntrySession(opts ...SessionOption) *Session[record.Entry] {
	return NewSession(EntrySize, func(e record.Entry) (record.Entry, error) { return e, nil }, opts...)
}

// NewByteSession returns a session that encodes records with enc at push
// time. enc must be started by the caller.
func NewByteSession(enc layout.Encoder, opts ...SessionOption) *Session[[]byte] {
	return NewSession(ByteSize, enc.Encode, opts...)
}

// ID returns the session id.
func (s *Session[T]) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start attaches a new buffer built from cfg to src. src is a
// source.Registry, or a *slog.Logger whose handler is one. Starting an active
// session is a no-op; starting a stopped one returns ErrSessionStopped. On
// ErrInvalidSource the session stays idle.
func (s *Session[T]) Start(src any, cfg BufferConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateActive:
		sessionLogger(s.id).Trace().Msg("already started")
		return nil
	case StateStopped:
		return ErrSessionStopped
	}

	reg, err := resolveRegistry(src)
	if err != nil {
		return err
	}

	buf := NewBuffer(s.size, cfg)
	buf.obs = s.obs
	lis := &listener[T]{convert: s.convert, buf: buf, id: s.id}
	lis.active.Store(true)
	reg.RegisterListener(lis)

	s.reg, s.lis, s.buf = reg, lis, buf
	s.state = StateActive
	if so, ok := s.obs.(SessionObserver); ok {
		notify(so.SessionStarted)
	}
	sessionLogger(s.id).Debug().
		Str("policy", cfg.Policy.String()).
		Int64("limit", cfg.Limit).
		Msg("capture started")
	return nil
}

// Stop detaches from the source and returns the final snapshot. Later calls
// return the same records. Stopping an idle session makes it stopped with no
// records.
func (s *Session[T]) Stop() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStopped:
		return slices.Clone(s.final)
	case StateIdle:
		s.state = StateStopped
		s.final = []T{}
		return []T{}
	}

	s.lis.active.Store(false)
	detached := s.reg.UnregisterListener(s.lis)
	// A push already past the active check lands in the sealed buffer and
	// is dropped there.
	s.final, s.finalStats = s.buf.seal()
	s.state = StateStopped

	if s.obs != nil {
		notify(func() { s.obs.Discarded(s.finalStats.Records, s.finalStats.Size) })
		if so, ok := s.obs.(SessionObserver); ok {
			notify(so.SessionStopped)
		}
	}
	sessionLogger(s.id).Debug().
		Bool("detached", detached).
		Int("records", s.finalStats.Records).
		Uint64("evicted", s.finalStats.Evicted).
		Msg("capture stopped")

	s.reg, s.lis = nil, nil
	return slices.Clone(s.final)
}

// Close stops the session. It implements io.Closer.
func (s *Session[T]) Close() error {
	s.Stop()
	return nil
}

// Snapshot returns the records captured so far. It is empty before Start and
// the final records after Stop.
func (s *Session[T]) Snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateActive:
		return s.buf.Snapshot()
	case StateStopped:
		return slices.Clone(s.final)
	}
	return nil
}

// Stats reports the buffer counters. They are zero before Start and match
// the final records after Stop.
func (s *Session[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateActive:
		s.buf.mu.Lock()
		defer s.buf.mu.Unlock()
		return s.buf.stats()
	case StateStopped:
		return s.finalStats
	}
	return Stats{}
}

// SetLimit changes the bound of an active session's buffer.
func (s *Session[T]) SetLimit(limit int64) {
	s.mu.Lock()
	buf := s.buf
	s.mu.Unlock()
	if buf != nil {
		buf.SetLimit(limit)
	}
}

func resolveRegistry(src any) (source.Registry, error) {
	switch v := src.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrInvalidSource)
	case *slog.Logger:
		if v == nil {
			return nil, fmt.Errorf("%w: nil logger", ErrInvalidSource)
		}
		if reg, ok := v.Handler().(source.Registry); ok {
			return reg, nil
		}
		return nil, fmt.Errorf("%w: logger handler %T does not accept listeners", ErrInvalidSource, v.Handler())
	case source.Registry:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, fmt.Errorf("%w: nil %T", ErrInvalidSource, v)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidSource, src)
}

// listener adapts a session buffer to source.Listener. Records that arrive
// after the session stopped are dropped.
type listener[T any] struct {
	active  atomic.Bool
	convert Converter[T]
	buf     *Buffer[T]
	id      string
}

func (l *listener[T]) OnEntry(e record.Entry) {
	if !l.active.Load() {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			sessionLogger(l.id).Error().Interface("panic", v).Msg("capture: convert dropped a record")
		}
	}()
	r, err := l.convert(e)
	if err != nil {
		log := sessionLogger(l.id)
		ev := log.Error()
		if errors.Is(err, layout.ErrNotStarted) {
			ev = log.Debug()
		}
		ev.Err(err).Msg("capture: convert dropped a record")
		return
	}
	l.buf.Push(r)
}

// Record captures every structured record emitted by src while fn runs and
// returns them, bounded by cfg. The session is stopped on every exit from fn,
// including a panic.
func Record(src any, cfg BufferConfig, fn func() error) (entries []record.Entry, err error) {
	s := NewEntrySession()
	if err := s.Start(src, cfg); err != nil {
		return nil, err
	}
	defer func() { entries = s.Stop() }()
	return nil, fn()
}

// RecordEvents is Record keeping at most the last n records.
func RecordEvents(src any, n int, fn func() error) ([]record.Entry, error) {
	return Record(src, BufferConfig{Policy: PolicyCount, Limit: int64(n)}, fn)
}
