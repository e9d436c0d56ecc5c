// Package capture records log output in memory for a bounded time.
//
// A Session attaches to a record source, accumulates every record the
// source emits in a Buffer bounded by count or by byte size, and detaches on
// Stop. The captured records are then rendered with RenderBytes, RenderText
// or RenderWithLayout.
package capture

import (
	"fmt"
	"strings"
	"sync"

	"github.com/clarabennett2626/logrecorder/internal/diag"
	"github.com/clarabennett2626/logrecorder/internal/record"
)

// Policy selects how records are costed against a buffer's limit.
type Policy int

const (
	// PolicyBytes costs each record with the buffer's SizeFunc.
	PolicyBytes Policy = iota
	// PolicyCount costs every record as 1, bounding the number of records.
	PolicyCount
)

func (p Policy) String() string {
	switch p {
	case PolicyBytes:
		return "bytes"
	case PolicyCount:
		return "count"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "bytes" or "count".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bytes", "size":
		return PolicyBytes, nil
	case "count", "records":
		return PolicyCount, nil
	}
	return 0, fmt.Errorf("capture: unknown eviction policy %q", s)
}

// BufferConfig bounds a Buffer. A negative Limit disables eviction.
type BufferConfig struct {
	Policy Policy
	Limit  int64
	// EvictOversized evicts a record that alone exceeds Limit, leaving the
	// buffer empty. By default such a record is kept until the next push.
	EvictOversized bool
}

// Unbounded returns a config that never evicts.
func Unbounded() BufferConfig { return BufferConfig{Limit: -1} }

// SizeFunc returns the cost of one record.
type SizeFunc[T any] func(T) int64

// EntrySize costs every structured record as 1.
func EntrySize(record.Entry) int64 { return 1 }

// ByteSize costs an encoded record by its length.
func ByteSize(b []byte) int64 { return int64(len(b)) }

// Observer is notified of buffer activity. Calls happen outside the buffer
// lock, on the pushing goroutine, and must not block.
type Observer interface {
	Pushed(size int64)
	Evicted(n int, size int64)
	// Discarded reports records dropped together by Reset or a session stop.
	Discarded(n int, size int64)
}

// compactAfter is the minimum number of evicted head slots before the
// backing slice is compacted.
const compactAfter = 64

type slot[T any] struct {
	rec  T
	size int64
}

// Buffer is an ordered, bounded record store. Records are appended at the
// tail and evicted from the head, oldest first, until the total cost fits the
// limit again. All methods are safe for concurrent use.
type Buffer[T any] struct {
	size           SizeFunc[T]
	evictOversized bool

	mu      sync.Mutex
	items   []slot[T]
	head    int
	total   int64
	limit   int64
	evicted uint64
	obs     Observer
	// sealed buffers drop pushes without notifying the observer.
	sealed bool
	// pushes stored but not yet reported to the observer
	inflight sync.WaitGroup
}

// NewBuffer returns an empty buffer. With PolicyCount, or a nil size, every
// record costs 1.
func NewBuffer[T any](size SizeFunc[T], cfg BufferConfig) *Buffer[T] {
	if size == nil || cfg.Policy == PolicyCount {
		size = func(T) int64 { return 1 }
	}
	if cfg.Limit < 0 {
		warnUnbounded(cfg.Limit)
	}
	return &Buffer[T]{
		size:           size,
		evictOversized: cfg.EvictOversized,
		limit:          cfg.Limit,
	}
}

// SetObserver installs o. It should be called before the buffer is shared.
func (b *Buffer[T]) SetObserver(o Observer) {
	b.mu.Lock()
	b.obs = o
	b.mu.Unlock()
}

// Push appends r and evicts from the head while the limit is exceeded. Push
// never blocks on I/O and never fails: a panicking size function drops the
// record, a panicking observer loses the notification, and both are reported
// on the diagnostic logger.
func (b *Buffer[T]) Push(r T) {
	n, ok := b.cost(r)
	if !ok {
		return
	}
	evictedN, evictedSize, obs, stored := b.push(r, n)
	if !stored || obs == nil {
		return
	}
	defer b.inflight.Done()
	notify(func() {
		obs.Pushed(n)
		if evictedN > 0 {
			obs.Evicted(evictedN, evictedSize)
		}
	})
}

func (b *Buffer[T]) cost(r T) (n int64, ok bool) {
	defer func() {
		if v := recover(); v != nil {
			diag.L().Error().Interface("panic", v).Msg("capture: size function panicked, record dropped")
			n, ok = 0, false
		}
	}()
	n = b.size(r)
	if n < 0 {
		n = 0
	}
	return n, true
}

// notify runs an observer callback. The record is already stored, so a panic
// only loses the notification.
func notify(f func()) {
	defer func() {
		if v := recover(); v != nil {
			diag.L().Error().Interface("panic", v).Msg("capture: observer panicked")
		}
	}()
	f()
}

func (b *Buffer[T]) push(r T, n int64) (int, int64, Observer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return 0, 0, nil, false
	}
	b.items = append(b.items, slot[T]{rec: r, size: n})
	b.total += n

	floor := 1
	if b.evictOversized {
		floor = 0
	}
	var count int
	var size int64
	for b.limit >= 0 && b.total > b.limit && len(b.items)-b.head > floor {
		s := b.items[b.head]
		b.items[b.head] = slot[T]{}
		b.head++
		b.total -= s.size
		count++
		size += s.size
	}
	b.evicted += uint64(count)
	b.compact()
	if b.obs != nil {
		b.inflight.Add(1)
	}
	return count, size, b.obs, true
}

// seal stops the buffer from accepting records and returns its contents and
// counters taken together. It returns once every stored record has been
// reported to the observer.
func (b *Buffer[T]) seal() ([]T, Stats) {
	b.mu.Lock()
	b.sealed = true
	snap, st := b.snapshot(), b.stats()
	b.mu.Unlock()
	b.inflight.Wait()
	return snap, st
}

func (b *Buffer[T]) stats() Stats {
	return Stats{
		Records: len(b.items) - b.head,
		Size:    b.total,
		Limit:   b.limit,
		Evicted: b.evicted,
	}
}

// compact moves live records to the front once at least half of the backing
// slice is evicted slots.
func (b *Buffer[T]) compact() {
	if b.head == len(b.items) {
		b.items = b.items[:0]
		b.head = 0
		return
	}
	if b.head < compactAfter || b.head*2 < len(b.items) {
		return
	}
	n := copy(b.items, b.items[b.head:])
	clear(b.items[n:])
	b.items = b.items[:n]
	b.head = 0
}

// Snapshot returns an independent copy of the records, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

func (b *Buffer[T]) snapshot() []T {
	out := make([]T, 0, len(b.items)-b.head)
	for _, s := range b.items[b.head:] {
		out = append(out, s.rec)
	}
	return out
}

// TotalSize returns the summed cost of the buffered records.
func (b *Buffer[T]) TotalSize() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Len returns the number of buffered records.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items) - b.head
}

// Limit returns the current bound; negative means unbounded.
func (b *Buffer[T]) Limit() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}

// SetLimit changes the bound. Records are not evicted until the next push.
// A negative limit disables eviction and is logged as unusual.
func (b *Buffer[T]) SetLimit(limit int64) {
	if limit < 0 {
		warnUnbounded(limit)
	}
	b.mu.Lock()
	b.limit = limit
	b.mu.Unlock()
}

// Evicted returns the number of records evicted since the buffer was created.
func (b *Buffer[T]) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}

// Reset drops every buffered record.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	n, size, obs := len(b.items)-b.head, b.total, b.obs
	clear(b.items)
	b.items = b.items[:0]
	b.head = 0
	b.total = 0
	b.mu.Unlock()

	if obs != nil && n > 0 {
		notify(func() { obs.Discarded(n, size) })
	}
}

func warnUnbounded(limit int64) {
	diag.L().Warn().Int64("limit", limit).Msg("capture: negative limit, buffer is unbounded")
}
