package source

import (
	"testing"
	"time"

	"github.com/clarabennett2626/logrecorder/internal/record"
)

// chanListener forwards entries to a buffered channel so tests can wait on
// asynchronous producers.
type chanListener struct {
	ch chan record.Entry
}

func newChanListener(size int) *chanListener {
	return &chanListener{ch: make(chan record.Entry, size)}
}

func (l *chanListener) OnEntry(e record.Entry) { l.ch <- e }

func (l *chanListener) collect(t *testing.T, timeout time.Duration, n int) []record.Entry {
	t.Helper()
	var entries []record.Entry
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for len(entries) < n {
		select {
		case e := <-l.ch:
			entries = append(entries, e)
		case <-timer.C:
			t.Fatalf("timeout waiting for entries: got %d, want %d", len(entries), n)
		}
	}
	return entries
}

// sliceListener records entries synchronously.
type sliceListener struct {
	entries []record.Entry
}

func (l *sliceListener) OnEntry(e record.Entry) { l.entries = append(l.entries, e) }

func rawLines(entries []record.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Raw
	}
	return out
}
