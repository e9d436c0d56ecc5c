package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/clarabennett2626/logrecorder/internal/capture"
	"github.com/clarabennett2626/logrecorder/internal/record"
	"github.com/clarabennett2626/logrecorder/internal/source"
)

var (
	_ capture.Observer        = (*Metrics)(nil)
	_ capture.SessionObserver = (*Metrics)(nil)
)

func TestMetrics_TrackSession(t *testing.T) {
	m := New()
	hub := source.NewHub("app")
	s := capture.NewEntrySession(capture.WithObserver(m))
	if err := s.Start(hub, capture.BufferConfig{Policy: capture.PolicyCount, Limit: 2}); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active_sessions = %v, want 1", got)
	}

	for _, msg := range []string{"a", "b", "c", "d"} {
		hub.Emit(record.Entry{Message: msg})
	}
	if got := testutil.ToFloat64(m.RecordsPushed); got != 4 {
		t.Errorf("records_pushed_total = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.RecordsEvicted); got != 2 {
		t.Errorf("records_evicted_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BufferedSize); got != 2 {
		t.Errorf("buffered_size = %v, want 2", got)
	}

	s.Stop()
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Errorf("active_sessions after stop = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.BufferedSize); got != 0 {
		t.Errorf("buffered_size after stop = %v, want 0", got)
	}
}

func TestMetrics_ConvertInFlightAtStop(t *testing.T) {
	m := New()
	hub := source.NewHub("app")
	entered := make(chan struct{})
	release := make(chan struct{})
	s := capture.NewSession(capture.EntrySize, func(e record.Entry) (record.Entry, error) {
		close(entered)
		<-release
		return e, nil
	}, capture.WithObserver(m))
	if err := s.Start(hub, capture.Unbounded()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Emit(record.Entry{Message: "late"})
	}()
	<-entered
	s.Stop()
	close(release)
	<-done

	if got := testutil.ToFloat64(m.BufferedSize); got != 0 {
		t.Errorf("buffered_size = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Errorf("active_sessions = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.RecordsPushed); got != 0 {
		t.Errorf("records_pushed_total = %v, want 0", got)
	}
}

func TestMetrics_ByteBuffer(t *testing.T) {
	m := New()
	b := capture.NewBuffer(capture.ByteSize, capture.BufferConfig{Limit: 10})
	b.SetObserver(m)
	b.Push([]byte("123456"))
	b.Push([]byte("123456"))

	if got := testutil.ToFloat64(m.BytesPushed); got != 12 {
		t.Errorf("pushed_size_total = %v, want 12", got)
	}
	if got := testutil.ToFloat64(m.BufferedSize); got != 6 {
		t.Errorf("buffered_size = %v, want 6", got)
	}
	b.Reset()
	if got := testutil.ToFloat64(m.BufferedSize); got != 0 {
		t.Errorf("buffered_size after reset = %v, want 0", got)
	}
}

func TestMetrics_WriteText(t *testing.T) {
	m := New()
	m.Pushed(3)
	var buf bytes.Buffer
	if err := m.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"logrecorder_records_pushed_total 1",
		"logrecorder_pushed_size_total 3",
		"# TYPE logrecorder_active_sessions gauge",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMetrics_PrivateRegistry(t *testing.T) {
	a, b := New(), New()
	a.SessionStarted()
	if testutil.ToFloat64(b.ActiveSessions) != 0 {
		t.Error("metrics instances share state")
	}
	n, err := testutil.GatherAndCount(a.Registry())
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("registry has %d metrics, want 5", n)
	}
}
