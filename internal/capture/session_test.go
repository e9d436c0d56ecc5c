package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clarabennett2626/logrecorder/internal/diag"
	"github.com/clarabennett2626/logrecorder/internal/record"
	"github.com/clarabennett2626/logrecorder/internal/source"
)

type fakeObserver struct {
	mu                         sync.Mutex
	pushed, evicted, discarded int
	pushedSize, evictedSize    int64
	discardedSize              int64
	started, stopped           int
}

func (o *fakeObserver) Pushed(size int64) {
	o.mu.Lock()
	o.pushed++
	o.pushedSize += size
	o.mu.Unlock()
}

func (o *fakeObserver) Evicted(n int, size int64) {
	o.mu.Lock()
	o.evicted += n
	o.evictedSize += size
	o.mu.Unlock()
}

func (o *fakeObserver) Discarded(n int, size int64) {
	o.mu.Lock()
	o.discarded += n
	o.discardedSize += size
	o.mu.Unlock()
}

func (o *fakeObserver) SessionStarted() { o.mu.Lock(); o.started++; o.mu.Unlock() }
func (o *fakeObserver) SessionStopped() { o.mu.Lock(); o.stopped++; o.mu.Unlock() }

func emit(h *source.Hub, msgs ...string) {
	for _, m := range msgs {
		h.Emit(record.Entry{Level: "INFO", Message: m})
	}
}

func messages(entries []record.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestSession_InvalidSource(t *testing.T) {
	tests := []struct {
		name string
		src  any
	}{
		{"nil", nil},
		{"nil logger", (*slog.Logger)(nil)},
		{"nil hub", (*source.Hub)(nil)},
		{"nil slog handler", (*source.SlogHandler)(nil)},
		{"unsupported type", 42},
		{"logger without registry", slog.New(slog.NewTextHandler(io.Discard, nil))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewEntrySession()
			err := s.Start(tt.src, BufferConfig{Limit: 10})
			if !errors.Is(err, ErrInvalidSource) {
				t.Fatalf("Start = %v, want ErrInvalidSource", err)
			}
			if s.State() != StateIdle {
				t.Errorf("State() = %v, want idle", s.State())
			}
		})
	}
}

func TestSession_Lifecycle(t *testing.T) {
	hub := source.NewHub("app")
	s := NewEntrySession()

	emit(hub, "before start")
	if err := s.Start(hub, BufferConfig{Policy: PolicyCount, Limit: 10}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(hub, BufferConfig{Policy: PolicyCount, Limit: 10}); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if hub.Listeners() != 1 {
		t.Fatalf("Listeners() = %d after two starts, want 1", hub.Listeners())
	}
	if s.State() != StateActive {
		t.Errorf("State() = %v, want active", s.State())
	}

	emit(hub, "one", "two")
	if got := messages(s.Snapshot()); fmt.Sprint(got) != "[one two]" {
		t.Errorf("Snapshot() = %v", got)
	}

	first := s.Stop()
	emit(hub, "after stop")
	second := s.Stop()

	if fmt.Sprint(messages(first)) != "[one two]" {
		t.Errorf("first Stop() = %v", messages(first))
	}
	if fmt.Sprint(messages(second)) != fmt.Sprint(messages(first)) {
		t.Errorf("second Stop() = %v, want %v", messages(second), messages(first))
	}
	if hub.Listeners() != 0 {
		t.Errorf("Listeners() = %d after Stop, want 0", hub.Listeners())
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if err := s.Start(hub, BufferConfig{Limit: 10}); !errors.Is(err, ErrSessionStopped) {
		t.Errorf("Start after Stop = %v, want ErrSessionStopped", err)
	}
	if hub.Listeners() != 0 {
		t.Error("restart attempt re-registered a listener")
	}
}

func TestSession_StopIsolatedFromCaller(t *testing.T) {
	hub := source.NewHub("app")
	s := NewEntrySession()
	s.Start(hub, BufferConfig{Limit: 10})
	emit(hub, "kept")

	got := s.Stop()
	got[0].Message = "mutated"
	if again := s.Stop(); again[0].Message != "kept" {
		t.Errorf("stored snapshot was mutated: %q", again[0].Message)
	}
}

func TestSession_StopWhileIdle(t *testing.T) {
	s := NewEntrySession()
	if got := s.Stop(); len(got) != 0 {
		t.Errorf("Stop() on idle = %v, want empty", got)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if err := s.Start(source.NewHub("x"), BufferConfig{}); !errors.Is(err, ErrSessionStopped) {
		t.Errorf("Start = %v, want ErrSessionStopped", err)
	}
	if got := s.Snapshot(); len(got) != 0 {
		t.Errorf("Snapshot() = %v, want empty", got)
	}
}

func TestSession_SlogLoggerSource(t *testing.T) {
	h := source.NewSlogHandler("payments", nil, nil)
	logger := slog.New(h)

	s := NewEntrySession()
	if err := s.Start(logger, BufferConfig{Policy: PolicyCount, Limit: 2}); err != nil {
		t.Fatal(err)
	}
	logger.Info("a")
	logger.Warn("b", "order", 7)
	logger.Error("c")
	got := s.Stop()

	if fmt.Sprint(messages(got)) != "[b c]" {
		t.Fatalf("captured %v, want [b c]", messages(got))
	}
	if got[0].Logger != "payments" || got[0].Fields["order"] != "7" || got[0].Level != "WARN" {
		t.Errorf("unexpected entry %+v", got[0])
	}
	if h.Listeners() != 0 {
		t.Error("listener still attached to the handler")
	}
}

func TestSession_ConverterErrorsAreDropped(t *testing.T) {
	hub := source.NewHub("app")
	s := NewSession(ByteSize, func(e record.Entry) ([]byte, error) {
		switch e.Message {
		case "bad":
			return nil, errors.New("cannot encode")
		case "panic":
			panic("boom")
		}
		return []byte(e.Message), nil
	})
	s.Start(hub, Unbounded())
	emit(hub, "a", "bad", "panic", "b")

	if got := string(RenderBytes(s.Stop())); got != "ab" {
		t.Errorf("captured %q, want %q", got, "ab")
	}
}

func TestSession_ConcurrentStartStop(t *testing.T) {
	for round := 0; round < 50; round++ {
		hub := source.NewHub("app")
		s := NewEntrySession()
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() { defer wg.Done(); s.Start(hub, BufferConfig{Limit: 10}) }()
			go func() { defer wg.Done(); s.Stop() }()
		}
		wg.Wait()
		s.Stop()
		if n := hub.Listeners(); n != 0 {
			t.Fatalf("round %d: %d listeners left after Stop", round, n)
		}
	}
}

func TestSession_PushRacingStop(t *testing.T) {
	hub := source.NewHub("app")
	s := NewEntrySession()
	s.Start(hub, Unbounded())

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				emit(hub, "x")
			}
		}()
	}
	final := s.Stop()
	wg.Wait()

	if again := s.Stop(); len(again) != len(final) {
		t.Errorf("records changed after Stop: %d then %d", len(final), len(again))
	}
	if len(final) > 4000 {
		t.Errorf("captured %d records from 4000 emits", len(final))
	}
}

func TestSession_PushInFlightAtStopIsDropped(t *testing.T) {
	hub := source.NewHub("app")
	entered := make(chan struct{})
	release := make(chan struct{})
	obs := &fakeObserver{}
	s := NewSession(EntrySize, func(e record.Entry) (record.Entry, error) {
		if e.Message == "slow" {
			close(entered)
			<-release
		}
		return e, nil
	}, WithObserver(obs))
	if err := s.Start(hub, BufferConfig{Policy: PolicyCount, Limit: 10}); err != nil {
		t.Fatal(err)
	}
	emit(hub, "a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		emit(hub, "slow")
	}()
	<-entered
	final := s.Stop()
	close(release)
	<-done

	if got := messages(final); fmt.Sprint(got) != "[a]" {
		t.Errorf("Stop() = %v, want [a]", got)
	}
	if got := messages(s.Stop()); fmt.Sprint(got) != "[a]" {
		t.Errorf("records changed after Stop: %v", got)
	}
	if st := s.Stats(); st.Records != 1 || st.Size != 1 {
		t.Errorf("Stats() after Stop = %+v, want 1 record", st)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.pushed != 1 {
		t.Errorf("pushed = %d, want 1", obs.pushed)
	}
	if obs.discarded != 1 || obs.discardedSize != 1 {
		t.Errorf("discarded %d/%d, want 1/1", obs.discarded, obs.discardedSize)
	}
}

type orderObserver struct {
	mu      sync.Mutex
	events  []string
	entered chan struct{}
	release chan struct{}
}

func (o *orderObserver) add(ev string) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *orderObserver) Pushed(int64) {
	close(o.entered)
	<-o.release
	o.add("pushed")
}

func (o *orderObserver) Evicted(int, int64)   {}
func (o *orderObserver) Discarded(int, int64) { o.add("discarded") }

func TestSession_StopWaitsForPushNotification(t *testing.T) {
	hub := source.NewHub("app")
	obs := &orderObserver{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewEntrySession(WithObserver(obs))
	s.Start(hub, Unbounded())

	done := make(chan struct{})
	go func() {
		defer close(done)
		emit(hub, "a")
	}()
	<-obs.entered

	stopped := make(chan []record.Entry)
	go func() { stopped <- s.Stop() }()
	select {
	case <-stopped:
		t.Fatal("Stop returned before the stored record was reported")
	case <-time.After(20 * time.Millisecond):
	}
	close(obs.release)
	final := <-stopped
	<-done

	if got := messages(final); fmt.Sprint(got) != "[a]" {
		t.Errorf("Stop() = %v, want [a]", got)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if got := fmt.Sprint(obs.events); got != "[pushed discarded]" {
		t.Errorf("observer events = %s, want [pushed discarded]", got)
	}
}

func TestSession_StatsAfterStop(t *testing.T) {
	hub := source.NewHub("app")
	s := NewEntrySession()
	if st := s.Stats(); st != (Stats{}) {
		t.Errorf("Stats() before Start = %+v", st)
	}
	s.Start(hub, BufferConfig{Policy: PolicyCount, Limit: 2})
	emit(hub, "a", "b", "c")
	final := s.Stop()
	emit(hub, "d")

	st := s.Stats()
	if st.Records != len(final) || st.Size != 2 || st.Limit != 2 || st.Evicted != 1 {
		t.Errorf("Stats() after Stop = %+v for %d records", st, len(final))
	}
}

func TestSession_LoggerInstalledAfterCreate(t *testing.T) {
	s := NewEntrySession(WithID("late-logger"))

	var buf bytes.Buffer
	prev := diag.Set(diag.New("debug", &buf))
	defer diag.Set(*prev)

	s.Start(source.NewHub("app"), Unbounded())
	s.Stop()

	out := buf.String()
	for _, want := range []string{`"session":"late-logger"`, "capture stopped"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestSession_IDAndObserver(t *testing.T) {
	obs := &fakeObserver{}
	s := NewEntrySession(WithObserver(obs))
	if _, err := uuid.Parse(s.ID()); err != nil {
		t.Errorf("ID() = %q is not a uuid: %v", s.ID(), err)
	}
	if NewEntrySession(WithID("fixed")).ID() != "fixed" {
		t.Error("WithID not applied")
	}

	hub := source.NewHub("app")
	s.Start(hub, BufferConfig{Policy: PolicyCount, Limit: 2})
	emit(hub, "a", "b", "c")
	if st := s.Stats(); st.Records != 2 || st.Size != 2 || st.Limit != 2 || st.Evicted != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	s.Stop()

	if obs.started != 1 || obs.stopped != 1 {
		t.Errorf("started=%d stopped=%d, want 1/1", obs.started, obs.stopped)
	}
	if obs.pushed != 3 || obs.evicted != 1 || obs.discarded != 2 {
		t.Errorf("pushed=%d evicted=%d discarded=%d, want 3/1/2", obs.pushed, obs.evicted, obs.discarded)
	}
}

func TestSession_SetLimit(t *testing.T) {
	hub := source.NewHub("app")
	s := NewEntrySession()
	s.SetLimit(5) // idle: no buffer yet
	s.Start(hub, BufferConfig{Policy: PolicyCount, Limit: 10})
	emit(hub, "a", "b", "c")
	s.SetLimit(1)
	emit(hub, "d")
	if got := messages(s.Stop()); fmt.Sprint(got) != "[d]" {
		t.Errorf("captured %v, want [d]", got)
	}
}

func TestRecord(t *testing.T) {
	hub := source.NewHub("app")
	got, err := Record(hub, BufferConfig{Policy: PolicyCount, Limit: 2}, func() error {
		emit(hub, "a", "b", "c")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(messages(got)) != "[b c]" {
		t.Errorf("Record = %v, want [b c]", messages(got))
	}
	if hub.Listeners() != 0 {
		t.Error("Record left a listener attached")
	}
}

func TestRecord_ReturnsFnErrorWithRecords(t *testing.T) {
	hub := source.NewHub("app")
	boom := errors.New("boom")
	got, err := Record(hub, Unbounded(), func() error {
		emit(hub, "before failure")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d records, want 1", len(got))
	}
}

func TestRecord_DetachesOnPanic(t *testing.T) {
	hub := source.NewHub("app")
	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic was swallowed")
			}
		}()
		RecordEvents(hub, 10, func() error {
			emit(hub, "x")
			panic("fn failed")
		})
	}()
	if hub.Listeners() != 0 {
		t.Error("listener leaked after panic")
	}
}

func TestRecord_InvalidSource(t *testing.T) {
	called := false
	_, err := RecordEvents(nil, 10, func() error { called = true; return nil })
	if !errors.Is(err, ErrInvalidSource) {
		t.Errorf("err = %v, want ErrInvalidSource", err)
	}
	if called {
		t.Error("fn should not run when the session cannot start")
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{StateIdle: "idle", StateActive: "active", StateStopped: "stopped", 9: "State(9)"} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), s.String(), want)
		}
	}
}
