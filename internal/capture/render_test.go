package capture

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clarabennett2626/logrecorder/internal/layout"
	"github.com/clarabennett2626/logrecorder/internal/record"
)

type failingWriter struct {
	after int
	err   error
	buf   bytes.Buffer
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, w.err
	}
	w.after--
	return w.buf.Write(p)
}

// brokenLayout fails on the record whose message is "bad".
type brokenLayout struct {
	started bool
}

func (l *brokenLayout) Start() error    { l.started = true; return nil }
func (l *brokenLayout) Stop() error     { l.started = false; return nil }
func (l *brokenLayout) IsStarted() bool { return l.started }

func (l *brokenLayout) Format(e record.Entry) (string, error) {
	if e.Message == "bad" {
		return "", &layout.FormatError{Pattern: "broken", Pos: -1, Msg: "cannot format"}
	}
	return e.Message + "\n", nil
}

var entries = []record.Entry{
	{Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), Level: "INFO", Message: "server started", Logger: "api"},
	{Timestamp: time.Date(2024, 1, 15, 10, 30, 1, 0, time.UTC), Level: "ERROR", Message: "db timeout", Logger: "api", Fields: map[string]string{"retry": "3"}},
}

func TestRenderBytes(t *testing.T) {
	got := RenderBytes([][]byte{[]byte("a\n"), nil, []byte("bc\n")})
	if string(got) != "a\nbc\n" {
		t.Errorf("RenderBytes = %q", got)
	}
	if got := RenderBytes(nil); len(got) != 0 {
		t.Errorf("RenderBytes(nil) = %q", got)
	}
}

func TestRenderText(t *testing.T) {
	latin1 := [][]byte{[]byte("caf\xe9\n"), []byte("na\xefve\n")}
	tests := []struct {
		name    string
		records [][]byte
		charset string
		want    string
	}{
		{"default utf-8", [][]byte{[]byte("héllo ")}, "", "héllo "},
		{"explicit utf-8", [][]byte{[]byte("日本")}, "UTF-8", "日本"},
		{"latin1", latin1, "ISO-8859-1", "café\nnaïve\n"},
		{"empty", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderText(tt.records, tt.charset)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("RenderText = %q, want %q", got, tt.want)
			}
		})
	}

	_, err := RenderText(latin1, "x-unknown")
	var fe *layout.FormatError
	if !errors.As(err, &fe) {
		t.Errorf("unknown charset error = %v, want *layout.FormatError", err)
	}
}

func TestWriteRecords(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteRecords(&buf, [][]byte{[]byte("one\n"), []byte("two\n")})
	if err != nil || n != 8 || buf.String() != "one\ntwo\n" {
		t.Errorf("WriteRecords = %d, %v, %q", n, err, buf.String())
	}

	sinkErr := errors.New("disk full")
	w := &failingWriter{after: 1, err: sinkErr}
	n, err = WriteRecords(w, [][]byte{[]byte("one\n"), []byte("two\n")})
	var ioe *IOError
	if !errors.As(err, &ioe) || !errors.Is(err, sinkErr) {
		t.Fatalf("err = %v, want *IOError wrapping the sink error", err)
	}
	if n != 4 {
		t.Errorf("n = %d, want 4", n)
	}
}

func TestRenderWithPattern(t *testing.T) {
	var buf bytes.Buffer
	err := RenderWithPattern(entries, "%d{15:04:05} %-5level [%logger] %msg %fields%n", &buf)
	if err != nil {
		t.Fatal(err)
	}
	want := "10:30:00 INFO  [api] server started \n10:30:01 ERROR [api] db timeout retry=3\n"
	if buf.String() != want {
		t.Errorf("got %q\nwant %q", buf.String(), want)
	}
}

func TestRenderWithLayout_MalformedPatternWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	err := RenderWithPattern(entries, "%msg %{", &buf)
	var fe *layout.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *layout.FormatError", err)
	}
	if buf.Len() != 0 {
		t.Errorf("sink received %q", buf.String())
	}
}

func TestRenderWithLayout_FormatFailureAbortsRender(t *testing.T) {
	l := &brokenLayout{}
	in := []record.Entry{{Message: "good"}, {Message: "bad"}, {Message: "never"}}

	var buf bytes.Buffer
	err := RenderWithLayout(in, l, &buf)
	var fe *layout.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *layout.FormatError", err)
	}
	if buf.Len() != 0 {
		t.Errorf("partial output committed: %q", buf.String())
	}
	if l.IsStarted() {
		t.Error("layout started by the render was not stopped")
	}
}

func TestRenderWithLayout_RespectsCallerLifecycle(t *testing.T) {
	l := layout.NewPatternLayout("%msg;")
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	got, err := RenderString(entries, l)
	if err != nil {
		t.Fatal(err)
	}
	if got != "server started;db timeout;" {
		t.Errorf("got %q", got)
	}
	if !l.IsStarted() {
		t.Error("render stopped a layout the caller started")
	}

	fresh := layout.NewPatternLayout("%msg;")
	if _, err := RenderString(entries, fresh); err != nil {
		t.Fatal(err)
	}
	if fresh.IsStarted() {
		t.Error("render left its own layout running")
	}
}

func TestRenderWithLayout_SinkFailure(t *testing.T) {
	sinkErr := errors.New("broken pipe")
	err := RenderWithPattern(entries, "%msg%n", &failingWriter{err: sinkErr})
	var ioe *IOError
	if !errors.As(err, &ioe) || !errors.Is(err, sinkErr) {
		t.Errorf("err = %v, want *IOError wrapping the sink error", err)
	}
	if err := RenderWithLayout(entries, nil, &bytes.Buffer{}); err == nil {
		t.Error("nil layout should fail")
	}
}

func TestRender_IsPure(t *testing.T) {
	b := NewBuffer(EntrySize, BufferConfig{Limit: 10})
	for _, e := range entries {
		b.Push(e)
	}
	snap := b.Snapshot()

	l := layout.NewPatternLayout("%level %msg %X{retry}%n")
	first, err := RenderString(snap, l)
	if err != nil {
		t.Fatal(err)
	}
	second, err := RenderString(snap, l)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("renders differ:\n%q\n%q", first, second)
	}
	if b.Len() != 2 || b.TotalSize() != 2 {
		t.Errorf("render changed the buffer: Len=%d TotalSize=%d", b.Len(), b.TotalSize())
	}
	if !strings.Contains(first, "ERROR db timeout 3") {
		t.Errorf("unexpected render %q", first)
	}
}
