package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/clarabennett2626/logrecorder/internal/layout"
	"github.com/clarabennett2626/logrecorder/internal/record"
)

// IOError reports a failed write of rendered output. Rendering has no side
// effects on the capture, so a fresh render can always be retried.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "capture: " + e.Op + ": " + e.Err.Error() }

func (e *IOError) Unwrap() error { return e.Err }

// RenderBytes concatenates encoded records in order.
func RenderBytes(records [][]byte) []byte {
	n := 0
	for _, r := range records {
		n += len(r)
	}
	out := make([]byte, 0, n)
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}

// RenderText concatenates encoded records and decodes them from charset. An
// empty charset means UTF-8.
func RenderText(records [][]byte, charset string) (string, error) {
	enc, err := layout.LookupCharset(charset)
	if err != nil {
		return "", err
	}
	b, err := enc.NewDecoder().Bytes(RenderBytes(records))
	if err != nil {
		return "", fmt.Errorf("capture: decode %s: %w", charset, err)
	}
	return string(b), nil
}

// WriteRecords writes encoded records to w in order.
func WriteRecords(w io.Writer, records [][]byte) (int64, error) {
	var n int64
	for _, r := range records {
		m, err := w.Write(r)
		n += int64(m)
		if err != nil {
			return n, &IOError{Op: "write", Err: err}
		}
	}
	return n, nil
}

// RenderWithLayout formats entries with l and writes the result to sink in a
// single write. l is started for the call unless the caller already started
// it. A format failure aborts the render before anything is written.
func RenderWithLayout(entries []record.Entry, l layout.Layout, sink io.Writer) error {
	if l == nil {
		return errors.New("capture: nil layout")
	}
	stop, err := layout.StartIfNeeded(l)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for i, e := range entries {
		s, err := l.Format(e)
		if err != nil {
			stop()
			return fmt.Errorf("capture: format record %d: %w", i, err)
		}
		buf.WriteString(s)
	}
	if err := stop(); err != nil {
		return err
	}
	if _, err := buf.WriteTo(sink); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// RenderWithPattern is RenderWithLayout with a PatternLayout.
func RenderWithPattern(entries []record.Entry, pattern string, sink io.Writer) error {
	return RenderWithLayout(entries, layout.NewPatternLayout(pattern), sink)
}

// RenderString formats entries with l and returns the text.
func RenderString(entries []record.Entry, l layout.Layout) (string, error) {
	var sb strings.Builder
	if err := RenderWithLayout(entries, l, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
