// Package layout converts structured records to text and bytes.
//
// A Layout formats one record as text and is used lazily, when a capture is
// rendered. An Encoder turns one record into bytes and is used eagerly, when
// a record is pushed into a byte-bounded capture. Both have their own
// Start/Stop lifecycle, independent of any capture session.
package layout

import (
	"errors"
	"fmt"

	"github.com/clarabennett2626/logrecorder/internal/record"
)

// ErrNotStarted is returned when a layout or encoder is used before Start.
var ErrNotStarted = errors.New("layout: not started")

// Lifecycle is the setup/teardown contract shared by layouts and encoders.
type Lifecycle interface {
	Start() error
	Stop() error
	IsStarted() bool
}

// Layout formats a single record as text.
type Layout interface {
	Lifecycle
	Format(e record.Entry) (string, error)
}

// Encoder converts a single record to bytes. Encode is self-contained per
// record: no flush is needed between records.
type Encoder interface {
	Lifecycle
	Encode(e record.Entry) ([]byte, error)
}

// FormatError reports a malformed pattern, or a charset that cannot be used.
type FormatError struct {
	// Pattern is the pattern or charset name that failed.
	Pattern string
	// Pos is the byte offset of the problem in Pattern, or -1.
	Pos int
	Msg string
}

func (e *FormatError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("layout: %s: %q", e.Msg, e.Pattern)
	}
	return fmt.Sprintf("layout: %s at offset %d in %q", e.Msg, e.Pos, e.Pattern)
}

// StartIfNeeded starts l unless it is already running and returns the
// matching teardown. The teardown is a no-op when l was started by someone
// else, so callers can always defer it.
func StartIfNeeded(l Lifecycle) (stop func() error, err error) {
	if l.IsStarted() {
		return func() error { return nil }, nil
	}
	if err := l.Start(); err != nil {
		return nil, err
	}
	return l.Stop, nil
}
