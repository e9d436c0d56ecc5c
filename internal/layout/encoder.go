package layout

import (
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/clarabennett2626/logrecorder/internal/record"
)

// DefaultCharset is used when no charset is configured.
const DefaultCharset = "UTF-8"

// LookupCharset resolves an IANA charset name. The empty name selects UTF-8.
// Unknown and unsupported names yield a *FormatError.
func LookupCharset(name string) (encoding.Encoding, error) {
	if strings.TrimSpace(name) == "" {
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, &FormatError{Pattern: name, Pos: -1, Msg: "unknown charset"}
	}
	if enc == nil {
		return nil, &FormatError{Pattern: name, Pos: -1, Msg: "unsupported charset"}
	}
	return enc, nil
}

// LayoutEncoder encodes records by formatting them with a Layout and
// converting the text to a charset. Characters the charset cannot represent
// are replaced rather than failing the record.
type LayoutEncoder struct {
	Layout  Layout
	Charset string

	mu         sync.RWMutex
	started    bool
	enc        encoding.Encoding
	stopLayout func() error
}

// NewPatternEncoder returns an unstarted encoder using a PatternLayout.
func NewPatternEncoder(pattern, charset string) *LayoutEncoder {
	return &LayoutEncoder{Layout: NewPatternLayout(pattern), Charset: charset}
}

// Start resolves the charset and starts the layout if it is not running.
func (le *LayoutEncoder) Start() error {
	le.mu.Lock()
	defer le.mu.Unlock()
	if le.started {
		return nil
	}
	if le.Layout == nil {
		le.Layout = NewPatternLayout(DefaultPattern)
	}
	enc, err := LookupCharset(le.Charset)
	if err != nil {
		return err
	}
	stop, err := StartIfNeeded(le.Layout)
	if err != nil {
		return err
	}
	le.enc = enc
	le.stopLayout = stop
	le.started = true
	return nil
}

// Stop stops the layout if Start started it.
func (le *LayoutEncoder) Stop() error {
	le.mu.Lock()
	defer le.mu.Unlock()
	if !le.started {
		return nil
	}
	le.started = false
	le.enc = nil
	stop := le.stopLayout
	le.stopLayout = nil
	return stop()
}

// IsStarted reports whether the encoder is running.
func (le *LayoutEncoder) IsStarted() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.started
}

// CharsetEncoding returns the resolved charset, or nil before Start.
func (le *LayoutEncoder) CharsetEncoding() encoding.Encoding {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.enc
}

// Encode formats e and returns it in the configured charset.
func (le *LayoutEncoder) Encode(e record.Entry) ([]byte, error) {
	le.mu.RLock()
	defer le.mu.RUnlock()
	if !le.started {
		return nil, ErrNotStarted
	}
	text, err := le.Layout.Format(e)
	if err != nil {
		return nil, err
	}
	return encoding.ReplaceUnsupported(le.enc.NewEncoder()).Bytes([]byte(text))
}
