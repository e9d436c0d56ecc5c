package capture

import (
	"io"
	"sync"

	"github.com/clarabennett2626/logrecorder/internal/layout"
	"github.com/clarabennett2626/logrecorder/internal/record"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// Pattern is the PatternLayout pattern used to encode each record.
	Pattern string
	// Charset is the IANA name of the output charset. Empty means UTF-8.
	Charset string
	// Limit bounds the capture in bytes, or in records with PolicyCount.
	// Zero is a valid limit; negative disables eviction.
	Limit          int64
	Policy         Policy
	EvictOversized bool
}

// DefaultRecorderConfig returns an 8 KiB capture of bare messages.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Pattern: layout.DefaultPattern,
		Charset: layout.DefaultCharset,
		Limit:   8192,
		Policy:  PolicyBytes,
	}
}

func (c RecorderConfig) buffer() BufferConfig {
	return BufferConfig{Policy: c.Policy, Limit: c.Limit, EvictOversized: c.EvictOversized}
}

// Recorder captures records encoded to bytes as they are emitted, so the
// capture is bounded by its rendered size.
type Recorder struct {
	session *Session[[]byte]
	encoder *layout.LayoutEncoder
	charset string
	once    sync.Once
}

// StartRecorder encodes records with cfg.Pattern and cfg.Charset and starts
// capturing from src. A malformed pattern or unknown charset is returned as a
// *layout.FormatError before anything is attached.
func StartRecorder(src any, cfg RecorderConfig, opts ...SessionOption) (*Recorder, error) {
	enc := layout.NewPatternEncoder(cfg.Pattern, cfg.Charset)
	if err := enc.Start(); err != nil {
		return nil, err
	}
	s := NewByteSession(enc, opts...)
	if err := s.Start(src, cfg.buffer()); err != nil {
		enc.Stop()
		return nil, err
	}
	return &Recorder{session: s, encoder: enc, charset: cfg.Charset}, nil
}

// Session returns the underlying session.
func (r *Recorder) Session() *Session[[]byte] { return r.session }

// Bytes returns the records captured so far, concatenated.
func (r *Recorder) Bytes() []byte {
	return RenderBytes(r.session.Snapshot())
}

// WriteTo writes the records captured so far to w. It implements
// io.WriterTo.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	return WriteRecords(w, r.session.Snapshot())
}

// Finish stops the capture and returns it decoded from the configured
// charset.
func (r *Recorder) Finish() (string, error) {
	return RenderText(r.stop(), r.charset)
}

// FinishBytes stops the capture and returns the raw encoded bytes.
func (r *Recorder) FinishBytes() []byte {
	return RenderBytes(r.stop())
}

// Close stops the capture.
func (r *Recorder) Close() error {
	r.stop()
	return nil
}

func (r *Recorder) stop() [][]byte {
	recs := r.session.Stop()
	r.once.Do(func() { r.encoder.Stop() })
	return recs
}

// EventRecorder captures structured records and defers formatting until the
// capture is finished, so one capture can be rendered several ways.
type EventRecorder struct {
	session *Session[record.Entry]
}

// StartEventRecorder starts capturing the last maxSize records from src.
func StartEventRecorder(src any, maxSize int, opts ...SessionOption) (*EventRecorder, error) {
	return StartEventRecorderWith(src, BufferConfig{Policy: PolicyCount, Limit: int64(maxSize)}, opts...)
}

// StartEventRecorderWith starts capturing from src bounded by cfg.
func StartEventRecorderWith(src any, cfg BufferConfig, opts ...SessionOption) (*EventRecorder, error) {
	s := NewEntrySession(opts...)
	if err := s.Start(src, cfg); err != nil {
		return nil, err
	}
	return &EventRecorder{session: s}, nil
}

// Session returns the underlying session.
func (r *EventRecorder) Session() *Session[record.Entry] { return r.session }

// Events returns the records captured so far.
func (r *EventRecorder) Events() []record.Entry { return r.session.Snapshot() }

// Finish stops the capture and returns the records.
func (r *EventRecorder) Finish() []record.Entry { return r.session.Stop() }

// FinishInto stops the capture and appends the records to dst.
func (r *EventRecorder) FinishInto(dst []record.Entry) []record.Entry {
	return append(dst, r.session.Stop()...)
}

// FinishWithLayout stops the capture and renders it to w with l.
func (r *EventRecorder) FinishWithLayout(l layout.Layout, w io.Writer) error {
	return RenderWithLayout(r.session.Stop(), l, w)
}

// FinishWithPattern stops the capture and renders it to w with pattern.
func (r *EventRecorder) FinishWithPattern(pattern string, w io.Writer) error {
	return RenderWithPattern(r.session.Stop(), pattern, w)
}

// Close stops the capture.
func (r *EventRecorder) Close() error { return r.session.Close() }
