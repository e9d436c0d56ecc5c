// Package record defines the structured log record captured by logrecorder
// and the parsers that turn raw log lines into records.
package record

import (
	"log/slog"
	"strings"
	"time"
)

// Format is the textual format a record was parsed from.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatLogfmt
	FormatPlain
	// FormatSlog marks records produced in-process by a log/slog handler.
	FormatSlog
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatLogfmt:
		return "logfmt"
	case FormatPlain:
		return "plain"
	case FormatSlog:
		return "slog"
	default:
		return "unknown"
	}
}

// Entry is one structured log event. Its text rendering is deferred to a
// layout at drain time.
type Entry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Fields    map[string]string
	// Logger names the producer: a file path, "stdin", or a slog group.
	Logger string
	Raw    string
	Format Format
}

// Field returns the named field or "" when it is absent.
func (e Entry) Field(key string) string {
	if e.Fields == nil {
		return ""
	}
	return e.Fields[key]
}

// Clone returns a copy of e that shares no map with it.
func (e Entry) Clone() Entry {
	if e.Fields != nil {
		fields := make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			fields[k] = v
		}
		e.Fields = fields
	}
	return e
}

// NormalizeLevel upper-cases a level name and folds common aliases.
func NormalizeLevel(level string) string {
	l := strings.ToUpper(strings.TrimSpace(level))
	switch l {
	case "WARNING":
		return "WARN"
	case "CRITICAL", "PANIC":
		return "FATAL"
	case "ERR":
		return "ERROR"
	default:
		return l
	}
}

// FromSlog converts a slog record into an Entry. Record attributes are
// flattened under group with dotted keys; preset holds attributes bound with
// Logger.With and is applied first, already qualified.
func FromSlog(r slog.Record, logger, group string, preset []slog.Attr) Entry {
	e := Entry{
		Timestamp: r.Time,
		Level:     NormalizeLevel(r.Level.String()),
		Message:   r.Message,
		Fields:    make(map[string]string, r.NumAttrs()+len(preset)),
		Logger:    logger,
		Raw:       r.Message,
		Format:    FormatSlog,
	}
	for _, a := range preset {
		flattenAttr(e.Fields, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		flattenAttr(e.Fields, group, a)
		return true
	})
	return e
}

func flattenAttr(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	switch {
	case prefix != "" && key != "":
		key = prefix + "." + key
	case key == "":
		key = prefix
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			flattenAttr(dst, key, ga)
		}
		return
	}
	dst[key] = a.Value.String()
}
