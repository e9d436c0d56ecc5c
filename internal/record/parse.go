package record

import (
	"strings"
	"time"
)

// Parser turns one raw log line into an Entry.
type Parser interface {
	Parse(line string) Entry
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(line string) Entry

func (f ParserFunc) Parse(line string) Entry { return f(line) }

var (
	timestampKeys = keySet("timestamp", "time", "ts", "@timestamp", "created_at")
	levelKeys     = keySet("level", "severity", "log_level", "lvl")
	messageKeys   = keySet("message", "msg", "log", "text")
	loggerKeys    = keySet("logger", "logger_name", "caller_name")
)

func keySet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func isKnownKey(k string, keys map[string]struct{}) bool {
	_, ok := keys[strings.ToLower(k)]
	return ok
}

// DetectFormat analyzes a sample of lines and returns the most likely format.
func DetectFormat(lines []string) Format {
	if len(lines) == 0 {
		return FormatUnknown
	}

	counts := map[Format]int{}
	for _, line := range lines {
		if f := detectLine(line); f != FormatUnknown {
			counts[f]++
		}
	}

	jsonN, logfmtN, plainN := counts[FormatJSON], counts[FormatLogfmt], counts[FormatPlain]
	switch {
	case jsonN > 0 && jsonN >= logfmtN && jsonN >= plainN:
		return FormatJSON
	case logfmtN > 0 && logfmtN >= plainN:
		return FormatLogfmt
	case plainN > 0:
		return FormatPlain
	}
	return FormatUnknown
}

func detectLine(line string) Format {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return FormatUnknown
	}
	if trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}' {
		return FormatJSON
	}
	if len(scanLogfmt(trimmed)) >= 2 {
		return FormatLogfmt
	}
	return FormatPlain
}

// NewParser returns the parser for a fixed format.
func NewParser(f Format) Parser {
	switch f {
	case FormatJSON:
		return JSONParser{}
	case FormatLogfmt:
		return LogfmtParser{}
	default:
		return PlainParser{}
	}
}

// AutoParser detects the format of every line, for mixed streams such as
// container logs interleaving a JSON app with plain-text sidecars.
type AutoParser struct {
	json   JSONParser
	logfmt LogfmtParser
	plain  PlainParser
}

// NewAutoParser creates a parser that handles mixed formats.
func NewAutoParser() *AutoParser {
	return &AutoParser{}
}

// Parse detects and parses a single line.
func (a *AutoParser) Parse(line string) Entry {
	switch detectLine(line) {
	case FormatJSON:
		return a.json.Parse(line)
	case FormatLogfmt:
		return a.logfmt.Parse(line)
	default:
		return a.plain.Parse(line)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05.000Z",
	"02/Jan/2006:15:04:05 -0700",
	"Jan  2 15:04:05",
	"Jan 2 15:04:05",
	"2006/01/02 15:04:05",
}

func parseTimestamp(v any) time.Time {
	switch val := v.(type) {
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t
			}
		}
	case float64:
		// seconds or milliseconds since the epoch
		if val > 1e12 {
			return time.UnixMilli(int64(val))
		}
		return time.Unix(int64(val), 0)
	}
	return time.Time{}
}
