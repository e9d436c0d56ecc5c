package record

import (
	"regexp"
	"strings"
)

// PlainParser extracts a timestamp and level from free-form lines.
type PlainParser struct{}

var plainTimestampPatterns = []*regexp.Regexp{
	// ISO 8601
	regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)\s+`),
	// syslog
	regexp.MustCompile(`^([A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+`),
	// common log format
	regexp.MustCompile(`\[(\d{2}/[A-Z][a-z]{2}/\d{4}:\d{2}:\d{2}:\d{2}\s+[+-]\d{4})\]`),
	regexp.MustCompile(`^(\d{4}/\d{2}/\d{2}\s+\d{2}:\d{2}:\d{2})\s+`),
}

var levelPattern = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|WARN(?:ING)?|ERROR|FATAL|CRITICAL|PANIC)\b`)

// Parse parses a plain text log line.
func (PlainParser) Parse(line string) Entry {
	e := Entry{
		Raw:    line,
		Format: FormatPlain,
		Fields: make(map[string]string),
	}

	remaining := line
	for _, pat := range plainTimestampPatterns {
		m := pat.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if ts := parseTimestamp(m[1]); !ts.IsZero() {
			e.Timestamp = ts
			remaining = strings.TrimSpace(strings.Replace(line, m[0], "", 1))
			break
		}
	}

	if m := levelPattern.FindString(remaining); m != "" {
		e.Level = NormalizeLevel(m)
	}
	e.Message = remaining
	return e
}
