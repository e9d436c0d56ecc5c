package layout

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/clarabennett2626/logrecorder/internal/record"
)

// DefaultPattern renders the message followed by a newline.
const DefaultPattern = "%msg%n"

// DefaultDateLayout is used by %d when no layout option is given.
const DefaultDateLayout = "2006-01-02 15:04:05.000"

// PatternLayout formats records with a conversion pattern in the familiar
// "%-5level %msg%n" style:
//
//	%d{layout} %date{layout}   timestamp, Go time layout; ISO8601 and RFC3339 are accepted names
//	%level %le %p              level
//	%msg %m %message           message
//	%logger %lo %c             logger name
//	%X{key} %field{key}        one field; without a key, all fields
//	%fields                    all fields as sorted key=value pairs
//	%raw                       the raw input line
//	%format                    the input format name
//	%n                         newline
//	%%                         a literal percent sign
//
// A conversion may carry a width modifier: %-5level pads on the right to five
// characters, %5level pads on the left, %.20msg keeps the last 20 characters
// and %.-20msg the first 20.
//
// The pattern is compiled by Start. Format is safe for concurrent use.
type PatternLayout struct {
	Pattern string

	mu      sync.RWMutex
	started bool
	parts   []converter
}

// NewPatternLayout returns an unstarted layout for pattern.
func NewPatternLayout(pattern string) *PatternLayout {
	return &PatternLayout{Pattern: pattern}
}

// Start compiles the pattern. A malformed pattern yields a *FormatError and
// leaves the layout stopped.
func (p *PatternLayout) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	parts, err := compile(p.Pattern)
	if err != nil {
		return err
	}
	p.parts = parts
	p.started = true
	return nil
}

// Stop releases the compiled pattern.
func (p *PatternLayout) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.parts = nil
	return nil
}

// IsStarted reports whether Start has succeeded since the last Stop.
func (p *PatternLayout) IsStarted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// Format renders e.
func (p *PatternLayout) Format(e record.Entry) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started {
		return "", ErrNotStarted
	}
	var sb strings.Builder
	for _, c := range p.parts {
		c.write(&sb, e)
	}
	return sb.String(), nil
}

// Validate compiles pattern without starting a layout.
func Validate(pattern string) error {
	_, err := compile(pattern)
	return err
}

type converter struct {
	literal string
	value   func(record.Entry) string
	min     int
	max     int // 0 = unlimited; negative keeps the head
	left    bool
}

func (c converter) write(sb *strings.Builder, e record.Entry) {
	if c.value == nil {
		sb.WriteString(c.literal)
		return
	}
	s := c.value(e)
	if c.max != 0 {
		s = truncate(s, c.max)
	}
	pad := c.min - utf8.RuneCountInString(s)
	if pad > 0 && !c.left {
		sb.WriteString(strings.Repeat(" ", pad))
	}
	sb.WriteString(s)
	if pad > 0 && c.left {
		sb.WriteString(strings.Repeat(" ", pad))
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if max > 0 && len(runes) > max {
		return string(runes[len(runes)-max:])
	}
	if max < 0 && len(runes) > -max {
		return string(runes[:-max])
	}
	return s
}

func compile(pattern string) ([]converter, error) {
	var parts []converter
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, converter{literal: lit.String()})
			lit.Reset()
		}
	}
	fail := func(pos int, msg string) error {
		return &FormatError{Pattern: pattern, Pos: pos, Msg: msg}
	}

	i := 0
	for i < len(pattern) {
		ch := pattern[i]
		if ch != '%' {
			lit.WriteByte(ch)
			i++
			continue
		}
		start := i
		i++
		if i >= len(pattern) {
			return nil, fail(start, "dangling %")
		}
		if pattern[i] == '%' {
			lit.WriteByte('%')
			i++
			continue
		}

		var c converter
		if pattern[i] == '-' {
			c.left = true
			i++
		}
		j := i
		for i < len(pattern) && isDigit(pattern[i]) {
			i++
		}
		if i > j {
			w, ok := parseWidth(pattern[j:i])
			if !ok {
				return nil, fail(start, "padding width out of range")
			}
			c.min = w
		}
		if i < len(pattern) && pattern[i] == '.' {
			i++
			neg := false
			if i < len(pattern) && pattern[i] == '-' {
				neg = true
				i++
			}
			j = i
			for i < len(pattern) && isDigit(pattern[i]) {
				i++
			}
			if i == j {
				return nil, fail(start, "missing truncation width")
			}
			w, ok := parseWidth(pattern[j:i])
			if !ok {
				return nil, fail(start, "truncation width out of range")
			}
			c.max = w
			if neg {
				c.max = -c.max
			}
		}

		j = i
		for i < len(pattern) && isKeywordChar(pattern[i]) {
			i++
		}
		keyword := pattern[j:i]
		if keyword == "" {
			return nil, fail(start, "missing conversion keyword")
		}

		option, hasOption := "", false
		if i < len(pattern) && pattern[i] == '{' {
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				return nil, fail(i, "unclosed {")
			}
			option, hasOption = pattern[i+1:i+end], true
			i += end + 1
		}

		if keyword == "n" {
			lit.WriteByte('\n')
			continue
		}
		value, err := conversion(keyword, option, hasOption)
		if err != nil {
			return nil, fail(start, err.Error())
		}
		flush()
		c.value = value
		parts = append(parts, c)
	}
	flush()
	return parts, nil
}

type conversionError string

func (e conversionError) Error() string { return string(e) }

func conversion(keyword, option string, hasOption bool) (func(record.Entry) string, error) {
	switch keyword {
	case "d", "date":
		layout := DefaultDateLayout
		switch option {
		case "":
		case "ISO8601":
			layout = "2006-01-02T15:04:05.000Z07:00"
		case "RFC3339":
			layout = time.RFC3339
		default:
			layout = option
		}
		return func(e record.Entry) string {
			if e.Timestamp.IsZero() {
				return ""
			}
			return e.Timestamp.Format(layout)
		}, nil
	case "level", "le", "p":
		return func(e record.Entry) string { return e.Level }, nil
	case "msg", "m", "message":
		return func(e record.Entry) string { return e.Message }, nil
	case "logger", "lo", "c":
		return func(e record.Entry) string { return e.Logger }, nil
	case "X", "field":
		if !hasOption || option == "" {
			return formatFields, nil
		}
		return func(e record.Entry) string { return e.Field(option) }, nil
	case "fields":
		return formatFields, nil
	case "raw":
		return func(e record.Entry) string { return e.Raw }, nil
	case "format":
		return func(e record.Entry) string { return e.Format.String() }, nil
	}
	return nil, conversionError("unknown conversion %" + keyword)
}

func formatFields(e record.Entry) string {
	if len(e.Fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(e.Fields[k])
	}
	return sb.String()
}

// MaxWidth bounds padding and truncation widths.
const MaxWidth = 1 << 16

func parseWidth(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil || n > MaxWidth {
		return 0, false
	}
	return n, true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isKeywordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
