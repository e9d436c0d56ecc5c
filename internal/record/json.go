package record

import (
	"encoding/json"
	"strings"
)

// JSONParser parses one-object-per-line JSON logs.
type JSONParser struct{}

// Parse parses a JSON log line. Lines that fail to decode keep the raw
// text as the message.
func (JSONParser) Parse(line string) Entry {
	e := Entry{
		Raw:    line,
		Format: FormatJSON,
		Fields: make(map[string]string),
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &obj); err != nil {
		e.Message = line
		return e
	}

	for k, v := range obj {
		switch {
		case isKnownKey(k, timestampKeys):
			if e.Timestamp.IsZero() {
				e.Timestamp = parseTimestamp(v)
			}
		case isKnownKey(k, levelKeys):
			if s, ok := v.(string); ok && e.Level == "" {
				e.Level = NormalizeLevel(s)
			}
		case isKnownKey(k, messageKeys):
			if s, ok := v.(string); ok && e.Message == "" {
				e.Message = s
			}
		case isKnownKey(k, loggerKeys):
			if s, ok := v.(string); ok {
				e.Logger = s
			}
		default:
			e.Fields[k] = jsonFieldString(v)
		}
	}
	return e
}

func jsonFieldString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
