package record

import "strings"

// LogfmtParser parses key=value log lines.
type LogfmtParser struct{}

// Parse parses a logfmt line.
func (LogfmtParser) Parse(line string) Entry {
	e := Entry{
		Raw:    line,
		Format: FormatLogfmt,
		Fields: make(map[string]string),
	}

	for _, kv := range scanLogfmt(strings.TrimSpace(line)) {
		switch {
		case isKnownKey(kv.key, timestampKeys):
			e.Timestamp = parseTimestamp(kv.value)
		case isKnownKey(kv.key, levelKeys):
			e.Level = NormalizeLevel(kv.value)
		case isKnownKey(kv.key, messageKeys):
			e.Message = kv.value
		case isKnownKey(kv.key, loggerKeys):
			e.Logger = kv.value
		default:
			e.Fields[kv.key] = kv.value
		}
	}
	return e
}

type logfmtPair struct {
	key, value string
}

// scanLogfmt reads leading key=value pairs and stops at the first token
// that is not one. Quoted values may contain spaces and escaped quotes.
func scanLogfmt(line string) []logfmtPair {
	var pairs []logfmtPair
	i := 0
	for i < len(line) {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		start := i
		for i < len(line) && line[i] != '=' && line[i] != ' ' {
			i++
		}
		if i >= len(line) || line[i] != '=' || i == start {
			break
		}
		key := line[start:i]
		i++

		var value string
		if i < len(line) && line[i] == '"' {
			i++
			var sb strings.Builder
			for i < len(line) && line[i] != '"' {
				if line[i] == '\\' && i+1 < len(line) {
					i++
				}
				sb.WriteByte(line[i])
				i++
			}
			value = sb.String()
			if i < len(line) {
				i++
			}
		} else {
			vstart := i
			for i < len(line) && line[i] != ' ' {
				i++
			}
			value = line[vstart:i]
		}
		pairs = append(pairs, logfmtPair{key: key, value: value})
	}
	return pairs
}
