// Package tui provides the live capture viewer and a styled record layout.
package tui

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/clarabennett2626/logrecorder/internal/record"
)

// TimestampFormat controls how timestamps are displayed.
type TimestampFormat int

const (
	// TimestampRelative shows "2m ago", "3h ago", etc.
	TimestampRelative TimestampFormat = iota
	// TimestampISO shows ISO 8601 format.
	TimestampISO
	// TimestampLocal shows local time format.
	TimestampLocal
)

// ParseTimestampFormat maps a config name to a TimestampFormat.
func ParseTimestampFormat(s string) (TimestampFormat, error) {
	switch s {
	case "relative":
		return TimestampRelative, nil
	case "iso":
		return TimestampISO, nil
	case "local":
		return TimestampLocal, nil
	}
	return 0, fmt.Errorf("tui: unknown timestamp format %q", s)
}

// Theme represents terminal color theme.
type Theme int

const (
	ThemeDark Theme = iota
	ThemeLight
)

// ParseTheme maps a config name to a Theme.
func ParseTheme(s string) (Theme, error) {
	switch s {
	case "dark":
		return ThemeDark, nil
	case "light":
		return ThemeLight, nil
	}
	return 0, fmt.Errorf("tui: unknown theme %q", s)
}

// ANSIMode controls how ANSI escape codes in source logs are handled.
type ANSIMode int

const (
	ANSIStrip ANSIMode = iota
	ANSIPassthrough
)

// WrapMode controls how long lines are handled.
type WrapMode int

const (
	WrapTruncate WrapMode = iota
	WrapWrap
)

// RenderConfig holds rendering configuration.
type RenderConfig struct {
	TimestampFormat TimestampFormat
	Theme           Theme
	ANSIMode        ANSIMode
	WrapMode        WrapMode
	TerminalWidth   int
	FieldOrder      []string // ordered field names to display; empty = alphabetical
	ShowAllFields   bool     // when false, extra fields are collapsed
	ShowLogger      bool
	// Plain disables styling in Format, for output that is not a terminal.
	Plain bool
	Now   func() time.Time // for testing; defaults to time.Now
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() RenderConfig {
	return RenderConfig{
		TimestampFormat: TimestampLocal,
		Theme:           ThemeDark,
		ANSIMode:        ANSIStrip,
		WrapMode:        WrapTruncate,
		TerminalWidth:   120,
		ShowAllFields:   false,
		Now:             time.Now,
	}
}

// Renderer renders records as styled terminal lines. It also implements
// layout.Layout, one line per record, so a capture can be rendered with it.
type Renderer struct {
	config  RenderConfig
	styles  themeStyles
	started atomic.Bool
}

type themeStyles struct {
	debug     lipgloss.Style
	info      lipgloss.Style
	warn      lipgloss.Style
	errLevel  lipgloss.Style
	fatal     lipgloss.Style
	timestamp lipgloss.Style
	message   lipgloss.Style
	logger    lipgloss.Style
	fieldKey  lipgloss.Style
	fieldVal  lipgloss.Style
	separator lipgloss.Style
}

func darkStyles() themeStyles {
	return themeStyles{
		debug:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		info:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		warn:      lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		errLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		fatal:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		message:   lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		logger:    lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		fieldKey:  lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
		fieldVal:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func lightStyles() themeStyles {
	return themeStyles{
		debug:     lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		info:      lipgloss.NewStyle().Foreground(lipgloss.Color("27")),
		warn:      lipgloss.NewStyle().Foreground(lipgloss.Color("172")),
		errLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
		fatal:     lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
		timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		message:   lipgloss.NewStyle().Foreground(lipgloss.Color("0")),
		logger:    lipgloss.NewStyle().Foreground(lipgloss.Color("91")),
		fieldKey:  lipgloss.NewStyle().Foreground(lipgloss.Color("25")),
		fieldVal:  lipgloss.NewStyle().Foreground(lipgloss.Color("237")),
		separator: lipgloss.NewStyle().Foreground(lipgloss.Color("249")),
	}
}

// NewRenderer creates a new Renderer with the given config.
func NewRenderer(config RenderConfig) *Renderer {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.TerminalWidth <= 0 {
		config.TerminalWidth = 120
	}
	styles := darkStyles()
	if config.Theme == ThemeLight {
		styles = lightStyles()
	}
	return &Renderer{config: config, styles: styles}
}

// Start implements layout.Layout. The renderer holds no resources.
func (r *Renderer) Start() error { r.started.Store(true); return nil }

// Stop implements layout.Layout.
func (r *Renderer) Stop() error { r.started.Store(false); return nil }

// IsStarted implements layout.Layout.
func (r *Renderer) IsStarted() bool { return r.started.Load() }

// Format renders e as one newline-terminated line.
func (r *Renderer) Format(e record.Entry) (string, error) {
	if r.config.Plain {
		return r.RenderEntryPlain(e) + "\n", nil
	}
	return r.RenderEntry(e) + "\n", nil
}

// ansiRegex matches ANSI escape sequences.
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape codes from a string.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// RenderEntry renders a single record as a styled string.
func (r *Renderer) RenderEntry(entry record.Entry) string {
	var parts []string

	if levelStr := r.renderLevel(entry.Level); levelStr != "" {
		parts = append(parts, levelStr)
	}
	if !entry.Timestamp.IsZero() {
		parts = append(parts, r.styles.timestamp.Render(r.formatTimestamp(entry.Timestamp)))
	}
	if r.config.ShowLogger && entry.Logger != "" {
		parts = append(parts, r.styles.logger.Render(entry.Logger))
	}
	if msg := r.message(entry); msg != "" {
		parts = append(parts, r.styles.message.Render(msg))
	}
	if r.config.ShowAllFields && len(entry.Fields) > 0 {
		if fieldStr := r.renderFields(entry.Fields); fieldStr != "" {
			parts = append(parts, fieldStr)
		}
	}

	line := strings.Join(parts, r.styles.separator.Render(" │ "))
	return r.applyWrap(line)
}

// RenderEntryPlain renders without styling (for piping/testing visible text).
func (r *Renderer) RenderEntryPlain(entry record.Entry) string {
	var parts []string

	if entry.Level != "" {
		parts = append(parts, record.NormalizeLevel(entry.Level))
	}
	if !entry.Timestamp.IsZero() {
		parts = append(parts, r.formatTimestamp(entry.Timestamp))
	}
	if r.config.ShowLogger && entry.Logger != "" {
		parts = append(parts, entry.Logger)
	}
	if msg := r.message(entry); msg != "" {
		parts = append(parts, msg)
	}
	if r.config.ShowAllFields && len(entry.Fields) > 0 {
		parts = append(parts, r.renderFieldsPlain(entry.Fields))
	}
	return strings.Join(parts, " │ ")
}

func (r *Renderer) message(entry record.Entry) string {
	msg := entry.Message
	if msg == "" {
		msg = entry.Raw
	}
	if r.config.ANSIMode == ANSIStrip {
		msg = StripANSI(msg)
	}
	return msg
}

// CollapsedFieldCount returns how many extra fields would be hidden.
func CollapsedFieldCount(entry record.Entry) int {
	return len(entry.Fields)
}

func (r *Renderer) renderLevel(level string) string {
	if level == "" {
		return ""
	}
	norm := record.NormalizeLevel(level)
	label := fmt.Sprintf("%-5s", norm)
	switch norm {
	case "TRACE", "DEBUG":
		return r.styles.debug.Render(label)
	case "INFO":
		return r.styles.info.Render(label)
	case "WARN":
		return r.styles.warn.Render(label)
	case "ERROR":
		return r.styles.errLevel.Render(label)
	case "FATAL":
		return r.styles.fatal.Render(label)
	default:
		return r.styles.message.Render(label)
	}
}

func (r *Renderer) formatTimestamp(t time.Time) string {
	switch r.config.TimestampFormat {
	case TimestampRelative:
		return relativeTime(t, r.config.Now())
	case TimestampLocal:
		return t.Format("15:04:05")
	default:
		return t.Format(time.RFC3339)
	}
}

func relativeTime(t time.Time, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		return formatDuration(-d) + " from now"
	}
	if d < time.Second {
		return "just now"
	}
	return formatDuration(d) + " ago"
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func (r *Renderer) renderFields(fields map[string]string) string {
	var parts []string
	for _, k := range r.orderedFieldKeys(fields) {
		part := r.styles.fieldKey.Render(k) + r.styles.separator.Render("=") + r.styles.fieldVal.Render(fields[k])
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

func (r *Renderer) renderFieldsPlain(fields map[string]string) string {
	var parts []string
	for _, k := range r.orderedFieldKeys(fields) {
		parts = append(parts, k+"="+fields[k])
	}
	return strings.Join(parts, " ")
}

// orderedFieldKeys lists FieldOrder keys first, then the rest alphabetically.
func (r *Renderer) orderedFieldKeys(fields map[string]string) []string {
	result := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(r.config.FieldOrder))
	for _, k := range r.config.FieldOrder {
		if _, ok := fields[k]; ok && !seen[k] {
			result = append(result, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(fields))
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(result, rest...)
}

func (r *Renderer) applyWrap(line string) string {
	if r.config.WrapMode == WrapTruncate && r.config.TerminalWidth > 0 {
		if lipgloss.Width(line) > r.config.TerminalWidth {
			return truncateToWidth(line, r.config.TerminalWidth-1) + "…"
		}
	}
	return line
}

// truncateToWidth truncates a string with ANSI codes to fit a visible width,
// counting runes outside escape sequences.
func truncateToWidth(s string, width int) string {
	visible := 0
	inEscape := false
	var sb strings.Builder
	for _, ch := range s {
		if ch == '\x1b' {
			inEscape = true
			sb.WriteRune(ch)
			continue
		}
		if inEscape {
			sb.WriteRune(ch)
			if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') {
				inEscape = false
			}
			continue
		}
		if visible >= width {
			break
		}
		sb.WriteRune(ch)
		visible++
	}
	return sb.String()
}
