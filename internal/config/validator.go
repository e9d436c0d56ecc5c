package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/clarabennett2626/logrecorder/internal/capture"
	"github.com/clarabennett2626/logrecorder/internal/layout"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "capture.limit")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the accepted log.level values
func ValidLogLevels() []string {
	return []string{"trace", "debug", "info", "warn", "error", "disabled"}
}

// ValidThemes returns the accepted tui.theme values
func ValidThemes() []string {
	return []string{"dark", "light"}
}

// ValidTimestampFormats returns the accepted tui.timestamp_format values
func ValidTimestampFormats() []string {
	return []string{"relative", "iso", "local"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	errors = append(errors, c.validateCapture()...)
	errors = append(errors, c.validateSource()...)
	errors = append(errors, c.validateLog()...)
	errors = append(errors, c.validateTUI()...)
	return errors
}

func (c *Config) validateCapture() []ValidationError {
	var errors []ValidationError

	if _, err := capture.ParsePolicy(c.Capture.Policy); err != nil {
		errors = append(errors, ValidationError{
			Field:   "capture.policy",
			Value:   c.Capture.Policy,
			Message: "must be one of: bytes, count",
		})
	}
	if err := layout.Validate(c.Capture.Pattern); err != nil {
		errors = append(errors, ValidationError{
			Field:   "capture.pattern",
			Value:   c.Capture.Pattern,
			Message: err.Error(),
		})
	}
	if _, err := layout.LookupCharset(c.Capture.Charset); err != nil {
		errors = append(errors, ValidationError{
			Field:   "capture.charset",
			Value:   c.Capture.Charset,
			Message: "unknown or unsupported charset",
		})
	}
	return errors
}

func (c *Config) validateSource() []ValidationError {
	var errors []ValidationError

	if c.Source.TailLines < 0 {
		errors = append(errors, ValidationError{
			Field:   "source.tail_lines",
			Value:   c.Source.TailLines,
			Message: "must be non-negative",
		})
	}
	if c.Source.PollIntervalMs < 10 {
		errors = append(errors, ValidationError{
			Field:   "source.poll_interval_ms",
			Value:   c.Source.PollIntervalMs,
			Message: "must be at least 10",
		})
	}
	return errors
}

func (c *Config) validateLog() []ValidationError {
	if c.Log.Level == "" || slices.Contains(ValidLogLevels(), strings.ToLower(c.Log.Level)) {
		return nil
	}
	return []ValidationError{{
		Field:   "log.level",
		Value:   c.Log.Level,
		Message: "must be one of: " + strings.Join(ValidLogLevels(), ", "),
	}}
}

func (c *Config) validateTUI() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidThemes(), c.TUI.Theme) {
		errors = append(errors, ValidationError{
			Field:   "tui.theme",
			Value:   c.TUI.Theme,
			Message: "must be one of: " + strings.Join(ValidThemes(), ", "),
		})
	}
	if !slices.Contains(ValidTimestampFormats(), c.TUI.TimestampFormat) {
		errors = append(errors, ValidationError{
			Field:   "tui.timestamp_format",
			Value:   c.TUI.TimestampFormat,
			Message: "must be one of: " + strings.Join(ValidTimestampFormats(), ", "),
		})
	}
	if c.TUI.RefreshMs < 50 || c.TUI.RefreshMs > 10000 {
		errors = append(errors, ValidationError{
			Field:   "tui.refresh_ms",
			Value:   c.TUI.RefreshMs,
			Message: "must be between 50 and 10000",
		})
	}
	return errors
}
