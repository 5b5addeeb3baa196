package actions

import (
	"fmt"
	"strings"
)

// FieldType selects how Fill sets a form field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
	FieldFile     FieldType = "file"
)

// ClickParams configures Click.
type ClickParams struct {
	SessionID string
	Selector  string

	// Button specifies which mouse button to use (left, right, middle)
	Button string

	// ClickCount is the number of times to click (0 means 1)
	ClickCount int

	Wait WaitPolicy
}

// FillParams configures Fill.
type FillParams struct {
	SessionID string
	Selector  string
	Value     string

	// FieldType defaults to FieldText
	FieldType FieldType

	// Clear empties a text field before filling it
	Clear bool

	// PressEnter sends Enter after filling a text field
	PressEnter bool

	// Checked is the desired state of a checkbox. Radios are always checked.
	Checked bool

	// FilePaths are the files to attach to a file input
	FilePaths []string

	// Force skips actionability checks for text fields
	Force bool

	Wait WaitPolicy
}

// NavigateParams configures Navigate.
type NavigateParams struct {
	SessionID string
	URL       string

	Referer string

	// Headers are extra HTTP headers sent with the page's requests
	Headers map[string]string

	Wait WaitPolicy
}

var validButtons = map[string]bool{
	"left":   true,
	"right":  true,
	"middle": true,
}

func (p ClickParams) validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidParams)
	}
	if p.Selector == "" {
		return fmt.Errorf("%w: selector is required", ErrInvalidParams)
	}
	if p.Button != "" && !validButtons[p.Button] {
		return fmt.Errorf("%w: invalid button: %s (must be 'left', 'right', or 'middle')", ErrInvalidParams, p.Button)
	}
	if p.ClickCount < 0 || p.ClickCount > 3 {
		return fmt.Errorf("%w: click count must be between 1 and 3", ErrInvalidParams)
	}
	return p.Wait.Validate()
}

func (p FillParams) fieldType() FieldType {
	if p.FieldType == "" {
		return FieldText
	}
	return p.FieldType
}

func (p FillParams) validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidParams)
	}
	if p.Selector == "" {
		return fmt.Errorf("%w: selector is required", ErrInvalidParams)
	}
	switch p.fieldType() {
	case FieldText, FieldCheckbox, FieldRadio:
	case FieldFile:
		if len(p.FilePaths) == 0 {
			return fmt.Errorf("%w: file field requires at least one path", ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: unknown field type %q", ErrInvalidParams, p.FieldType)
	}
	return p.Wait.Validate()
}

func (p NavigateParams) validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidParams)
	}
	target := strings.TrimSpace(p.URL)
	if target == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidParams)
	}
	if strings.HasPrefix(target, "/") {
		return fmt.Errorf("%w: url must be absolute or start with a host: %s", ErrInvalidParams, target)
	}
	return p.Wait.Validate()
}

// opaqueSchemes are schemes whose URLs carry no "//" authority.
var opaqueSchemes = []string{"about:", "data:", "javascript:", "blob:"}

// normalizeURL adds https:// to scheme-less targets such as "example.com/path"
// or "localhost:3000".
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		return raw
	}
	lower := strings.ToLower(raw)
	for _, scheme := range opaqueSchemes {
		if strings.HasPrefix(lower, scheme) {
			return raw
		}
	}
	return "https://" + raw
}
