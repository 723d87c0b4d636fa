package entities

import "strings"

// ErrorDetail is the "err" member of a result envelope. Host functions send
// it to guests, and guests send it back when an operation fails.
//
// Type is one of "capability", "validation", "extension", "load",
// "timeout", "network", "exec", "config" or "internal". Code is a stable
// machine-readable identifier within the type.
type ErrorDetail struct {
	Details   map[string]any `json:"details,omitempty"`
	Message   string         `json:"message"`
	Type      string         `json:"type,omitempty"`
	Code      string         `json:"code,omitempty"`
	IsTimeout bool           `json:"is_timeout,omitempty"`
}

// Error renders "type: message [code]", leaving out empty parts and the
// "internal" type.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if e.Type != "" && e.Type != "internal" {
		b.WriteString(e.Type)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteString("]")
	}
	return b.String()
}

// NewErrorDetail creates a detail of the given type.
func NewErrorDetail(errorType, message string) *ErrorDetail {
	return &ErrorDetail{Type: errorType, Message: message}
}

// WithCode sets the code and returns the receiver.
func (e *ErrorDetail) WithCode(code string) *ErrorDetail {
	e.Code = code
	return e
}
