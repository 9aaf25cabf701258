package entities

import (
	"fmt"
	"log/slog"
)

// ErrorDetail is the structured form of a host error, used in log records
// and tool output. Type is one of "load", "bind", "dispatch", "rebind",
// "config", "native", "schema", "wire_format", "timeout" or "internal".
type ErrorDetail struct {
	Wrapped *ErrorDetail   `json:"wrapped,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Message string         `json:"message"`
	Type    string         `json:"type"`

	// Code narrows Type, e.g. the load reason or dispatch kind.
	Code string `json:"code"`

	// Stack holds script call frames, innermost first.
	Stack []string `json:"stack,omitempty"`

	IsTimeout  bool `json:"is_timeout,omitempty"`
	IsNotFound bool `json:"is_not_found,omitempty"`
}

// Error implements the error interface.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Type != "" && e.Type != "internal" {
		msg = e.Type + ": " + msg
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// LogValue implements slog.LogValuer.
func (e *ErrorDetail) LogValue() slog.Value {
	if e == nil {
		return slog.Value{}
	}
	attrs := []slog.Attr{
		slog.String("type", e.Type),
		slog.String("message", e.Message),
	}
	if e.Code != "" {
		attrs = append(attrs, slog.String("code", e.Code))
	}
	if len(e.Stack) > 0 {
		attrs = append(attrs, slog.Any("stack", e.Stack))
	}
	if e.IsTimeout {
		attrs = append(attrs, slog.Bool("timeout", true))
	}
	return slog.GroupValue(attrs...)
}

// NewErrorDetail creates an ErrorDetail with the given type and message.
func NewErrorDetail(errorType, message string) *ErrorDetail {
	return &ErrorDetail{
		Type:    errorType,
		Message: message,
	}
}
