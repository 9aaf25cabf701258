package hostfuncs

import (
	"fmt"
)

// Host error kinds.
const (
	ErrorValidation = "VALIDATION_ERROR"
	ErrorNotFound   = "NOT_FOUND"
	ErrorInternal   = "INTERNAL_ERROR"
)

// HostError is a structured failure of a host function call.
// Scripts observe it as a thrown exception carrying Error().
type HostError struct {
	// Kind is a machine-readable error type identifier.
	Kind string `json:"error"`

	// Function names the host function that failed.
	Function string `json:"function"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host function %s: %s: %s", e.Function, e.Kind, e.Message)
}

// NewValidationError reports bad arguments.
func NewValidationError(function, message string) *HostError {
	return &HostError{Kind: ErrorValidation, Function: function, Message: message}
}

// NewNotFoundError reports an unknown function name.
func NewNotFoundError(name string) *HostError {
	return &HostError{Kind: ErrorNotFound, Function: name, Message: "unknown host function: " + name}
}

// NewInternalError reports an unexpected failure.
func NewInternalError(function, message string) *HostError {
	return &HostError{Kind: ErrorInternal, Function: function, Message: message}
}

// NewPanicError reports a recovered panic.
func NewPanicError(function string, panicValue any) *HostError {
	var msg string
	if err, ok := panicValue.(error); ok {
		msg = err.Error()
	} else if s, ok := panicValue.(string); ok {
		msg = s
	} else {
		msg = "panic recovered"
	}
	return NewInternalError(function, "panic: "+msg)
}
