package hostfuncs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *HostError
		kind string
		msg  string
	}{
		{"validation", NewValidationError("Roll", "bad sides"), ErrorValidation, "bad sides"},
		{"not found", NewNotFoundError("Roll"), ErrorNotFound, "unknown host function: Roll"},
		{"internal", NewInternalError("Roll", "db down"), ErrorInternal, "db down"},
		{"panic error", NewPanicError("Roll", errors.New("nil map")), ErrorInternal, "panic: nil map"},
		{"panic string", NewPanicError("Roll", "oops"), ErrorInternal, "panic: oops"},
		{"panic other", NewPanicError("Roll", 42), ErrorInternal, "panic: panic recovered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, "Roll", tt.err.Function)
			assert.Equal(t, tt.msg, tt.err.Message)
			assert.Contains(t, tt.err.Error(), tt.msg)
		})
	}
}
