package policy

import (
	"log/slog"

	"github.com/reglet-dev/scripthost/domain/errors"
)

// ViolationHandler is notified when a module fails the policy check.
type ViolationHandler interface {
	OnViolation(module string, v *errors.PolicyViolation)
}

// Ensure implementations satisfy the interface.
var _ ViolationHandler = (*SlogViolationHandler)(nil)
var _ ViolationHandler = (*NopViolationHandler)(nil)

// SlogViolationHandler logs violations. A nil Logger uses slog.Default().
type SlogViolationHandler struct {
	Logger *slog.Logger
}

func (h *SlogViolationHandler) OnViolation(module string, v *errors.PolicyViolation) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("disallowed global type",
		"module", module,
		"variable", v.Variable,
		"type", v.Type,
		"pattern", v.Pattern)
}

// NopViolationHandler does nothing.
type NopViolationHandler struct{}

func (h *NopViolationHandler) OnViolation(module string, v *errors.PolicyViolation) {}
