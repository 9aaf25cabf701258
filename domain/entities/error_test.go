package entities

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorDetail_Error(t *testing.T) {
	detail := &ErrorDetail{
		Type:    "dispatch",
		Code:    "not_finished",
		Message: "Attack did not finish",
		Wrapped: NewErrorDetail("internal", "boom"),
	}
	assert.Equal(t, "dispatch: Attack did not finish [not_finished]: boom", detail.Error())

	var nilDetail *ErrorDetail
	assert.Empty(t, nilDetail.Error())
}

func TestErrorDetail_LogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Error("call failed", "error", &ErrorDetail{
		Type:      "dispatch",
		Code:      "not_finished",
		Message:   "timed out",
		Stack:     []string{"ai:Think:12"},
		IsTimeout: true,
	})
	out := buf.String()
	assert.Contains(t, out, "error.type=dispatch")
	assert.Contains(t, out, "error.code=not_finished")
	assert.Contains(t, out, "error.timeout=true")
	assert.Contains(t, out, "error.stack=[ai:Think:12]")
}
