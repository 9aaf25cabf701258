// Package testutil provides common test utilities and assertions for script host tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertJSONEqual compares two JSON strings for equality, ignoring formatting
func AssertJSONEqual(t *testing.T, expected, actual string, msgAndArgs ...interface{}) {
	t.Helper()

	var expectedJSON, actualJSON interface{}
	require.NoError(t, json.Unmarshal([]byte(expected), &expectedJSON), "expected JSON is invalid")
	require.NoError(t, json.Unmarshal([]byte(actual), &actualJSON), "actual JSON is invalid")

	assert.Equal(t, expectedJSON, actualJSON, msgAndArgs...)
}

// AssertDurationWithin asserts that a duration is within a tolerance of an expected value
func AssertDurationWithin(t *testing.T, expected, actual, tolerance time.Duration, msgAndArgs ...interface{}) {
	t.Helper()

	diff := expected - actual
	if diff < 0 {
		diff = -diff
	}

	assert.LessOrEqual(t, diff, tolerance, msgAndArgs...)
}

// RequireErrorAs asserts that err matches target type T and returns it.
func RequireErrorAs[T error](t *testing.T, err error) T {
	t.Helper()

	var target T
	require.Error(t, err)
	require.True(t, errors.As(err, &target), "error %q is not a %T", err, target)
	return target
}

// LogBuffer captures slog output for assertions. It is safe for concurrent writers.
type LogBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

// NewLogger returns a debug-level text logger writing into a new LogBuffer.
func NewLogger() (*slog.Logger, *LogBuffer) {
	lb := &LogBuffer{}
	return slog.New(slog.NewTextHandler(lb, &slog.HandlerOptions{Level: slog.LevelDebug})), lb
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Lines returns the captured lines containing every substring.
func (b *LogBuffer) Lines(substrs ...string) []string {
	var out []string
	for _, line := range strings.Split(b.String(), "\n") {
		match := line != ""
		for _, s := range substrs {
			if !strings.Contains(line, s) {
				match = false
				break
			}
		}
		if match {
			out = append(out, line)
		}
	}
	return out
}

// AssertLogged asserts that at least one captured line contains every substring.
func AssertLogged(t *testing.T, logs *LogBuffer, substrs ...string) {
	t.Helper()
	assert.NotEmpty(t, logs.Lines(substrs...), "no log line contains %q in:\n%s", substrs, logs.String())
}
