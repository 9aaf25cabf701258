// Package errors provides the error taxonomy of the script host.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is implemented by error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to a structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// LoadReason classifies a module load failure.
type LoadReason string

const (
	LoadMissingSource LoadReason = "missing_source"
	LoadPreprocess    LoadReason = "preprocess"
	LoadCompile       LoadReason = "compile"
	LoadPolicy        LoadReason = "policy"
	LoadStaleCache    LoadReason = "stale_cache"
	LoadPersist       LoadReason = "persist"
)

// LoadError reports a failed module load.
type LoadError struct {
	Err    error
	Module string
	Reason LoadReason
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load module %s (%s): %v", e.Module, e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the loader falls back to recompilation.
func (e *LoadError) Recoverable() bool {
	return e.Reason == LoadStaleCache || e.Reason == LoadPersist
}

// ToErrorDetail implements DetailedError.
func (e *LoadError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message:    e.Error(),
		Type:       "load",
		Code:       string(e.Reason),
		IsNotFound: e.Reason == LoadMissingSource,
		Details:    map[string]any{"module": e.Module},
	}
}

// PolicyViolation names a global that holds a disallowed type.
type PolicyViolation struct {
	Variable string
	Type     string
	Pattern  string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("global variable %s has disallowed type %s (matches %q)", e.Variable, e.Type, e.Pattern)
}

// BindReason classifies a bind failure.
type BindReason string

const (
	BindUnknownModule     BindReason = "unknown_module"
	BindUnknownLibrary    BindReason = "unknown_library"
	BindUnknownFunction   BindReason = "unknown_function"
	BindBadDeclaration    BindReason = "bad_declaration"
	BindSignatureMismatch BindReason = "signature_mismatch"
)

// BindError reports an unresolved bind. The bind itself returns HandleNone.
type BindError struct {
	Err         error
	Target      string
	Function    string
	Declaration string
	Reason      BindReason
}

func (e *BindError) Error() string {
	msg := fmt.Sprintf("bind %s::%s (%s): %s", e.Target, e.Function, e.Declaration, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *BindError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message:    e.Error(),
		Type:       "bind",
		Code:       string(e.Reason),
		IsNotFound: e.Reason != BindBadDeclaration && e.Reason != BindSignatureMismatch,
		Details: map[string]any{
			"target":      e.Target,
			"function":    e.Function,
			"declaration": e.Declaration,
		},
	}
}

// DispatchKind classifies a dispatch failure.
type DispatchKind string

const (
	DispatchPoolExhausted DispatchKind = "pool_exhausted"
	DispatchNotCallable   DispatchKind = "not_callable"
	DispatchNotPrepared   DispatchKind = "not_prepared"
	DispatchBadArgument   DispatchKind = "bad_argument"
	DispatchNotFinished   DispatchKind = "not_finished"
	DispatchNative        DispatchKind = "native"
)

// DispatchError reports a failed prepare or run.
type DispatchError struct {
	Err         error
	Kind        DispatchKind
	Label       string
	Module      string
	Function    string
	Declaration string
	Exception   string
	Frames      []entities.CallFrame
	State       entities.ContextState
}

func (e *DispatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dispatch %s", e.Kind)
	if e.Module != "" || e.Function != "" {
		fmt.Fprintf(&b, " %s::%s", e.Module, e.Function)
	}
	if e.Label != "" {
		fmt.Fprintf(&b, " at %q", e.Label)
	}
	if e.Kind == DispatchNotFinished {
		fmt.Fprintf(&b, ": state %s", e.State)
	}
	if e.Exception != "" {
		fmt.Fprintf(&b, ": %s", e.Exception)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call was suspended by the watchdog.
func (e *DispatchError) Timeout() bool {
	return e.Kind == DispatchNotFinished && e.State == entities.StateSuspended
}

// ToErrorDetail implements DetailedError.
func (e *DispatchError) ToErrorDetail() *entities.ErrorDetail {
	detail := &entities.ErrorDetail{
		Message:   e.Error(),
		Type:      "dispatch",
		Code:      string(e.Kind),
		IsTimeout: e.Timeout(),
		Details: map[string]any{
			"label":       e.Label,
			"module":      e.Module,
			"function":    e.Function,
			"declaration": e.Declaration,
			"state":       e.State.String(),
		},
	}
	for _, f := range e.Frames {
		detail.Stack = append(detail.Stack, f.String())
	}
	return detail
}

// RebindError aggregates the entries that failed to re-resolve after a reload.
type RebindError struct {
	Unresolved []string
	Failed     int
	Total      int
}

func (e *RebindError) Error() string {
	return fmt.Sprintf("rebind: %d of %d script functions failed to resolve", e.Failed, e.Total)
}

// ToErrorDetail implements DetailedError.
func (e *RebindError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "rebind",
		Code:    fmt.Sprintf("failed_%d", e.Failed),
		Details: map[string]any{"unresolved": e.Unresolved},
	}
}

// TimeoutError represents a call that ran past its budget.
type TimeoutError struct {
	Operation string
	Target    string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s timeout after %v (target: %s)", e.Operation, e.Duration, e.Target)
	}
	return fmt.Sprintf("%s timeout after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// ToErrorDetail implements DetailedError.
func (e *TimeoutError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "timeout", Code: e.Operation, IsTimeout: true}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// NativeError represents a failure inside a native library or host function.
type NativeError struct {
	Err     error
	Library string
	Symbol  string
}

func (e *NativeError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("native %s!%s: %v", e.Library, e.Symbol, e.Err)
	}
	return fmt.Sprintf("native %s: %v", e.Library, e.Err)
}

func (e *NativeError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *NativeError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "native", Code: e.Library}
}

// SchemaError represents a schema generation error.
type SchemaError struct {
	Err  error
	Type string
}

func (e *SchemaError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("schema error for type %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("schema error: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SchemaError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "schema"}
}

// WireFormatError represents a persisted-format encoding or decoding error.
type WireFormatError struct {
	Err       error
	Operation string
	Type      string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire format %s failed for %s: %v", e.Operation, e.Type, e.Err)
}

func (e *WireFormatError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WireFormatError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "internal", Code: "wire_format"}
}
