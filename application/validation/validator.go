// Package validation checks runtime configuration with go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/reglet-dev/scripthost/domain/entities"
	domainerrors "github.com/reglet-dev/scripthost/domain/errors"
	"github.com/reglet-dev/scripthost/domain/ports"
)

// validate is a package-level singleton; building a validator caches struct metadata.
var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateTimeouts, entities.TimeoutConfig{})
	return v
}

// validateTimeouts rejects a warn threshold that could never fire before suspension.
func validateTimeouts(sl validator.StructLevel) {
	t, ok := sl.Current().Interface().(entities.TimeoutConfig)
	if !ok {
		return
	}
	if t.Suspend > 0 && t.Warn > 0 && t.Warn >= t.Suspend {
		sl.ReportError(t.Warn, "warn", "Warn", "ltsuspend", t.Suspend.String())
	}
}

// ConfigValidator implements ports.ConfigValidator.
type ConfigValidator struct{}

// NewConfigValidator creates a new ConfigValidator.
func NewConfigValidator() ports.ConfigValidator {
	return &ConfigValidator{}
}

// Validate checks cfg and reports every invalid field by its document path.
func (v *ConfigValidator) Validate(cfg *entities.RuntimeConfig) *entities.ValidationResult {
	result := &entities.ValidationResult{Valid: true}
	if cfg == nil {
		result.Valid = false
		result.Errors = append(result.Errors, entities.ValidationError{Message: "configuration is nil"})
		return result
	}

	err := validate.Struct(cfg)
	if err == nil {
		return result
	}

	result.Valid = false
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		result.Errors = append(result.Errors, entities.ValidationError{Message: err.Error()})
		return result
	}
	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, entities.ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Message: message(fe),
		})
	}
	return result
}

// ToError converts a failed result into a ConfigError naming the first invalid field.
func ToError(result *entities.ValidationResult) error {
	if result == nil || result.Valid {
		return nil
	}
	if len(result.Errors) == 0 {
		return &domainerrors.ConfigError{Err: errors.New("invalid configuration")}
	}

	msgs := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		if e.Field == "" {
			msgs[i] = e.Message
			continue
		}
		msgs[i] = e.Field + " " + e.Message
	}
	first := result.Errors[0]
	if len(msgs) == 1 {
		return &domainerrors.ConfigError{Field: first.Field, Err: errors.New(first.Message)}
	}
	return &domainerrors.ConfigError{Field: first.Field, Err: errors.New(strings.Join(msgs, "; "))}
}

// fieldPath drops the root struct name: "RuntimeConfig.cache.dir" becomes "cache.dir".
func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return rest
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gtfield":
		return "must be greater than " + toSnake(fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "ltsuspend":
		return "must be shorter than the suspend timeout " + fe.Param()
	default:
		return fmt.Sprintf("failed the '%s' check", fe.Tag())
	}
}

// toSnake maps a Go field name such as MinCollectible to min_collectible.
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
