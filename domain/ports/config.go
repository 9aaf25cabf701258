package ports

import "github.com/reglet-dev/scripthost/domain/entities"

// ConfigParser decodes a configuration document over cfg. Fields absent
// from the document keep their current value.
type ConfigParser interface {
	Parse(data []byte, cfg *entities.RuntimeConfig) error
}

// TemplateEngine renders a configuration document before it is parsed.
type TemplateEngine interface {
	Render(raw []byte, vars map[string]any) ([]byte, error)
}

// ConfigValidator checks a decoded configuration.
type ConfigValidator interface {
	Validate(cfg *entities.RuntimeConfig) *entities.ValidationResult
}
