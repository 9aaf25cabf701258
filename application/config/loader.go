// Package config loads the script host configuration.
//
// A configuration file is rendered as a template over the process
// environment, decoded over DefaultRuntimeConfig by the parser matching its
// extension, then validated.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/scripthost/application/template"
	"github.com/reglet-dev/scripthost/application/validation"
	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/errors"
	"github.com/reglet-dev/scripthost/domain/ports"
	"github.com/reglet-dev/scripthost/infrastructure/parser"
)

// Loader reads RuntimeConfig documents.
type Loader struct {
	parsers   map[string]ports.ConfigParser
	renderer  ports.TemplateEngine
	validator ports.ConfigValidator
	environ   func() []string
	readFile  func(string) ([]byte, error)
}

// LoaderOption configures the Loader.
type LoaderOption func(*Loader)

// WithParser registers p for files with the given extension, such as ".yaml".
func WithParser(ext string, p ports.ConfigParser) LoaderOption {
	return func(l *Loader) {
		l.parsers[strings.ToLower(ext)] = p
	}
}

// WithTemplateEngine sets the template engine. A nil engine disables rendering.
func WithTemplateEngine(t ports.TemplateEngine) LoaderOption {
	return func(l *Loader) {
		l.renderer = t
	}
}

// WithValidator sets the validator. A nil validator disables validation.
func WithValidator(v ports.ConfigValidator) LoaderOption {
	return func(l *Loader) {
		l.validator = v
	}
}

// WithEnviron sets the source of template environment variables.
func WithEnviron(environ func() []string) LoaderOption {
	return func(l *Loader) {
		if environ != nil {
			l.environ = environ
		}
	}
}

// NewLoader creates a Loader with YAML and TOML parsers, strict templating
// and validation.
func NewLoader(opts ...LoaderOption) *Loader {
	yamlParser := parser.NewYamlConfigParser()
	l := &Loader{
		parsers: map[string]ports.ConfigParser{
			".yaml": yamlParser,
			".yml":  yamlParser,
			".toml": parser.NewTomlConfigParser(),
		},
		renderer:  template.NewGoTemplateEngine(),
		validator: validation.NewConfigValidator(),
		environ:   os.Environ,
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the file at path. An empty path returns the defaults.
func (l *Loader) Load(path string) (entities.RuntimeConfig, error) {
	if path == "" {
		cfg := entities.DefaultRuntimeConfig()
		return cfg, l.validate(&cfg)
	}

	raw, err := l.readFile(path)
	if err != nil {
		return entities.RuntimeConfig{}, fmt.Errorf("failed to read config: %w", err)
	}
	return l.Parse(filepath.Ext(path), raw)
}

// Parse renders, decodes and validates a document in the format named by ext.
func (l *Loader) Parse(ext string, raw []byte) (entities.RuntimeConfig, error) {
	p, ok := l.parsers[strings.ToLower(ext)]
	if !ok {
		return entities.RuntimeConfig{}, &errors.ConfigError{Err: fmt.Errorf("unsupported config format %q", ext)}
	}

	data := raw
	if l.renderer != nil {
		var err error
		data, err = l.renderer.Render(raw, l.templateVars())
		if err != nil {
			return entities.RuntimeConfig{}, &errors.ConfigError{Err: fmt.Errorf("failed to render config: %w", err)}
		}
	}

	cfg := entities.DefaultRuntimeConfig()
	if err := p.Parse(data, &cfg); err != nil {
		return entities.RuntimeConfig{}, &errors.ConfigError{Err: err}
	}
	if err := l.validate(&cfg); err != nil {
		return entities.RuntimeConfig{}, err
	}
	return cfg, nil
}

// Validate checks cfg with the configured validator.
func (l *Loader) Validate(cfg *entities.RuntimeConfig) *entities.ValidationResult {
	if l.validator == nil {
		return &entities.ValidationResult{Valid: true}
	}
	return l.validator.Validate(cfg)
}

func (l *Loader) validate(cfg *entities.RuntimeConfig) error {
	return validation.ToError(l.Validate(cfg))
}

func (l *Loader) templateVars() map[string]any {
	env := make(map[string]string)
	for _, kv := range l.environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return map[string]any{"Env": env}
}

// Load reads the file at path with a default Loader.
func Load(path string) (entities.RuntimeConfig, error) {
	return NewLoader().Load(path)
}
