package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

type parserConfig struct {
	strict bool // Reject unknown keys
}

func defaultParserConfig() parserConfig {
	return parserConfig{strict: true}
}

// ParserOption configures a config parser.
type ParserOption func(*parserConfig)

// WithStrict enables/disables rejection of keys that match no setting.
func WithStrict(enabled bool) ParserOption {
	return func(c *parserConfig) {
		c.strict = enabled
	}
}

// YamlConfigParser implements ConfigParser for YAML.
type YamlConfigParser struct {
	config parserConfig
}

// NewYamlConfigParser creates a new YamlConfigParser.
func NewYamlConfigParser(opts ...ParserOption) ports.ConfigParser {
	cfg := defaultParserConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &YamlConfigParser{config: cfg}
}

// Parse decodes YAML bytes over cfg. An empty document leaves cfg unchanged.
func (p *YamlConfigParser) Parse(data []byte, cfg *entities.RuntimeConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(p.config.strict)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse yaml config: %w", err)
	}
	return nil
}
