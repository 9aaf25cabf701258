package parser

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

// TomlConfigParser implements ConfigParser for TOML.
type TomlConfigParser struct {
	config parserConfig
}

// NewTomlConfigParser creates a new TomlConfigParser.
func NewTomlConfigParser(opts ...ParserOption) ports.ConfigParser {
	cfg := defaultParserConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TomlConfigParser{config: cfg}
}

// Parse decodes TOML bytes over cfg.
func (p *TomlConfigParser) Parse(data []byte, cfg *entities.RuntimeConfig) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parse toml config: %w", err)
	}
	if !p.config.strict {
		return nil
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("parse toml config: unknown keys %s", strings.Join(keys, ", "))
	}
	return nil
}
