package parser_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/infrastructure/parser"
)

func TestYamlConfigParser_Parse(t *testing.T) {
	p := parser.NewYamlConfigParser()

	t.Run("Overlays Defaults", func(t *testing.T) {
		cfg := entities.DefaultRuntimeConfig()
		data := []byte(`
scripts_dir: game/scripts
modules: [combat, loot]
cache:
  backend: badger
timeouts:
  suspend: 5s
  poll_interval: 50ms
`)
		require.NoError(t, p.Parse(data, &cfg))
		assert.Equal(t, "game/scripts", cfg.ScriptsDir)
		assert.Equal(t, []string{"combat", "loot"}, cfg.Modules)
		assert.Equal(t, "badger", cfg.Cache.Backend)
		assert.Equal(t, "cache", cfg.Cache.Dir, "unset keys keep their default")
		assert.Equal(t, 5*time.Second, cfg.Timeouts.Suspend)
		assert.Equal(t, 2*time.Second, cfg.Timeouts.Warn)
		assert.Equal(t, 50*time.Millisecond, cfg.Timeouts.PollInterval)
	})

	t.Run("Empty Document", func(t *testing.T) {
		cfg := entities.DefaultRuntimeConfig()
		require.NoError(t, p.Parse(nil, &cfg))
		assert.Equal(t, entities.DefaultRuntimeConfig(), cfg)
	})

	t.Run("Unknown Key", func(t *testing.T) {
		cfg := entities.DefaultRuntimeConfig()
		err := p.Parse([]byte("scripts_folder: x\n"), &cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scripts_folder")
	})

	t.Run("Unknown Key Allowed When Lenient", func(t *testing.T) {
		cfg := entities.DefaultRuntimeConfig()
		lenient := parser.NewYamlConfigParser(parser.WithStrict(false))
		require.NoError(t, lenient.Parse([]byte("scripts_folder: x\nscript_ext: .as\n"), &cfg))
		assert.Equal(t, ".as", cfg.ScriptExt)
	})

	t.Run("Invalid Syntax", func(t *testing.T) {
		cfg := entities.DefaultRuntimeConfig()
		require.Error(t, p.Parse([]byte("cache: [\n"), &cfg))
	})
}

func TestTomlConfigParser_Parse(t *testing.T) {
	p := parser.NewTomlConfigParser()

	t.Run("Overlays Defaults", func(t *testing.T) {
		cfg := entities.DefaultRuntimeConfig()
		data := []byte(`
scripts_dir = "game/scripts"
defines = ["SERVER"]

[execution]
context_stack_size = 4
concurrent = true

[gc]
budget = "2ms"

[policy]
disallowed_global_types = ["Map", "Weak*"]
`)
		require.NoError(t, p.Parse(data, &cfg))
		assert.Equal(t, "game/scripts", cfg.ScriptsDir)
		assert.Equal(t, []string{"SERVER"}, cfg.Defines)
		assert.Equal(t, 4, cfg.Execution.ContextStackSize)
		assert.True(t, cfg.Execution.Concurrent)
		assert.Equal(t, 2*time.Millisecond, cfg.GC.Budget)
		assert.Equal(t, 100*time.Millisecond, cfg.GC.StepInterval)
		assert.Equal(t, []string{"Map", "Weak*"}, cfg.Policy.DisallowedGlobalTypes)
	})

	t.Run("Unknown Key", func(t *testing.T) {
		cfg := entities.DefaultRuntimeConfig()
		err := p.Parse([]byte("[cache]\ncolour = \"red\"\n"), &cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.colour")
	})

	t.Run("Invalid Syntax", func(t *testing.T) {
		cfg := entities.DefaultRuntimeConfig()
		require.Error(t, p.Parse([]byte("scripts_dir = \n"), &cfg))
	})
}
