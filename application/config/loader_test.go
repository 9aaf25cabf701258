package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/scripthost/application/config"
	"github.com/reglet-dev/scripthost/domain/entities"
	domainerrors "github.com/reglet-dev/scripthost/domain/errors"
	"github.com/reglet-dev/scripthost/internal/testutil"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fixedEnv(vars ...string) config.LoaderOption {
	return config.WithEnviron(func() []string { return vars })
}

func TestLoader_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load("")
	require.NoError(t, err)
	assert.Equal(t, entities.DefaultRuntimeConfig(), cfg)
}

func TestLoader_YAML(t *testing.T) {
	path := writeConfig(t, "host.yaml", `
scripts_dir: "{{ .Env.GAME_ROOT }}/scripts"
modules: [combat]
execution:
  concurrent: true
timeouts:
  suspend: 3s
  warn: 1s
`)
	cfg, err := config.NewLoader(fixedEnv("GAME_ROOT=/srv/game")).Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/game/scripts", cfg.ScriptsDir)
	assert.Equal(t, []string{"combat"}, cfg.Modules)
	assert.True(t, cfg.Execution.Concurrent)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Suspend)
	assert.Equal(t, time.Second, cfg.Timeouts.Warn)
	assert.Equal(t, entities.DefaultContextStackSize, cfg.Execution.ContextStackSize)
}

func TestLoader_TOML(t *testing.T) {
	path := writeConfig(t, "host.toml", `
scripts_dir = "scripts"

[cache]
backend = "badger"
dir = "{{ .Env.CACHE_DIR }}"
`)
	cfg, err := config.NewLoader(fixedEnv("CACHE_DIR=/var/cache/host")).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.Equal(t, "/var/cache/host", cfg.Cache.Dir)
}

func TestLoader_Failures(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		contains string
	}{
		{"unsupported format", "host.json", `{}`, "unsupported config format"},
		{"missing variable", "host.yaml", `scripts_dir: "{{ .Env.NOPE }}"`, "failed to render config"},
		{"bad yaml", "host.yaml", "cache: [\n", "parse yaml config"},
		{"unknown key", "host.toml", "scripts = \"x\"\n", "unknown keys scripts"},
		{"invalid value", "host.yml", "cache:\n  backend: redis\n", "field 'cache.backend'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.NewLoader(fixedEnv()).Load(writeConfig(t, tt.file, tt.content))
			cfgErr := testutil.RequireErrorAs[*domainerrors.ConfigError](t, err)
			assert.Contains(t, cfgErr.Error(), tt.contains)
		})
	}
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := config.NewLoader().Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_WithoutRenderingOrValidation(t *testing.T) {
	loader := config.NewLoader(config.WithTemplateEngine(nil), config.WithValidator(nil))
	cfg, err := loader.Parse(".yaml", []byte("scripts_dir: \"{{ raw }}\"\ncache:\n  backend: redis\n"))
	require.NoError(t, err)
	assert.Equal(t, "{{ raw }}", cfg.ScriptsDir)
	assert.Equal(t, "redis", cfg.Cache.Backend)
}
