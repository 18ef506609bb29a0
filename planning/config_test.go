package planning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.MaxHistorySize)
	assert.True(t, cfg.AugmentUserMessage)
	assert.Equal(t, "Current state:", cfg.ContextPrefix)
	assert.Equal(t, "User request:", cfg.RequestPrefix)
	assert.Equal(t, uint16(1), cfg.SchemaVersion)
	assert.False(t, cfg.CaptureReadablePrompt)
	require.NoError(t, cfg.Validate())
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("CONVERSANT_MAX_HISTORY_SIZE", "3")
	t.Setenv("CONVERSANT_AUGMENT_USER_MESSAGE", "false")
	t.Setenv("CONVERSANT_CONTEXT_PREFIX", "Context:")
	t.Setenv("CONVERSANT_SCHEMA_VERSION", "2")
	t.Setenv("CONVERSANT_MODEL", "test-model")

	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxHistorySize)
	assert.False(t, cfg.AugmentUserMessage)
	assert.Equal(t, "Context:", cfg.ContextPrefix)
	assert.Equal(t, uint16(2), cfg.SchemaVersion)
	assert.Equal(t, "test-model", cfg.Model)
}

func TestConfigEnvInvalidValuesIgnored(t *testing.T) {
	t.Setenv("CONVERSANT_MAX_HISTORY_SIZE", "not a number")
	t.Setenv("CONVERSANT_SCHEMA_VERSION", "0")

	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.MaxHistorySize)
	assert.Equal(t, uint16(1), cfg.SchemaVersion)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistorySize = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SchemaVersion = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"max_history_size: 5\ncontext_prefix: \"State so far:\"\nmodel: gpt-x\n"), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxHistorySize)
	assert.Equal(t, "State so far:", cfg.ContextPrefix)
	assert.Equal(t, "gpt-x", cfg.Model)
	// Untouched fields keep their defaults.
	assert.Equal(t, "User request:", cfg.RequestPrefix)
}

func TestLoadConfigFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversant.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_history_size": 7}`), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxHistorySize)
}

func TestLoadConfigFileUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversant.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))

	_, err := LoadConfigFile(path)
	assert.Error(t, err)
}
