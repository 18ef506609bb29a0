package planning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/conversant-dev/conversant/core"
)

// Config holds the engine's tunable options. Priority, lowest to highest:
// defaults, environment variables (CONVERSANT_*), explicit field assignment
// by the host.
type Config struct {
	// MaxHistorySize bounds the working-context turn history kept in state.
	// Oldest entries are evicted first.
	MaxHistorySize int `json:"max_history_size" yaml:"max_history_size"`

	// AugmentUserMessage enables prepending the rendered working context to
	// the next turn's user message.
	AugmentUserMessage bool `json:"augment_user_message" yaml:"augment_user_message"`

	// ContextPrefix labels the augmenter output in the effective message.
	ContextPrefix string `json:"context_prefix" yaml:"context_prefix"`

	// RequestPrefix labels the user message in the effective message.
	RequestPrefix string `json:"request_prefix" yaml:"request_prefix"`

	// SchemaVersion is the blob schema version written by serialization when
	// no migration registry dictates one.
	SchemaVersion uint16 `json:"schema_version" yaml:"schema_version"`

	// CaptureReadablePrompt makes the assembled planning prompt available to
	// the prompt hook for debugging.
	CaptureReadablePrompt bool `json:"capture_readable_prompt" yaml:"capture_readable_prompt"`

	// Model options passed to the AI client on every planning call.
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// DefaultConfig returns the documented defaults with environment overrides
// applied.
func DefaultConfig() *Config {
	cfg := &Config{
		MaxHistorySize:        10,
		AugmentUserMessage:    true,
		ContextPrefix:         "Current state:",
		RequestPrefix:         "User request:",
		SchemaVersion:         1,
		CaptureReadablePrompt: false,
	}
	cfg.applyEnv()
	return cfg
}

// applyEnv overlays CONVERSANT_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("CONVERSANT_MAX_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.MaxHistorySize = n
		}
	}
	if v := os.Getenv("CONVERSANT_AUGMENT_USER_MESSAGE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AugmentUserMessage = b
		}
	}
	if v := os.Getenv("CONVERSANT_CONTEXT_PREFIX"); v != "" {
		c.ContextPrefix = v
	}
	if v := os.Getenv("CONVERSANT_REQUEST_PREFIX"); v != "" {
		c.RequestPrefix = v
	}
	if v := os.Getenv("CONVERSANT_SCHEMA_VERSION"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil && n > 0 {
			c.SchemaVersion = uint16(n)
		}
	}
	if v := os.Getenv("CONVERSANT_MODEL"); v != "" {
		c.Model = v
	}
}

// Validate checks the configuration for impossible values.
func (c *Config) Validate() error {
	if c.MaxHistorySize < 0 {
		return fmt.Errorf("%w: max_history_size must not be negative", core.ErrInvalidConfiguration)
	}
	if c.SchemaVersion == 0 {
		return fmt.Errorf("%w: schema_version must be at least 1", core.ErrInvalidConfiguration)
	}
	return nil
}

// LoadConfigFile reads configuration from a JSON or YAML file, starting from
// defaults (including environment overrides) and overlaying the file's
// contents.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config extension %s", core.ErrInvalidConfiguration, ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
