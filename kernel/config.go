package kernel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/llamachat/engine"
	"github.com/tailored-agentic-units/llamachat/memory"
	"github.com/tailored-agentic-units/llamachat/session"
	"github.com/tailored-agentic-units/llamachat/template"
	"github.com/tailored-agentic-units/llamachat/window"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvEngineURL    = "LLAMACHAT_ENGINE_URL"
	EnvSystemPrompt = "LLAMACHAT_SYSTEM_PROMPT"
)

const defaultEngineURL = "http://127.0.0.1:8765"

// EngineConfig locates the inference engine.
type EngineConfig struct {
	// URL is the base address of the engine's Connect service.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Vision requires the engine to provide image embedding. Without it,
	// vision is used when the engine offers it and skipped otherwise.
	Vision bool `json:"vision,omitempty" yaml:"vision,omitempty"`
}

// Config holds initialization parameters for all kernel subsystems.
// Each subsystem section delegates to that subsystem's config-driven constructor.
type Config struct {
	Engine   EngineConfig         `json:"engine" yaml:"engine"`
	Template template.Config      `json:"template" yaml:"template"`
	Window   window.Config        `json:"window" yaml:"window"`
	Session  session.Config       `json:"session" yaml:"session"`
	Sampling engine.SamplerParams `json:"sampling" yaml:"sampling"`
	Memory   memory.Config        `json:"memory" yaml:"memory"`

	// Observer names a registered observability.Observer.
	Observer string `json:"observer,omitempty" yaml:"observer,omitempty"`
	Verbose  bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Engine:   EngineConfig{URL: defaultEngineURL},
		Template: template.DefaultConfig(),
		Window:   window.DefaultConfig(),
		Session:  session.DefaultConfig(),
		Sampling: engine.SamplerParams{Temperature: 0.8},
		Memory:   memory.DefaultConfig(),
		Observer: "noop",
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	if source.Engine.URL != "" {
		c.Engine.URL = source.Engine.URL
	}
	if source.Engine.Vision {
		c.Engine.Vision = true
	}

	c.Template.Merge(&source.Template)
	c.Window.Merge(&source.Window)
	c.Session.Merge(&source.Session)
	c.Sampling.Merge(&source.Sampling)
	c.Memory.Merge(&source.Memory)

	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.Verbose {
		c.Verbose = true
	}
}

// ApplyEnv overrides the engine URL and system prompt from the
// environment when the variables are set.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvEngineURL); ok && v != "" {
		c.Engine.URL = v
	}
	if v, ok := os.LookupEnv(EnvSystemPrompt); ok && v != "" {
		c.Session.SystemPrompt = v
	}
}

// LoadConfig reads a config file, merges it with defaults, and returns
// the resulting Config. Files ending in .yaml or .yml are parsed as YAML;
// anything else as JSON, which may carry comments and trailing commas.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
