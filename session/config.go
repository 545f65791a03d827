package session

// DefaultSystemPrompt is used for chat models when none is configured.
// Base models get no system prompt unless one is given explicitly.
const DefaultSystemPrompt = "A chat between a curious human and an artificial intelligence assistant. " +
	"The assistant gives helpful, detailed, and polite answers to the human's questions."

// Config holds session initialization parameters.
type Config struct {
	// SystemPrompt is committed once, before the first turn.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`

	// Manual starts the session in manual mode.
	Manual bool `json:"manual,omitempty" yaml:"manual,omitempty"`

	// DisplayPrompt prints the system prompt after it is committed.
	DisplayPrompt bool `json:"display_prompt,omitempty" yaml:"display_prompt,omitempty"`

	// Special renders control tokens in generated output.
	Special bool `json:"special,omitempty" yaml:"special,omitempty"`

	// Plain disables markdown highlighting of chat model output.
	Plain bool `json:"plain,omitempty" yaml:"plain,omitempty"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{SystemPrompt: DefaultSystemPrompt}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.SystemPrompt != "" {
		c.SystemPrompt = source.SystemPrompt
	}
	if source.Manual {
		c.Manual = true
	}
	if source.DisplayPrompt {
		c.DisplayPrompt = true
	}
	if source.Special {
		c.Special = true
	}
	if source.Plain {
		c.Plain = true
	}
}
