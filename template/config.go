package template

const (
	defaultInitialSize = 16 * 1024
	defaultMaxSize     = 1024 * 1024
)

// Config holds renderer limits and the operator's template choice.
type Config struct {
	// Name selects a registered format or holds an inline text/template
	// source. Empty uses the template embedded in the model.
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	InitialSize int    `json:"initial_size,omitempty" yaml:"initial_size,omitempty"`
	MaxSize     int    `json:"max_size,omitempty" yaml:"max_size,omitempty"`
}

// DefaultConfig returns a 16 KiB probe buffer and a 1 MiB ceiling.
func DefaultConfig() Config {
	return Config{
		InitialSize: defaultInitialSize,
		MaxSize:     defaultMaxSize,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.InitialSize > 0 {
		c.InitialSize = source.InitialSize
	}
	if source.MaxSize > 0 {
		c.MaxSize = source.MaxSize
	}
}
