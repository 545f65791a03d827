package memory

// Config holds snapshot store initialization parameters.
type Config struct {
	// Path is the FileStore root directory. Empty keeps snapshots in
	// memory for the life of the process.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// DefaultConfig returns the default configuration (in-memory snapshots).
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
}

// NewStore creates a Store from configuration.
func NewStore(cfg *Config) Store {
	if cfg.Path == "" {
		return NewMemoryStore()
	}
	return NewFileStore(cfg.Path)
}
