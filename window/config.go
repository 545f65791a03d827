package window

const defaultBatchSize = 2048

// Config holds context-submission settings.
type Config struct {
	// BatchSize caps the tokens sent to the engine in one Decode call.
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

// DefaultConfig returns the default chunk size of 2048 tokens.
func DefaultConfig() Config {
	return Config{BatchSize: defaultBatchSize}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.BatchSize > 0 {
		c.BatchSize = source.BatchSize
	}
}
