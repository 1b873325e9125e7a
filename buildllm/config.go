package buildllm

import (
	"fmt"
	"os"
)

// Config holds the configuration for the generation engine
type Config struct {
	ModelDir            string
	MaxNumSeqs          int
	MaxModelLen         int
	MaxNumBatchedTokens int
	EOS                 int
	KVCacheBlockSize    int
	NumKVCacheBlocks    int
}

// ConfigOption is a functional option for Config
type ConfigOption func(*Config)

// NewConfig creates a new Config with default values
func NewConfig(modelDir string, opts ...ConfigOption) *Config {
	c := &Config{
		ModelDir:            modelDir,
		MaxNumSeqs:          16,
		MaxModelLen:         1024,
		MaxNumBatchedTokens: 1024,
		EOS:                 -1,
		KVCacheBlockSize:    256,
		NumKVCacheBlocks:    -1,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		panic(err)
	}

	return c
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if _, err := os.Stat(c.ModelDir); os.IsNotExist(err) {
		return fmt.Errorf("model directory does not exist: %s", c.ModelDir)
	}

	if c.KVCacheBlockSize <= 0 || c.KVCacheBlockSize%256 != 0 {
		return fmt.Errorf("kv cache block size must be a positive multiple of 256")
	}

	if c.MaxNumSeqs < 1 {
		return fmt.Errorf("max number of sequences must be at least 1")
	}

	if c.MaxNumBatchedTokens < c.MaxModelLen {
		return fmt.Errorf("max batched tokens (%d) must be >= max model length (%d)",
			c.MaxNumBatchedTokens, c.MaxModelLen)
	}

	return nil
}

// WithMaxNumSeqs sets the maximum number of concurrent sequences
func WithMaxNumSeqs(n int) ConfigOption {
	return func(c *Config) {
		c.MaxNumSeqs = n
	}
}

// WithMaxModelLen sets the maximum model context length
func WithMaxModelLen(n int) ConfigOption {
	return func(c *Config) {
		c.MaxModelLen = n
	}
}

// WithMaxNumBatchedTokens sets the maximum number of batched tokens
func WithMaxNumBatchedTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxNumBatchedTokens = n
	}
}

// WithEOS sets the end-of-sequence token ID
func WithEOS(id int) ConfigOption {
	return func(c *Config) {
		c.EOS = id
	}
}

// WithKVCacheBlockSize sets the KV cache block size
func WithKVCacheBlockSize(n int) ConfigOption {
	return func(c *Config) {
		c.KVCacheBlockSize = n
	}
}

// WithNumKVCacheBlocks sets the number of KV cache blocks
func WithNumKVCacheBlocks(n int) ConfigOption {
	return func(c *Config) {
		c.NumKVCacheBlocks = n
	}
}
