package hub

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ModelConfig is the subset of a checkpoint's config.json the runner needs
type ModelConfig struct {
	ModelType  string `json:"model_type"`
	VocabSize  int    `json:"vocab_size"`
	NLayer     int    `json:"n_layer"`
	NHead      int    `json:"n_head"`
	NEmbd      int    `json:"n_embd"`
	EOSTokenID int    `json:"eos_token_id"`
	BOSTokenID int    `json:"bos_token_id"`
}

// LoadModelConfig reads config.json from a model directory
func LoadModelConfig(dir string) (*ModelConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}

	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *ModelConfig) validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("model config has no vocab size")
	}
	if c.NLayer <= 0 || c.NHead <= 0 || c.NEmbd <= 0 {
		return fmt.Errorf("model config is missing transformer dimensions")
	}
	if c.NEmbd%c.NHead != 0 {
		return fmt.Errorf("embedding size %d is not divisible by %d heads", c.NEmbd, c.NHead)
	}
	return nil
}

// HeadDim returns the per-head attention dimension
func (c *ModelConfig) HeadDim() int {
	return c.NEmbd / c.NHead
}
