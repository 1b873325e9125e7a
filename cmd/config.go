package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings are the tool defaults, optionally overridden by a YAML config
// file and then by command-line flags.
type Settings struct {
	Model      string             `yaml:"model"`
	CacheDir   string             `yaml:"cache_dir"`
	Generation GenerationSettings `yaml:"generation"`
}

// GenerationSettings mirror the engine's sampling parameters
type GenerationSettings struct {
	MaxNewTokens      int     `yaml:"max_new_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TopK              int     `yaml:"top_k"`
	TopP              float64 `yaml:"top_p"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
}

// DefaultSettings returns the zero-configuration defaults: distilgpt2 with
// greedy decoding and 20 new tokens.
func DefaultSettings() *Settings {
	return &Settings{
		Model: "distilgpt2",
		Generation: GenerationSettings{
			MaxNewTokens:      20,
			Temperature:       0.0,
			TopK:              0,
			TopP:              1.0,
			RepetitionPenalty: 1.0,
		},
	}
}

// Validate checks the merged generation settings. The rules mirror the
// engine's sampling parameter constraints so user input fails with an
// error instead of reaching the engine's constructor.
func (g *GenerationSettings) Validate() error {
	if g.Temperature < 0 {
		return fmt.Errorf("temperature must be >= 0, got %g", g.Temperature)
	}
	if g.TopK < 0 {
		return fmt.Errorf("top-k must be >= 0, got %d", g.TopK)
	}
	if g.TopP <= 0 || g.TopP > 1 {
		return fmt.Errorf("top-p must be in (0, 1], got %g", g.TopP)
	}
	if g.RepetitionPenalty < 1 {
		return fmt.Errorf("repetition penalty must be >= 1, got %g", g.RepetitionPenalty)
	}
	if g.MaxNewTokens < 1 {
		return fmt.Errorf("max tokens must be at least 1, got %d", g.MaxNewTokens)
	}
	return nil
}

// LoadSettings reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return settings, nil
}
