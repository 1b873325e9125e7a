package buildllm

import "fmt"

// SamplingParams holds the decoding parameters for a generation request.
// A temperature of 0 selects greedy decoding.
type SamplingParams struct {
	Temperature       float64
	TopK              int
	TopP              float64
	RepetitionPenalty float64
	MaxNewTokens      int
	IgnoreEOS         bool
}

// SamplingOption is a functional option for SamplingParams
type SamplingOption func(*SamplingParams)

// NewSamplingParams creates a new SamplingParams with default values.
// The defaults match a plain "generate and print" run: greedy decoding,
// 20 new tokens, stop at EOS.
func NewSamplingParams(opts ...SamplingOption) *SamplingParams {
	sp := &SamplingParams{
		Temperature:       0.0,
		TopK:              0,
		TopP:              1.0,
		RepetitionPenalty: 1.0,
		MaxNewTokens:      20,
		IgnoreEOS:         false,
	}

	for _, opt := range opts {
		opt(sp)
	}

	if err := sp.validate(); err != nil {
		panic(err)
	}

	return sp
}

// validate checks if the sampling parameters are valid
func (sp *SamplingParams) validate() error {
	if sp.Temperature < 0 {
		return fmt.Errorf("temperature must be >= 0")
	}
	if sp.TopK < 0 {
		return fmt.Errorf("top-k must be >= 0")
	}
	if sp.TopP <= 0 || sp.TopP > 1 {
		return fmt.Errorf("top-p must be in (0, 1]")
	}
	if sp.RepetitionPenalty < 1 {
		return fmt.Errorf("repetition penalty must be >= 1")
	}
	if sp.MaxNewTokens < 1 {
		return fmt.Errorf("max new tokens must be at least 1")
	}
	return nil
}

// WithTemperature sets the sampling temperature (0 = greedy)
func WithTemperature(t float64) SamplingOption {
	return func(sp *SamplingParams) {
		sp.Temperature = t
	}
}

// WithTopK restricts sampling to the k most likely tokens (0 = disabled)
func WithTopK(k int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.TopK = k
	}
}

// WithTopP restricts sampling to the smallest nucleus with mass >= p
func WithTopP(p float64) SamplingOption {
	return func(sp *SamplingParams) {
		sp.TopP = p
	}
}

// WithRepetitionPenalty penalizes tokens already present in the sequence
func WithRepetitionPenalty(p float64) SamplingOption {
	return func(sp *SamplingParams) {
		sp.RepetitionPenalty = p
	}
}

// WithMaxNewTokens sets the maximum number of tokens to generate
func WithMaxNewTokens(n int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.MaxNewTokens = n
	}
}

// WithIgnoreEOS sets whether generation runs past the EOS token
func WithIgnoreEOS(b bool) SamplingOption {
	return func(sp *SamplingParams) {
		sp.IgnoreEOS = b
	}
}
