package buildllm

// LLM is the user-facing API for the generation engine
type LLM struct {
	*Engine
}

// NewLLM creates an LLM from a model runner and tokenizer. When the config
// has no EOS set, the tokenizer's EOS token is used.
func NewLLM(config *Config, runner ModelRunner, tokenizer Tokenizer) *LLM {
	if config.EOS == -1 {
		config.EOS = tokenizer.EOSTokenID()
	}
	return &LLM{
		Engine: NewEngine(config, runner, tokenizer),
	}
}
