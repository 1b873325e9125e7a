package buildllm

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Output is the result of one finished generation request
type Output struct {
	SeqID    int64
	Text     string
	TokenIDs []int
}

// Engine drives tokenization, scheduling and model execution
type Engine struct {
	config    *Config
	runner    ModelRunner
	tokenizer Tokenizer
	scheduler *Scheduler
}

// NewEngine creates a generation engine from its components
func NewEngine(config *Config, runner ModelRunner, tokenizer Tokenizer) *Engine {
	return &Engine{
		config:    config,
		runner:    runner,
		tokenizer: tokenizer,
		scheduler: NewScheduler(config),
	}
}

// Close releases the model runner's resources
func (e *Engine) Close() error {
	return e.runner.Close()
}

// AddRequest encodes a prompt and queues it for generation, returning the
// sequence ID the request was assigned.
func (e *Engine) AddRequest(prompt string, sp *SamplingParams) (int64, error) {
	tokenIDs, err := e.tokenizer.Encode(prompt)
	if err != nil {
		return 0, fmt.Errorf("failed to encode prompt: %w", err)
	}
	if len(tokenIDs) == 0 {
		return 0, fmt.Errorf("prompt produced no tokens")
	}
	if len(tokenIDs) > e.config.MaxModelLen {
		return 0, fmt.Errorf("prompt is %d tokens, model length is %d", len(tokenIDs), e.config.MaxModelLen)
	}

	seq := NewSequence(tokenIDs, sp)
	seq.BlockSize = e.config.KVCacheBlockSize
	e.scheduler.Add(seq)
	return seq.SeqID, nil
}

// IsFinished returns true if every request has completed
func (e *Engine) IsFinished() bool {
	return e.scheduler.IsFinished()
}

// Step runs one scheduling and inference step. It returns the outputs of
// sequences that finished during the step and the number of tokens
// processed (negative for decode steps, matching throughput accounting).
func (e *Engine) Step() ([]Output, int, error) {
	seqs, isPrefill := e.scheduler.Schedule()

	tokenIDs, err := e.runner.Run(seqs, isPrefill)
	if err != nil {
		return nil, 0, fmt.Errorf("model inference failed: %w", err)
	}
	if len(tokenIDs) != len(seqs) {
		return nil, 0, fmt.Errorf("runner returned %d tokens for %d sequences", len(tokenIDs), len(seqs))
	}

	e.scheduler.Postprocess(seqs, tokenIDs)

	releaser, canRelease := e.runner.(SequenceReleaser)

	var outputs []Output
	for _, seq := range seqs {
		if !seq.IsFinished() {
			continue
		}
		if canRelease {
			releaser.Release(seq.SeqID)
		}
		completion := seq.CompletionTokenIDs()
		text, err := e.tokenizer.Decode(completion)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decode tokens: %w", err)
		}
		outputs = append(outputs, Output{
			SeqID:    seq.SeqID,
			Text:     text,
			TokenIDs: append([]int(nil), completion...),
		})
	}

	numTokens := 0
	if isPrefill {
		for _, seq := range seqs {
			numTokens += seq.Len()
		}
	} else {
		numTokens = -len(seqs)
	}

	return outputs, numTokens, nil
}

// Generate runs the given prompts to completion and returns one output per
// prompt, in prompt order. When showProgress is set a progress bar with
// prefill/decode throughput is rendered.
func (e *Engine) Generate(prompts []string, sp *SamplingParams, showProgress bool) ([]Output, error) {
	seqIDs := make([]int64, len(prompts))
	for i, prompt := range prompts {
		id, err := e.AddRequest(prompt, sp)
		if err != nil {
			return nil, err
		}
		seqIDs[i] = id
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(prompts),
			progressbar.OptionSetDescription("Generating"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	byID := make(map[int64]Output, len(prompts))
	var prefillRate, decodeRate float64

	for !e.IsFinished() {
		start := time.Now()
		stepOutputs, numTokens, err := e.Step()
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(start).Seconds()

		if showProgress {
			if numTokens > 0 {
				prefillRate = float64(numTokens) / elapsed
			} else {
				decodeRate = float64(-numTokens) / elapsed
			}
			bar.Describe(fmt.Sprintf("Generating [Prefill: %dtok/s, Decode: %dtok/s]",
				int(prefillRate), int(decodeRate)))
		}

		for _, output := range stepOutputs {
			byID[output.SeqID] = output
			if showProgress {
				bar.Add(1)
			}
		}
	}

	if showProgress {
		bar.Finish()
	}

	outputs := make([]Output, len(prompts))
	for i, id := range seqIDs {
		output, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("sequence %d never finished", id)
		}
		outputs[i] = output
	}

	return outputs, nil
}
