package buildllm

import "sync/atomic"

// SequenceStatus represents the lifecycle state of a sequence
type SequenceStatus int

const (
	StatusWaiting SequenceStatus = iota
	StatusRunning
	StatusFinished
)

// Sequence represents a single generation request: the prompt tokens plus
// every token generated so far, and the sampling parameters that drive it.
type Sequence struct {
	SeqID           int64
	Status          SequenceStatus
	TokenIDs        []int
	LastToken       int
	NumTokens       int
	NumPromptTokens int
	NumCachedTokens int
	BlockTable      []int
	BlockSize       int

	Temperature       float64
	TopK              int
	TopP              float64
	RepetitionPenalty float64
	MaxNewTokens      int
	IgnoreEOS         bool
}

var seqCounter int64

// NewSequence creates a new sequence from prompt token IDs and sampling parameters
func NewSequence(tokenIDs []int, sp *SamplingParams) *Sequence {
	seqID := atomic.AddInt64(&seqCounter, 1) - 1

	tokens := make([]int, len(tokenIDs))
	copy(tokens, tokenIDs)

	return &Sequence{
		SeqID:           seqID,
		Status:          StatusWaiting,
		TokenIDs:        tokens,
		LastToken:       tokens[len(tokens)-1],
		NumTokens:       len(tokens),
		NumPromptTokens: len(tokens),
		BlockTable:      make([]int, 0),
		BlockSize:       256,

		Temperature:       sp.Temperature,
		TopK:              sp.TopK,
		TopP:              sp.TopP,
		RepetitionPenalty: sp.RepetitionPenalty,
		MaxNewTokens:      sp.MaxNewTokens,
		IgnoreEOS:         sp.IgnoreEOS,
	}
}

// Len returns the total number of tokens in the sequence
func (s *Sequence) Len() int {
	return s.NumTokens
}

// IsFinished returns true if the sequence has finished generating
func (s *Sequence) IsFinished() bool {
	return s.Status == StatusFinished
}

// NumCompletionTokens returns the number of generated tokens
func (s *Sequence) NumCompletionTokens() int {
	return s.NumTokens - s.NumPromptTokens
}

// PromptTokenIDs returns the prompt token IDs
func (s *Sequence) PromptTokenIDs() []int {
	return s.TokenIDs[:s.NumPromptTokens]
}

// CompletionTokenIDs returns the generated token IDs
func (s *Sequence) CompletionTokenIDs() []int {
	return s.TokenIDs[s.NumPromptTokens:]
}

// NumCachedBlocks returns the number of fully cached blocks
func (s *Sequence) NumCachedBlocks() int {
	return s.NumCachedTokens / s.BlockSize
}

// NumBlocks returns the total number of KV cache blocks needed
func (s *Sequence) NumBlocks() int {
	return (s.NumTokens + s.BlockSize - 1) / s.BlockSize
}

// LastBlockNumTokens returns the number of tokens in the last block
func (s *Sequence) LastBlockNumTokens() int {
	return s.NumTokens - (s.NumBlocks()-1)*s.BlockSize
}

// Block returns the tokens in the i-th block
func (s *Sequence) Block(i int) []int {
	if i < 0 || i >= s.NumBlocks() {
		return nil
	}
	start := i * s.BlockSize
	end := start + s.BlockSize
	if end > len(s.TokenIDs) {
		end = len(s.TokenIDs)
	}
	return s.TokenIDs[start:end]
}

// AppendToken appends a generated token to the sequence
func (s *Sequence) AppendToken(tokenID int) {
	s.TokenIDs = append(s.TokenIDs, tokenID)
	s.LastToken = tokenID
	s.NumTokens++
}
