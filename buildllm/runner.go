package buildllm

// ModelRunner executes one forward pass over a batch of sequences and
// returns the next token ID for each. Implementations own whatever model
// state (weights, KV caches, sessions) the backend needs.
type ModelRunner interface {
	Run(seqs []*Sequence, isPrefill bool) ([]int, error)
	Close() error
}

// SequenceReleaser is implemented by runners that hold per-sequence state
// (such as KV cache tensors) that should be freed as soon as a sequence
// finishes rather than at Close.
type SequenceReleaser interface {
	Release(seqID int64)
}

// Tokenizer converts between text and token IDs
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(tokenIDs []int) (string, error)
	EOSTokenID() int
}
