package gpt2

import (
	"fmt"

	"github.com/daulet/tokenizers"
)

// HFTokenizer wraps a HuggingFace tokenizer.json via the native tokenizers
// bindings. Preferred over BPETokenizer when the artifact is available,
// since it reproduces the checkpoint's exact normalization rules.
type HFTokenizer struct {
	tk    *tokenizers.Tokenizer
	eosID int
}

// NewHFTokenizer loads a tokenizer.json file
func NewHFTokenizer(path string, eosID int) (*HFTokenizer, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	return &HFTokenizer{
		tk:    tk,
		eosID: eosID,
	}, nil
}

// Encode converts text to token IDs
func (t *HFTokenizer) Encode(text string) ([]int, error) {
	ids, _ := t.tk.Encode(text, false)

	tokenIDs := make([]int, len(ids))
	for i, id := range ids {
		tokenIDs[i] = int(id)
	}
	return tokenIDs, nil
}

// Decode converts token IDs back to text. Decoding stops at EOS.
func (t *HFTokenizer) Decode(tokenIDs []int) (string, error) {
	ids := make([]uint32, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if id == t.eosID {
			break
		}
		ids = append(ids, uint32(id))
	}
	return t.tk.Decode(ids, true), nil
}

// EOSTokenID returns the end-of-text token ID
func (t *HFTokenizer) EOSTokenID() int {
	return t.eosID
}

// VocabSize returns the vocabulary size
func (t *HFTokenizer) VocabSize() int {
	return int(t.tk.VocabSize())
}

// Close releases the native tokenizer
func (t *HFTokenizer) Close() {
	t.tk.Close()
}
