// Package gpt2 implements the GPT-2 family backend: byte-level BPE
// tokenization and an ONNX Runtime model runner.
package gpt2

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// BPETokenizer implements GPT-2 byte-level BPE tokenization from the
// standard vocab.json + merges.txt artifacts.
type BPETokenizer struct {
	encoder     map[string]int
	decoder     map[int]string
	bpeRanks    map[string]int
	byteEncoder map[byte]rune
	byteDecoder map[rune]byte
	pattern     *regexp.Regexp
	eosID       int
}

// NewBPETokenizer loads a GPT-2 BPE tokenizer from a model directory
func NewBPETokenizer(dir string, eosID int) (*BPETokenizer, error) {
	t := &BPETokenizer{
		encoder:     make(map[string]int),
		decoder:     make(map[int]string),
		bpeRanks:    make(map[string]int),
		byteEncoder: buildByteEncoder(),
		eosID:       eosID,
	}

	t.byteDecoder = make(map[rune]byte, len(t.byteEncoder))
	for b, r := range t.byteEncoder {
		t.byteDecoder[r] = b
	}

	data, err := os.ReadFile(filepath.Join(dir, "vocab.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	if err := json.Unmarshal(data, &t.encoder); err != nil {
		return nil, fmt.Errorf("failed to parse vocab: %w", err)
	}

	for token, id := range t.encoder {
		t.decoder[id] = token
	}

	if err := t.loadMerges(filepath.Join(dir, "merges.txt")); err != nil {
		return nil, fmt.Errorf("failed to load merges: %w", err)
	}

	// GPT-2 pre-tokenization pattern, restated for Go's RE2:
	// contractions, words, numbers, punctuation runs, whitespace
	t.pattern = regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`)

	return t, nil
}

// buildByteEncoder creates GPT-2's byte-to-unicode mapping, which turns
// arbitrary bytes into printable runes so every byte sequence has a
// reversible text form.
func buildByteEncoder() map[byte]rune {
	encoder := make(map[byte]rune)

	for b := byte('!'); b <= byte('~'); b++ {
		encoder[b] = rune(b)
	}
	for b := int('¡'); b <= int('¬'); b++ {
		encoder[byte(b)] = rune(b)
	}
	for b := int('®'); b <= int('ÿ'); b++ {
		encoder[byte(b)] = rune(b)
	}

	n := 0
	for b := 0; b < 256; b++ {
		if _, ok := encoder[byte(b)]; !ok {
			encoder[byte(b)] = rune(256 + n)
			n++
		}
	}

	return encoder
}

func (t *BPETokenizer) loadMerges(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	rank := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t.bpeRanks[line] = rank
		rank++
	}

	return scanner.Err()
}

// Encode converts text to token IDs
func (t *BPETokenizer) Encode(text string) ([]int, error) {
	var tokenIDs []int

	for _, piece := range t.pattern.FindAllString(text, -1) {
		var mapped strings.Builder
		for _, b := range []byte(piece) {
			mapped.WriteRune(t.byteEncoder[b])
		}

		for _, part := range strings.Split(t.bpe(mapped.String()), " ") {
			id, ok := t.encoder[part]
			if !ok {
				return nil, fmt.Errorf("token %q not in vocabulary", part)
			}
			tokenIDs = append(tokenIDs, id)
		}
	}

	return tokenIDs, nil
}

// bpe applies the merge rules to one pre-tokenized piece, returning the
// merged symbols separated by spaces.
func (t *BPETokenizer) bpe(token string) string {
	word := make([]string, 0, len(token))
	for _, r := range token {
		word = append(word, string(r))
	}
	if len(word) <= 1 {
		return token
	}

	for {
		best := ""
		bestRank := -1

		for i := 0; i < len(word)-1; i++ {
			pair := word[i] + " " + word[i+1]
			if rank, ok := t.bpeRanks[pair]; ok {
				if bestRank == -1 || rank < bestRank {
					bestRank = rank
					best = pair
				}
			}
		}

		if best == "" {
			break
		}

		parts := strings.SplitN(best, " ", 2)
		first, second := parts[0], parts[1]

		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); i++ {
			if i < len(word)-1 && word[i] == first && word[i+1] == second {
				merged = append(merged, first+second)
				i++
			} else {
				merged = append(merged, word[i])
			}
		}
		word = merged

		if len(word) == 1 {
			break
		}
	}

	return strings.Join(word, " ")
}

// Decode converts token IDs back to text. Decoding stops at EOS.
func (t *BPETokenizer) Decode(tokenIDs []int) (string, error) {
	var sb strings.Builder
	for _, id := range tokenIDs {
		if id == t.eosID {
			break
		}
		token, ok := t.decoder[id]
		if !ok {
			return "", fmt.Errorf("token ID %d not in vocabulary", id)
		}
		sb.WriteString(token)
	}

	raw := make([]byte, 0, sb.Len())
	for _, r := range sb.String() {
		b, ok := t.byteDecoder[r]
		if !ok {
			return "", fmt.Errorf("rune %q is not in the byte alphabet", r)
		}
		raw = append(raw, b)
	}

	return string(raw), nil
}

// EOSTokenID returns the end-of-text token ID
func (t *BPETokenizer) EOSTokenID() int {
	return t.eosID
}

// VocabSize returns the vocabulary size
func (t *BPETokenizer) VocabSize() int {
	return len(t.encoder)
}
