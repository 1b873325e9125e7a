package gpt2

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTokenizerFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	vocab := `{"H":0,"e":1,"l":2,"o":3,"He":4,"ll":5,"Hell":6,"<|endoftext|>":7,"☃":8}`
	merges := "#version: 0.2\nH e\nl l\nHe ll\n"

	if err := os.WriteFile(filepath.Join(dir, "vocab.json"), []byte(vocab), 0644); err != nil {
		t.Fatalf("failed to write vocab: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "merges.txt"), []byte(merges), 0644); err != nil {
		t.Fatalf("failed to write merges: %v", err)
	}

	return dir
}

func TestBPEEncodeAppliesMerges(t *testing.T) {
	tok, err := NewBPETokenizer(writeTokenizerFixture(t), 7)
	if err != nil {
		t.Fatalf("failed to create tokenizer: %v", err)
	}

	ids, err := tok.Encode("Hello")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// H e l l o -> He l l o -> He ll o -> Hell o
	want := []int{6, 3}
	if len(ids) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Token %d: expected %d, got %d", i, want[i], ids[i])
		}
	}
}

func TestBPERoundTrip(t *testing.T) {
	tok, err := NewBPETokenizer(writeTokenizerFixture(t), 7)
	if err != nil {
		t.Fatalf("failed to create tokenizer: %v", err)
	}

	ids, err := tok.Encode("Hello")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	text, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if text != "Hello" {
		t.Errorf("Expected %q, got %q", "Hello", text)
	}
}

func TestBPEDecodeStopsAtEOS(t *testing.T) {
	tok, err := NewBPETokenizer(writeTokenizerFixture(t), 7)
	if err != nil {
		t.Fatalf("failed to create tokenizer: %v", err)
	}

	text, err := tok.Decode([]int{6, 3, 7, 6})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if text != "Hello" {
		t.Errorf("Expected decoding to stop at EOS, got %q", text)
	}

	if tok.EOSTokenID() != 7 {
		t.Errorf("Expected EOS 7, got %d", tok.EOSTokenID())
	}
}

func TestBPEUnknownToken(t *testing.T) {
	tok, err := NewBPETokenizer(writeTokenizerFixture(t), 7)
	if err != nil {
		t.Fatalf("failed to create tokenizer: %v", err)
	}

	if _, err := tok.Encode("xyz"); err == nil {
		t.Errorf("Expected error for text outside the vocabulary")
	}
}

func TestBPEDecodeOutOfAlphabetRune(t *testing.T) {
	tok, err := NewBPETokenizer(writeTokenizerFixture(t), 7)
	if err != nil {
		t.Fatalf("failed to create tokenizer: %v", err)
	}

	// Token 8 exists in the vocabulary but its rune is outside the
	// byte-level alphabet, so decoding must fail instead of dropping it.
	if _, err := tok.Decode([]int{6, 8}); err == nil {
		t.Errorf("Expected error for token outside the byte alphabet")
	}
}

func TestByteEncoderBijective(t *testing.T) {
	encoder := buildByteEncoder()

	if len(encoder) != 256 {
		t.Fatalf("Expected 256 byte mappings, got %d", len(encoder))
	}

	seen := make(map[rune]bool, 256)
	for _, r := range encoder {
		if seen[r] {
			t.Fatalf("Rune %q mapped twice", r)
		}
		seen[r] = true
	}
}

func TestBPEMissingVocab(t *testing.T) {
	if _, err := NewBPETokenizer(t.TempDir(), 7); err == nil {
		t.Errorf("Expected error for missing vocab files")
	}
}
