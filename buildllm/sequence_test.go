package buildllm

import (
	"testing"
)

func TestSequenceCreation(t *testing.T) {
	sp := NewSamplingParams(
		WithTemperature(0.8),
		WithMaxNewTokens(100),
	)

	tokenIDs := []int{1, 2, 3, 4, 5}
	seq := NewSequence(tokenIDs, sp)

	if seq.Len() != 5 {
		t.Errorf("Expected length 5, got %d", seq.Len())
	}

	if seq.NumPromptTokens != 5 {
		t.Errorf("Expected 5 prompt tokens, got %d", seq.NumPromptTokens)
	}

	if seq.NumCompletionTokens() != 0 {
		t.Errorf("Expected 0 completion tokens, got %d", seq.NumCompletionTokens())
	}

	if seq.Status != StatusWaiting {
		t.Errorf("Expected status WAITING, got %v", seq.Status)
	}

	if seq.Temperature != 0.8 {
		t.Errorf("Expected temperature 0.8, got %f", seq.Temperature)
	}
}

func TestSequenceAppendToken(t *testing.T) {
	sp := NewSamplingParams()
	seq := NewSequence([]int{1, 2, 3}, sp)

	seq.AppendToken(4)

	if seq.Len() != 4 {
		t.Errorf("Expected length 4, got %d", seq.Len())
	}

	if seq.LastToken != 4 {
		t.Errorf("Expected last token 4, got %d", seq.LastToken)
	}

	if seq.NumCompletionTokens() != 1 {
		t.Errorf("Expected 1 completion token, got %d", seq.NumCompletionTokens())
	}

	completion := seq.CompletionTokenIDs()
	if len(completion) != 1 || completion[0] != 4 {
		t.Errorf("Expected completion [4], got %v", completion)
	}
}

func TestSequenceBlocks(t *testing.T) {
	sp := NewSamplingParams()
	tokenIDs := make([]int, 600)
	for i := range tokenIDs {
		tokenIDs[i] = i
	}
	seq := NewSequence(tokenIDs, sp)

	if seq.NumBlocks() != 3 {
		t.Errorf("Expected 3 blocks, got %d", seq.NumBlocks())
	}

	block0 := seq.Block(0)
	if len(block0) != 256 {
		t.Errorf("Expected block 0 to have 256 tokens, got %d", len(block0))
	}

	block2 := seq.Block(2)
	expectedLast := 600 - 2*256
	if len(block2) != expectedLast {
		t.Errorf("Expected last block to have %d tokens, got %d", expectedLast, len(block2))
	}

	if seq.LastBlockNumTokens() != expectedLast {
		t.Errorf("Expected %d tokens in last block, got %d", expectedLast, seq.LastBlockNumTokens())
	}
}

func TestSamplingParams(t *testing.T) {
	sp := NewSamplingParams(
		WithTemperature(0.7),
		WithTopK(40),
		WithTopP(0.9),
		WithRepetitionPenalty(1.2),
		WithMaxNewTokens(128),
		WithIgnoreEOS(true),
	)

	if sp.Temperature != 0.7 {
		t.Errorf("Expected temperature 0.7, got %f", sp.Temperature)
	}

	if sp.TopK != 40 {
		t.Errorf("Expected top-k 40, got %d", sp.TopK)
	}

	if sp.TopP != 0.9 {
		t.Errorf("Expected top-p 0.9, got %f", sp.TopP)
	}

	if sp.RepetitionPenalty != 1.2 {
		t.Errorf("Expected repetition penalty 1.2, got %f", sp.RepetitionPenalty)
	}

	if sp.MaxNewTokens != 128 {
		t.Errorf("Expected max new tokens 128, got %d", sp.MaxNewTokens)
	}

	if !sp.IgnoreEOS {
		t.Errorf("Expected ignore EOS to be true")
	}
}

func TestSamplingParamsGreedyDefault(t *testing.T) {
	sp := NewSamplingParams()

	if sp.Temperature != 0 {
		t.Errorf("Expected default temperature 0 (greedy), got %f", sp.Temperature)
	}

	if sp.MaxNewTokens != 20 {
		t.Errorf("Expected default max new tokens 20, got %d", sp.MaxNewTokens)
	}
}

func TestSamplingParamsValidation(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for negative temperature")
		}
	}()

	NewSamplingParams(WithTemperature(-0.1))
}
