package gpt2

import (
	"math"
	"math/rand"
	"sort"
)

// Sampler turns a logit vector into the next token ID. Temperature 0
// selects the argmax; otherwise the filtered distribution is sampled.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler creates a sampler seeded from the given source
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample picks the next token from logits according to the sequence's
// sampling parameters. seen holds token IDs already present in the
// sequence, used for the repetition penalty.
func (s *Sampler) Sample(logits []float32, temperature, topP float64, topK int, repPenalty float64, seen []int) int {
	scaled := make([]float32, len(logits))
	copy(scaled, logits)

	if repPenalty > 1.0 {
		applyRepetitionPenalty(scaled, seen, float32(repPenalty))
	}

	if temperature == 0 {
		return argmax(scaled)
	}

	for i := range scaled {
		scaled[i] /= float32(temperature)
	}

	probs := softmax(scaled)

	if topK > 0 {
		filterTopK(probs, topK)
	}
	if topP < 1.0 {
		filterTopP(probs, float32(topP))
	}

	return s.sampleProbs(probs)
}

// applyRepetitionPenalty divides positive logits of seen tokens by the
// penalty and multiplies negative ones, making repeats less likely either way.
func applyRepetitionPenalty(logits []float32, seen []int, penalty float32) {
	for _, id := range seen {
		if id < 0 || id >= len(logits) {
			continue
		}
		if logits[id] > 0 {
			logits[id] /= penalty
		} else {
			logits[id] *= penalty
		}
	}
}

// softmax converts logits to a probability distribution
func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}

	probs := make([]float32, len(logits))
	var sum float32
	for i, l := range logits {
		probs[i] = float32(math.Exp(float64(l - maxLogit)))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}

	return probs
}

// argmax returns the index of the largest logit
func argmax(logits []float32) int {
	best := 0
	for i, l := range logits {
		if l > logits[best] {
			best = i
		}
	}
	return best
}

// filterTopK zeroes every probability outside the k largest and renormalizes
func filterTopK(probs []float32, k int) {
	if k >= len(probs) {
		return
	}

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	keep := make(map[int]bool, k)
	for _, i := range idx[:k] {
		keep[i] = true
	}

	var sum float32
	for i := range probs {
		if !keep[i] {
			probs[i] = 0
		} else {
			sum += probs[i]
		}
	}
	for i := range probs {
		probs[i] /= sum
	}
}

// filterTopP keeps the smallest set of tokens whose cumulative probability
// reaches p and renormalizes.
func filterTopP(probs []float32, p float32) {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	var cum float32
	cut := len(idx)
	for i, j := range idx {
		cum += probs[j]
		if cum >= p {
			cut = i + 1
			break
		}
	}

	keep := make(map[int]bool, cut)
	for _, i := range idx[:cut] {
		keep[i] = true
	}

	var sum float32
	for i := range probs {
		if !keep[i] {
			probs[i] = 0
		} else {
			sum += probs[i]
		}
	}
	for i := range probs {
		probs[i] /= sum
	}
}

// sampleProbs draws an index from a probability distribution
func (s *Sampler) sampleProbs(probs []float32) int {
	r := s.rng.Float32()
	var cum float32
	for i, p := range probs {
		cum += p
		if r <= cum {
			return i
		}
	}
	return len(probs) - 1
}
