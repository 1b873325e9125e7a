package gpt2

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/AbhishekR5/Build-LLM/buildllm"
	"github.com/AbhishekR5/Build-LLM/hub"
)

// seqState is the per-sequence decoder state: the KV cache tensors from
// the last forward pass and the next position to feed.
type seqState struct {
	cache    []ort.Value
	position int64
}

// Runner executes a GPT-2 family ONNX checkpoint with a per-sequence KV
// cache, one token per forward pass.
type Runner struct {
	cfg         *hub.ModelConfig
	session     *ort.DynamicAdvancedSession
	sampler     *Sampler
	inputNames  []string
	outputNames []string
	states      map[int64]*seqState
}

// NewRunner opens the ONNX checkpoint in modelDir and prepares a session
func NewRunner(modelDir string, cfg *hub.ModelConfig) (*Runner, error) {
	if p, ok := os.LookupEnv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); ok {
		ort.SetSharedLibraryPath(p)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}

	inputNames := make([]string, 0, 3+2*cfg.NLayer)
	outputNames := make([]string, 0, 1+2*cfg.NLayer)

	inputNames = append(inputNames, "input_ids", "position_ids", "attention_mask")
	outputNames = append(outputNames, "logits")

	for i := 0; i < cfg.NLayer; i++ {
		inputNames = append(inputNames,
			fmt.Sprintf("past_key_values.%d.key", i),
			fmt.Sprintf("past_key_values.%d.value", i))
		outputNames = append(outputNames,
			fmt.Sprintf("present.%d.key", i),
			fmt.Sprintf("present.%d.value", i))
	}

	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(modelDir, hub.ModelFile), inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open ONNX session: %w", err)
	}

	return &Runner{
		cfg:         cfg,
		session:     session,
		sampler:     NewSampler(time.Now().UnixNano()),
		inputNames:  inputNames,
		outputNames: outputNames,
		states:      make(map[int64]*seqState),
	}, nil
}

// Run advances every scheduled sequence by one token. Prefill feeds the
// not-yet-consumed prompt positions; decode feeds the last sampled token.
func (r *Runner) Run(seqs []*buildllm.Sequence, isPrefill bool) ([]int, error) {
	tokenIDs := make([]int, len(seqs))

	for i, seq := range seqs {
		state, ok := r.states[seq.SeqID]
		if !ok {
			state = &seqState{cache: r.emptyCache()}
			r.states[seq.SeqID] = state
		}

		// Preempted sequences come back through prefill with a fresh
		// block table; their decoder state is still valid, so only the
		// positions past state.position are fed again.
		var logits []float32
		for state.position < int64(seq.Len()) {
			token := int64(seq.TokenIDs[state.position])

			l, newCache, err := r.forward(token, state.position, state.cache)
			if err != nil {
				return nil, fmt.Errorf("forward pass failed for sequence %d: %w", seq.SeqID, err)
			}

			destroyValues(state.cache)
			state.cache = newCache
			state.position++
			logits = l
		}

		if logits == nil {
			return nil, fmt.Errorf("sequence %d had no new tokens to process", seq.SeqID)
		}

		tokenIDs[i] = r.sampler.Sample(logits,
			seq.Temperature, seq.TopP, seq.TopK, seq.RepetitionPenalty, seq.TokenIDs)
	}

	return tokenIDs, nil
}

// forward runs one token through the model and returns the logits and the
// updated KV cache. The returned cache values are owned by the caller.
func (r *Runner) forward(token, position int64, cache []ort.Value) ([]float32, []ort.Value, error) {
	stepIn, err := r.stepInputs(token, position)
	if err != nil {
		return nil, nil, err
	}
	defer destroyValues(stepIn)

	inputs := make([]ort.Value, 0, len(r.inputNames))
	inputs = append(inputs, stepIn...)
	inputs = append(inputs, cache...)
	if len(inputs) != len(r.inputNames) {
		return nil, nil, fmt.Errorf("expected %d inputs, built %d", len(r.inputNames), len(inputs))
	}

	// nil output slots are allocated by the runtime
	outputs := make([]ort.Value, len(r.outputNames))
	if err := r.session.Run(inputs, outputs); err != nil {
		destroyValues(outputs)
		return nil, nil, err
	}

	logitsOut, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		destroyValues(outputs)
		return nil, nil, fmt.Errorf("unexpected logits tensor type")
	}

	// The runtime owns the output buffer, copy the last position's logits
	// out before destroying the tensor.
	data := logitsOut.GetData()
	if len(data) < r.cfg.VocabSize {
		destroyValues(outputs)
		return nil, nil, fmt.Errorf("logits output has %d values, expected at least %d", len(data), r.cfg.VocabSize)
	}
	logits := make([]float32, r.cfg.VocabSize)
	copy(logits, data[len(data)-r.cfg.VocabSize:])
	_ = outputs[0].Destroy()

	return logits, outputs[1:], nil
}

// stepInputs builds the input_ids, position_ids and attention_mask tensors
// for a single-token step at the given position.
func (r *Runner) stepInputs(token, position int64) ([]ort.Value, error) {
	tokens, err := ort.NewTensor(ort.NewShape(1, 1), []int64{token})
	if err != nil {
		return nil, err
	}

	positions, err := ort.NewTensor(ort.NewShape(1, 1), []int64{position})
	if err != nil {
		tokens.Destroy()
		return nil, err
	}

	maskData := make([]int64, position+1)
	for i := range maskData {
		maskData[i] = 1
	}
	mask, err := ort.NewTensor(ort.NewShape(1, position+1), maskData)
	if err != nil {
		tokens.Destroy()
		positions.Destroy()
		return nil, err
	}

	return []ort.Value{tokens, positions, mask}, nil
}

// emptyCache builds zero-length KV tensors for the first forward pass
func (r *Runner) emptyCache() []ort.Value {
	values := make([]ort.Value, 0, 2*r.cfg.NLayer)
	shape := ort.NewShape(1, int64(r.cfg.NHead), 0, int64(r.cfg.HeadDim()))

	for i := 0; i < r.cfg.NLayer; i++ {
		k, _ := ort.NewEmptyTensor[float32](shape)
		v, _ := ort.NewEmptyTensor[float32](shape)
		values = append(values, k, v)
	}

	return values
}

// Release frees the KV cache of a finished sequence. Safe to call for
// unknown or already-released sequence IDs.
func (r *Runner) Release(seqID int64) {
	if state, ok := r.states[seqID]; ok {
		destroyValues(state.cache)
		delete(r.states, seqID)
	}
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			_ = v.Destroy()
		}
	}
}

// Close releases all per-sequence caches and the ONNX session
func (r *Runner) Close() error {
	for _, state := range r.states {
		destroyValues(state.cache)
	}
	r.states = make(map[int64]*seqState)

	if r.session != nil {
		if err := r.session.Destroy(); err != nil {
			return err
		}
		r.session = nil
	}

	return ort.DestroyEnvironment()
}
