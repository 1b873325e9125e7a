package buildllm

import "container/list"

// Scheduler batches sequences into prefill and decode steps and preempts
// running sequences when the KV cache runs out of blocks.
type Scheduler struct {
	maxNumSeqs          int
	maxNumBatchedTokens int
	eos                 int
	blockManager        *BlockManager
	waiting             *list.List
	running             *list.List
}

// NewScheduler creates a scheduler from the engine configuration
func NewScheduler(config *Config) *Scheduler {
	numBlocks := config.NumKVCacheBlocks
	if numBlocks == -1 {
		numBlocks = 1024
	}

	return &Scheduler{
		maxNumSeqs:          config.MaxNumSeqs,
		maxNumBatchedTokens: config.MaxNumBatchedTokens,
		eos:                 config.EOS,
		blockManager:        NewBlockManager(numBlocks, config.KVCacheBlockSize),
		waiting:             list.New(),
		running:             list.New(),
	}
}

// IsFinished returns true if there are no more sequences to process
func (s *Scheduler) IsFinished() bool {
	return s.waiting.Len() == 0 && s.running.Len() == 0
}

// Add queues a sequence for prefill
func (s *Scheduler) Add(seq *Sequence) {
	s.waiting.PushBack(seq)
}

// Schedule picks the sequences for the next step. Prefill takes priority;
// the bool result reports whether the step is a prefill step.
func (s *Scheduler) Schedule() ([]*Sequence, bool) {
	scheduled := make([]*Sequence, 0)
	numBatchedTokens := 0

	for s.waiting.Len() > 0 && len(scheduled) < s.maxNumSeqs {
		elem := s.waiting.Front()
		seq := elem.Value.(*Sequence)

		if numBatchedTokens+seq.Len() > s.maxNumBatchedTokens || !s.blockManager.CanAllocate(seq) {
			break
		}

		s.blockManager.Allocate(seq)
		numBatchedTokens += seq.Len() - seq.NumCachedTokens
		seq.Status = StatusRunning

		s.waiting.Remove(elem)
		s.running.PushBack(seq)
		scheduled = append(scheduled, seq)
	}

	if len(scheduled) > 0 {
		return scheduled, true
	}

	// Decode phase
	for s.running.Len() > 0 && len(scheduled) < s.maxNumSeqs {
		elem := s.running.Front()
		seq := elem.Value.(*Sequence)
		s.running.Remove(elem)

		for !s.blockManager.CanAppend(seq) {
			if s.running.Len() > 0 {
				last := s.running.Back()
				s.running.Remove(last)
				s.preempt(last.Value.(*Sequence))
			} else {
				s.preempt(seq)
				break
			}
		}

		if seq.Status == StatusRunning {
			s.blockManager.MayAppend(seq)
			scheduled = append(scheduled, seq)
		}
	}

	if len(scheduled) == 0 {
		panic("no sequences scheduled")
	}

	for i := len(scheduled) - 1; i >= 0; i-- {
		s.running.PushFront(scheduled[i])
	}

	return scheduled, false
}

func (s *Scheduler) preempt(seq *Sequence) {
	seq.Status = StatusWaiting
	s.blockManager.Deallocate(seq)
	s.waiting.PushFront(seq)
}

// Postprocess appends the sampled tokens and retires finished sequences.
// A sequence finishes on EOS (unless IgnoreEOS) or when it has generated
// MaxNewTokens tokens.
func (s *Scheduler) Postprocess(seqs []*Sequence, tokenIDs []int) {
	for i, seq := range seqs {
		tokenID := tokenIDs[i]
		seq.AppendToken(tokenID)

		hitEOS := !seq.IgnoreEOS && tokenID == s.eos
		if hitEOS || seq.NumCompletionTokens() >= seq.MaxNewTokens {
			seq.Status = StatusFinished
			s.blockManager.Deallocate(seq)
			for elem := s.running.Front(); elem != nil; elem = elem.Next() {
				if elem.Value.(*Sequence).SeqID == seq.SeqID {
					s.running.Remove(elem)
					break
				}
			}
		}
	}
}
