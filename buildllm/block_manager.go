package buildllm

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Block is one KV cache block. A full block is content-addressed by the
// xxhash chain of its tokens so identical prefixes can be shared.
type Block struct {
	ID       int
	RefCount int
	Hash     uint64
	TokenIDs []int
}

// BlockManager tracks KV cache block ownership and prefix reuse
type BlockManager struct {
	blockSize int
	blocks    []*Block
	cache     map[uint64]int
	free      []int
	used      map[int]bool
}

// NewBlockManager creates a block manager with numBlocks blocks of blockSize tokens
func NewBlockManager(numBlocks, blockSize int) *BlockManager {
	blocks := make([]*Block, numBlocks)
	free := make([]int, numBlocks)
	for i := range blocks {
		blocks[i] = &Block{ID: i}
		free[i] = i
	}

	return &BlockManager{
		blockSize: blockSize,
		blocks:    blocks,
		cache:     make(map[uint64]int),
		free:      free,
		used:      make(map[int]bool),
	}
}

// ChainHash hashes a block of token IDs on top of the previous block's hash.
// A prefix hash of 0 means the block is the first in the sequence.
func ChainHash(tokenIDs []int, prefixHash uint64) uint64 {
	h := xxhash.New()

	var buf [8]byte
	if prefixHash != 0 {
		binary.LittleEndian.PutUint64(buf[:], prefixHash)
		h.Write(buf[:])
	}

	for _, id := range tokenIDs {
		binary.LittleEndian.PutUint32(buf[:4], uint32(id))
		h.Write(buf[:4])
	}

	return h.Sum64()
}

// NumFreeBlocks returns the number of unallocated blocks
func (bm *BlockManager) NumFreeBlocks() int {
	return len(bm.free)
}

func (bm *BlockManager) takeBlock(blockID int) *Block {
	block := bm.blocks[blockID]
	if block.RefCount != 0 {
		panic("block is already allocated")
	}

	block.RefCount = 1
	block.Hash = 0
	block.TokenIDs = nil

	for i, id := range bm.free {
		if id == blockID {
			bm.free = append(bm.free[:i], bm.free[i+1:]...)
			break
		}
	}
	bm.used[blockID] = true

	return block
}

func (bm *BlockManager) releaseBlock(blockID int) {
	if bm.blocks[blockID].RefCount != 0 {
		panic("block still has references")
	}
	delete(bm.used, blockID)
	bm.free = append(bm.free, blockID)
}

// CanAllocate checks if there are enough free blocks for a sequence's prompt
func (bm *BlockManager) CanAllocate(seq *Sequence) bool {
	return len(bm.free) >= seq.NumBlocks()
}

// Allocate assigns KV cache blocks to a sequence, reusing cached blocks
// whose token content matches the sequence prefix.
func (bm *BlockManager) Allocate(seq *Sequence) {
	if len(seq.BlockTable) > 0 {
		panic("sequence already has blocks allocated")
	}

	var h uint64
	miss := false

	for i := 0; i < seq.NumBlocks(); i++ {
		tokenIDs := seq.Block(i)

		// Only full blocks participate in the prefix cache
		if len(tokenIDs) == bm.blockSize {
			h = ChainHash(tokenIDs, h)
		} else {
			h = 0
		}

		blockID := bm.lookupCached(h, tokenIDs)
		if blockID == -1 {
			miss = true
		}

		if miss {
			blockID = bm.free[0]
			bm.takeBlock(blockID)
		} else {
			seq.NumCachedTokens += bm.blockSize
			if bm.used[blockID] {
				bm.blocks[blockID].RefCount++
			} else {
				bm.takeBlock(blockID)
			}
		}

		if h != 0 {
			block := bm.blocks[blockID]
			block.Hash = h
			block.TokenIDs = append([]int(nil), tokenIDs...)
			bm.cache[h] = blockID
		}

		seq.BlockTable = append(seq.BlockTable, blockID)
	}
}

// lookupCached returns the ID of a cached block whose content matches
// tokenIDs, or -1 on a miss.
func (bm *BlockManager) lookupCached(hash uint64, tokenIDs []int) int {
	if hash == 0 {
		return -1
	}
	blockID, ok := bm.cache[hash]
	if !ok {
		return -1
	}

	cached := bm.blocks[blockID].TokenIDs
	if len(cached) != len(tokenIDs) {
		return -1
	}
	for i, id := range tokenIDs {
		if cached[i] != id {
			return -1
		}
	}
	return blockID
}

// Deallocate releases a sequence's blocks, returning unreferenced ones to the free list
func (bm *BlockManager) Deallocate(seq *Sequence) {
	for i := len(seq.BlockTable) - 1; i >= 0; i-- {
		blockID := seq.BlockTable[i]
		block := bm.blocks[blockID]
		block.RefCount--
		if block.RefCount == 0 {
			bm.releaseBlock(blockID)
		}
	}

	seq.NumCachedTokens = 0
	seq.BlockTable = seq.BlockTable[:0]
}

// CanAppend checks if one more token fits without exhausting the free list
func (bm *BlockManager) CanAppend(seq *Sequence) bool {
	if seq.Len()%bm.blockSize == 1 {
		return len(bm.free) >= 1
	}
	return true
}

// MayAppend prepares block bookkeeping before a token is appended
func (bm *BlockManager) MayAppend(seq *Sequence) {
	blockTable := seq.BlockTable
	lastBlock := bm.blocks[blockTable[len(blockTable)-1]]

	switch seq.Len() % bm.blockSize {
	case 1:
		// Previous block just filled up, start a new one
		if lastBlock.Hash == 0 {
			panic("last block should have a hash")
		}
		blockID := bm.free[0]
		bm.takeBlock(blockID)
		seq.BlockTable = append(seq.BlockTable, blockID)
	case 0:
		// Block is now full, make it addressable in the prefix cache
		if lastBlock.Hash != 0 {
			panic("last block should not have a hash")
		}
		tokenIDs := seq.Block(seq.NumBlocks() - 1)
		var prefixHash uint64
		if len(blockTable) > 1 {
			prefixHash = bm.blocks[blockTable[len(blockTable)-2]].Hash
		}
		h := ChainHash(tokenIDs, prefixHash)
		lastBlock.Hash = h
		lastBlock.TokenIDs = append([]int(nil), tokenIDs...)
		bm.cache[h] = lastBlock.ID
	default:
		if lastBlock.Hash != 0 {
			panic("last block should not have a hash")
		}
	}
}
