package flowgraph

import (
	"sync"
)

// PairIndex maintains an index from an ordered (source, target) node pair
// to the edges between that pair. This is the structure that makes two-cycle
// matching better than quadratic: the reverse partner set for an edge A->B
// is a single O(1) lookup of the pair (B, A).
type PairIndex struct {
	// index maps composite pair key -> list of edge IDs
	index map[string][]uint64

	// separator used between key parts (must not appear in node keys)
	separator string

	mu sync.RWMutex
}

// PairIndexStatistics summarizes index shape for diagnostics.
type PairIndexStatistics struct {
	UniquePairs     int
	TotalEdges      int
	AvgEdgesPerPair float64
}

// NewPairIndex creates an empty pair index.
func NewPairIndex() *PairIndex {
	return &PairIndex{
		index:     make(map[string][]uint64),
		separator: "\x00", // NULL byte as separator
	}
}

// Insert adds an edge under its ordered (source, target) pair.
func (idx *PairIndex) Insert(source, target string, edgeID uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := idx.pairKey(source, target)
	idx.index[key] = append(idx.index[key], edgeID)
}

// Lookup returns the IDs of all edges going source -> target.
// The returned slice is a copy and safe to retain.
func (idx *PairIndex) Lookup(source, target string) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	edgeIDs := idx.index[idx.pairKey(source, target)]
	if len(edgeIDs) == 0 {
		return nil
	}

	result := make([]uint64, len(edgeIDs))
	copy(result, edgeIDs)
	return result
}

// Contains reports whether any edge exists for the ordered pair.
func (idx *PairIndex) Contains(source, target string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.index[idx.pairKey(source, target)]) > 0
}

// Statistics returns shape statistics about the index.
func (idx *PairIndex) Statistics() PairIndexStatistics {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	total := 0
	for _, edgeIDs := range idx.index {
		total += len(edgeIDs)
	}

	pairs := len(idx.index)
	avg := 0.0
	if pairs > 0 {
		avg = float64(total) / float64(pairs)
	}

	return PairIndexStatistics{
		UniquePairs:     pairs,
		TotalEdges:      total,
		AvgEdgesPerPair: avg,
	}
}

// pairKey builds the composite key for an ordered node pair.
func (idx *PairIndex) pairKey(source, target string) string {
	return source + idx.separator + target
}
