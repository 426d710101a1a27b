package rag

import (
	"fmt"
	"sort"
)

// Hit is a search match: the insertion id of a vector and its squared L2 distance.
type Hit struct {
	ID       int
	Distance float32
}

// FlatL2 is an exhaustive in-memory index ranked by squared Euclidean distance.
// All vectors share the dimension of the first one added.
type FlatL2 struct {
	dim     int
	vectors [][]float32
}

// NewFlatL2 returns an index for vectors of dim components. dim 0 adopts the first Add.
func NewFlatL2(dim int) *FlatL2 {
	return &FlatL2{dim: dim}
}

func (ix *FlatL2) Dim() int { return ix.dim }

func (ix *FlatL2) Len() int { return len(ix.vectors) }

// Add appends vectors; ids continue from Len.
func (ix *FlatL2) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("rag: vector %d is empty", i)
		}
		if ix.dim == 0 {
			ix.dim = len(v)
		}
		if len(v) != ix.dim {
			return fmt.Errorf("rag: vector %d has dimension %d, index expects %d", i, len(v), ix.dim)
		}
	}
	for _, v := range vectors {
		ix.vectors = append(ix.vectors, append([]float32(nil), v...))
	}
	return nil
}

// Search returns up to k nearest vectors, closest first, ties broken by id.
func (ix *FlatL2) Search(query []float32, k int) ([]Hit, error) {
	if len(ix.vectors) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("rag: query has dimension %d, index expects %d", len(query), ix.dim)
	}
	hits := make([]Hit, len(ix.vectors))
	for id, v := range ix.vectors {
		var sum float32
		for j := range v {
			d := v[j] - query[j]
			sum += d * d
		}
		hits[id] = Hit{ID: id, Distance: sum}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}
