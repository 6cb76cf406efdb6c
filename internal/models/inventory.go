// Package models defines the catalog records, query vectors, and match results shared by the
// index backends, the search engine, and the outreach pipeline.
package models

import (
	"fmt"
	"math"
)

// Metadata keys every stored record carries.
const (
	MetaStyle       = "style"
	MetaImage       = "Image"
	MetaDescription = "Description"
)

// Metadata is the per-item field map returned verbatim on query matches.
type Metadata map[string]interface{}

// InventoryItem is one catalog style with its two embeddings.
type InventoryItem struct {
	ID       string       `json:"id"`
	Dense    []float32    `json:"values"`
	Sparse   SparseVector `json:"sparse_values"`
	Metadata Metadata     `json:"metadata"`
}

// Validate checks the item against the index dimension.
func (it *InventoryItem) Validate(dimension int) error {
	if it.ID == "" {
		return fmt.Errorf("%w: item id is empty", ErrInvalidArgument)
	}
	if len(it.Dense) != dimension {
		return fmt.Errorf("%w: item %s dense vector has %d components, index expects %d",
			ErrInvalidArgument, it.ID, len(it.Dense), dimension)
	}
	if err := it.Sparse.Validate(); err != nil {
		return fmt.Errorf("item %s: %w", it.ID, err)
	}
	return nil
}

// SparseVector is a lexical embedding as parallel index/value arrays.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Len returns the number of non-zero entries.
func (s SparseVector) Len() int {
	return len(s.Indices)
}

// Validate reports mismatched lengths, duplicate indices, and negative or non-finite weights.
func (s SparseVector) Validate() error {
	if len(s.Indices) != len(s.Values) {
		return fmt.Errorf("%w: sparse vector has %d indices and %d values",
			ErrInvalidArgument, len(s.Indices), len(s.Values))
	}
	seen := make(map[uint32]struct{}, len(s.Indices))
	for i, idx := range s.Indices {
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("%w: duplicate sparse index %d", ErrInvalidArgument, idx)
		}
		seen[idx] = struct{}{}
		v := float64(s.Values[i])
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: sparse value %v at index %d", ErrInvalidArgument, s.Values[i], idx)
		}
	}
	return nil
}

// Map returns the vector as index -> weight.
func (s SparseVector) Map() map[uint32]float32 {
	m := make(map[uint32]float32, len(s.Indices))
	for i, idx := range s.Indices {
		m[idx] = s.Values[i]
	}
	return m
}

// Clone returns a deep copy.
func (s SparseVector) Clone() SparseVector {
	return SparseVector{
		Indices: append([]uint32(nil), s.Indices...),
		Values:  append([]float32(nil), s.Values...),
	}
}
