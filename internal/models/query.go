package models

import "fmt"

// QueryPair is one search intent expressed in both embedding spaces.
type QueryPair struct {
	Dense  []float32
	Sparse SparseVector
}

// SearchMode names the two fixed-weight search flavours.
type SearchMode string

const (
	// ModeFabric matches on the literal composition text (weight 0).
	ModeFabric SearchMode = "fabric"
	// ModeLikeliness matches on overall visual/semantic similarity (weight 1).
	ModeLikeliness SearchMode = "likeliness"
)

// SearchRequest is the API and CLI input for a catalog search.
// Weight, when set, overrides Mode.
type SearchRequest struct {
	Query  string     `json:"query"`
	Mode   SearchMode `json:"mode,omitempty"`
	Weight *float64   `json:"weight,omitempty"`
	TopK   int        `json:"top_k,omitempty"`
}

// Validate checks the request and fills defaults. maxTopK caps TopK when positive.
func (r *SearchRequest) Validate(defaultTopK, maxTopK int) error {
	if r.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidArgument)
	}
	if r.TopK < 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, r.TopK)
	}
	if r.TopK == 0 {
		r.TopK = defaultTopK
	}
	if maxTopK > 0 && r.TopK > maxTopK {
		r.TopK = maxTopK
	}
	switch r.Mode {
	case "":
		if r.Weight == nil {
			r.Mode = ModeLikeliness
		}
	case ModeFabric, ModeLikeliness:
	default:
		return fmt.Errorf("%w: unknown search mode %q", ErrInvalidArgument, r.Mode)
	}
	if r.Weight != nil && (*r.Weight < 0 || *r.Weight > 1) {
		return fmt.Errorf("%w: weight %v outside [0,1]", ErrInvalidArgument, *r.Weight)
	}
	return nil
}
