package vector

import (
	"math"
	"sort"

	"github.com/airrygarments/stylematch/internal/models"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// SparseDot returns the inner product over the indices the two vectors share.
// query is passed pre-expanded because it is reused across every stored record.
func SparseDot(query map[uint32]float32, doc models.SparseVector) float64 {
	if len(query) == 0 {
		return 0
	}
	var dot float64
	for i, idx := range doc.Indices {
		if q, ok := query[idx]; ok {
			dot += float64(q) * float64(doc.Values[i])
		}
	}
	return dot
}

// HybridScore is the dotproduct hybrid metric: dense inner product plus sparse inner product.
// Blending between the two is done by scaling the query, not here.
func HybridScore(dense []float32, sparse map[uint32]float32, item *models.InventoryItem) float64 {
	return InnerProduct(dense, item.Dense) + SparseDot(sparse, item.Sparse)
}

// TopMatches sorts candidates by descending score (ties by id) and keeps the first k.
func TopMatches(candidates []*models.Match, k int) []*models.Match {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates
}
