package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/embedding"
	"github.com/airrygarments/stylematch/internal/keyword"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/vector"
)

func BenchmarkHybridScale(b *testing.B) {
	sparse := models.SparseVector{Indices: make([]uint32, 64), Values: make([]float32, 64)}
	for i := range sparse.Indices {
		sparse.Indices[i] = uint32(i * 7)
		sparse.Values[i] = float32(i) / 64
	}
	dense := make([]float32, 512)
	for i := range dense {
		dense[i] = float32(i) / 512
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = HybridScale(sparse, dense, 0.5)
	}
}

func BenchmarkEngineSearch(b *testing.B) {
	ctx := context.Background()
	const dim = 512
	idx, err := vector.NewMemoryStore().EnsureIndex(ctx, vector.IndexSpec{Name: "bench", Dimension: dim})
	if err != nil {
		b.Fatal(err)
	}
	dense := embedding.NewMockEmbedder(dim)
	bm25, err := keyword.NewBM25Encoder()
	if err != nil {
		b.Fatal(err)
	}
	fabrics := []string{"Cotton", "Wool", "Silk", "Linen", "Polyester", "Viscose", "Nylon", "Cashmere"}
	corpus := make([]string, 1000)
	for i := range corpus {
		corpus[i] = fmt.Sprintf("Shell: %d%% %s, Lining: 100%% %s", 10+i%90, fabrics[i%len(fabrics)], fabrics[(i/3)%len(fabrics)])
	}
	if err := bm25.Fit(corpus); err != nil {
		b.Fatal(err)
	}
	for i, desc := range corpus {
		d, err := dense.EmbedText(ctx, desc)
		if err != nil {
			b.Fatal(err)
		}
		s, err := bm25.EncodeDocuments(desc)
		if err != nil {
			b.Fatal(err)
		}
		item := &models.InventoryItem{
			ID:       fmt.Sprintf("S%04d", i),
			Dense:    d,
			Sparse:   s,
			Metadata: models.Metadata{"Image": fmt.Sprintf("S%04d.jpg", i), "Description": desc},
		}
		if _, err := idx.Upsert(ctx, item); err != nil {
			b.Fatal(err)
		}
	}
	engine := NewEngine(idx, dense, bm25, &config.SearchConfig{DefaultTopK: 10})
	pair, err := engine.Encode(ctx, "Fabric: 60% Wool; Description: tailored coat")
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Search(ctx, pair, 0.5, 10); err != nil {
			b.Fatal(err)
		}
	}
}
