package storage

import (
	"context"
	"os"
	"testing"

	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/vector"
)

// Requires a Postgres with pgvector >= 0.7 (sparsevec).
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("STYLEMATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STYLEMATCH_TEST_POSTGRES_DSN not set")
	}
	store, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_, _ = store.db.Exec(`DELETE FROM hybrid_indexes WHERE name LIKE 'test-%'`)
		_ = store.Close()
	})
	return store
}

func TestPostgresStore_HybridQuery(t *testing.T) {
	store := newTestPostgres(t)
	ctx := context.Background()
	idx, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "test-hybrid", Dimension: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Upsert(ctx, item("S1", []float32{1, 0}, "cotton")); err != nil {
		t.Fatal(err)
	}
	outcome, err := idx.Upsert(ctx, item("S1", []float32{0, 1}, "again"))
	if err != nil || outcome != vector.UpsertSkipped {
		t.Fatalf("duplicate upsert: %v %v", outcome, err)
	}
	if _, err := idx.Upsert(ctx, item("S2", []float32{0, 1}, "wool")); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Query(ctx, []float32{1, 0}, models.SparseVector{Indices: []uint32{7}, Values: []float32{1}}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ID != "S1" {
		t.Fatalf("unexpected ranking: %+v", matches)
	}
	if matches[0].Score < 1.49 || matches[0].Score > 1.51 {
		t.Errorf("S1 score = %v, want 1.5", matches[0].Score)
	}

	got, err := idx.Fetch(ctx, []string{"S1"})
	if err != nil {
		t.Fatal(err)
	}
	if got["S1"].Metadata[models.MetaDescription] != "cotton" {
		t.Errorf("first write should be kept: %+v", got["S1"].Metadata)
	}
}

func TestPostgresStore_DimensionMismatchRecreates(t *testing.T) {
	store := newTestPostgres(t)
	ctx := context.Background()
	old, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "test-recreate", Dimension: 3})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := old.Upsert(ctx, item("legacy", []float32{1, 0, 0}, "old")); err != nil {
		t.Fatal(err)
	}
	idx, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "test-recreate", Dimension: 2})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Count != 0 || stats.Dimension != 2 {
		t.Errorf("stats after recreate: %+v", stats)
	}
}

func TestToPgSparse_rejectsOutOfRange(t *testing.T) {
	_, err := toPgSparse(models.SparseVector{Indices: []uint32{uint32(SparseDimensions)}, Values: []float32{1}})
	if err == nil {
		t.Error("expected error for index beyond the sparsevec width")
	}
	v, err := toPgSparse(models.SparseVector{Indices: []uint32{9, 3}, Values: []float32{0.1, 0.2}})
	if err != nil {
		t.Fatal(err)
	}
	back := fromPgSparse(v)
	if back.Len() != 2 || back.Map()[3] != 0.2 || back.Map()[9] != 0.1 {
		t.Errorf("round trip: %+v", back)
	}
}
