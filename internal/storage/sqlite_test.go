package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/vector"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "inventory.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func item(id string, dense []float32, desc string) *models.InventoryItem {
	return &models.InventoryItem{
		ID:    id,
		Dense: dense,
		Sparse: models.SparseVector{
			Indices: []uint32{7, 42},
			Values:  []float32{0.5, 0.25},
		},
		Metadata: models.Metadata{
			models.MetaStyle:       id,
			models.MetaImage:       id + ".jpg",
			models.MetaDescription: desc,
		},
	}
}

func TestSQLiteStore_UpsertQueryFetch(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	idx, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 2})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := idx.Upsert(ctx, item("S1", []float32{1, 0}, "Shell: 100% Cotton")); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Upsert(ctx, item("S2", []float32{0, 1}, "Shell: 70% Wool")); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Query(ctx, []float32{0, 1}, models.SparseVector{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ID != "S2" {
		t.Fatalf("unexpected ranking: %+v", matches)
	}
	if matches[0].Metadata[models.MetaDescription] != "Shell: 70% Wool" {
		t.Errorf("metadata not returned verbatim: %+v", matches[0].Metadata)
	}

	// Sparse-only query: both items share index 42, S1 has the same sparse vector.
	matches, err = idx.Query(ctx, []float32{0, 0}, models.SparseVector{Indices: []uint32{42}, Values: []float32{2}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Score != 0.5 {
		t.Errorf("sparse score: %+v", matches)
	}

	got, err := idx.Fetch(ctx, []string{"S1", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["S1"] == nil {
		t.Fatalf("fetch: %+v", got)
	}
	if got["S1"].Dense[0] != 1 || got["S1"].Sparse.Len() != 2 {
		t.Errorf("fetched item differs: %+v", got["S1"])
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Count != 2 || stats.Dimension != 2 || stats.Metric != vector.MetricDotProduct {
		t.Errorf("stats: %+v", stats)
	}
}

func TestSQLiteStore_UpsertIdempotent(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	idx, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 2})
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := idx.Upsert(ctx, item("X", []float32{1, 0}, "M1"))
	if err != nil || outcome != vector.UpsertInserted {
		t.Fatalf("first upsert: %v %v", outcome, err)
	}
	outcome, err = idx.Upsert(ctx, item("X", []float32{0, 1}, "M2"))
	if err != nil || outcome != vector.UpsertSkipped {
		t.Fatalf("second upsert: %v %v", outcome, err)
	}

	got, err := idx.Fetch(ctx, []string{"X"})
	if err != nil {
		t.Fatal(err)
	}
	if got["X"].Metadata[models.MetaDescription] != "M1" || got["X"].Dense[0] != 1 {
		t.Errorf("first write should be kept, got %+v", got["X"])
	}
}

func TestSQLiteStore_ConcurrentSameID(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	idx, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 2})
	if err != nil {
		t.Fatal(err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := idx.Upsert(ctx, item("X", []float32{1, 0}, "same"))
			if err != nil {
				t.Error(err)
				return
			}
			if outcome == vector.UpsertInserted {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if inserted != 1 {
		t.Errorf("inserted %d times, want 1", inserted)
	}
}

func TestSQLiteStore_DimensionMismatchRecreates(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	old, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 256})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := old.Upsert(ctx, item("legacy", make([]float32, 256), "old")); err != nil {
		t.Fatal(err)
	}

	idx, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 512})
	if err != nil {
		t.Fatal(err)
	}
	if idx.Dimension() != 512 {
		t.Errorf("dimension = %d, want 512", idx.Dimension())
	}
	got, err := idx.Fetch(ctx, []string{"legacy"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("legacy record should be gone, got %+v", got)
	}
	matches, err := idx.Query(ctx, make([]float32, 512), models.SparseVector{}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("legacy record still queryable: %+v", matches)
	}

	// Same dimension keeps data.
	dense := make([]float32, 512)
	dense[0] = 1
	if _, err := idx.Upsert(ctx, item("new", dense, "new")); err != nil {
		t.Fatal(err)
	}
	again, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 512})
	if err != nil {
		t.Fatal(err)
	}
	stats, err := again.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Count != 1 {
		t.Errorf("count after re-ensure = %d, want 1", stats.Count)
	}
}

func TestSQLiteStore_Validation(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if _, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 2, Metric: "cosine"}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("cosine metric: expected ErrInvalidArgument, got %v", err)
	}
	idx, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Upsert(ctx, item("bad", []float32{1, 0, 0}, "x")); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("wrong dimension upsert: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := idx.Query(ctx, []float32{1, 0}, models.SparseVector{}, 0); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("topK=0: expected ErrInvalidArgument, got %v", err)
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := store.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Upsert(ctx, item("S1", []float32{1, 0}, "kept")); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	idx, err = reopened.EnsureIndex(ctx, vector.IndexSpec{Name: "styles", Dimension: 2})
	if err != nil {
		t.Fatal(err)
	}
	got, err := idx.Fetch(ctx, []string{"S1"})
	if err != nil {
		t.Fatal(err)
	}
	if got["S1"] == nil || got["S1"].Metadata[models.MetaDescription] != "kept" {
		t.Errorf("record not persisted: %+v", got)
	}
}
