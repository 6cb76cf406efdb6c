package vector

import (
	"context"
	"sync"

	"github.com/airrygarments/stylematch/internal/models"
)

// MemoryStore keeps indexes in process memory and scores queries by brute force.
// Suitable for tests, demos, and catalogs of a few thousand styles.
type MemoryStore struct {
	mu      sync.Mutex
	indexes map[string]*MemoryIndex
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indexes: make(map[string]*MemoryIndex)}
}

// Type returns the backend identifier.
func (s *MemoryStore) Type() string {
	return "memory"
}

// EnsureIndex returns the named index, creating it or recreating it on dimension mismatch.
func (s *MemoryStore) EnsureIndex(ctx context.Context, spec IndexSpec) (Index, error) {
	if err := spec.Normalize(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indexes[spec.Name]; ok && idx.dimension == spec.Dimension {
		return idx, nil
	}
	idx := newMemoryIndex(spec)
	s.indexes[spec.Name] = idx
	return idx, nil
}

// Close drops every index.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = make(map[string]*MemoryIndex)
	return nil
}

// MemoryIndex is one in-memory hybrid index.
type MemoryIndex struct {
	name      string
	dimension int
	metric    Metric
	mu        sync.RWMutex
	ids       []string
	items     map[string]*models.InventoryItem
}

func newMemoryIndex(spec IndexSpec) *MemoryIndex {
	return &MemoryIndex{
		name:      spec.Name,
		dimension: spec.Dimension,
		metric:    spec.Metric,
		items:     make(map[string]*models.InventoryItem),
	}
}

// Name returns the index name.
func (m *MemoryIndex) Name() string { return m.name }

// Dimension returns the dense dimension.
func (m *MemoryIndex) Dimension() int { return m.dimension }

// Upsert stores a copy of item unless its id is already present.
// The existence check and the write happen under one lock.
func (m *MemoryIndex) Upsert(ctx context.Context, item *models.InventoryItem) (UpsertOutcome, error) {
	if err := item.Validate(m.dimension); err != nil {
		return UpsertInserted, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[item.ID]; exists {
		return UpsertSkipped, nil
	}
	m.items[item.ID] = cloneItem(item)
	m.ids = append(m.ids, item.ID)
	return UpsertInserted, nil
}

// Query scores every record with the dotproduct hybrid metric.
func (m *MemoryIndex) Query(ctx context.Context, dense []float32, sparse models.SparseVector, topK int) ([]*models.Match, error) {
	if err := ValidateQuery(m.dimension, dense, sparse, topK); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sparseQuery := sparse.Map()
	m.mu.RLock()
	candidates := make([]*models.Match, 0, len(m.ids))
	for _, id := range m.ids {
		item := m.items[id]
		candidates = append(candidates, &models.Match{
			ID:       id,
			Score:    HybridScore(dense, sparseQuery, item),
			Metadata: cloneMetadata(item.Metadata),
		})
	}
	m.mu.RUnlock()
	return TopMatches(candidates, topK), nil
}

// Fetch returns copies of the stored items for ids.
func (m *MemoryIndex) Fetch(ctx context.Context, ids []string) (map[string]*models.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*models.InventoryItem, len(ids))
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out[id] = cloneItem(item)
		}
	}
	return out, nil
}

// Stats returns the index description and record count.
func (m *MemoryIndex) Stats(ctx context.Context) (IndexStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return IndexStats{Name: m.name, Dimension: m.dimension, Metric: m.metric, Count: int64(len(m.ids))}, nil
}

func cloneItem(item *models.InventoryItem) *models.InventoryItem {
	dense := make([]float32, len(item.Dense))
	copy(dense, item.Dense)
	return &models.InventoryItem{
		ID:       item.ID,
		Dense:    dense,
		Sparse:   item.Sparse.Clone(),
		Metadata: cloneMetadata(item.Metadata),
	}
}

func cloneMetadata(md models.Metadata) models.Metadata {
	if md == nil {
		return nil
	}
	out := make(models.Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
var _ Index = (*MemoryIndex)(nil)

