package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/vector"
)

// SparseDimensions is the declared width of every sparsevec column value.
// Sparse indices must be strictly below it.
const SparseDimensions int32 = 1 << 29

// PostgresStore keeps hybrid indexes in Postgres with the pgvector extension and
// ranks matches server side with the negative inner product operator.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with dsn, installs the vector extension and creates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is empty", models.ErrInvalidArgument)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", models.ErrProvisioning, err)
	}
	if err := initPostgresSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %v", models.ErrProvisioning, err)
	}
	return &PostgresStore{db: db}, nil
}

func initPostgresSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS hybrid_indexes (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			metric TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_records (
			index_name TEXT NOT NULL REFERENCES hybrid_indexes(name) ON DELETE CASCADE,
			id TEXT NOT NULL,
			dense vector NOT NULL,
			sparse sparsevec NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (index_name, id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Type returns the backend identifier.
func (s *PostgresStore) Type() string {
	return "postgres"
}

// EnsureIndex registers the index under a row lock; a dimension change drops its records.
func (s *PostgresStore) EnsureIndex(ctx context.Context, spec vector.IndexSpec) (vector.Index, error) {
	if err := spec.Normalize(); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", models.ErrProvisioning, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO hybrid_indexes (name, dimension, metric) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		spec.Name, spec.Dimension, string(spec.Metric),
	); err != nil {
		return nil, fmt.Errorf("%w: create index %s: %v", models.ErrProvisioning, spec.Name, err)
	}
	var dimension int
	err = tx.QueryRowContext(ctx,
		`SELECT dimension FROM hybrid_indexes WHERE name = $1 FOR UPDATE`, spec.Name).Scan(&dimension)
	if err != nil {
		return nil, fmt.Errorf("%w: describe index %s: %v", models.ErrProvisioning, spec.Name, err)
	}
	if dimension != spec.Dimension {
		if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_records WHERE index_name = $1`, spec.Name); err != nil {
			return nil, fmt.Errorf("%w: drop index %s: %v", models.ErrProvisioning, spec.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE hybrid_indexes SET dimension = $1, metric = $2, created_at = now() WHERE name = $3`,
			spec.Dimension, string(spec.Metric), spec.Name,
		); err != nil {
			return nil, fmt.Errorf("%w: recreate index %s: %v", models.ErrProvisioning, spec.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", models.ErrProvisioning, err)
	}
	return &postgresIndex{db: s.db, spec: spec}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type postgresIndex struct {
	db   *sql.DB
	spec vector.IndexSpec
}

func (x *postgresIndex) Name() string   { return x.spec.Name }
func (x *postgresIndex) Dimension() int { return x.spec.Dimension }

func toPgSparse(v models.SparseVector) (pgvector.SparseVector, error) {
	elements := make(map[int32]float32, v.Len())
	for i, idx := range v.Indices {
		if idx >= uint32(SparseDimensions) {
			return pgvector.SparseVector{}, fmt.Errorf("%w: sparse index %d exceeds %d", models.ErrInvalidArgument, idx, SparseDimensions)
		}
		elements[int32(idx)] = v.Values[i]
	}
	return pgvector.NewSparseVectorFromMap(elements, SparseDimensions), nil
}

func fromPgSparse(v pgvector.SparseVector) models.SparseVector {
	indices := v.Indices()
	out := models.SparseVector{
		Indices: make([]uint32, len(indices)),
		Values:  append([]float32(nil), v.Values()...),
	}
	for i, idx := range indices {
		out.Indices[i] = uint32(idx)
	}
	return out
}

// Upsert inserts the record; ON CONFLICT makes a repeated id a no-op reported as skipped.
func (x *postgresIndex) Upsert(ctx context.Context, item *models.InventoryItem) (vector.UpsertOutcome, error) {
	if err := item.Validate(x.spec.Dimension); err != nil {
		return vector.UpsertInserted, err
	}
	sparse, err := toPgSparse(item.Sparse)
	if err != nil {
		return vector.UpsertInserted, err
	}
	metadataJSON, err := encodeMetadata(item.Metadata)
	if err != nil {
		return vector.UpsertInserted, err
	}
	result, err := x.db.ExecContext(ctx,
		`INSERT INTO inventory_records (index_name, id, dense, sparse, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (index_name, id) DO NOTHING`,
		x.spec.Name, item.ID, pgvector.NewVector(item.Dense), sparse, metadataJSON,
	)
	if err != nil {
		return vector.UpsertInserted, fmt.Errorf("upsert %s: %w", item.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return vector.UpsertInserted, fmt.Errorf("upsert %s: %w", item.ID, err)
	}
	if n == 0 {
		return vector.UpsertSkipped, nil
	}
	return vector.UpsertInserted, nil
}

// Query ranks by dense dot product plus sparse dot product. <#> yields the negated inner product.
func (x *postgresIndex) Query(ctx context.Context, dense []float32, sparse models.SparseVector, topK int) ([]*models.Match, error) {
	if err := vector.ValidateQuery(x.spec.Dimension, dense, sparse, topK); err != nil {
		return nil, err
	}
	sparseQuery, err := toPgSparse(sparse)
	if err != nil {
		return nil, err
	}
	rows, err := x.db.QueryContext(ctx,
		`SELECT id, metadata, -((dense <#> $2) + (sparse <#> $3)) AS score
		 FROM inventory_records
		 WHERE index_name = $1
		 ORDER BY score DESC, id ASC
		 LIMIT $4`,
		x.spec.Name, pgvector.NewVector(dense), sparseQuery, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		var (
			id       string
			metadata []byte
			score    float64
		)
		if err := rows.Scan(&id, &metadata, &score); err != nil {
			return nil, err
		}
		md, err := decodeMetadata(metadata)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		matches = append(matches, &models.Match{ID: id, Score: score, Metadata: md})
	}
	return matches, rows.Err()
}

// Fetch returns stored items by id.
func (x *postgresIndex) Fetch(ctx context.Context, ids []string) (map[string]*models.InventoryItem, error) {
	out := make(map[string]*models.InventoryItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := x.db.QueryContext(ctx,
		`SELECT id, dense, sparse, metadata FROM inventory_records WHERE index_name = $1 AND id = ANY($2)`,
		x.spec.Name, pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id       string
			dense    pgvector.Vector
			sparse   pgvector.SparseVector
			metadata []byte
		)
		if err := rows.Scan(&id, &dense, &sparse, &metadata); err != nil {
			return nil, err
		}
		md, err := decodeMetadata(metadata)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		out[id] = &models.InventoryItem{ID: id, Dense: dense.Slice(), Sparse: fromPgSparse(sparse), Metadata: md}
	}
	return out, rows.Err()
}

// Stats returns the index description and record count.
func (x *postgresIndex) Stats(ctx context.Context) (vector.IndexStats, error) {
	var count int64
	err := x.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_records WHERE index_name = $1`, x.spec.Name).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return vector.IndexStats{}, fmt.Errorf("count records: %w", err)
	}
	return vector.IndexStats{Name: x.spec.Name, Dimension: x.spec.Dimension, Metric: x.spec.Metric, Count: count}, nil
}

var _ vector.Store = (*PostgresStore)(nil)
