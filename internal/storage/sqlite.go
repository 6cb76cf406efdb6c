// Package storage provides durable hybrid index backends (SQLite, Postgres with pgvector)
// behind the vector.Store contract.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/vector"
)

// SQLiteStore persists hybrid indexes in a single SQLite database and scores queries in process.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open(sqliteDriver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: every statement then sees the same database, including ":memory:".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hybrid_indexes (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL,
		metric TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS inventory_records (
		index_name TEXT NOT NULL,
		id TEXT NOT NULL,
		dense BLOB NOT NULL,
		sparse TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (index_name, id)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Type returns the backend identifier.
func (s *SQLiteStore) Type() string {
	return "sqlite"
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// EnsureIndex registers the index, or wipes and re-registers it when the dimension changed.
func (s *SQLiteStore) EnsureIndex(ctx context.Context, spec vector.IndexSpec) (vector.Index, error) {
	if err := spec.Normalize(); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", models.ErrProvisioning, err)
	}
	defer func() { _ = tx.Rollback() }()

	var dimension int
	err = tx.QueryRowContext(ctx, `SELECT dimension FROM hybrid_indexes WHERE name = ?`, spec.Name).Scan(&dimension)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO hybrid_indexes (name, dimension, metric, created_at) VALUES (?, ?, ?, ?)`,
			spec.Name, spec.Dimension, string(spec.Metric), time.Now(),
		); err != nil {
			return nil, fmt.Errorf("%w: create index %s: %v", models.ErrProvisioning, spec.Name, err)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: describe index %s: %v", models.ErrProvisioning, spec.Name, err)
	case dimension != spec.Dimension:
		if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_records WHERE index_name = ?`, spec.Name); err != nil {
			return nil, fmt.Errorf("%w: drop index %s: %v", models.ErrProvisioning, spec.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE hybrid_indexes SET dimension = ?, metric = ?, created_at = ? WHERE name = ?`,
			spec.Dimension, string(spec.Metric), time.Now(), spec.Name,
		); err != nil {
			return nil, fmt.Errorf("%w: recreate index %s: %v", models.ErrProvisioning, spec.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", models.ErrProvisioning, err)
	}
	return &sqliteIndex{db: s.db, spec: spec}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteIndex struct {
	db   *sql.DB
	spec vector.IndexSpec
}

func (x *sqliteIndex) Name() string   { return x.spec.Name }
func (x *sqliteIndex) Dimension() int { return x.spec.Dimension }

// Upsert inserts the record in one statement; the primary key makes a repeated id a no-op.
func (x *sqliteIndex) Upsert(ctx context.Context, item *models.InventoryItem) (vector.UpsertOutcome, error) {
	if err := item.Validate(x.spec.Dimension); err != nil {
		return vector.UpsertInserted, err
	}
	sparseJSON, err := json.Marshal(item.Sparse)
	if err != nil {
		return vector.UpsertInserted, fmt.Errorf("failed to marshal sparse vector: %w", err)
	}
	metadataJSON, err := encodeMetadata(item.Metadata)
	if err != nil {
		return vector.UpsertInserted, err
	}
	result, err := x.db.ExecContext(ctx,
		`INSERT INTO inventory_records (index_name, id, dense, sparse, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (index_name, id) DO NOTHING`,
		x.spec.Name, item.ID, float32SliceToBytes(item.Dense), string(sparseJSON), metadataJSON, time.Now(),
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

// Query loads every record of the index and ranks it with the dotproduct hybrid metric.
func (x *sqliteIndex) Query(ctx context.Context, dense []float32, sparse models.SparseVector, topK int) ([]*models.Match, error) {
	if err := vector.ValidateQuery(x.spec.Dimension, dense, sparse, topK); err != nil {
		return nil, err
	}
	items, err := x.scan(ctx, `SELECT id, dense, sparse, metadata FROM inventory_records WHERE index_name = ?`, x.spec.Name)
	if err != nil {
		return nil, err
	}
	sparseQuery := sparse.Map()
	candidates := make([]*models.Match, 0, len(items))
	for _, item := range items {
		candidates = append(candidates, &models.Match{
			ID:       item.ID,
			Score:    vector.HybridScore(dense, sparseQuery, item),
			Metadata: item.Metadata,
		})
	}
	return vector.TopMatches(candidates, topK), nil
}

// Fetch returns stored items by id.
func (x *sqliteIndex) Fetch(ctx context.Context, ids []string) (map[string]*models.InventoryItem, error) {
	out := make(map[string]*models.InventoryItem, len(ids))
	for _, id := range ids {
		items, err := x.scan(ctx,
			`SELECT id, dense, sparse, metadata FROM inventory_records WHERE index_name = ? AND id = ?`,
			x.spec.Name, id)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			out[item.ID] = item
		}
	}
	return out, nil
}

// Stats returns the index description and record count.
func (x *sqliteIndex) Stats(ctx context.Context) (vector.IndexStats, error) {
	var count int64
	err := x.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_records WHERE index_name = ?`, x.spec.Name).Scan(&count)
	if err != nil {
		return vector.IndexStats{}, fmt.Errorf("count records: %w", err)
	}
	return vector.IndexStats{Name: x.spec.Name, Dimension: x.spec.Dimension, Metric: x.spec.Metric, Count: count}, nil
}

func (x *sqliteIndex) scan(ctx context.Context, query string, args ...interface{}) ([]*models.InventoryItem, error) {
	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var items []*models.InventoryItem
	for rows.Next() {
		var (
			id           string
			denseBlob    []byte
			sparseJSON   string
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&id, &denseBlob, &sparseJSON, &metadataJSON); err != nil {
			return nil, err
		}
		dense, err := bytesToFloat32Slice(denseBlob)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		var sparse models.SparseVector
		if err := json.Unmarshal([]byte(sparseJSON), &sparse); err != nil {
			return nil, fmt.Errorf("record %s: failed to unmarshal sparse vector: %w", id, err)
		}
		md, err := decodeMetadata([]byte(metadataJSON.String))
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		items = append(items, &models.InventoryItem{ID: id, Dense: dense, Sparse: sparse, Metadata: md})
	}
	return items, rows.Err()
}

var _ vector.Store = (*SQLiteStore)(nil)
