package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/models"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		cfg      config.IndexConfig
		wantType string
		wantErr  error
	}{
		{"memory", config.IndexConfig{Backend: "memory"}, "memory", nil},
		{"sqlite", config.IndexConfig{Backend: "sqlite", DatabasePath: filepath.Join(t.TempDir(), "x.db")}, "sqlite", nil},
		{"postgres_without_dsn", config.IndexConfig{Backend: "postgres"}, "", models.ErrInvalidArgument},
		{"unknown", config.IndexConfig{Backend: "pinecone"}, "", models.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(ctx, &tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer store.Close()
			if store.Type() != tt.wantType {
				t.Errorf("type = %s, want %s", store.Type(), tt.wantType)
			}
		})
	}
}

func TestSpecFromConfig(t *testing.T) {
	cfg := &config.IndexConfig{Name: "airry", Dimension: 512, Metric: "dotproduct"}
	spec := SpecFromConfig(cfg)
	if err := spec.Normalize(); err != nil {
		t.Fatal(err)
	}
	if spec.Name != "airry" || spec.Dimension != 512 {
		t.Errorf("spec = %+v", spec)
	}
}

func TestValidateHashSpace(t *testing.T) {
	tests := []struct {
		name      string
		backend   string
		hashSpace uint32
		wantErr   bool
	}{
		{"postgres_at_limit", "postgres", uint32(SparseDimensions), false},
		{"postgres_above_limit", "postgres", uint32(SparseDimensions) + 1, true},
		{"sqlite_above_limit", "sqlite", 1 << 31, false},
		{"memory_above_limit", "memory", 1 << 31, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHashSpace(tt.backend, tt.hashSpace)
			if tt.wantErr && !errors.Is(err, models.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
