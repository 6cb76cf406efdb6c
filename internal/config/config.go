// Package config provides configuration loading and structs for the stylematch service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Inventory InventoryConfig `yaml:"inventory"`
	Outreach  OutreachConfig  `yaml:"outreach"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// IndexConfig selects the hybrid index backend and describes the index.
type IndexConfig struct {
	Name           string        `yaml:"name"`
	Dimension      int           `yaml:"dimension"`
	Metric         string        `yaml:"metric"`
	Backend        string        `yaml:"backend"` // memory, sqlite or postgres
	DatabasePath   string        `yaml:"database_path"`
	PostgresDSN    string        `yaml:"postgres_dsn"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// EmbeddingConfig groups the dense and sparse encoders.
type EmbeddingConfig struct {
	Dense  DenseConfig  `yaml:"dense"`
	Sparse SparseConfig `yaml:"sparse"`
}

// DenseConfig holds CLIP/ONNX embedder settings.
type DenseConfig struct {
	Provider        string `yaml:"provider"` // clip or mock
	Model           string `yaml:"model"`
	VisionModelPath string `yaml:"vision_model_path"`
	TextModelPath   string `yaml:"text_model_path"`
	VocabPath       string `yaml:"vocab_path"`
	Dimensions      int    `yaml:"dimensions"`
	MaxTokens       int    `yaml:"max_tokens"`
	ImageSize       int    `yaml:"image_size"`
	CacheSize       int    `yaml:"cache_size"`
}

// SparseConfig holds BM25 parameters. ParamsPath stores the fitted corpus statistics so
// queries encode consistently across restarts.
type SparseConfig struct {
	K1         float64 `yaml:"k1"`
	B          float64 `yaml:"b"`
	HashSpace  uint32  `yaml:"hash_space"`
	ParamsPath string  `yaml:"params_path"`
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	DefaultTopK     int      `yaml:"default_top_k"`
	MaxTopK         int      `yaml:"max_top_k"`
	StyleSimilarity *float64 `yaml:"style_similarity"`
}

// StyleSimilarityOrDefault returns the likeliness weight; defaults to 1 (pure dense) when unset.
func (s *SearchConfig) StyleSimilarityOrDefault() float64 {
	if s.StyleSimilarity != nil {
		return *s.StyleSimilarity
	}
	return 1
}

// InventoryConfig describes the inventory feed and how it is ingested.
type InventoryConfig struct {
	Path             string  `yaml:"path"`
	ImageRoot        string  `yaml:"image_root"`
	Workers          int     `yaml:"workers"`
	UpsertsPerSecond float64 `yaml:"upserts_per_second"` // 0 disables throttling
	Burst            int     `yaml:"burst"`
}

// OutreachConfig holds the language model and email composition settings.
type OutreachConfig struct {
	BaseURL                string        `yaml:"base_url"`
	APIKey                 string        `yaml:"api_key"`
	Model                  string        `yaml:"model"`
	Temperature            float32       `yaml:"temperature"`
	MaxTokens              int           `yaml:"max_tokens"`
	CompanyDescription     string        `yaml:"company_description"`
	CompanyDescriptionPath string        `yaml:"company_description_path"`
	SampleProducts         int           `yaml:"sample_products"`
	FetchTimeout           time.Duration `yaml:"fetch_timeout"`
	MaxPageBytes           int64         `yaml:"max_page_bytes"`
}

// WatchConfig lists inventory files that trigger a re-ingest when they change.
type WatchConfig struct {
	Files    []string      `yaml:"files"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Index.DatabasePath = expandPath(cfg.Index.DatabasePath, configDir)
	cfg.Embedding.Dense.VisionModelPath = expandPath(cfg.Embedding.Dense.VisionModelPath, configDir)
	cfg.Embedding.Dense.TextModelPath = expandPath(cfg.Embedding.Dense.TextModelPath, configDir)
	cfg.Embedding.Dense.VocabPath = expandPath(cfg.Embedding.Dense.VocabPath, configDir)
	cfg.Embedding.Sparse.ParamsPath = expandPath(cfg.Embedding.Sparse.ParamsPath, configDir)
	cfg.Inventory.Path = expandPath(cfg.Inventory.Path, configDir)
	cfg.Inventory.ImageRoot = expandPath(cfg.Inventory.ImageRoot, configDir)
	cfg.Outreach.CompanyDescriptionPath = expandPath(cfg.Outreach.CompanyDescriptionPath, configDir)
	for i := range cfg.Watch.Files {
		cfg.Watch.Files[i] = expandPath(cfg.Watch.Files[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadCompanyDescription returns the inline company description, or the contents of
// company_description_path when the inline value is empty.
func (o *OutreachConfig) LoadCompanyDescription() (string, error) {
	if o.CompanyDescription != "" || o.CompanyDescriptionPath == "" {
		return o.CompanyDescription, nil
	}
	data, err := os.ReadFile(o.CompanyDescriptionPath)
	if err != nil {
		return "", fmt.Errorf("failed to read company description: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
