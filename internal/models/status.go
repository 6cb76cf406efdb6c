package models

// Status describes the inventory index and the settings it was opened with.
type Status struct {
	Index          string        `json:"index"`
	Backend        string        `json:"backend"`
	Dimension      int           `json:"dimension"`
	Metric         string        `json:"metric"`
	Records        int64         `json:"records"`
	DiskUsageBytes *int64        `json:"disk_usage_bytes,omitempty"`
	Config         *StatusConfig `json:"config,omitempty"`
}

// StatusConfig is the configuration subset reported by status.
type StatusConfig struct {
	DenseProvider   string   `json:"dense_provider"`
	DenseModel      string   `json:"dense_model,omitempty"`
	SparseHashSpace uint32   `json:"sparse_hash_space"`
	DefaultTopK     int      `json:"default_top_k"`
	StyleSimilarity float64  `json:"style_similarity"`
	DatabasePath    string   `json:"database_path,omitempty"`
	LanguageModel   string   `json:"language_model,omitempty"`
	WatchedFiles    []string `json:"watched_files,omitempty"`
}
