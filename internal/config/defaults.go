package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 3 * time.Minute
	}

	if cfg.Index.Name == "" {
		cfg.Index.Name = "airry-inventory"
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = 512
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "dotproduct"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "sqlite"
	}
	if cfg.Index.DatabasePath == "" {
		cfg.Index.DatabasePath = "/usr/local/var/stylematch/data/db/inventory.db"
	}
	if cfg.Index.RequestTimeout == 0 {
		cfg.Index.RequestTimeout = 30 * time.Second
	}

	dense := &cfg.Embedding.Dense
	if dense.Provider == "" {
		dense.Provider = "clip"
	}
	if dense.Model == "" {
		dense.Model = "clip-ViT-B-32"
	}
	if dense.VisionModelPath == "" {
		dense.VisionModelPath = "/usr/local/var/stylematch/data/models/clip-vit-b-32-vision.onnx"
	}
	if dense.TextModelPath == "" {
		dense.TextModelPath = "/usr/local/var/stylematch/data/models/clip-vit-b-32-text.onnx"
	}
	if dense.VocabPath == "" {
		dense.VocabPath = "/usr/local/var/stylematch/data/models/bpe_simple_vocab_16e6.txt"
	}
	if dense.Dimensions == 0 {
		dense.Dimensions = cfg.Index.Dimension
	}
	if dense.MaxTokens == 0 {
		dense.MaxTokens = 77
	}
	if dense.ImageSize == 0 {
		dense.ImageSize = 224
	}
	if dense.CacheSize == 0 {
		dense.CacheSize = 10000
	}

	sparse := &cfg.Embedding.Sparse
	if sparse.K1 == 0 {
		sparse.K1 = 1.2
	}
	if sparse.B == 0 {
		sparse.B = 0.75
	}
	if sparse.HashSpace == 0 {
		sparse.HashSpace = 1 << 29
	}
	if sparse.ParamsPath == "" {
		sparse.ParamsPath = "/usr/local/var/stylematch/data/bm25.json"
	}

	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 3
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}

	if cfg.Inventory.Workers == 0 {
		cfg.Inventory.Workers = 4
	}
	if cfg.Inventory.Burst == 0 {
		cfg.Inventory.Burst = 1
	}

	out := &cfg.Outreach
	if out.BaseURL == "" {
		out.BaseURL = "https://api.groq.com/openai/v1"
	}
	if out.Model == "" {
		out.Model = "llama-3.3-70b-versatile"
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 1024
	}
	if out.SampleProducts == 0 {
		out.SampleProducts = 3
	}
	if out.FetchTimeout == 0 {
		out.FetchTimeout = 20 * time.Second
	}
	if out.MaxPageBytes == 0 {
		out.MaxPageBytes = 2 << 20
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
