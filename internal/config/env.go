package config

import "os"

// ApplyEnv overrides cfg with values from the process environment.
// OPENAI_* settings apply first; GROQ_* settings win when both are present.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("INDEX_NAME"); v != "" {
		cfg.Index.Name = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Index.PostgresDSN = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Dense.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Outreach.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Outreach.APIKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.Outreach.APIKey = v
	}
	if v := os.Getenv("GROQ_MODEL_NAME_1"); v != "" {
		cfg.Outreach.Model = v
	}
}
