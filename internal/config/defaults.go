package config

import "os"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/documents.db"
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = "/usr/local/var/kotae/data/indices/vectors.kidx"
	}
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Provider.EmbeddingModel == "" {
		cfg.Provider.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Provider.ChatModel == "" {
		cfg.Provider.ChatModel = "gpt-4o-mini"
	}
	if cfg.Provider.MaxTokens == 0 {
		cfg.Provider.MaxTokens = 1000
	}
	if cfg.Chunking.MinTokens == 0 {
		cfg.Chunking.MinTokens = 64
	}
	if cfg.Chunking.TargetTokens == 0 {
		cfg.Chunking.TargetTokens = 256
	}
	if cfg.Chunking.MaxTokens == 0 {
		cfg.Chunking.MaxTokens = 512
	}
	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 5
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 100
	}
	if cfg.Retrieval.DedupWindow == 0 {
		cfg.Retrieval.DedupWindow = 3
	}
	if cfg.Retrieval.RecencyHalfLifeDays == 0 {
		cfg.Retrieval.RecencyHalfLifeDays = 30
	}
	if cfg.Retrieval.RecencyFactor == 0 {
		cfg.Retrieval.RecencyFactor = 0.1
	}
	if cfg.Retrieval.DominanceMargin == 0 {
		cfg.Retrieval.DominanceMargin = 0.05
	}
	if cfg.Retrieval.ContextChunks == 0 {
		cfg.Retrieval.ContextChunks = 3
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 16
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
