// Package config loads the application configuration from YAML with
// environment-variable resolution for secrets.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
	HistoryLimit  int    `yaml:"history_limit"`
	TrustedHeader string `yaml:"trusted_header"`
}

// StorageConfig configures the BadgerDB store.
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// QdrantConfig contains connection details for a Qdrant vector index.
// Type "memory" in VectorConfig skips Qdrant entirely.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Collection string `yaml:"collection"`
}

// VectorConfig selects and configures the vector index implementation.
type VectorConfig struct {
	Type      string        `yaml:"type"` // "qdrant" or "memory"
	Dimension int           `yaml:"dimension"`
	Qdrant    *QdrantConfig `yaml:"qdrant,omitempty"`
}

// AIConfig configures the embedding and completion endpoints.
type AIConfig struct {
	EmbeddingHost   string `yaml:"embedding_host"`
	CompletionHost  string `yaml:"completion_host"`
	EmbeddingModel  string `yaml:"embedding_model"`
	CompletionModel string `yaml:"completion_model"`
	APIKeyEnv       string `yaml:"api_key_env"`
}

// ChunkingConfig configures the text splitter.
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// RetrievalConfig configures retrieval limits.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// IngestionConfig configures the ingestion pipeline.
type IngestionConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// ParserConfig configures the external parsing service.
type ParserConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Vector    VectorConfig    `yaml:"vector"`
	AI        AIConfig        `yaml:"ai"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Parser    ParserConfig    `yaml:"parser"`
}

// Load reads a config from the given path. A missing file returns
// defaults; a present file is merged over them.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:         ":8080",
			MaxUploadMB:  10,
			HistoryLimit: 50,
		},
		Storage: StorageConfig{
			Path: "data/corpusqa",
		},
		Vector: VectorConfig{
			Type:      "memory",
			Dimension: 1536,
		},
		AI: AIConfig{
			EmbeddingHost:   "https://api.openai.com/v1",
			CompletionHost:  "https://api.openai.com/v1",
			EmbeddingModel:  "text-embedding-3-small",
			CompletionModel: "gpt-4o-mini",
			APIKeyEnv:       "OPENAI_API_KEY",
		},
		Chunking: ChunkingConfig{
			ChunkSize: 1000,
			Overlap:   200,
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Ingestion: IngestionConfig{
			PoolSize: 4,
		},
		Parser: ParserConfig{
			APIKeyEnv: "LLAMA_CLOUD_API_KEY",
		},
	}
}

func applyDefaults(cfg *AppConfig) {
	defaults := Default()

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = defaults.Server.MaxUploadMB
	}
	if cfg.Server.HistoryLimit == 0 {
		cfg.Server.HistoryLimit = defaults.Server.HistoryLimit
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaults.Storage.Path
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = defaults.Vector.Type
	}
	if cfg.Vector.Dimension == 0 {
		cfg.Vector.Dimension = defaults.Vector.Dimension
	}
	if cfg.AI.EmbeddingHost == "" {
		cfg.AI.EmbeddingHost = defaults.AI.EmbeddingHost
	}
	if cfg.AI.CompletionHost == "" {
		cfg.AI.CompletionHost = defaults.AI.CompletionHost
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = defaults.AI.EmbeddingModel
	}
	if cfg.AI.CompletionModel == "" {
		cfg.AI.CompletionModel = defaults.AI.CompletionModel
	}
	if cfg.AI.APIKeyEnv == "" {
		cfg.AI.APIKeyEnv = defaults.AI.APIKeyEnv
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = defaults.Chunking.ChunkSize
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = defaults.Chunking.Overlap
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = defaults.Retrieval.TopK
	}
	if cfg.Ingestion.PoolSize == 0 {
		cfg.Ingestion.PoolSize = defaults.Ingestion.PoolSize
	}
	if cfg.Parser.APIKeyEnv == "" {
		cfg.Parser.APIKeyEnv = defaults.Parser.APIKeyEnv
	}
}

// Validate checks cross-field consistency.
func (cfg *AppConfig) Validate() error {
	switch cfg.Vector.Type {
	case "memory":
	case "qdrant":
		if cfg.Vector.Qdrant == nil || cfg.Vector.Qdrant.URL == "" {
			return errors.New("vector type qdrant requires a qdrant url")
		}
		if cfg.Vector.Qdrant.Collection == "" {
			return errors.New("vector type qdrant requires a collection name")
		}
	default:
		return fmt.Errorf("unknown vector type %q", cfg.Vector.Type)
	}

	if cfg.Chunking.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}
	if cfg.Chunking.Overlap < 0 {
		return errors.New("overlap cannot be negative")
	}
	if cfg.Chunking.Overlap >= cfg.Chunking.ChunkSize {
		return errors.New("overlap must be smaller than chunk size")
	}
	return nil
}

// AIAPIKey resolves the AI API key from the configured environment variable.
func (cfg *AppConfig) AIAPIKey() string {
	return os.Getenv(cfg.AI.APIKeyEnv)
}

// ParserAPIKey resolves the parsing service API key.
func (cfg *AppConfig) ParserAPIKey() string {
	return os.Getenv(cfg.Parser.APIKeyEnv)
}

// QdrantAPIKey resolves the Qdrant API key.
func (cfg *AppConfig) QdrantAPIKey() string {
	if cfg.Vector.Qdrant == nil || cfg.Vector.Qdrant.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(cfg.Vector.Qdrant.APIKeyEnv)
}
