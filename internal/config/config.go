package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks invalid chunking, retrieval or server parameters.
// Configuration problems are fatal at startup, never retried.
var ErrConfig = errors.New("invalid config")

type RAGConfig struct {
	ChunkSize        int     `yaml:"chunk_size"`
	ChunkOverlap     int     `yaml:"chunk_overlap"`
	TopK             int     `yaml:"top_k"`
	MinScore         float32 `yaml:"min_score"`
	EmbedConcurrency int     `yaml:"embed_concurrency"`
}

type LLMConfig struct {
	Provider            string `yaml:"provider"` // "openai" or "ollama"
	BaseURL             string `yaml:"base_url"`
	APIKey              string `yaml:"api_key"`
	EmbeddingModel      string `yaml:"embedding_model"`
	InferenceModel      string `yaml:"inference_model"`
	EmbedTimeoutSecs    int    `yaml:"embed_timeout_secs"`
	GenerateTimeoutSecs int    `yaml:"generate_timeout_secs"`
}

type IndexConfig struct {
	Backend string `yaml:"backend"` // "memory" or "chromem"
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Mode           string `yaml:"mode"` // gin mode: debug, release, test
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type Config struct {
	RAG    RAGConfig    `yaml:"rag"`
	LLM    LLMConfig    `yaml:"llm"`
	Index  IndexConfig  `yaml:"index"`
	Server ServerConfig `yaml:"server"`
}

const (
	defaultChunkSize      = 1000
	defaultChunkOverlap   = 200
	defaultTopK           = 3
	defaultMinScore       = 0.25
	defaultConcurrency    = 4
	defaultEmbedTimeout   = 30
	defaultGenTimeout     = 60
	defaultMaxUploadBytes = 16 << 20
)

// LoadConfig reads a YAML config from path. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	applyDefaults(cfg)
	// zero is a meaningful value for these two, so an explicit zero in
	// the file must survive the zero-means-unset defaulting above
	var set struct {
		RAG struct {
			ChunkOverlap *int     `yaml:"chunk_overlap"`
			MinScore     *float32 `yaml:"min_score"`
		} `yaml:"rag"`
	}
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if set.RAG.ChunkOverlap != nil {
		cfg.RAG.ChunkOverlap = *set.RAG.ChunkOverlap
	}
	if set.RAG.MinScore != nil {
		cfg.RAG.MinScore = *set.RAG.MinScore
	}
	overrideFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the parameters the pipeline depends on.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrConfig, c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrConfig, c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrConfig, c.RAG.TopK)
	}
	if c.RAG.MinScore < -1 || c.RAG.MinScore > 1 {
		return fmt.Errorf("%w: min_score %v outside [-1, 1]", ErrConfig, c.RAG.MinScore)
	}
	if c.LLM.EmbedTimeoutSecs <= 0 || c.LLM.GenerateTimeoutSecs <= 0 {
		return fmt.Errorf("%w: llm timeouts must be positive", ErrConfig)
	}
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrConfig, c.LLM.Provider)
	}
	switch c.Index.Backend {
	case "memory", "chromem":
	default:
		return fmt.Errorf("%w: unknown index backend %q", ErrConfig, c.Index.Backend)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
		if cfg.RAG.ChunkOverlap == 0 {
			cfg.RAG.ChunkOverlap = defaultChunkOverlap
		}
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.MinScore == 0 {
		cfg.RAG.MinScore = defaultMinScore
	}
	if cfg.RAG.EmbedConcurrency <= 0 {
		cfg.RAG.EmbedConcurrency = defaultConcurrency
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.EmbedTimeoutSecs == 0 {
		cfg.LLM.EmbedTimeoutSecs = defaultEmbedTimeout
	}
	if cfg.LLM.GenerateTimeoutSecs == 0 {
		cfg.LLM.GenerateTimeoutSecs = defaultGenTimeout
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "memory"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = defaultMaxUploadBytes
	}
}

func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("DOCQA_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = key
	}
	if base := os.Getenv("DOCQA_BASE_URL"); base != "" {
		cfg.LLM.BaseURL = base
	}
}
