package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/gcfg"
	"github.com/gogf/gf/v2/os/genv"
	"github.com/joho/godotenv"
)

const (
	// TokenEnv holds the Hugging Face credential used for both embeddings and generation.
	TokenEnv         = "HUGGINGFACEHUB_API_TOKEN"
	TokenEnvFallback = "HF_TOKEN"

	DefaultAddress          = ":8000"
	DefaultEmbeddingModel   = "BAAI/bge-small-en-v1.5"
	DefaultEmbeddingBaseURL = "https://router.huggingface.co/hf-inference/models"
	DefaultChatModel        = "mistralai/Mixtral-8x7B-Instruct-v0.1"
	DefaultChatBaseURL      = "https://router.huggingface.co/v1"
	DefaultIndexPath        = "vector_index"
	DefaultTopK             = 4
)

const (
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
	ProviderQwen        = "qwen"

	IndexTypeLocal    = "local"
	IndexTypeMilvus   = "milvus"
	IndexTypePgvector = "pgvector"
)

type ServerConfig struct {
	Address string `json:"address"`
}

// EmbeddingConfig selects the embedding provider bound to the index.
type EmbeddingConfig struct {
	Provider   string `json:"provider"` // huggingface | openai
	Model      string `json:"model"`
	BaseURL    string `json:"baseURL"`
	Dimensions int    `json:"dimensions"`
	TimeoutSec int    `json:"timeoutSec"`
}

// ChatConfig holds the fixed generation parameters of the LLM client.
type ChatConfig struct {
	Provider          string  `json:"provider"` // openai | qwen
	Model             string  `json:"model"`
	BaseURL           string  `json:"baseURL"`
	MaxTokens         int     `json:"maxTokens"`
	Temperature       float32 `json:"temperature"`
	TopK              int     `json:"topK"`
	RepetitionPenalty float32 `json:"repetitionPenalty"`
	TimeoutSec        int     `json:"timeoutSec"`
}

// IndexConfig describes where the vector index lives and how it is searched.
type IndexConfig struct {
	Type           string  `json:"type"` // local | milvus | pgvector
	Path           string  `json:"path"`
	Metric         string  `json:"metric"`
	TopK           int     `json:"topK"`
	ScoreThreshold float64 `json:"scoreThreshold"`
}

type MilvusConfig struct {
	Address    string `json:"address"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
	Table    string `json:"table"`
}

// IndexerConfig tunes the offline index builder.
type IndexerConfig struct {
	ChunkSize   int `json:"chunkSize"`
	OverlapSize int `json:"overlapSize"`
	BatchSize   int `json:"batchSize"`
	Concurrency int `json:"concurrency"`
}

type MinioConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	UseSSL    bool   `json:"useSSL"`
}

type Config struct {
	APIKey    string
	Server    ServerConfig
	Embedding EmbeddingConfig
	Chat      ChatConfig
	Index     IndexConfig
	Milvus    MilvusConfig
	Postgres  PostgresConfig
	Indexer   IndexerConfig
	Minio     MinioConfig
}

// Default returns the configuration the service runs with when config.yaml is silent.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Address: DefaultAddress},
		Embedding: EmbeddingConfig{
			Provider:   ProviderHuggingFace,
			Model:      DefaultEmbeddingModel,
			BaseURL:    DefaultEmbeddingBaseURL,
			Dimensions: 384,
			TimeoutSec: 60,
		},
		Chat: ChatConfig{
			Provider:          ProviderOpenAI,
			Model:             DefaultChatModel,
			BaseURL:           DefaultChatBaseURL,
			MaxTokens:         512,
			Temperature:       0.1,
			TopK:              30,
			RepetitionPenalty: 1.03,
			TimeoutSec:        120,
		},
		Index: IndexConfig{
			Type:   IndexTypeLocal,
			Path:   DefaultIndexPath,
			Metric: "L2",
			TopK:   DefaultTopK,
		},
		Milvus: MilvusConfig{
			Database:   "default",
			Collection: "textverse_chunks",
		},
		Postgres: PostgresConfig{
			Port:    "5432",
			SSLMode: "disable",
			Table:   "textverse_chunks",
		},
		Indexer: IndexerConfig{
			ChunkSize:   1000,
			OverlapSize: 200,
			BatchSize:   32,
			Concurrency: 4,
		},
	}
}

// Load reads .env, the credential from the environment and config.yaml through g.Cfg().
func Load(ctx context.Context) (*Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	if !g.Cfg().Available(ctx) {
		g.Log().Warning(ctx, "No config.yaml found, running with built-in defaults")
		c := Default()
		c.APIKey = apiKeyFromEnv()
		return c, nil
	}
	return LoadFrom(ctx, g.Cfg())
}

// LoadFrom builds the configuration from cfg on top of Default.
func LoadFrom(ctx context.Context, cfg *gcfg.Config) (*Config, error) {
	c := Default()
	c.APIKey = apiKeyFromEnv()

	sections := []struct {
		key string
		dst interface{}
	}{
		{"server", &c.Server},
		{"embedding", &c.Embedding},
		{"chat", &c.Chat},
		{"index", &c.Index},
		{"milvus", &c.Milvus},
		{"postgres", &c.Postgres},
		{"indexer", &c.Indexer},
		{"minio", &c.Minio},
	}
	for _, s := range sections {
		v, err := cfg.Get(ctx, s.key)
		if err != nil {
			return nil, fmt.Errorf("read config section %q: %w", s.key, err)
		}
		if v == nil || v.IsNil() {
			continue
		}
		if err = v.Scan(s.dst); err != nil {
			return nil, fmt.Errorf("parse config section %q: %w", s.key, err)
		}
	}
	c.Index.Type = strings.ToLower(c.Index.Type)
	c.Index.Metric = strings.ToUpper(c.Index.Metric)
	return c, nil
}

func apiKeyFromEnv() string {
	if v := genv.Get(TokenEnv).String(); v != "" {
		return v
	}
	return genv.Get(TokenEnvFallback).String()
}

// ValidateConfiguration validates all required configuration items
func ValidateConfiguration(ctx context.Context, c *Config) error {
	var missingConfigs []string
	var warnings []string

	if c.APIKey == "" {
		// 不阻止启动，远端调用会在请求时失败并返回道歉
		warnings = append(warnings, TokenEnv+" is not set, Hugging Face calls will be unauthenticated")
	}
	if c.Embedding.Model == "" {
		missingConfigs = append(missingConfigs, "embedding.model")
	}
	if c.Embedding.BaseURL == "" {
		missingConfigs = append(missingConfigs, "embedding.baseURL")
	}
	if c.Chat.Model == "" {
		missingConfigs = append(missingConfigs, "chat.model")
	}
	if c.Chat.BaseURL == "" {
		missingConfigs = append(missingConfigs, "chat.baseURL")
	}
	if c.Chat.MaxTokens <= 0 {
		missingConfigs = append(missingConfigs, "chat.maxTokens (must be positive)")
	}
	if c.Index.TopK <= 0 {
		missingConfigs = append(missingConfigs, "index.topK (must be positive)")
	}

	switch c.Index.Type {
	case IndexTypeLocal:
		if c.Index.Path == "" {
			missingConfigs = append(missingConfigs, "index.path")
		}
	case IndexTypeMilvus:
		if c.Milvus.Address == "" {
			missingConfigs = append(missingConfigs, "milvus.address")
		}
	case IndexTypePgvector:
		if c.Postgres.Host == "" {
			missingConfigs = append(missingConfigs, "postgres.host")
		}
		if c.Postgres.User == "" {
			missingConfigs = append(missingConfigs, "postgres.user")
		}
		if c.Postgres.Database == "" {
			missingConfigs = append(missingConfigs, "postgres.database")
		}
	default:
		missingConfigs = append(missingConfigs, fmt.Sprintf("index.type (unsupported value %q)", c.Index.Type))
	}

	if c.Embedding.Dimensions <= 0 && c.Index.Type != IndexTypeLocal {
		warnings = append(warnings, "embedding.dimensions is not set, remote vector stores need it to create collections")
	}

	if len(warnings) > 0 {
		g.Log().Warningf(ctx, "Configuration warnings:\n- %s", strings.Join(warnings, "\n- "))
	}

	if len(missingConfigs) > 0 {
		return fmt.Errorf("missing required configuration items:\n- %s\n\nPlease check your config.yaml file and environment", strings.Join(missingConfigs, "\n- "))
	}

	g.Log().Info(ctx, "✓ All required configuration items are present")
	return nil
}
