package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"docs-ingestion-service/internal/resilience"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type APIConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"` // static bearer token; empty disables auth
	JWTSecret string `yaml:"jwt_secret"` // enables JWT session auth when set
	RateLimit struct {
		RequestsPerMinute int  `yaml:"requests_per_minute"`
		Enabled           bool `yaml:"enabled"`
	} `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai | gemini | http | noop
	OpenAIKey  string `yaml:"openai_key"`
	GeminiKey  string `yaml:"gemini_key"`
	BaseURL    string `yaml:"base_url"` // OpenAI-compatible endpoint for provider=http
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

type ChunkerConfig struct {
	MaxTokens    int `yaml:"max_tokens"`
	OverlapSize  int `yaml:"overlap_size"`
	MinChunkSize int `yaml:"min_chunk_size"`
}

type PipelineConfig struct {
	Workers          int                    `yaml:"workers"`
	PollInterval     time.Duration          `yaml:"poll_interval"`
	JobTimeout       time.Duration          `yaml:"job_timeout"`
	FetchTimeout     time.Duration          `yaml:"fetch_timeout"`
	BatchPacing      time.Duration          `yaml:"batch_pacing"`
	Retry            resilience.RetryPolicy `yaml:"retry"`
	BreakerThreshold int                    `yaml:"breaker_threshold"`
	BreakerReset     time.Duration          `yaml:"breaker_reset"`
	Degradation      *bool                  `yaml:"degradation"` // nil means enabled
}

type MemoryConfig struct {
	MaxHeapMB        int           `yaml:"max_heap_mb"`
	DefaultBatchSize int           `yaml:"default_batch_size"`
	MinBatchSize     int           `yaml:"min_batch_size"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

type CleanupConfig struct {
	Interval      time.Duration `yaml:"interval"` // zero disables the worker
	OlderThanDays int           `yaml:"older_than_days"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Memory    MemoryConfig    `yaml:"memory"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes and defaults a raw yaml document. Split from LoadConfig so
// tests can feed documents without touching flags or the filesystem.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	switch cfg.Embedding.Provider {
	case "openai", "gemini", "http", "noop":
	default:
		return nil, fmt.Errorf("embedding.provider %q is not one of openai|gemini|http|noop", cfg.Embedding.Provider)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.RateLimit.RequestsPerMinute <= 0 {
		cfg.API.RateLimit.RequestsPerMinute = 60
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = 1536
	}

	if cfg.Chunker.MaxTokens <= 0 {
		cfg.Chunker.MaxTokens = 512
	}
	if cfg.Chunker.OverlapSize < 0 {
		cfg.Chunker.OverlapSize = 0
	}

	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.PollInterval <= 0 {
		cfg.Pipeline.PollInterval = 2 * time.Second
	}
	if cfg.Pipeline.JobTimeout <= 0 {
		cfg.Pipeline.JobTimeout = 10 * time.Minute
	}
	if cfg.Pipeline.FetchTimeout <= 0 {
		cfg.Pipeline.FetchTimeout = 30 * time.Second
	}
	if cfg.Pipeline.Retry.BackoffMultiplier <= 0 {
		cfg.Pipeline.Retry = resilience.DefaultRetryPolicy()
	}
	if cfg.Pipeline.BreakerThreshold <= 0 {
		cfg.Pipeline.BreakerThreshold = 5
	}
	if cfg.Pipeline.BreakerReset <= 0 {
		cfg.Pipeline.BreakerReset = 30 * time.Second
	}

	if cfg.Memory.MaxHeapMB <= 0 {
		cfg.Memory.MaxHeapMB = 1024
	}
	if cfg.Memory.DefaultBatchSize <= 0 {
		cfg.Memory.DefaultBatchSize = 32
	}
	if cfg.Memory.MinBatchSize <= 0 {
		cfg.Memory.MinBatchSize = 1
	}

	if cfg.Cleanup.OlderThanDays <= 0 {
		cfg.Cleanup.OlderThanDays = 30
	}
}

// DegradationEnabled interprets the optional toggle; absent means on.
func (p PipelineConfig) DegradationEnabled() bool {
	return p.Degradation == nil || *p.Degradation
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
