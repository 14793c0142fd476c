// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
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
	Port        int `yaml:"port"`
	MetricsPort int `yaml:"metrics_port"`
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

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicKey    string `yaml:"anthropic_key"`
	AnthropicURL    string `yaml:"anthropic_base_url"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	DefaultModel    string `yaml:"default_model"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent AI calls
}

type OCRConfig struct {
	VisionKey   string `yaml:"vision_key"`
	OCRSpaceKey string `yaml:"ocrspace_key"`
}

type StorageConfig struct {
	URL    string `yaml:"url"` // base URL of the storage API
	Key    string `yaml:"key"`
	Bucket string `yaml:"bucket"`
}

type AuthConfig struct {
	URL        string        `yaml:"url"` // identity provider base URL
	APIKey     string        `yaml:"api_key"`
	JWTSecret  string        `yaml:"jwt_secret"` // HS256 secret for local validation
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	SweepEvery time.Duration `yaml:"sweep_every"`
}

type PipelineConfig struct {
	Workers               int           `yaml:"workers"`
	QueueSize             int           `yaml:"queue_size"`
	MaxRetries            int           `yaml:"max_retries"`
	BaseDelay             time.Duration `yaml:"base_delay"`
	MaxGenerateImages     int           `yaml:"max_generate_images"`
	MaxDebugImages        int           `yaml:"max_debug_images"`
	ContinueWithoutAssets *bool         `yaml:"continue_without_assets"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	OCR      OCRConfig      `yaml:"ocr"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Pipeline PipelineConfig `yaml:"pipeline"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.MetricsPort <= 0 {
		cfg.API.MetricsPort = 9090
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 2048
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Auth.RefreshTTL <= 0 {
		cfg.Auth.RefreshTTL = 30 * time.Second
	}
	if cfg.Auth.SweepEvery <= 0 {
		cfg.Auth.SweepEvery = 5 * time.Minute
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 8
	}
	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = cfg.Pipeline.Workers * 4
	}
	if cfg.Pipeline.MaxRetries <= 0 {
		cfg.Pipeline.MaxRetries = 3
	}
	if cfg.Pipeline.BaseDelay <= 0 {
		cfg.Pipeline.BaseDelay = time.Second
	}
	if cfg.Pipeline.MaxGenerateImages <= 0 {
		cfg.Pipeline.MaxGenerateImages = 3
	}
	if cfg.Pipeline.MaxDebugImages <= 0 {
		cfg.Pipeline.MaxDebugImages = 2
	}
	if cfg.Pipeline.ContinueWithoutAssets == nil {
		t := true
		cfg.Pipeline.ContinueWithoutAssets = &t
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Storage.URL == "" {
		return nil, errors.New("storage.url is required")
	}
	if cfg.Auth.URL == "" {
		return nil, errors.New("auth.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
