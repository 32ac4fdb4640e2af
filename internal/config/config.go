package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds the environment driven configuration for the server and CLI.
type Config struct {
	HTTPAddr string `env:"PADCHAT_HTTP_ADDR" envDefault:":8100"`
	LogLevel string `env:"PADCHAT_LOG_LEVEL" envDefault:"info"`

	// OpenAI-compatible backend
	LLMBaseURL string `env:"PADCHAT_LLM_BASE_URL" envDefault:"http://localhost:11434/v1/"`
	LLMToken   string `env:"OPENAI_API_KEY"`
	LLMModel   string `env:"PADCHAT_LLM_MODEL" envDefault:"llama3.1:8b"`

	// Storage backend selection: sqlite, redis or memory
	Storage    string `env:"PADCHAT_STORAGE" envDefault:"sqlite"`
	SQLitePath string `env:"PADCHAT_SQLITE_PATH" envDefault:"padchat.db"`

	RedisAddr     string        `env:"PADCHAT_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"PADCHAT_REDIS_PASSWORD"`
	RedisDB       int           `env:"PADCHAT_REDIS_DB" envDefault:"0"`
	RedisTTL      time.Duration `env:"PADCHAT_REDIS_TTL" envDefault:"0s"` // 0 keeps keys forever

	ChatTimeout    time.Duration `env:"PADCHAT_CHAT_TIMEOUT" envDefault:"120s"`
	RequestTimeout time.Duration `env:"PADCHAT_REQUEST_TIMEOUT" envDefault:"30s"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	cfg.LLMToken = strings.TrimSpace(cfg.LLMToken)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageSQLite, StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("PADCHAT_STORAGE must be one of sqlite, redis or memory, got %q", c.Storage)
	}
	if c.ChatTimeout <= 0 {
		return fmt.Errorf("PADCHAT_CHAT_TIMEOUT must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("PADCHAT_REQUEST_TIMEOUT must be positive")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("PADCHAT_LOG_LEVEL: %w", err)
	}
	return nil
}

// NewLogger builds a production zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
