// Package config содержит логику чтения конфигурации сервиса учёта расходов.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса учёта расходов.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	LogLevel      string `env:"LOG_LEVEL"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	OpenAIEndpoint   string `env:"OPENAI_ENDPOINT"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIDeployment string `env:"OPENAI_DEPLOYMENT" envDefault:"gpt-4o"`
	OpenAIAPIVersion string `env:"OPENAI_API_VERSION"`
	OpenAIRetryMax   int    `env:"OPENAI_RETRY_MAX" envDefault:"2"`

	ChatMaxRounds    int           `env:"CHAT_MAX_ROUNDS" envDefault:"5"`
	ChatRoundTimeout time.Duration `env:"CHAT_ROUND_TIMEOUT" envDefault:"30s"`

	DefaultUserID     int64  `env:"DEFAULT_USER_ID" envDefault:"1"`
	DefaultReviewerID int64  `env:"DEFAULT_REVIEWER_ID" envDefault:"2"`
	ActorSecret       string `env:"ACTOR_SECRET"`
}

// ChatConfigured сообщает, задан ли адрес языковой модели.
func (c *Config) ChatConfigured() bool {
	return c.OpenAIEndpoint != ""
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envLogLevel := cfg.LogLevel
	envOpenAIEndpoint := cfg.OpenAIEndpoint
	envRunMigrations := cfg.RunMigrations
	_, migrationsFromEnv := os.LookupEnv("RUN_MIGRATIONS")

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")
	flag.StringVar(&cfg.OpenAIEndpoint, "o", "", "language model endpoint")
	flag.BoolVar(&cfg.RunMigrations, "m", true, "apply database migrations on start")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envLogLevel != "" {
		cfg.LogLevel = envLogLevel
	}
	if envOpenAIEndpoint != "" {
		cfg.OpenAIEndpoint = envOpenAIEndpoint
	}
	if migrationsFromEnv {
		cfg.RunMigrations = envRunMigrations
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ChatMaxRounds <= 0 {
		return nil, fmt.Errorf("CHAT_MAX_ROUNDS must be positive, got %d", cfg.ChatMaxRounds)
	}
	if cfg.ChatRoundTimeout <= 0 {
		return nil, fmt.Errorf("CHAT_ROUND_TIMEOUT must be positive, got %s", cfg.ChatRoundTimeout)
	}
	if cfg.DefaultUserID < 0 || cfg.DefaultReviewerID < 0 {
		return nil, fmt.Errorf("default actor ids must not be negative")
	}

	return cfg, nil
}
