// Package config содержит логику чтения конфигурации маркетплейса изображений.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// DefaultMaxUploadBytes ограничивает размер загружаемого файла (2 МиБ).
const DefaultMaxUploadBytes int64 = 2 << 20

// Config содержит параметры конфигурации маркетплейса изображений.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	DatabaseURI    string `env:"DATABASE_URI"`
	AuthSecret     string `env:"AUTH_SECRET"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAuthSecret := cfg.AuthSecret
	envMaxUploadBytes := cfg.MaxUploadBytes

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for auth cookies")
	flag.Int64Var(&cfg.MaxUploadBytes, "u", DefaultMaxUploadBytes, "maximum upload size in bytes")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envMaxUploadBytes != 0 {
		cfg.MaxUploadBytes = envMaxUploadBytes
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	return cfg, nil
}
