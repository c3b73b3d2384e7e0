package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	BackendBaseURL string        `env:"BACKEND_BASE_URL,required,notEmpty"`
	BackendAPIKey  string        `env:"BACKEND_API_KEY"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`

	// Empty RedisAddr falls back to the in-process registry, which does not
	// survive a restart.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	CostPerMinuteCoins int64 `env:"COST_PER_MINUTE_COINS" envDefault:"10"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
