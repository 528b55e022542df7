package session

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls the redis-backed session store.
type Config struct {
	RedisURL string        `env:"VERAVID_REDIS_URL"   envDefault:"redis://localhost:6379/0"`
	TTL      time.Duration `env:"VERAVID_SESSION_TTL" envDefault:"24h"`
}

// LoadConfigFromEnv returns session configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{RedisURL: "redis://localhost:6379/0", TTL: 24 * time.Hour}
	}
	return cfg
}
