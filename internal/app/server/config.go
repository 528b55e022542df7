package server

import (
	"github.com/veravid/veravid/internal/platform/config"
)

// Config holds composition-root settings for the VeraVid server. Service
// level settings (sessions, passkeys, websocket tickets) are loaded by the
// packages that own them.
type Config struct {
	HTTPAddr          string   `env:"VERAVID_HTTP_ADDR" envDefault:":8080"`
	DataDir           string   `env:"VERAVID_DATA_DIR" envDefault:"data"`
	CORSOrigins       []string `env:"VERAVID_CORS_ORIGINS" envSeparator:","`
	TrustProxyHeaders bool     `env:"VERAVID_TRUST_PROXY_HEADERS"`
	NATSURL           string   `env:"VERAVID_NATS_URL"`
}

// LoadConfigFromEnv reads server configuration from environment variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
