package passkey

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/veravid/veravid/internal/platform/branding"
)

// Config controls WebAuthn relying party settings. When RPID is unset the
// relying party is derived from the inbound request instead.
type Config struct {
	RPDisplayName string   `env:"VERAVID_WEBAUTHN_RP_DISPLAY_NAME"`
	RPID          string   `env:"VERAVID_WEBAUTHN_RP_ID"`
	RPOrigins     []string `env:"VERAVID_WEBAUTHN_RP_ORIGINS" envSeparator:","`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{RPDisplayName: branding.AppName}
	}
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = branding.AppName
	}
	return cfg
}

// RelyingParty identifies the WebAuthn relying party for one ceremony.
type RelyingParty struct {
	ID          string
	DisplayName string
	Origins     []string
}

// RelyingParty resolves relying party identity for a request. Env overrides
// pin the values; otherwise the request's host and origin are authoritative.
func (c Config) RelyingParty(host, origin string) RelyingParty {
	rp := RelyingParty{DisplayName: c.RPDisplayName}
	if rp.DisplayName == "" {
		rp.DisplayName = branding.AppName
	}

	rp.ID = strings.TrimSpace(c.RPID)
	if rp.ID == "" {
		rp.ID = hostWithoutPort(host)
	}

	if len(c.RPOrigins) > 0 {
		rp.Origins = c.RPOrigins
	} else if origin != "" {
		rp.Origins = []string{origin}
	}
	return rp
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if idx := strings.LastIndex(host, ":"); idx >= 0 && !strings.Contains(host[idx:], "]") {
		return host[:idx]
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
