package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/veravid/veravid/internal/platform/errors"
)

const ticketIssuer = "veravid"

// TicketConfig signs short-lived websocket auth tickets. Websocket clients
// cannot set headers during the upgrade, so the cookie session is traded
// for a ticket first.
type TicketConfig struct {
	Secret string        `env:"VERAVID_WS_TICKET_SECRET"`
	TTL    time.Duration `env:"VERAVID_WS_TICKET_TTL" envDefault:"30s"`
}

// LoadTicketConfigFromEnv reads websocket ticket configuration.
func LoadTicketConfigFromEnv() (TicketConfig, error) {
	var cfg TicketConfig
	if err := env.Parse(&cfg); err != nil {
		return TicketConfig{}, fmt.Errorf("parse ws ticket env: %w", err)
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return TicketConfig{}, fmt.Errorf("VERAVID_WS_TICKET_SECRET is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return cfg, nil
}

func mintTicket(cfg TicketConfig, userID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    ticketIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}
	return signed, nil
}

func parseTicket(cfg TicketConfig, raw string, now func() time.Time) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ticketIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return "", apperrors.EW(apperrors.KindUnauthorized, "invalid websocket ticket", err)
	}
	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return "", apperrors.E(apperrors.KindUnauthorized, "invalid websocket ticket")
	}
	return userID, nil
}
