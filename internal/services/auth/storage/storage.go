package storage

import (
	"context"
	"time"

	"github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/services/auth/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.EK(errors.KindNotFound, "storage.not_found", "record not found")

// UserStore persists account records.
type UserStore interface {
	PutUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
	ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
	SetAuthApproved(ctx context.Context, userID string, approved bool, updatedAt time.Time) error
}

// Credential stores one WebAuthn credential owned by exactly one reviewer.
// CredentialID is the authenticator-assigned raw ID in unpadded URL-safe
// base64 and is globally unique.
type Credential struct {
	CredentialID   string
	UserID         string
	PublicKey      []byte
	SignCount      uint32
	Transports     []string
	BackupEligible bool
	BackupState    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastUsedAt     *time.Time
}

// CounterUpdate records the outcome of a successful assertion.
type CounterUpdate struct {
	CredentialID string
	SignCount    uint32
	BackupState  bool
	LastUsedAt   time.Time
}

// CredentialStore persists WebAuthn credentials.
type CredentialStore interface {
	PutCredential(ctx context.Context, credential Credential) error
	GetCredential(ctx context.Context, credentialID string) (Credential, error)
	ListCredentials(ctx context.Context, userID string) ([]Credential, error)
	DeleteCredential(ctx context.Context, credentialID string) error
	// UpdateCounter persists the library-reported counter after a successful
	// assertion, unconditionally, even when the value did not advance.
	UpdateCounter(ctx context.Context, update CounterUpdate) error
}
