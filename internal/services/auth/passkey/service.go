package passkey

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	apperrors "github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/services/auth/domain"
	"github.com/veravid/veravid/internal/services/auth/session"
	"github.com/veravid/veravid/internal/services/auth/storage"
)

var (
	// ErrReviewerOnly indicates a caller without the reviewer role.
	ErrReviewerOnly = apperrors.EK(apperrors.KindForbidden, "passkey.reviewer_only", "passkey ceremonies require the reviewer role")
	// ErrNoCredentials indicates a reviewer with zero registered passkeys.
	ErrNoCredentials = apperrors.EK(apperrors.KindFailedPrecondition, "passkey.authentication_required", "authentication required: no passkey registered")
)

func verificationFailed(cause error) error {
	return apperrors.EW(apperrors.KindVerificationFailed, "passkey verification failed", cause)
}

// ChallengeStore is the session challenge slot: one in-flight challenge per
// session, overwritten by every begin, consumed by a successful assertion.
type ChallengeStore interface {
	PutChallenge(ctx context.Context, sessionID string, challengeJSON []byte) error
	ClearChallenge(ctx context.Context, sessionID string) error
}

// Service runs WebAuthn ceremonies against stored credentials.
type Service struct {
	users       storage.UserStore
	credentials storage.CredentialStore
	challenges  ChallengeStore
	newProvider ProviderFactory
	parser      Parser
	clock       func() time.Time
}

// NewService builds a passkey service with production defaults.
func NewService(users storage.UserStore, credentials storage.CredentialStore, challenges ChallengeStore) *Service {
	return &Service{
		users:       users,
		credentials: credentials,
		challenges:  challenges,
		newProvider: NewProvider,
		parser:      defaultParser{},
		clock:       time.Now,
	}
}

// WithProviderFactory overrides ceremony construction, for tests.
func (s *Service) WithProviderFactory(factory ProviderFactory) *Service {
	if factory != nil {
		s.newProvider = factory
	}
	return s
}

// WithParser overrides client response parsing, for tests.
func (s *Service) WithParser(parser Parser) *Service {
	if parser != nil {
		s.parser = parser
	}
	return s
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// BeginRegistration starts a credential creation ceremony for the session's
// reviewer and stores the challenge in the session slot. The returned JSON
// is forwarded to the client verbatim.
func (s *Service) BeginRegistration(ctx context.Context, sess session.Session, rp RelyingParty) (json.RawMessage, error) {
	wu, _, err := s.loadReviewer(ctx, sess)
	if err != nil {
		return nil, err
	}

	provider, err := s.newProvider(rp)
	if err != nil {
		return nil, fmt.Errorf("configure relying party: %w", err)
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(wu.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(wu.credentials).CredentialDescriptors()))
	}

	creation, challenge, err := provider.BeginRegistration(wu, options...)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}

	if err := s.storeChallenge(ctx, sess.ID, challenge); err != nil {
		return nil, err
	}

	optionsJSON, err := json.Marshal(creation)
	if err != nil {
		return nil, fmt.Errorf("encode registration options: %w", err)
	}
	return optionsJSON, nil
}

// FinishRegistration verifies an attestation response against the session
// challenge and persists the new credential. Nothing is persisted on
// verification failure. The spent challenge stays in the slot until the
// next begin overwrites it.
func (s *Service) FinishRegistration(ctx context.Context, sess session.Session, rp RelyingParty, responseJSON []byte) (string, error) {
	wu, _, err := s.loadReviewer(ctx, sess)
	if err != nil {
		return "", err
	}

	challenge, err := s.sessionChallenge(sess)
	if err != nil {
		return "", err
	}

	parsed, err := s.parser.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		return "", apperrors.EW(apperrors.KindInvalidInput, "parse credential response", err)
	}

	provider, err := s.newProvider(rp)
	if err != nil {
		return "", fmt.Errorf("configure relying party: %w", err)
	}
	credential, err := provider.CreateCredential(wu, challenge, parsed)
	if err != nil {
		return "", verificationFailed(err)
	}

	now := s.clock().UTC()
	record := storage.Credential{
		CredentialID:   EncodeCredentialID(credential.ID),
		UserID:         sess.UserID,
		PublicKey:      credential.PublicKey,
		SignCount:      credential.Authenticator.SignCount,
		Transports:     transportStrings(credential.Transport),
		BackupEligible: credential.Flags.BackupEligible,
		BackupState:    credential.Flags.BackupState,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.credentials.PutCredential(ctx, record); err != nil {
		return "", fmt.Errorf("store credential: %w", err)
	}
	return record.CredentialID, nil
}

// BeginAuthentication starts an assertion ceremony allow-listing the
// reviewer's credentials and overwrites the session challenge slot.
func (s *Service) BeginAuthentication(ctx context.Context, sess session.Session, rp RelyingParty) (json.RawMessage, error) {
	wu, _, err := s.loadReviewer(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(wu.credentials) == 0 {
		return nil, ErrNoCredentials
	}

	provider, err := s.newProvider(rp)
	if err != nil {
		return nil, fmt.Errorf("configure relying party: %w", err)
	}

	assertion, challenge, err := provider.BeginLogin(wu)
	if err != nil {
		return nil, fmt.Errorf("begin authentication: %w", err)
	}

	if err := s.storeChallenge(ctx, sess.ID, challenge); err != nil {
		return nil, err
	}

	optionsJSON, err := json.Marshal(assertion)
	if err != nil {
		return nil, fmt.Errorf("encode authentication options: %w", err)
	}
	return optionsJSON, nil
}

// VerifyAssertion verifies an assertion response against the session
// challenge. On success the library-reported counter is persisted
// unconditionally, the challenge is consumed, and the credential ID is
// returned. Every mismatch collapses to one verification failed outcome.
func (s *Service) VerifyAssertion(ctx context.Context, sess session.Session, rp RelyingParty, responseJSON []byte) (string, error) {
	wu, records, err := s.loadReviewer(ctx, sess)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", ErrNoCredentials
	}

	challenge, err := s.sessionChallenge(sess)
	if err != nil {
		return "", err
	}

	parsed, err := s.parser.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return "", apperrors.EW(apperrors.KindInvalidInput, "parse assertion response", err)
	}

	claimedID := EncodeCredentialID(parsed.RawID)
	record, err := s.credentials.GetCredential(ctx, claimedID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return "", verificationFailed(fmt.Errorf("unknown credential %s", claimedID))
		}
		return "", fmt.Errorf("resolve credential: %w", err)
	}
	if record.UserID != sess.UserID {
		return "", verificationFailed(fmt.Errorf("credential %s is not owned by the caller", claimedID))
	}

	provider, err := s.newProvider(rp)
	if err != nil {
		return "", fmt.Errorf("configure relying party: %w", err)
	}
	validated, err := provider.ValidateLogin(wu, challenge, parsed)
	if err != nil {
		return "", verificationFailed(err)
	}

	now := s.clock().UTC()
	if err := s.credentials.UpdateCounter(ctx, storage.CounterUpdate{
		CredentialID: claimedID,
		SignCount:    validated.Authenticator.SignCount,
		BackupState:  validated.Flags.BackupState,
		LastUsedAt:   now,
	}); err != nil {
		return "", fmt.Errorf("update credential counter: %w", err)
	}
	if err := s.challenges.ClearChallenge(ctx, sess.ID); err != nil {
		return "", fmt.Errorf("consume challenge: %w", err)
	}
	return claimedID, nil
}

// RemoveCredential deletes one of the caller's registered passkeys. A
// credential owned by another reviewer reads as missing.
func (s *Service) RemoveCredential(ctx context.Context, sess session.Session, credentialID string) error {
	if sess.Role != domain.RoleReviewer {
		return ErrReviewerOnly
	}

	record, err := s.credentials.GetCredential(ctx, credentialID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return storage.ErrNotFound
		}
		return fmt.Errorf("resolve credential: %w", err)
	}
	if record.UserID != sess.UserID {
		return storage.ErrNotFound
	}

	if err := s.credentials.DeleteCredential(ctx, credentialID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *Service) loadReviewer(ctx context.Context, sess session.Session) (*webauthnUser, []storage.Credential, error) {
	if sess.Role != domain.RoleReviewer {
		return nil, nil, ErrReviewerOnly
	}

	baseUser, err := s.users.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	records, err := s.credentials.ListCredentials(ctx, baseUser.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list credentials: %w", err)
	}
	parsed, err := credentialsFromRecords(records)
	if err != nil {
		return nil, nil, err
	}
	return &webauthnUser{user: baseUser, credentials: parsed}, records, nil
}

func (s *Service) storeChallenge(ctx context.Context, sessionID string, challenge *webauthn.SessionData) error {
	if challenge == nil {
		return fmt.Errorf("challenge data is required")
	}
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	if err := s.challenges.PutChallenge(ctx, sessionID, payload); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

func (s *Service) sessionChallenge(sess session.Session) (webauthn.SessionData, error) {
	if len(sess.ChallengeJSON) == 0 {
		return webauthn.SessionData{}, verificationFailed(fmt.Errorf("no challenge in flight"))
	}
	var challenge webauthn.SessionData
	if err := json.Unmarshal(sess.ChallengeJSON, &challenge); err != nil {
		return webauthn.SessionData{}, fmt.Errorf("decode challenge: %w", err)
	}
	return challenge, nil
}

type webauthnUser struct {
	user        domain.User
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *webauthnUser) WebAuthnName() string {
	return u.user.ID
}

func (u *webauthnUser) WebAuthnDisplayName() string {
	return u.user.DisplayName
}

func (u *webauthnUser) WebAuthnIcon() string {
	return ""
}

func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// EncodeCredentialID renders an authenticator-assigned raw ID as unpadded
// URL-safe base64, the storage key format.
func EncodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCredentialID reverses EncodeCredentialID.
func DecodeCredentialID(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode credential id: %w", err)
	}
	return raw, nil
}

func credentialsFromRecords(records []storage.Credential) ([]webauthn.Credential, error) {
	if len(records) == 0 {
		return nil, nil
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		credential, err := credentialFromRecord(record)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

func credentialFromRecord(record storage.Credential) (webauthn.Credential, error) {
	rawID, err := DecodeCredentialID(record.CredentialID)
	if err != nil {
		return webauthn.Credential{}, fmt.Errorf("credential %s: %w", record.CredentialID, err)
	}
	transports := make([]protocol.AuthenticatorTransport, 0, len(record.Transports))
	for _, transport := range record.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(transport))
	}
	return webauthn.Credential{
		ID:        rawID,
		PublicKey: record.PublicKey,
		Transport: transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    true,
			UserVerified:   true,
			BackupEligible: record.BackupEligible,
			BackupState:    record.BackupState,
		},
		Authenticator: webauthn.Authenticator{SignCount: record.SignCount},
	}, nil
}

func transportStrings(transports []protocol.AuthenticatorTransport) []string {
	if len(transports) == 0 {
		return nil
	}
	values := make([]string, 0, len(transports))
	for _, transport := range transports {
		values = append(values, string(transport))
	}
	return values
}
