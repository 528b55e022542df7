package passkey

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	apperrors "github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/services/auth/domain"
	"github.com/veravid/veravid/internal/services/auth/session"
	"github.com/veravid/veravid/internal/services/auth/storage"
)

type fakeUserStore struct {
	users map[string]domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]domain.User)}
}

func (s *fakeUserStore) PutUser(_ context.Context, u domain.User) error {
	s.users[u.ID] = u
	return nil
}

func (s *fakeUserStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) ListUsersByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	var users []domain.User
	for _, u := range s.users {
		if u.Role == role {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *fakeUserStore) SetAuthApproved(_ context.Context, userID string, approved bool, updatedAt time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.AuthApproved = approved
	u.UpdatedAt = updatedAt
	s.users[userID] = u
	return nil
}

type fakeCredentialStore struct {
	credentials map[string]storage.Credential
	putErr      error
	updateErr   error
	updates     []storage.CounterUpdate
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{credentials: make(map[string]storage.Credential)}
}

func (s *fakeCredentialStore) PutCredential(_ context.Context, credential storage.Credential) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.credentials[credential.CredentialID] = credential
	return nil
}

func (s *fakeCredentialStore) GetCredential(_ context.Context, credentialID string) (storage.Credential, error) {
	credential, ok := s.credentials[credentialID]
	if !ok {
		return storage.Credential{}, storage.ErrNotFound
	}
	return credential, nil
}

func (s *fakeCredentialStore) ListCredentials(_ context.Context, userID string) ([]storage.Credential, error) {
	credentials := make([]storage.Credential, 0)
	for _, credential := range s.credentials {
		if credential.UserID == userID {
			credentials = append(credentials, credential)
		}
	}
	return credentials, nil
}

func (s *fakeCredentialStore) DeleteCredential(_ context.Context, credentialID string) error {
	delete(s.credentials, credentialID)
	return nil
}

func (s *fakeCredentialStore) UpdateCounter(_ context.Context, update storage.CounterUpdate) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, update)
	credential, ok := s.credentials[update.CredentialID]
	if !ok {
		return storage.ErrNotFound
	}
	credential.SignCount = update.SignCount
	credential.BackupState = update.BackupState
	used := update.LastUsedAt
	credential.LastUsedAt = &used
	s.credentials[update.CredentialID] = credential
	return nil
}

type fakeChallengeStore struct {
	challenges map[string][]byte
	cleared    []string
	putErr     error
}

func newFakeChallengeStore() *fakeChallengeStore {
	return &fakeChallengeStore{challenges: make(map[string][]byte)}
}

func (s *fakeChallengeStore) PutChallenge(_ context.Context, sessionID string, challengeJSON []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.challenges[sessionID] = challengeJSON
	return nil
}

func (s *fakeChallengeStore) ClearChallenge(_ context.Context, sessionID string) error {
	delete(s.challenges, sessionID)
	s.cleared = append(s.cleared, sessionID)
	return nil
}

type fakeProvider struct {
	challenge   string
	credential  *webauthn.Credential
	beginErr    error
	validateErr error
	gotSession  webauthn.SessionData
}

func (f *fakeProvider) BeginRegistration(_ webauthn.User, _ ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	if f.beginErr != nil {
		return nil, nil, f.beginErr
	}
	return &protocol.CredentialCreation{}, &webauthn.SessionData{Challenge: f.challenge}, nil
}

func (f *fakeProvider) CreateCredential(_ webauthn.User, sess webauthn.SessionData, _ *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	f.gotSession = sess
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	if f.credential != nil {
		return f.credential, nil
	}
	return &webauthn.Credential{ID: []byte("cred")}, nil
}

func (f *fakeProvider) BeginLogin(_ webauthn.User, _ ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	if f.beginErr != nil {
		return nil, nil, f.beginErr
	}
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{Challenge: f.challenge}, nil
}

func (f *fakeProvider) ValidateLogin(_ webauthn.User, sess webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	f.gotSession = sess
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	if f.credential != nil {
		return f.credential, nil
	}
	return &webauthn.Credential{ID: []byte("cred")}, nil
}

type fakeParser struct {
	creation  *protocol.ParsedCredentialCreationData
	assertion *protocol.ParsedCredentialAssertionData
	parseErr  error
}

func (f *fakeParser) ParseCredentialCreationResponseBytes(_ []byte) (*protocol.ParsedCredentialCreationData, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	if f.creation != nil {
		return f.creation, nil
	}
	return &protocol.ParsedCredentialCreationData{}, nil
}

func (f *fakeParser) ParseCredentialRequestResponseBytes(_ []byte) (*protocol.ParsedCredentialAssertionData, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	if f.assertion != nil {
		return f.assertion, nil
	}
	return &protocol.ParsedCredentialAssertionData{}, nil
}

func assertionFor(rawID []byte) *protocol.ParsedCredentialAssertionData {
	assertion := &protocol.ParsedCredentialAssertionData{}
	assertion.RawID = protocol.URLEncodedBase64(rawID)
	return assertion
}

var testRP = RelyingParty{ID: "veravid.test", DisplayName: "VeraVid", Origins: []string{"https://veravid.test"}}

func reviewerSession(challengeJSON string) session.Session {
	return session.Session{
		ID:            "sess-1",
		UserID:        "reviewer-1",
		Role:          domain.RoleReviewer,
		ChallengeJSON: []byte(challengeJSON),
	}
}

func newTestService(users *fakeUserStore, credentials *fakeCredentialStore, challenges *fakeChallengeStore, provider *fakeProvider, parser *fakeParser) *Service {
	svc := NewService(users, credentials, challenges)
	if provider != nil {
		svc.WithProviderFactory(func(RelyingParty) (Provider, error) { return provider, nil })
	}
	if parser != nil {
		svc.WithParser(parser)
	}
	svc.WithClock(func() time.Time { return time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC) })
	return svc
}

func seedReviewer(users *fakeUserStore) {
	users.users["reviewer-1"] = domain.User{ID: "reviewer-1", Role: domain.RoleReviewer, DisplayName: "Ada"}
}

func seedCredential(credentials *fakeCredentialStore, rawID []byte, userID string, signCount uint32) string {
	credentialID := EncodeCredentialID(rawID)
	credentials.credentials[credentialID] = storage.Credential{
		CredentialID: credentialID,
		UserID:       userID,
		PublicKey:    []byte{0x01},
		SignCount:    signCount,
	}
	return credentialID
}

func TestBeginRegistrationStoresChallenge(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)
	challenges := newFakeChallengeStore()

	svc := newTestService(users, newFakeCredentialStore(), challenges, &fakeProvider{challenge: "c1"}, nil)

	optionsJSON, err := svc.BeginRegistration(context.Background(), reviewerSession(""), testRP)
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	if len(optionsJSON) == 0 {
		t.Fatal("expected creation options json")
	}
	if len(challenges.challenges["sess-1"]) == 0 {
		t.Fatal("expected challenge stored in session slot")
	}
}

func TestBeginRegistrationRequiresReviewer(t *testing.T) {
	users := newFakeUserStore()
	users.users["creator-1"] = domain.User{ID: "creator-1", Role: domain.RoleCreator, DisplayName: "Cee"}

	svc := newTestService(users, newFakeCredentialStore(), newFakeChallengeStore(), &fakeProvider{}, nil)

	sess := session.Session{ID: "sess-1", UserID: "creator-1", Role: domain.RoleCreator}
	_, err := svc.BeginRegistration(context.Background(), sess, testRP)
	if !errors.Is(err, ErrReviewerOnly) {
		t.Fatalf("error = %v, want ErrReviewerOnly", err)
	}
}

func TestBeginRegistrationOverwritesPriorChallenge(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)
	challenges := newFakeChallengeStore()
	provider := &fakeProvider{challenge: "c1"}

	svc := newTestService(users, newFakeCredentialStore(), challenges, provider, nil)

	if _, err := svc.BeginRegistration(context.Background(), reviewerSession(""), testRP); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	first := string(challenges.challenges["sess-1"])

	provider.challenge = "c2"
	if _, err := svc.BeginRegistration(context.Background(), reviewerSession(""), testRP); err != nil {
		t.Fatalf("second begin: %v", err)
	}
	second := string(challenges.challenges["sess-1"])

	if first == second {
		t.Fatal("second begin should overwrite the stored challenge")
	}
}

func TestFinishRegistrationPersistsCredential(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)
	credentials := newFakeCredentialStore()
	challenges := newFakeChallengeStore()
	provider := &fakeProvider{credential: &webauthn.Credential{
		ID:        []byte("new-cred"),
		PublicKey: []byte{0x0a, 0x0b},
		Transport: []protocol.AuthenticatorTransport{protocol.Internal},
		Flags:     webauthn.CredentialFlags{BackupEligible: true},
	}}

	svc := newTestService(users, credentials, challenges, provider, &fakeParser{})

	credentialID, err := svc.FinishRegistration(context.Background(), reviewerSession(`{"challenge":"c1"}`), testRP, []byte(`{}`))
	if err != nil {
		t.Fatalf("finish registration: %v", err)
	}
	if credentialID != EncodeCredentialID([]byte("new-cred")) {
		t.Fatalf("credential id = %q, want encoded raw id", credentialID)
	}

	stored, ok := credentials.credentials[credentialID]
	if !ok {
		t.Fatal("credential not persisted")
	}
	if stored.UserID != "reviewer-1" {
		t.Fatalf("UserID = %q, want reviewer-1", stored.UserID)
	}
	if string(stored.PublicKey) != string([]byte{0x0a, 0x0b}) {
		t.Fatalf("PublicKey = %v, want stored bytes", stored.PublicKey)
	}
	if !stored.BackupEligible {
		t.Fatal("BackupEligible = false, want true")
	}
	if len(stored.Transports) != 1 || stored.Transports[0] != "internal" {
		t.Fatalf("Transports = %v, want [internal]", stored.Transports)
	}
	if provider.gotSession.Challenge != "c1" {
		t.Fatalf("verified against challenge %q, want c1", provider.gotSession.Challenge)
	}
	if len(challenges.cleared) != 0 {
		t.Fatal("finish registration must not clear the challenge slot")
	}
}

func TestFinishRegistrationVerificationFailure(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)
	credentials := newFakeCredentialStore()
	provider := &fakeProvider{validateErr: errors.New("attestation mismatch")}

	svc := newTestService(users, credentials, newFakeChallengeStore(), provider, &fakeParser{})

	_, err := svc.FinishRegistration(context.Background(), reviewerSession(`{"challenge":"c1"}`), testRP, []byte(`{}`))
	if apperrors.KindOf(err) != apperrors.KindVerificationFailed {
		t.Fatalf("error kind = %v, want verification_failed", apperrors.KindOf(err))
	}
	if len(credentials.credentials) != 0 {
		t.Fatal("nothing may be persisted on verification failure")
	}
}

func TestFinishRegistrationWithoutChallenge(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)

	svc := newTestService(users, newFakeCredentialStore(), newFakeChallengeStore(), &fakeProvider{}, &fakeParser{})

	_, err := svc.FinishRegistration(context.Background(), reviewerSession(""), testRP, []byte(`{}`))
	if apperrors.KindOf(err) != apperrors.KindVerificationFailed {
		t.Fatalf("error kind = %v, want verification_failed", apperrors.KindOf(err))
	}
}

func TestBeginAuthenticationRequiresCredential(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)

	svc := newTestService(users, newFakeCredentialStore(), newFakeChallengeStore(), &fakeProvider{}, nil)

	_, err := svc.BeginAuthentication(context.Background(), reviewerSession(""), testRP)
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("error = %v, want ErrNoCredentials", err)
	}
}

func TestBeginAuthenticationStoresChallenge(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)
	credentials := newFakeCredentialStore()
	seedCredential(credentials, []byte("cred-raw"), "reviewer-1", 3)
	challenges := newFakeChallengeStore()

	svc := newTestService(users, credentials, challenges, &fakeProvider{challenge: "c1"}, nil)

	optionsJSON, err := svc.BeginAuthentication(context.Background(), reviewerSession(""), testRP)
	if err != nil {
		t.Fatalf("begin authentication: %v", err)
	}
	if len(optionsJSON) == 0 {
		t.Fatal("expected assertion options json")
	}
	if len(challenges.challenges["sess-1"]) == 0 {
		t.Fatal("expected challenge stored in session slot")
	}
}

func TestVerifyAssertionSuccess(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)
	credentials := newFakeCredentialStore()
	credentialID := seedCredential(credentials, []byte("cred-raw"), "reviewer-1", 3)
	challenges := newFakeChallengeStore()
	challenges.challenges["sess-1"] = []byte(`{"challenge":"c1"}`)
	provider := &fakeProvider{credential: &webauthn.Credential{
		ID:            []byte("cred-raw"),
		Authenticator: webauthn.Authenticator{SignCount: 4},
		Flags:         webauthn.CredentialFlags{BackupState: true},
	}}
	parser := &fakeParser{assertion: assertionFor([]byte("cred-raw"))}

	svc := newTestService(users, credentials, challenges, provider, parser)

	got, err := svc.VerifyAssertion(context.Background(), reviewerSession(`{"challenge":"c1"}`), testRP, []byte(`{}`))
	if err != nil {
		t.Fatalf("verify assertion: %v", err)
	}
	if got != credentialID {
		t.Fatalf("credential id = %q, want %q", got, credentialID)
	}
	if provider.gotSession.Challenge != "c1" {
		t.Fatalf("verified against challenge %q, want c1", provider.gotSession.Challenge)
	}
	if len(credentials.updates) != 1 {
		t.Fatalf("counter updates = %d, want 1", len(credentials.updates))
	}
	update := credentials.updates[0]
	if update.SignCount != 4 || !update.BackupState {
		t.Fatalf("update = %+v, want sign count 4 and backup state", update)
	}
	if len(challenges.cleared) != 1 || challenges.cleared[0] != "sess-1" {
		t.Fatal("successful verification must consume the challenge")
	}
}

func TestVerifyAssertionPersistsEqualCounter(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)
	credentials := newFakeCredentialStore()
	seedCredential(credentials, []byte("cred-raw"), "reviewer-1", 3)
	challenges := newFakeChallengeStore()
	provider := &fakeProvider{credential: &webauthn.Credential{
		ID:            []byte("cred-raw"),
		Authenticator: webauthn.Authenticator{SignCount: 3},
	}}
	parser := &fakeParser{assertion: assertionFor([]byte("cred-raw"))}

	svc := newTestService(users, credentials, challenges, provider, parser)

	if _, err := svc.VerifyAssertion(context.Background(), reviewerSession(`{"challenge":"c1"}`), testRP, []byte(`{}`)); err != nil {
		t.Fatalf("verify assertion: %v", err)
	}
	if len(credentials.updates) != 1 || credentials.updates[0].SignCount != 3 {
		t.Fatalf("updates = %+v, want one update with sign count 3", credentials.updates)
	}
}

func TestVerifyAssertionUnknownCredential(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)
	credentials := newFakeCredentialStore()
	seedCredential(credentials, []byte("cred-raw"), "reviewer-1", 3)
	parser := &fakeParser{assertion: assertionFor([]byte("other-raw"))}

	svc := newTestService(users, credentials, newFakeChallengeStore(), &fakeProvider{}, parser)

	_, err := svc.VerifyAssertion(context.Background(), reviewerSession(`{"challenge":"c1"}`), testRP, []byte(`{}`))
	if apperrors.KindOf(err) != apperrors.KindVerificationFailed {
		t.Fatalf("error kind = %v, want verification_failed", apperrors.KindOf(err))
	}
	if len(credentials.updates) != 0 {
		t.Fatal("counter must not change on failure")
	}
}

func TestVerifyAssertionForeignCredential(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)
	credentials := newFakeCredentialStore()
	seedCredential(credentials, []byte("cred-raw"), "reviewer-1", 3)
	seedCredential(credentials, []byte("foreign-raw"), "reviewer-2", 9)
	parser := &fakeParser{assertion: assertionFor([]byte("foreign-raw"))}

	svc := newTestService(users, credentials, newFakeChallengeStore(), &fakeProvider{}, parser)

	_, err := svc.VerifyAssertion(context.Background(), reviewerSession(`{"challenge":"c1"}`), testRP, []byte(`{}`))
	if apperrors.KindOf(err) != apperrors.KindVerificationFailed {
		t.Fatalf("error kind = %v, want verification_failed", apperrors.KindOf(err))
	}
}

func TestVerifyAssertionLibraryFailureLeavesChallenge(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)
	credentials := newFakeCredentialStore()
	seedCredential(credentials, []byte("cred-raw"), "reviewer-1", 3)
	challenges := newFakeChallengeStore()
	challenges.challenges["sess-1"] = []byte(`{"challenge":"c1"}`)
	provider := &fakeProvider{validateErr: errors.New("signature mismatch")}
	parser := &fakeParser{assertion: assertionFor([]byte("cred-raw"))}

	svc := newTestService(users, credentials, challenges, provider, parser)

	_, err := svc.VerifyAssertion(context.Background(), reviewerSession(`{"challenge":"c1"}`), testRP, []byte(`{}`))
	if apperrors.KindOf(err) != apperrors.KindVerificationFailed {
		t.Fatalf("error kind = %v, want verification_failed", apperrors.KindOf(err))
	}
	if len(credentials.updates) != 0 {
		t.Fatal("counter must not change on failure")
	}
	if len(challenges.cleared) != 0 {
		t.Fatal("failed verification must not consume the challenge")
	}
}

func TestVerifyAssertionWithoutCredentials(t *testing.T) {
	users := newFakeUserStore()
	seedReviewer(users)

	svc := newTestService(users, newFakeCredentialStore(), newFakeChallengeStore(), &fakeProvider{}, &fakeParser{})

	_, err := svc.VerifyAssertion(context.Background(), reviewerSession(`{"challenge":"c1"}`), testRP, []byte(`{}`))
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("error = %v, want ErrNoCredentials", err)
	}
}

func TestRemoveCredentialDeletesOwnPasskey(t *testing.T) {
	users := newFakeUserStore()
	credentials := newFakeCredentialStore()
	seedReviewer(users)
	credentialID := seedCredential(credentials, []byte{0x01, 0x02}, "reviewer-1", 3)

	svc := newTestService(users, credentials, newFakeChallengeStore(), nil, nil)

	if err := svc.RemoveCredential(context.Background(), reviewerSession(""), credentialID); err != nil {
		t.Fatalf("RemoveCredential: %v", err)
	}
	if _, ok := credentials.credentials[credentialID]; ok {
		t.Fatal("credential still stored after removal")
	}
}

func TestRemoveCredentialForeignReadsAsMissing(t *testing.T) {
	users := newFakeUserStore()
	credentials := newFakeCredentialStore()
	seedReviewer(users)
	credentialID := seedCredential(credentials, []byte{0x01, 0x02}, "reviewer-2", 3)

	svc := newTestService(users, credentials, newFakeChallengeStore(), nil, nil)

	err := svc.RemoveCredential(context.Background(), reviewerSession(""), credentialID)
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("error kind = %v, want not found", apperrors.KindOf(err))
	}
	if _, ok := credentials.credentials[credentialID]; !ok {
		t.Fatal("foreign credential was deleted")
	}
}

func TestRemoveCredentialMissing(t *testing.T) {
	users := newFakeUserStore()
	credentials := newFakeCredentialStore()
	seedReviewer(users)

	svc := newTestService(users, credentials, newFakeChallengeStore(), nil, nil)

	err := svc.RemoveCredential(context.Background(), reviewerSession(""), "unknown")
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("error kind = %v, want not found", apperrors.KindOf(err))
	}
}

func TestRemoveCredentialRequiresReviewer(t *testing.T) {
	svc := newTestService(newFakeUserStore(), newFakeCredentialStore(), newFakeChallengeStore(), nil, nil)

	sess := session.Session{ID: "sess-1", UserID: "creator-1", Role: domain.RoleCreator}
	if err := svc.RemoveCredential(context.Background(), sess, "cred-1"); !errors.Is(err, ErrReviewerOnly) {
		t.Fatalf("err = %v, want ErrReviewerOnly", err)
	}
}
