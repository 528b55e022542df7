// Package httpapi exposes the auth service over HTTP.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/platform/httpjson"
	"github.com/veravid/veravid/internal/platform/requestctx"
	"github.com/veravid/veravid/internal/platform/requestmeta"
	"github.com/veravid/veravid/internal/platform/sessioncookie"
	"github.com/veravid/veravid/internal/services/auth/domain"
	"github.com/veravid/veravid/internal/services/auth/passkey"
	"github.com/veravid/veravid/internal/services/auth/session"
	"github.com/veravid/veravid/internal/services/auth/storage"
)

// Handler serves auth and passkey ceremony endpoints.
type Handler struct {
	users         storage.UserStore
	sessions      *session.Store
	passkeys      *passkey.Service
	passkeyConfig passkey.Config
	policy        requestmeta.SchemePolicy
	validate      *validator.Validate
	logger        *log.Logger
	clock         func() time.Time
}

// NewHandler builds the auth HTTP handler.
func NewHandler(users storage.UserStore, sessions *session.Store, passkeys *passkey.Service, passkeyConfig passkey.Config, policy requestmeta.SchemePolicy, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		users:         users,
		sessions:      sessions,
		passkeys:      passkeys,
		passkeyConfig: passkeyConfig,
		policy:        policy,
		validate:      validator.New(),
		logger:        logger,
		clock:         time.Now,
	}
}

// RegisterRoutes mounts auth endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(http.MethodPost+" /auth/signup", h.handleSignup)
	mux.HandleFunc(http.MethodPost+" /auth/login", h.handleLogin)
	mux.HandleFunc(http.MethodPost+" /auth/logout", h.handleLogout)

	mux.HandleFunc(http.MethodPost+" /passkeys/register/begin", h.handleRegisterBegin)
	mux.HandleFunc(http.MethodPost+" /passkeys/register/finish", h.handleRegisterFinish)
	mux.HandleFunc(http.MethodPost+" /passkeys/authenticate/begin", h.handleAuthenticateBegin)
	mux.HandleFunc(http.MethodDelete+" /passkeys/credentials/{id}", h.handleCredentialDelete)

	mux.HandleFunc(http.MethodPost+" /admin/users/{id}/approval", h.handleSetApproval)
}

// SessionMiddleware resolves the session cookie into a request caller. It
// does not reject unauthenticated requests; handlers decide what requires
// identity.
func SessionMiddleware(sessions *session.Store, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := sessioncookie.Read(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := sessions.Get(r.Context(), sessionID)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := requestctx.WithCaller(r.Context(), requestctx.Caller{
			UserID:    sess.UserID,
			Role:      string(sess.Role),
			SessionID: sess.ID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SameOriginMiddleware rejects state-changing requests that carry a session
// cookie but no Origin or Referer proof of same-origin. Reads and cookieless
// requests pass through untouched.
func SameOriginMiddleware(policy requestmeta.SchemePolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutationMethod(r) {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := sessioncookie.Read(r); !ok {
			next.ServeHTTP(w, r)
			return
		}
		if !requestmeta.HasSameOriginProof(r, policy) {
			httpjson.WriteError(w, apperrors.EK(apperrors.KindForbidden, "auth.same_origin_required", "state-changing requests require same-origin proof"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMutationMethod(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

type userResponse struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	DisplayName  string `json:"display_name"`
	Title        string `json:"title,omitempty"`
	Country      string `json:"country,omitempty"`
	AuthApproved bool   `json:"auth_approved"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Role:         string(u.Role),
		DisplayName:  u.DisplayName,
		Title:        u.Title,
		Country:      u.Country,
		AuthApproved: u.AuthApproved,
	}
}

type signupRequest struct {
	Role        string `json:"role"         validate:"required"`
	DisplayName string `json:"display_name" validate:"required"`
	Title       string `json:"title"`
	Country     string `json:"country"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpjson.Decode(r, h.validate, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	u, err := domain.CreateUser(domain.CreateUserInput{
		Role:        role,
		DisplayName: req.DisplayName,
		Title:       req.Title,
		Country:     req.Country,
	}, h.clock, nil)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	if err := h.users.PutUser(r.Context(), u); err != nil {
		h.logger.Printf("signup: put user: %v", err)
		httpjson.WriteError(w, err)
		return
	}

	h.startSession(w, r, u)
}

type loginRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpjson.Decode(r, h.validate, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}

	u, err := h.users.GetUser(r.Context(), req.UserID)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	h.startSession(w, r, u)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, u domain.User) {
	sess, err := h.sessions.Create(r.Context(), u.ID, u.Role)
	if err != nil {
		h.logger.Printf("create session: %v", err)
		httpjson.WriteError(w, apperrors.E(apperrors.KindUnavailable, "session store unavailable"))
		return
	}
	sessioncookie.Write(w, r, h.policy, sess.ID)
	httpjson.Write(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := sessioncookie.Read(r); ok {
		if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
			h.logger.Printf("logout: delete session: %v", err)
		}
	}
	sessioncookie.Clear(w, r, h.policy)
	w.WriteHeader(http.StatusNoContent)
}

// callerSession loads the full session record for an authenticated request.
func (h *Handler) callerSession(r *http.Request) (session.Session, error) {
	caller, ok := requestctx.CallerFromContext(r.Context())
	if !ok {
		return session.Session{}, apperrors.E(apperrors.KindUnauthorized, "authentication required")
	}
	return h.sessions.Get(r.Context(), caller.SessionID)
}

func (h *Handler) relyingParty(r *http.Request) passkey.RelyingParty {
	return h.passkeyConfig.RelyingParty(requestmeta.Host(r), requestmeta.Origin(r, h.policy))
}

func (h *Handler) handleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	optionsJSON, err := h.passkeys.BeginRegistration(r.Context(), sess, h.relyingParty(r))
	if err != nil {
		h.logger.Printf("begin registration: %v", err)
		httpjson.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(optionsJSON)
}

type finishRegistrationRequest struct {
	CredentialResponse json.RawMessage `json:"credential_response" validate:"required"`
}

func (h *Handler) handleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	var req finishRegistrationRequest
	if err := httpjson.Decode(r, h.validate, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}

	credentialID, err := h.passkeys.FinishRegistration(r.Context(), sess, h.relyingParty(r), req.CredentialResponse)
	if err != nil {
		h.logger.Printf("finish registration: %v", err)
		httpjson.WriteError(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, map[string]string{"credential_id": credentialID})
}

type setApprovalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// handleSetApproval flips a creator's verification-request standing. Admin
// role required.
func (h *Handler) handleSetApproval(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	if sess.Role != domain.RoleAdmin {
		httpjson.WriteError(w, apperrors.EK(apperrors.KindForbidden, "user.admin_only", "admin role required"))
		return
	}

	var req setApprovalRequest
	if err := httpjson.Decode(r, h.validate, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}

	userID := r.PathValue("id")
	if err := h.users.SetAuthApproved(r.Context(), userID, *req.Approved, h.clock().UTC()); err != nil {
		httpjson.WriteError(w, err)
		return
	}

	u, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleAuthenticateBegin(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	optionsJSON, err := h.passkeys.BeginAuthentication(r.Context(), sess, h.relyingParty(r))
	if err != nil {
		h.logger.Printf("begin authentication: %v", err)
		httpjson.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(optionsJSON)
}

func (h *Handler) handleCredentialDelete(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	if err := h.passkeys.RemoveCredential(r.Context(), sess, r.PathValue("id")); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
