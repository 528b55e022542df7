// Package httpapi exposes the verification service over HTTP.
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
	"github.com/veravid/veravid/internal/services/auth/passkey"
	"github.com/veravid/veravid/internal/services/auth/session"
	"github.com/veravid/veravid/internal/services/verification/domain"
)

// Handler serves decision endpoints.
type Handler struct {
	decisions     *domain.Service
	sessions      *session.Store
	passkeyConfig passkey.Config
	policy        requestmeta.SchemePolicy
	validate      *validator.Validate
	logger        *log.Logger
}

// NewHandler builds the verification HTTP handler.
func NewHandler(decisions *domain.Service, sessions *session.Store, passkeyConfig passkey.Config, policy requestmeta.SchemePolicy, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		decisions:     decisions,
		sessions:      sessions,
		passkeyConfig: passkeyConfig,
		policy:        policy,
		validate:      validator.New(),
		logger:        logger,
	}
}

// RegisterRoutes mounts verification endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(http.MethodGet+" /verifications", h.handlePendingQueue)
	mux.HandleFunc(http.MethodPost+" /verifications/{id}/decision", h.handleDecision)
	mux.HandleFunc(http.MethodPost+" /verifications/decisions", h.handleBatchDecision)
}

type requestResponse struct {
	ID             string     `json:"id"`
	VideoID        string     `json:"video_id"`
	ReviewerUserID string     `json:"reviewer_user_id"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

func toRequestResponse(request domain.Request) requestResponse {
	return requestResponse{
		ID:             request.ID,
		VideoID:        request.VideoID,
		ReviewerUserID: request.ReviewerUserID,
		Status:         string(request.Status),
		CreatedAt:      request.CreatedAt,
		ProcessedAt:    request.ProcessedAt,
	}
}

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

func (h *Handler) handlePendingQueue(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	queue, err := h.decisions.PendingQueue(r.Context(), sess)
	if err != nil {
		h.logger.Printf("pending queue: %v", err)
		httpjson.WriteError(w, err)
		return
	}

	responses := make([]requestResponse, 0, len(queue))
	for _, request := range queue {
		responses = append(responses, toRequestResponse(request))
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"requests": responses})
}

type decisionRequest struct {
	Action    string          `json:"action" validate:"required"`
	Assertion json.RawMessage `json:"assertion,omitempty"`
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	var req decisionRequest
	if err := httpjson.Decode(r, h.validate, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	action, err := domain.ParseAction(req.Action)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	processed, err := h.decisions.Decide(r.Context(), sess, h.relyingParty(r), r.PathValue("id"), action, req.Assertion)
	if err != nil {
		h.logger.Printf("decide %s: %v", r.PathValue("id"), err)
		httpjson.WriteError(w, err)
		return
	}

	httpjson.Write(w, http.StatusOK, toRequestResponse(processed))
}

type batchDecisionRequest struct {
	RequestIDs []string        `json:"request_ids" validate:"required,min=1,dive,required"`
	Action     string          `json:"action"      validate:"required"`
	Assertion  json.RawMessage `json:"assertion,omitempty"`
}

type batchItemErrorResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

func (h *Handler) handleBatchDecision(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	var req batchDecisionRequest
	if err := httpjson.Decode(r, h.validate, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}
	action, err := domain.ParseAction(req.Action)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	result, err := h.decisions.DecideBatch(r.Context(), sess, h.relyingParty(r), req.RequestIDs, action, req.Assertion)
	if err != nil {
		h.logger.Printf("decide batch: %v", err)
		httpjson.WriteError(w, err)
		return
	}

	processed := make([]requestResponse, 0, len(result.Processed))
	for _, request := range result.Processed {
		processed = append(processed, toRequestResponse(request))
	}
	failed := make([]batchItemErrorResponse, 0, len(result.Failed))
	for _, item := range result.Failed {
		failed = append(failed, batchItemErrorResponse{
			RequestID: item.RequestID,
			Error:     item.Err.Error(),
		})
	}

	status := http.StatusOK
	if len(failed) > 0 {
		status = http.StatusMultiStatus
	}
	httpjson.Write(w, status, map[string]any{
		"processed_count": len(processed),
		"processed":       processed,
		"failed":          failed,
	})
}
