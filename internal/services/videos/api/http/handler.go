// Package httpapi exposes the videos service over HTTP.
package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/platform/httpjson"
	"github.com/veravid/veravid/internal/platform/requestctx"
	authdomain "github.com/veravid/veravid/internal/services/auth/domain"
	"github.com/veravid/veravid/internal/services/auth/session"
	"github.com/veravid/veravid/internal/services/videos/domain"
	verifdomain "github.com/veravid/veravid/internal/services/verification/domain"
)

// Handler serves video catalog endpoints.
type Handler struct {
	videos   *domain.Service
	sessions *session.Store
	validate *validator.Validate
	logger   *log.Logger
}

// NewHandler builds the videos HTTP handler.
func NewHandler(videos *domain.Service, sessions *session.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		videos:   videos,
		sessions: sessions,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes mounts video endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(http.MethodPost+" /videos", h.handleUpload)
	mux.HandleFunc(http.MethodGet+" /videos", h.handleList)
	mux.HandleFunc(http.MethodGet+" /videos/reviewers", h.handleReviewers)
	mux.HandleFunc(http.MethodPost+" /videos/{id}/request-verification", h.handleRequestVerification)
}

type videoResponse struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	UploadURL   string    `json:"upload_url"`
	CreatedAt   time.Time `json:"created_at"`
}

func toVideoResponse(video domain.Video) videoResponse {
	return videoResponse{
		ID:          video.ID,
		OwnerUserID: video.OwnerUserID,
		Title:       video.Title,
		Description: video.Description,
		UploadURL:   video.UploadURL,
		CreatedAt:   video.CreatedAt,
	}
}

type requestResponse struct {
	ID             string `json:"id"`
	VideoID        string `json:"video_id"`
	ReviewerUserID string `json:"reviewer_user_id"`
	Status         string `json:"status"`
}

func toRequestResponses(requests []verifdomain.Request) []requestResponse {
	responses := make([]requestResponse, 0, len(requests))
	for _, request := range requests {
		responses = append(responses, requestResponse{
			ID:             request.ID,
			VideoID:        request.VideoID,
			ReviewerUserID: request.ReviewerUserID,
			Status:         string(request.Status),
		})
	}
	return responses
}

func (h *Handler) callerSession(r *http.Request) (session.Session, error) {
	caller, ok := requestctx.CallerFromContext(r.Context())
	if !ok {
		return session.Session{}, apperrors.E(apperrors.KindUnauthorized, "authentication required")
	}
	return h.sessions.Get(r.Context(), caller.SessionID)
}

type uploadRequest struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	UploadURL   string   `json:"upload_url" validate:"required,url"`
	ReviewerIDs []string `json:"reviewer_ids" validate:"omitempty,dive,required"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	var req uploadRequest
	if err := httpjson.Decode(r, h.validate, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}

	video, requests, err := h.videos.Upload(r.Context(), sess, domain.CreateVideoInput{
		Title:       req.Title,
		Description: req.Description,
		UploadURL:   req.UploadURL,
	}, req.ReviewerIDs)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, map[string]any{
		"video":    toVideoResponse(video),
		"requests": toRequestResponses(requests),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	videos, err := h.videos.List(r.Context(), sess)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	responses := make([]videoResponse, 0, len(videos))
	for _, video := range videos {
		responses = append(responses, toVideoResponse(video))
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"videos": responses})
}

type reviewerResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Title       string `json:"title,omitempty"`
	Country     string `json:"country,omitempty"`
}

func (h *Handler) handleReviewers(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	reviewers, err := h.videos.Reviewers(r.Context(), sess)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	responses := make([]reviewerResponse, 0, len(reviewers))
	for _, reviewer := range reviewers {
		responses = append(responses, toReviewerResponse(reviewer))
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"reviewers": responses})
}

func toReviewerResponse(user authdomain.User) reviewerResponse {
	return reviewerResponse{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Title:       user.Title,
		Country:     user.Country,
	}
}

type requestVerificationRequest struct {
	ReviewerIDs []string `json:"reviewer_ids" validate:"required,min=1,dive,required"`
}

func (h *Handler) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	sess, err := h.callerSession(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	var req requestVerificationRequest
	if err := httpjson.Decode(r, h.validate, &req); err != nil {
		httpjson.WriteError(w, err)
		return
	}

	requests, err := h.videos.RequestVerification(r.Context(), sess, r.PathValue("id"), req.ReviewerIDs)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, map[string]any{"requests": toRequestResponses(requests)})
}
