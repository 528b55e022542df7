package domain

import (
	"strings"
	"time"

	apperrors "github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/platform/id"
)

var (
	// ErrEmptyTitle rejects uploads without a title.
	ErrEmptyTitle = apperrors.EK(apperrors.KindInvalidInput, "video.title_required", "video title is required")
	// ErrEmptyUploadURL rejects uploads that point at nothing.
	ErrEmptyUploadURL = apperrors.EK(apperrors.KindInvalidInput, "video.upload_url_required", "video upload URL is required")
)

// Video is a creator-owned upload awaiting or holding verification.
type Video struct {
	ID          string
	OwnerUserID string
	Title       string
	Description string
	UploadURL   string
	CreatedAt   time.Time
}

// CreateVideoInput carries the caller-supplied fields of an upload.
type CreateVideoInput struct {
	Title       string
	Description string
	UploadURL   string
}

// NormalizeCreateVideoInput trims the input and rejects missing fields.
func NormalizeCreateVideoInput(input CreateVideoInput) (CreateVideoInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.UploadURL = strings.TrimSpace(input.UploadURL)

	if input.Title == "" {
		return CreateVideoInput{}, ErrEmptyTitle
	}
	if input.UploadURL == "" {
		return CreateVideoInput{}, ErrEmptyUploadURL
	}
	return input, nil
}

// CreateVideo builds a new video owned by ownerUserID.
func CreateVideo(ownerUserID string, input CreateVideoInput, now func() time.Time, idGenerator func() (string, error)) (Video, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateVideoInput(input)
	if err != nil {
		return Video{}, err
	}

	videoID, err := idGenerator()
	if err != nil {
		return Video{}, err
	}

	return Video{
		ID:          videoID,
		OwnerUserID: ownerUserID,
		Title:       normalized.Title,
		Description: normalized.Description,
		UploadURL:   normalized.UploadURL,
		CreatedAt:   now().UTC(),
	}, nil
}
