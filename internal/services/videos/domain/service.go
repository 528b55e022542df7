package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/platform/id"
	authdomain "github.com/veravid/veravid/internal/services/auth/domain"
	authstorage "github.com/veravid/veravid/internal/services/auth/storage"
	"github.com/veravid/veravid/internal/services/auth/session"
	verifdomain "github.com/veravid/veravid/internal/services/verification/domain"
)

var (
	// ErrCreatorOnly rejects callers that do not hold the creator role.
	ErrCreatorOnly = apperrors.EK(apperrors.KindForbidden, "video.creator_only", "only creators can manage videos")
	// ErrNotVideoOwner rejects verification requests for somebody else's video.
	ErrNotVideoOwner = apperrors.EK(apperrors.KindForbidden, "video.not_owner", "video belongs to another creator")
	// ErrApprovalRequired gates reviewer selection on the creator's standing.
	ErrApprovalRequired = apperrors.EK(apperrors.KindFailedPrecondition, "video.approval_required", "creator is not approved to request verification")
	// ErrNoReviewers rejects a selection with no reviewers in it.
	ErrNoReviewers = apperrors.EK(apperrors.KindInvalidInput, "video.reviewers_required", "at least one reviewer is required")
	// ErrNotAReviewer rejects a selection naming a user outside the reviewer role.
	ErrNotAReviewer = apperrors.EK(apperrors.KindInvalidInput, "video.not_a_reviewer", "selected user is not a reviewer")
)

// Service coordinates uploads and reviewer selection.
type Service struct {
	videos      VideoStore
	users       authstorage.UserStore
	requests    verifdomain.RequestStore
	logger      *log.Logger
	clock       func() time.Time
	idGenerator func() (string, error)
}

// VideoStore is the persistence surface the service needs.
type VideoStore interface {
	PutVideo(ctx context.Context, video Video) error
	GetVideo(ctx context.Context, videoID string) (Video, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]Video, error)
}

// NewService builds a videos service.
func NewService(videos VideoStore, users authstorage.UserStore, requests verifdomain.RequestStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		videos:      videos,
		users:       users,
		requests:    requests,
		logger:      logger,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithIDGenerator overrides ID generation, for tests.
func (s *Service) WithIDGenerator(generate func() (string, error)) *Service {
	if generate != nil {
		s.idGenerator = generate
	}
	return s
}

// Upload stores a new video for the calling creator. When reviewerIDs is
// non-empty the selection is validated and applied in the same call, so a
// failed selection leaves no video behind.
func (s *Service) Upload(ctx context.Context, sess session.Session, input CreateVideoInput, reviewerIDs []string) (Video, []verifdomain.Request, error) {
	if s == nil || s.videos == nil {
		return Video{}, nil, fmt.Errorf("videos service is not configured")
	}
	if sess.Role != authdomain.RoleCreator {
		return Video{}, nil, ErrCreatorOnly
	}

	video, err := CreateVideo(sess.UserID, input, s.clock, s.idGenerator)
	if err != nil {
		return Video{}, nil, err
	}

	var reviewers []authdomain.User
	if len(reviewerIDs) > 0 {
		reviewers, err = s.validateSelection(ctx, sess.UserID, reviewerIDs)
		if err != nil {
			return Video{}, nil, err
		}
	}

	if err := s.videos.PutVideo(ctx, video); err != nil {
		return Video{}, nil, fmt.Errorf("store video: %w", err)
	}

	requests, err := s.openRequests(ctx, video.ID, reviewers)
	if err != nil {
		return Video{}, nil, err
	}
	return video, requests, nil
}

// List returns the calling creator's videos.
func (s *Service) List(ctx context.Context, sess session.Session) ([]Video, error) {
	if s == nil || s.videos == nil {
		return nil, fmt.Errorf("videos service is not configured")
	}
	if sess.Role != authdomain.RoleCreator {
		return nil, ErrCreatorOnly
	}
	return s.videos.ListByOwner(ctx, sess.UserID)
}

// RequestVerification opens pending verification requests against an
// already uploaded video.
func (s *Service) RequestVerification(ctx context.Context, sess session.Session, videoID string, reviewerIDs []string) ([]verifdomain.Request, error) {
	if s == nil || s.videos == nil || s.requests == nil {
		return nil, fmt.Errorf("videos service is not configured")
	}
	if sess.Role != authdomain.RoleCreator {
		return nil, ErrCreatorOnly
	}

	video, err := s.videos.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.OwnerUserID != sess.UserID {
		return nil, ErrNotVideoOwner
	}

	if len(reviewerIDs) == 0 {
		return nil, ErrNoReviewers
	}
	reviewers, err := s.validateSelection(ctx, sess.UserID, reviewerIDs)
	if err != nil {
		return nil, err
	}
	return s.openRequests(ctx, video.ID, reviewers)
}

// Reviewers lists the users a creator may select from.
func (s *Service) Reviewers(ctx context.Context, sess session.Session) ([]authdomain.User, error) {
	if s == nil || s.users == nil {
		return nil, fmt.Errorf("videos service is not configured")
	}
	if sess.Role != authdomain.RoleCreator {
		return nil, ErrCreatorOnly
	}
	return s.users.ListUsersByRole(ctx, authdomain.RoleReviewer)
}

// validateSelection checks the creator's standing and resolves every
// selected reviewer before anything is written.
func (s *Service) validateSelection(ctx context.Context, creatorUserID string, reviewerIDs []string) ([]authdomain.User, error) {
	creator, err := s.users.GetUser(ctx, creatorUserID)
	if err != nil {
		return nil, fmt.Errorf("load creator: %w", err)
	}
	if !creator.AuthApproved {
		return nil, ErrApprovalRequired
	}

	reviewers := make([]authdomain.User, 0, len(reviewerIDs))
	for _, reviewerID := range reviewerIDs {
		reviewer, err := s.users.GetUser(ctx, reviewerID)
		if err != nil {
			if errors.Is(err, authstorage.ErrNotFound) {
				return nil, ErrNotAReviewer
			}
			return nil, fmt.Errorf("load reviewer: %w", err)
		}
		if reviewer.Role != authdomain.RoleReviewer {
			return nil, ErrNotAReviewer
		}
		reviewers = append(reviewers, reviewer)
	}
	return reviewers, nil
}

func (s *Service) openRequests(ctx context.Context, videoID string, reviewers []authdomain.User) ([]verifdomain.Request, error) {
	requests := make([]verifdomain.Request, 0, len(reviewers))
	for _, reviewer := range reviewers {
		requestID, err := s.idGenerator()
		if err != nil {
			return nil, err
		}
		request := verifdomain.Request{
			ID:             requestID,
			VideoID:        videoID,
			ReviewerUserID: reviewer.ID,
			Status:         verifdomain.StatusPending,
			CreatedAt:      s.clock().UTC(),
		}
		if err := s.requests.PutRequest(ctx, request); err != nil {
			return nil, fmt.Errorf("open verification request: %w", err)
		}
		requests = append(requests, request)
	}
	return requests, nil
}
