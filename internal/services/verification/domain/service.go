package domain

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/veravid/veravid/internal/platform/errors"
	authdomain "github.com/veravid/veravid/internal/services/auth/domain"
	"github.com/veravid/veravid/internal/services/auth/passkey"
	"github.com/veravid/veravid/internal/services/auth/session"
)

var (
	// ErrReviewerOnly indicates a caller without the reviewer role.
	ErrReviewerOnly = apperrors.EK(apperrors.KindForbidden, "verification.reviewer_only", "decisions require the reviewer role")
	// ErrNotRequestOwner indicates a request addressed to another reviewer.
	ErrNotRequestOwner = apperrors.EK(apperrors.KindForbidden, "verification.not_owner", "request is addressed to another reviewer")
	// ErrAlreadyProcessed indicates a decision on a non-pending request.
	ErrAlreadyProcessed = apperrors.EK(apperrors.KindFailedPrecondition, "verification.already_processed", "request has already been processed")
	// ErrEmptyBatch indicates a batch decision with no request IDs.
	ErrEmptyBatch = apperrors.EK(apperrors.KindInvalidInput, "verification.empty_batch", "at least one request id is required")
)

// RequestStore is the persistence surface the service needs. Satisfied by
// the SQLite store.
type RequestStore interface {
	PutRequest(ctx context.Context, request Request) error
	GetRequest(ctx context.Context, requestID string) (Request, error)
	ListPendingByReviewer(ctx context.Context, reviewerUserID string) ([]Request, error)
	ListByVideo(ctx context.Context, videoID string) ([]Request, error)
	MarkProcessed(ctx context.Context, requestID string, status Status, processedAt time.Time) (Request, error)
}

// AssertionVerifier runs the authentication flow against the session's
// in-flight challenge. Satisfied by the passkey service.
type AssertionVerifier interface {
	VerifyAssertion(ctx context.Context, sess session.Session, rp passkey.RelyingParty, responseJSON []byte) (string, error)
}

// Notifier delivers decision outcomes to video owners. Delivery is
// fire-and-forget from the decision path; failures are logged only.
type Notifier interface {
	RequestProcessed(ctx context.Context, request Request) error
}

// BatchItemError reports one failed apply within a batch decision.
type BatchItemError struct {
	RequestID string
	Err       error
}

// BatchResult reports per-item outcomes of a batch decision.
type BatchResult struct {
	Processed []Request
	Failed    []BatchItemError
}

// Service applies reviewer decisions to verification requests.
type Service struct {
	requests RequestStore
	verifier AssertionVerifier
	notifier Notifier
	logger   *log.Logger
	clock    func() time.Time
	tracer   trace.Tracer
}

// NewService builds a decision service.
func NewService(requests RequestStore, verifier AssertionVerifier, notifier Notifier, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		requests: requests,
		verifier: verifier,
		notifier: notifier,
		logger:   logger,
		clock:    time.Now,
		tracer:   otel.Tracer("veravid/verification"),
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// PendingQueue returns the caller's pending requests, oldest first.
func (s *Service) PendingQueue(ctx context.Context, sess session.Session) ([]Request, error) {
	if sess.Role != authdomain.RoleReviewer {
		return nil, ErrReviewerOnly
	}
	return s.requests.ListPendingByReviewer(ctx, sess.UserID)
}

// Decide applies one reviewer decision to one pending request. Validation
// and verification failures leave the request pending and unmodified.
func (s *Service) Decide(ctx context.Context, sess session.Session, rp passkey.RelyingParty, requestID string, action Action, assertionJSON []byte) (Request, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Decide",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("decision.action", string(action)),
		))
	defer span.End()

	request, err := s.validateDecision(ctx, sess, requestID, action)
	if err != nil {
		return Request{}, err
	}

	if action.RequiresAssertion() {
		if _, err := s.verifier.VerifyAssertion(ctx, sess, rp, assertionJSON); err != nil {
			return Request{}, err
		}
	}

	processed, err := s.apply(ctx, request.ID, action)
	if err != nil {
		return Request{}, err
	}

	s.notify(ctx, processed)
	return processed, nil
}

// DecideBatch applies one decision to many pending requests under a single
// assertion. Validation is all-or-nothing with zero side effects; apply-phase
// faults are the sole tolerated partial effect and are reported per item.
func (s *Service) DecideBatch(ctx context.Context, sess session.Session, rp passkey.RelyingParty, requestIDs []string, action Action, assertionJSON []byte) (BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.DecideBatch",
		trace.WithAttributes(
			attribute.Int("batch.size", len(requestIDs)),
			attribute.String("decision.action", string(action)),
		))
	defer span.End()

	if len(requestIDs) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	if sess.Role != authdomain.RoleReviewer {
		return BatchResult{}, ErrReviewerOnly
	}
	if action.TerminalStatus() == "" {
		return BatchResult{}, ErrUnknownAction
	}

	// Validation phase: concurrent reads, all complete before any write.
	validationErrs := make([]error, len(requestIDs))
	var wg sync.WaitGroup
	for i, requestID := range requestIDs {
		wg.Add(1)
		go func(i int, requestID string) {
			defer wg.Done()
			_, validationErrs[i] = s.validateDecision(ctx, sess, requestID, action)
		}(i, requestID)
	}
	wg.Wait()
	for _, err := range validationErrs {
		if err != nil {
			return BatchResult{}, err
		}
	}

	// One shared verification for the whole batch.
	if action.RequiresAssertion() {
		if _, err := s.verifier.VerifyAssertion(ctx, sess, rp, assertionJSON); err != nil {
			return BatchResult{}, err
		}
	}

	// Apply phase: independent concurrent writes; a fault on one item never
	// rolls back or blocks siblings.
	processed := make([]*Request, len(requestIDs))
	applyErrs := make([]error, len(requestIDs))
	for i, requestID := range requestIDs {
		wg.Add(1)
		go func(i int, requestID string) {
			defer wg.Done()
			request, err := s.apply(ctx, requestID, action)
			if err != nil {
				applyErrs[i] = err
				return
			}
			processed[i] = &request
		}(i, requestID)
	}
	wg.Wait()

	var result BatchResult
	for i, requestID := range requestIDs {
		if applyErrs[i] != nil {
			result.Failed = append(result.Failed, BatchItemError{RequestID: requestID, Err: applyErrs[i]})
			continue
		}
		result.Processed = append(result.Processed, *processed[i])
	}

	for _, request := range result.Processed {
		s.notify(ctx, request)
	}
	return result, nil
}

func (s *Service) validateDecision(ctx context.Context, sess session.Session, requestID string, action Action) (Request, error) {
	if sess.Role != authdomain.RoleReviewer {
		return Request{}, ErrReviewerOnly
	}
	if action.TerminalStatus() == "" {
		return Request{}, ErrUnknownAction
	}

	request, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if request.ReviewerUserID != sess.UserID {
		return Request{}, ErrNotRequestOwner
	}
	if request.Status != StatusPending {
		return Request{}, ErrAlreadyProcessed
	}
	return request, nil
}

func (s *Service) apply(ctx context.Context, requestID string, action Action) (Request, error) {
	processed, err := s.requests.MarkProcessed(ctx, requestID, action.TerminalStatus(), s.clock().UTC())
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindFailedPrecondition {
			return Request{}, ErrAlreadyProcessed
		}
		return Request{}, fmt.Errorf("mark processed: %w", err)
	}
	return processed, nil
}

func (s *Service) notify(ctx context.Context, request Request) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.RequestProcessed(ctx, request); err != nil {
		s.logger.Printf("notify request %s: %v", request.ID, err)
	}
}
