package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/platform/id"
	"github.com/veravid/veravid/internal/services/notifications/storage"
)

var (
	// ErrRecipientRequired rejects notifications without a recipient.
	ErrRecipientRequired = apperrors.EK(apperrors.KindInvalidInput, "notification.recipient_required", "recipient user id is required")
	// ErrTopicRequired rejects notifications without a topic.
	ErrTopicRequired = apperrors.EK(apperrors.KindInvalidInput, "notification.topic_required", "notification topic is required")
	// ErrNotificationIDRequired rejects acknowledgements without an ID.
	ErrNotificationIDRequired = apperrors.EK(apperrors.KindInvalidInput, "notification.id_required", "notification id is required")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Notification is one user-targeted inbox item.
type Notification struct {
	ID              string
	RecipientUserID string
	Topic           string
	PayloadJSON     string
	DedupeKey       string
	Source          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ReadAt          *time.Time
}

// Page is a paged recipient inbox view, newest first.
type Page struct {
	Notifications []Notification
	NextPageToken string
}

// CreateIntentInput describes one producer notification request.
type CreateIntentInput struct {
	RecipientUserID string
	Topic           string
	PayloadJSON     string
	DedupeKey       string
	Source          string
}

// ListInboxInput configures recipient inbox listing.
type ListInboxInput struct {
	RecipientUserID string
	PageSize        int
	PageToken       string
}

// Store is the persistence surface the service needs. Satisfied by the
// SQLite store.
type Store interface {
	PutNotification(ctx context.Context, notification Notification) error
	GetByRecipientAndDedupeKey(ctx context.Context, recipientUserID, dedupeKey string) (Notification, error)
	ListByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (Page, error)
	MarkRead(ctx context.Context, recipientUserID, notificationID string, readAt time.Time) (Notification, error)
}

// Service owns the recipient inbox lifecycle.
type Service struct {
	store       Store
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService builds a notifications service.
func NewService(store Store) *Service {
	return &Service{
		store:       store,
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

// CreateIntent stores one notification and de-duplicates by
// recipient+dedupe key: a repeated key returns the existing record.
func (s *Service) CreateIntent(ctx context.Context, input CreateIntentInput) (Notification, error) {
	if s == nil || s.store == nil {
		return Notification{}, errors.New("notification store is not configured")
	}
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return Notification{}, ErrRecipientRequired
	}
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return Notification{}, ErrTopicRequired
	}

	dedupeKey := strings.TrimSpace(input.DedupeKey)
	if dedupeKey != "" {
		existing, err := s.store.GetByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return Notification{}, err
		}
	}

	notificationID, err := s.idGenerator()
	if err != nil {
		return Notification{}, err
	}
	now := s.clock().UTC()
	notification := Notification{
		ID:              notificationID,
		RecipientUserID: recipientUserID,
		Topic:           topic,
		PayloadJSON:     strings.TrimSpace(input.PayloadJSON),
		DedupeKey:       dedupeKey,
		Source:          strings.TrimSpace(input.Source),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.PutNotification(ctx, notification); err != nil {
		// Lost a dedupe race; surface the winner.
		if dedupeKey != "" && errors.Is(err, storage.ErrConflict) {
			existing, lookupErr := s.store.GetByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
			if lookupErr == nil {
				return existing, nil
			}
			return Notification{}, err
		}
		return Notification{}, err
	}
	return notification, nil
}

// ListInbox lists recipient inbox notifications newest first.
func (s *Service) ListInbox(ctx context.Context, input ListInboxInput) (Page, error) {
	if s == nil || s.store == nil {
		return Page{}, errors.New("notification store is not configured")
	}
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return Page{}, ErrRecipientRequired
	}
	pageSize := input.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return s.store.ListByRecipient(ctx, recipientUserID, pageSize, strings.TrimSpace(input.PageToken))
}

// MarkRead acknowledges one recipient notification. Re-acknowledging keeps
// the original ReadAt.
func (s *Service) MarkRead(ctx context.Context, recipientUserID, notificationID string) (Notification, error) {
	if s == nil || s.store == nil {
		return Notification{}, errors.New("notification store is not configured")
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return Notification{}, ErrRecipientRequired
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return Notification{}, ErrNotificationIDRequired
	}
	return s.store.MarkRead(ctx, recipientUserID, notificationID, s.clock().UTC())
}
