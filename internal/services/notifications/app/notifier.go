// Package app wires the notifications service to its producers.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/veravid/veravid/internal/services/notifications/domain"
	"github.com/veravid/veravid/internal/services/notifications/registry"
	"github.com/veravid/veravid/internal/services/notifications/render"
	videodomain "github.com/veravid/veravid/internal/services/videos/domain"
	verifdomain "github.com/veravid/veravid/internal/services/verification/domain"
)

// VideoSource resolves the video a verification request points at.
// Satisfied by the videos SQLite store.
type VideoSource interface {
	GetVideo(ctx context.Context, videoID string) (videodomain.Video, error)
}

// DecisionNotifier turns processed verification requests into owner-facing
// inbox notifications and live events. It satisfies the verification
// service's Notifier contract.
type DecisionNotifier struct {
	videos        VideoSource
	notifications *domain.Service
	registry      registry.Registry
	printer       render.Localizer
	logger        *log.Logger
}

// NewDecisionNotifier builds the decision-outcome notifier.
func NewDecisionNotifier(videos VideoSource, notifications *domain.Service, reg registry.Registry, logger *log.Logger) *DecisionNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &DecisionNotifier{
		videos:        videos,
		notifications: notifications,
		registry:      reg,
		printer:       message.NewPrinter(language.English),
		logger:        logger,
	}
}

// WithLocalizer overrides the copy localizer.
func (n *DecisionNotifier) WithLocalizer(loc render.Localizer) *DecisionNotifier {
	if loc != nil {
		n.printer = loc
	}
	return n
}

type decisionPayload struct {
	RequestID  string `json:"request_id"`
	VideoID    string `json:"video_id"`
	VideoTitle string `json:"video_title"`
	Status     string `json:"status"`
}

// RequestProcessed records one decision outcome for the video owner. The
// dedupe key pins one notification per request+status, so a replayed
// producer call cannot double-notify.
func (n *DecisionNotifier) RequestProcessed(ctx context.Context, request verifdomain.Request) error {
	if n == nil || n.videos == nil || n.notifications == nil {
		return fmt.Errorf("decision notifier is not configured")
	}

	video, err := n.videos.GetVideo(ctx, request.VideoID)
	if err != nil {
		return fmt.Errorf("resolve video %s: %w", request.VideoID, err)
	}

	payload, err := json.Marshal(decisionPayload{
		RequestID:  request.ID,
		VideoID:    video.ID,
		VideoTitle: video.Title,
		Status:     string(request.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	notification, err := n.notifications.CreateIntent(ctx, domain.CreateIntentInput{
		RecipientUserID: video.OwnerUserID,
		Topic:           render.TopicVerificationProcessed,
		PayloadJSON:     string(payload),
		DedupeKey:       fmt.Sprintf("verification.%s.%s", request.ID, request.Status),
		Source:          "verification",
	})
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	if n.registry != nil {
		copy := render.Render(n.printer, render.Input{
			Topic:       notification.Topic,
			PayloadJSON: notification.PayloadJSON,
		})
		event := registry.Event{
			NotificationID:  notification.ID,
			RecipientUserID: notification.RecipientUserID,
			Topic:           notification.Topic,
			Title:           copy.Title,
			Body:            copy.Body,
			CreatedAt:       notification.CreatedAt,
		}
		if err := n.registry.Publish(ctx, event); err != nil {
			n.logger.Printf("notifications: publish event: %v", err)
		}
	}
	return nil
}
