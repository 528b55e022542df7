// Package render turns stored notification artifacts into localized,
// human-readable copy.
package render

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/message"
)

const (
	// TopicVerificationProcessed is the template id for decision outcomes.
	TopicVerificationProcessed = "verification.request.processed"

	defaultGenericTitle = "Notification"
	defaultGenericBody  = "You have a new notification."
)

// Input is one render request for a stored notification artifact.
type Input struct {
	Topic       string
	PayloadJSON string
}

// Output is localized copy derived from one notification artifact.
type Output struct {
	Title string
	Body  string
}

// Localizer is the minimal message-printer contract required by the
// renderer. *message.Printer satisfies it.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

type decisionPayload struct {
	VideoID    string `json:"video_id"`
	VideoTitle string `json:"video_title"`
	Status     string `json:"status"`
}

// Render returns localized copy for one notification artifact.
func Render(loc Localizer, input Input) Output {
	switch normalizeToken(input.Topic) {
	case TopicVerificationProcessed:
		return renderVerificationProcessed(loc, input)
	default:
		return genericOutput(loc)
	}
}

func renderVerificationProcessed(loc Localizer, input Input) Output {
	payload := decisionPayload{}
	if raw := strings.TrimSpace(input.PayloadJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return genericOutput(loc)
		}
	}

	videoTitle := strings.TrimSpace(payload.VideoTitle)
	if videoTitle == "" {
		videoTitle = payload.VideoID
	}

	bodyKey := "notification.verification_processed.body." + normalizeToken(payload.Status)
	switch normalizeToken(payload.Status) {
	case "verified", "rejected", "ignored":
	default:
		return genericOutput(loc)
	}

	title := localize(loc, "notification.verification_processed.title")
	body := localize(loc, bodyKey, videoTitle)
	if title == "notification.verification_processed.title" || body == bodyKey {
		return genericOutput(loc)
	}
	return Output{Title: title, Body: body}
}

func genericOutput(loc Localizer) Output {
	return Output{
		Title: localizeWithFallback(loc, "notification.generic.title", defaultGenericTitle),
		Body:  localizeWithFallback(loc, "notification.generic.body", defaultGenericBody),
	}
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		if asString, ok := key.(string); ok {
			return asString
		}
		return ""
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
