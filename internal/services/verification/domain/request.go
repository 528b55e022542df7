// Package domain implements the verification request state machine.
package domain

import (
	"strings"
	"time"

	apperrors "github.com/veravid/veravid/internal/platform/errors"
)

// Status is a verification request state. Requests move from pending to
// exactly one terminal state and never transition again.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	StatusIgnored  Status = "ignored"
)

// Valid reports whether the status belongs to the closed set.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected, StatusIgnored:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusVerified, StatusRejected, StatusIgnored:
		return true
	default:
		return false
	}
}

// Action is a reviewer decision on a pending request.
type Action string

const (
	ActionVerify Action = "verify"
	ActionReject Action = "reject"
	ActionIgnore Action = "ignore"
)

// ErrUnknownAction indicates an action outside the closed set.
var ErrUnknownAction = apperrors.EK(apperrors.KindInvalidInput, "verification.unknown_action", "action must be verify, reject, or ignore")

// ParseAction maps a raw string onto the closed action set.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionVerify:
		return ActionVerify, nil
	case ActionReject:
		return ActionReject, nil
	case ActionIgnore:
		return ActionIgnore, nil
	default:
		return "", ErrUnknownAction
	}
}

// RequiresAssertion reports whether the action must be backed by a passkey
// assertion. Ignoring a request never touches credentials.
func (a Action) RequiresAssertion() bool {
	switch a {
	case ActionVerify, ActionReject:
		return true
	default:
		return false
	}
}

// TerminalStatus maps an action to the state it produces.
func (a Action) TerminalStatus() Status {
	switch a {
	case ActionVerify:
		return StatusVerified
	case ActionReject:
		return StatusRejected
	case ActionIgnore:
		return StatusIgnored
	default:
		return ""
	}
}

// Request asks one reviewer to attest one video.
type Request struct {
	ID             string
	VideoID        string
	ReviewerUserID string
	Status         Status
	CreatedAt      time.Time
	// ProcessedAt is stamped exactly once, at the terminal transition.
	ProcessedAt *time.Time
}
