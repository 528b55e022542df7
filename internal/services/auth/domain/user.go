// Package domain provides auth user management.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/veravid/veravid/internal/platform/errors"
	"github.com/veravid/veravid/internal/platform/id"
)

// Role is the closed set of account roles. Role checks are exhaustive
// switches on this type, never membership tests against string lists.
type Role string

const (
	RoleCreator  Role = "creator"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

var (
	// ErrEmptyDisplayName indicates a missing display name.
	ErrEmptyDisplayName = apperrors.EK(apperrors.KindInvalidInput, "user.display_name_required", "display name is required")
	// ErrUnknownRole indicates a role outside the closed set.
	ErrUnknownRole = apperrors.EK(apperrors.KindInvalidInput, "user.unknown_role", "role must be creator, reviewer, or admin")
)

// ParseRole maps a raw string onto the closed role set.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleCreator:
		return RoleCreator, nil
	case RoleReviewer:
		return RoleReviewer, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrUnknownRole
	}
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleCreator, RoleReviewer, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents an account identity record.
type User struct {
	ID          string
	Role        Role
	DisplayName string
	Title       string
	Country     string
	// AuthApproved is creator standing: required before the creator may
	// request verification of a video.
	AuthApproved bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUserInput describes the metadata needed to create a user.
type CreateUserInput struct {
	Role        Role
	DisplayName string
	Title       string
	Country     string
}

// CreateUser creates a durable user identity from validated input.
func CreateUser(input CreateUserInput, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateUserInput(input)
	if err != nil {
		return User{}, err
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	createdAt := now().UTC()
	return User{
		ID:          userID,
		Role:        normalized.Role,
		DisplayName: normalized.DisplayName,
		Title:       normalized.Title,
		Country:     normalized.Country,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// NormalizeCreateUserInput trims and validates input before use.
func NormalizeCreateUserInput(input CreateUserInput) (CreateUserInput, error) {
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if input.DisplayName == "" {
		return CreateUserInput{}, ErrEmptyDisplayName
	}
	if !input.Role.Valid() {
		return CreateUserInput{}, ErrUnknownRole
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Country = strings.ToUpper(strings.TrimSpace(input.Country))
	return input, nil
}
