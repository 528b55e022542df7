package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Role
		wantErr bool
	}{
		{name: "creator", raw: "creator", want: RoleCreator},
		{name: "reviewer trimmed", raw: "  reviewer ", want: RoleReviewer},
		{name: "admin mixed case", raw: "Admin", want: RoleAdmin},
		{name: "unknown", raw: "superuser", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRole(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownRole) {
					t.Fatalf("ParseRole(%q) error = %v, want ErrUnknownRole", tc.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRole(%q) error = %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("ParseRole(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestRoleValid(t *testing.T) {
	for _, role := range []Role{RoleCreator, RoleReviewer, RoleAdmin} {
		if !role.Valid() {
			t.Fatalf("Valid() = false for %q", role)
		}
	}
	if Role("moderator").Valid() {
		t.Fatal("Valid() = true for role outside the closed set")
	}
}

func TestCreateUser(t *testing.T) {
	fixedNow := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixedNow }
	idGen := func() (string, error) { return "user-1", nil }

	got, err := CreateUser(CreateUserInput{
		Role:        RoleReviewer,
		DisplayName: "  Ada Review ",
		Title:       " Film Critic ",
		Country:     "ca",
	}, clock, idGen)
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	if got.ID != "user-1" {
		t.Fatalf("ID = %q, want user-1", got.ID)
	}
	if got.DisplayName != "Ada Review" {
		t.Fatalf("DisplayName = %q, want trimmed value", got.DisplayName)
	}
	if got.Title != "Film Critic" {
		t.Fatalf("Title = %q, want trimmed value", got.Title)
	}
	if got.Country != "CA" {
		t.Fatalf("Country = %q, want CA", got.Country)
	}
	if got.AuthApproved {
		t.Fatal("AuthApproved should start false")
	}
	if !got.CreatedAt.Equal(fixedNow) || !got.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("timestamps = %v/%v, want %v", got.CreatedAt, got.UpdatedAt, fixedNow)
	}
}

func TestCreateUserRejectsEmptyDisplayName(t *testing.T) {
	_, err := CreateUser(CreateUserInput{Role: RoleCreator, DisplayName: "   "}, nil, nil)
	if !errors.Is(err, ErrEmptyDisplayName) {
		t.Fatalf("error = %v, want ErrEmptyDisplayName", err)
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	_, err := CreateUser(CreateUserInput{Role: Role("guest"), DisplayName: "Someone"}, nil, nil)
	if !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("error = %v, want ErrUnknownRole", err)
	}
}
