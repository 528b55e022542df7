package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/veravid/veravid/internal/services/auth/domain"
	"github.com/veravid/veravid/internal/services/auth/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testUser(id string, role domain.Role) domain.User {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.User{
		ID:          id,
		Role:        role,
		DisplayName: "Display " + id,
		Title:       "Critic",
		Country:     "CA",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPutGetUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := testUser("user-1", domain.RoleReviewer)
	if err := store.PutUser(ctx, want); err != nil {
		t.Fatalf("put user: %v", err)
	}

	got, err := store.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got != want {
		t.Fatalf("GetUser = %+v, want %+v", got, want)
	}
}

func TestGetUserNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetUser(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPutUserUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u := testUser("user-1", domain.RoleCreator)
	if err := store.PutUser(ctx, u); err != nil {
		t.Fatalf("put user: %v", err)
	}

	u.DisplayName = "Renamed"
	u.UpdatedAt = u.UpdatedAt.Add(time.Hour)
	if err := store.PutUser(ctx, u); err != nil {
		t.Fatalf("put user again: %v", err)
	}

	got, err := store.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.DisplayName != "Renamed" {
		t.Fatalf("DisplayName = %q, want Renamed", got.DisplayName)
	}
	if !got.UpdatedAt.Equal(u.UpdatedAt) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, u.UpdatedAt)
	}
}

func TestListUsersByRole(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, u := range []domain.User{
		testUser("reviewer-1", domain.RoleReviewer),
		testUser("creator-1", domain.RoleCreator),
		testUser("reviewer-2", domain.RoleReviewer),
	} {
		if err := store.PutUser(ctx, u); err != nil {
			t.Fatalf("put user %s: %v", u.ID, err)
		}
	}

	reviewers, err := store.ListUsersByRole(ctx, domain.RoleReviewer)
	if err != nil {
		t.Fatalf("list reviewers: %v", err)
	}
	if len(reviewers) != 2 {
		t.Fatalf("len(reviewers) = %d, want 2", len(reviewers))
	}
	for _, u := range reviewers {
		if u.Role != domain.RoleReviewer {
			t.Fatalf("role = %q, want reviewer", u.Role)
		}
	}
}

func TestSetAuthApproved(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u := testUser("creator-1", domain.RoleCreator)
	if err := store.PutUser(ctx, u); err != nil {
		t.Fatalf("put user: %v", err)
	}

	approvedAt := u.UpdatedAt.Add(time.Hour)
	if err := store.SetAuthApproved(ctx, "creator-1", true, approvedAt); err != nil {
		t.Fatalf("set auth approved: %v", err)
	}

	got, err := store.GetUser(ctx, "creator-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !got.AuthApproved {
		t.Fatal("AuthApproved = false, want true")
	}
	if !got.UpdatedAt.Equal(approvedAt) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, approvedAt)
	}

	if err := store.SetAuthApproved(ctx, "missing", true, approvedAt); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
