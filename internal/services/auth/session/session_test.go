package session

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/veravid/veravid/internal/services/auth/domain"
)

func setupTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, ttl), mr
}

func TestCreateGetRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t, time.Hour)
	ctx := context.Background()

	created, err := store.Create(ctx, "reviewer-1", domain.RoleReviewer)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.ID == "" {
		t.Fatal("session ID is empty")
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.UserID != "reviewer-1" || got.Role != domain.RoleReviewer {
		t.Fatalf("session = %+v, want reviewer-1/reviewer", got)
	}
	if len(got.ChallengeJSON) != 0 {
		t.Fatal("new session should have an empty challenge slot")
	}
}

func TestGetMissingSession(t *testing.T) {
	store, _ := setupTestStore(t, time.Hour)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSessionExpiresWithTTL(t *testing.T) {
	store, mr := setupTestStore(t, time.Minute)
	ctx := context.Background()

	created, err := store.Create(ctx, "reviewer-1", domain.RoleReviewer)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound after TTL", err)
	}
}

func TestPutChallengeOverwrites(t *testing.T) {
	store, _ := setupTestStore(t, time.Hour)
	ctx := context.Background()

	created, err := store.Create(ctx, "reviewer-1", domain.RoleReviewer)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := store.PutChallenge(ctx, created.ID, []byte(`{"challenge":"c1"}`)); err != nil {
		t.Fatalf("put first challenge: %v", err)
	}
	if err := store.PutChallenge(ctx, created.ID, []byte(`{"challenge":"c2"}`)); err != nil {
		t.Fatalf("put second challenge: %v", err)
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if string(got.ChallengeJSON) != `{"challenge":"c2"}` {
		t.Fatalf("ChallengeJSON = %s, want the second challenge", got.ChallengeJSON)
	}
}

func TestChallengeWriteKeepsSessionTTL(t *testing.T) {
	store, mr := setupTestStore(t, time.Minute)
	ctx := context.Background()

	created, err := store.Create(ctx, "reviewer-1", domain.RoleReviewer)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	mr.FastForward(30 * time.Second)
	if err := store.PutChallenge(ctx, created.ID, []byte(`{"challenge":"c1"}`)); err != nil {
		t.Fatalf("put challenge: %v", err)
	}
	mr.FastForward(45 * time.Second)

	if _, err := store.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound after original TTL", err)
	}
}

func TestClearChallenge(t *testing.T) {
	store, _ := setupTestStore(t, time.Hour)
	ctx := context.Background()

	created, err := store.Create(ctx, "reviewer-1", domain.RoleReviewer)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := store.PutChallenge(ctx, created.ID, []byte(`{"challenge":"c1"}`)); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	if err := store.ClearChallenge(ctx, created.ID); err != nil {
		t.Fatalf("clear challenge: %v", err)
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(got.ChallengeJSON) != 0 {
		t.Fatalf("ChallengeJSON = %s, want empty", got.ChallengeJSON)
	}
}

func TestDeleteSession(t *testing.T) {
	store, _ := setupTestStore(t, time.Hour)
	ctx := context.Background()

	created, err := store.Create(ctx, "reviewer-1", domain.RoleReviewer)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
