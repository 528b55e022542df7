package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/veravid/veravid/internal/services/verification/domain"
	"github.com/veravid/veravid/internal/services/verification/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "verification.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func pendingRequest(id, videoID, reviewerID string) domain.Request {
	return domain.Request{
		ID:             id,
		VideoID:        videoID,
		ReviewerUserID: reviewerID,
		Status:         domain.StatusPending,
		CreatedAt:      time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC),
	}
}

func TestPutGetRequest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := pendingRequest("req-1", "video-1", "reviewer-1")
	if err := store.PutRequest(ctx, want); err != nil {
		t.Fatalf("put request: %v", err)
	}

	got, err := store.GetRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.ID != want.ID || got.VideoID != want.VideoID || got.Status != domain.StatusPending {
		t.Fatalf("GetRequest = %+v, want %+v", got, want)
	}
	if got.ProcessedAt != nil {
		t.Fatal("ProcessedAt should be nil for a pending request")
	}
}

func TestGetRequestNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetRequest(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestListPendingByReviewer(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, request := range []domain.Request{
		pendingRequest("req-1", "video-1", "reviewer-1"),
		pendingRequest("req-2", "video-2", "reviewer-1"),
		pendingRequest("req-3", "video-3", "reviewer-2"),
	} {
		if err := store.PutRequest(ctx, request); err != nil {
			t.Fatalf("put request %s: %v", request.ID, err)
		}
	}
	if _, err := store.MarkProcessed(ctx, "req-2", domain.StatusIgnored, time.Now()); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	pending, err := store.ListPendingByReviewer(ctx, "reviewer-1")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "req-1" {
		t.Fatalf("pending = %+v, want only req-1", pending)
	}
}

func TestMarkProcessedStampsProcessedAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutRequest(ctx, pendingRequest("req-1", "video-1", "reviewer-1")); err != nil {
		t.Fatalf("put request: %v", err)
	}

	processedAt := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	got, err := store.MarkProcessed(ctx, "req-1", domain.StatusVerified, processedAt)
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if got.Status != domain.StatusVerified {
		t.Fatalf("Status = %q, want verified", got.Status)
	}
	if got.ProcessedAt == nil || !got.ProcessedAt.Equal(processedAt) {
		t.Fatalf("ProcessedAt = %v, want %v", got.ProcessedAt, processedAt)
	}
}

func TestMarkProcessedIsOneWay(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutRequest(ctx, pendingRequest("req-1", "video-1", "reviewer-1")); err != nil {
		t.Fatalf("put request: %v", err)
	}

	first := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	if _, err := store.MarkProcessed(ctx, "req-1", domain.StatusRejected, first); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	_, err := store.MarkProcessed(ctx, "req-1", domain.StatusVerified, first.Add(time.Minute))
	if !errors.Is(err, storage.ErrNotPending) {
		t.Fatalf("error = %v, want ErrNotPending", err)
	}

	got, err := store.GetRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != domain.StatusRejected {
		t.Fatalf("Status = %q, terminal state must not change", got.Status)
	}
	if got.ProcessedAt == nil || !got.ProcessedAt.Equal(first) {
		t.Fatalf("ProcessedAt = %v, want original stamp %v", got.ProcessedAt, first)
	}
}

func TestMarkProcessedMissingRequest(t *testing.T) {
	store := openTestStore(t)

	_, err := store.MarkProcessed(context.Background(), "missing", domain.StatusVerified, time.Now())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestMarkProcessedRejectsNonTerminalStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutRequest(ctx, pendingRequest("req-1", "video-1", "reviewer-1")); err != nil {
		t.Fatalf("put request: %v", err)
	}

	if _, err := store.MarkProcessed(ctx, "req-1", domain.StatusPending, time.Now()); err == nil {
		t.Fatal("expected error for non-terminal status")
	}
}

func TestListByVideo(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, request := range []domain.Request{
		pendingRequest("req-1", "video-1", "reviewer-1"),
		pendingRequest("req-2", "video-1", "reviewer-2"),
		pendingRequest("req-3", "video-2", "reviewer-1"),
	} {
		if err := store.PutRequest(ctx, request); err != nil {
			t.Fatalf("put request %s: %v", request.ID, err)
		}
	}

	requests, err := store.ListByVideo(ctx, "video-1")
	if err != nil {
		t.Fatalf("list by video: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("len(requests) = %d, want 2", len(requests))
	}
}
