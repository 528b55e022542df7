package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/veravid/veravid/internal/services/notifications/domain"
	"github.com/veravid/veravid/internal/services/notifications/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "notifications.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testNotification(id, recipient, dedupeKey string, createdAt time.Time) domain.Notification {
	return domain.Notification{
		ID:              id,
		RecipientUserID: recipient,
		Topic:           "verification.request.processed",
		PayloadJSON:     `{"video_id":"video-1","status":"verified"}`,
		DedupeKey:       dedupeKey,
		Source:          "verification",
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.PutNotification(ctx, testNotification("note-1", "creator-1", "key-1", created)); err != nil {
		t.Fatalf("PutNotification: %v", err)
	}
	got, err := store.GetByRecipientAndDedupeKey(ctx, "creator-1", "key-1")
	if err != nil {
		t.Fatalf("GetByRecipientAndDedupeKey: %v", err)
	}
	if got.ID != "note-1" || got.Topic != "verification.request.processed" || got.ReadAt != nil {
		t.Fatalf("got %+v", got)
	}
}

func TestPutNotificationConflictsOnDedupeKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.PutNotification(ctx, testNotification("note-1", "creator-1", "key-1", created)); err != nil {
		t.Fatalf("PutNotification: %v", err)
	}
	err := store.PutNotification(ctx, testNotification("note-2", "creator-1", "key-1", created))
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestPutNotificationAllowsEmptyDedupeKeys(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		notification := testNotification(fmt.Sprintf("note-%d", i), "creator-1", "", created)
		if err := store.PutNotification(ctx, notification); err != nil {
			t.Fatalf("PutNotification %d: %v", i, err)
		}
	}
}

func TestListByRecipientPagesNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		notification := testNotification(fmt.Sprintf("note-%d", i), "creator-1", fmt.Sprintf("key-%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := store.PutNotification(ctx, notification); err != nil {
			t.Fatalf("PutNotification: %v", err)
		}
	}

	first, err := store.ListByRecipient(ctx, "creator-1", 2, "")
	if err != nil {
		t.Fatalf("ListByRecipient: %v", err)
	}
	if len(first.Notifications) != 2 || first.Notifications[0].ID != "note-4" || first.Notifications[1].ID != "note-3" {
		t.Fatalf("first page = %+v", first.Notifications)
	}
	if first.NextPageToken != "note-3" {
		t.Fatalf("token = %q, want note-3", first.NextPageToken)
	}

	second, err := store.ListByRecipient(ctx, "creator-1", 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("ListByRecipient page 2: %v", err)
	}
	if len(second.Notifications) != 2 || second.Notifications[0].ID != "note-2" || second.Notifications[1].ID != "note-1" {
		t.Fatalf("second page = %+v", second.Notifications)
	}

	last, err := store.ListByRecipient(ctx, "creator-1", 2, second.NextPageToken)
	if err != nil {
		t.Fatalf("ListByRecipient page 3: %v", err)
	}
	if len(last.Notifications) != 1 || last.NextPageToken != "" {
		t.Fatalf("last page = %+v token = %q", last.Notifications, last.NextPageToken)
	}
}

func TestMarkReadStampsOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.PutNotification(ctx, testNotification("note-1", "creator-1", "key-1", created)); err != nil {
		t.Fatalf("PutNotification: %v", err)
	}

	first, err := store.MarkRead(ctx, "creator-1", "note-1", created.Add(time.Hour))
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if first.ReadAt == nil || !first.ReadAt.Equal(created.Add(time.Hour)) {
		t.Fatalf("ReadAt = %v", first.ReadAt)
	}

	second, err := store.MarkRead(ctx, "creator-1", "note-1", created.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("MarkRead repeat: %v", err)
	}
	if !second.ReadAt.Equal(*first.ReadAt) {
		t.Fatalf("ReadAt changed: %v -> %v", first.ReadAt, second.ReadAt)
	}
}

func TestMarkReadForeignRecipient(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutNotification(ctx, testNotification("note-1", "creator-1", "key-1", time.Now())); err != nil {
		t.Fatalf("PutNotification: %v", err)
	}
	if _, err := store.MarkRead(ctx, "creator-2", "note-1", time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
