// Package sqlite implements the notifications storage interfaces on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/veravid/veravid/internal/platform/storage/sqlitemigrate"
	"github.com/veravid/veravid/internal/services/notifications/domain"
	"github.com/veravid/veravid/internal/services/notifications/storage"
	"github.com/veravid/veravid/internal/services/notifications/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const notificationColumns = "id, recipient_user_id, topic, payload_json, dedupe_key, source, created_at, updated_at, read_at"

// Store provides SQLite-backed persistence for notifications.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a notifications SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutNotification inserts one notification. A dedupe-key collision yields
// storage.ErrConflict.
func (s *Store) PutNotification(ctx context.Context, notification domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return fmt.Errorf("notification id is required")
	}
	if strings.TrimSpace(notification.RecipientUserID) == "" {
		return fmt.Errorf("recipient user id is required")
	}

	readAt := sql.NullInt64{}
	if notification.ReadAt != nil {
		readAt = sql.NullInt64{Int64: toMillis(*notification.ReadAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notifications (`+notificationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		notification.ID,
		notification.RecipientUserID,
		notification.Topic,
		notification.PayloadJSON,
		notification.DedupeKey,
		notification.Source,
		toMillis(notification.CreatedAt),
		toMillis(notification.UpdatedAt),
		readAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrConflict
		}
		return fmt.Errorf("put notification: %w", err)
	}
	return nil
}

// GetByRecipientAndDedupeKey looks up one notification by its dedupe key.
func (s *Store) GetByRecipientAndDedupeKey(ctx context.Context, recipientUserID, dedupeKey string) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Notification{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(recipientUserID) == "" || strings.TrimSpace(dedupeKey) == "" {
		return domain.Notification{}, fmt.Errorf("recipient user id and dedupe key are required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications WHERE recipient_user_id = ? AND dedupe_key = ?
`, recipientUserID, dedupeKey)
	notification, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Notification{}, storage.ErrNotFound
		}
		return domain.Notification{}, fmt.Errorf("get notification by dedupe key: %w", err)
	}
	return notification, nil
}

// ListByRecipient pages a recipient's inbox newest first. The page token is
// the ID of the last notification on the previous page.
func (s *Store) ListByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Page{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(recipientUserID) == "" {
		return domain.Page{}, fmt.Errorf("recipient user id is required")
	}
	if pageSize <= 0 {
		return domain.Page{}, fmt.Errorf("page size must be positive")
	}

	var (
		rows *sql.Rows
		err  error
	)
	pageToken = strings.TrimSpace(pageToken)
	if pageToken == "" {
		rows, err = s.sqlDB.QueryContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications WHERE recipient_user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, recipientUserID, pageSize+1)
	} else {
		cursor, cursorErr := s.notificationCursor(ctx, recipientUserID, pageToken)
		if cursorErr != nil {
			return domain.Page{}, cursorErr
		}
		rows, err = s.sqlDB.QueryContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE recipient_user_id = ?
  AND (created_at < ? OR (created_at = ? AND id < ?))
ORDER BY created_at DESC, id DESC
LIMIT ?
`, recipientUserID, cursor, cursor, pageToken, pageSize+1)
	}
	if err != nil {
		return domain.Page{}, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0, pageSize)
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return domain.Page{}, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, notification)
	}
	if err := rows.Err(); err != nil {
		return domain.Page{}, fmt.Errorf("iterate notifications: %w", err)
	}

	page := domain.Page{Notifications: notifications}
	if len(notifications) > pageSize {
		page.Notifications = notifications[:pageSize]
		page.NextPageToken = notifications[pageSize-1].ID
	}
	return page, nil
}

func (s *Store) notificationCursor(ctx context.Context, recipientUserID, notificationID string) (int64, error) {
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT created_at FROM notifications WHERE recipient_user_id = ? AND id = ?
`, recipientUserID, notificationID).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("resolve page token: %w", err)
	}
	return createdAt, nil
}

// MarkRead stamps ReadAt once; repeat acknowledgements keep the original.
func (s *Store) MarkRead(ctx context.Context, recipientUserID, notificationID string, readAt time.Time) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Notification{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(recipientUserID) == "" || strings.TrimSpace(notificationID) == "" {
		return domain.Notification{}, fmt.Errorf("recipient user id and notification id are required")
	}

	stamp := toMillis(readAt)
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notifications SET read_at = COALESCE(read_at, ?), updated_at = ?
WHERE id = ? AND recipient_user_id = ?
`, stamp, stamp, notificationID, recipientUserID)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return domain.Notification{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications WHERE id = ? AND recipient_user_id = ?
`, notificationID, recipientUserID)
	notification, err := scanNotification(row)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("load notification: %w", err)
	}
	return notification, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		notification domain.Notification
		createdAt    int64
		updatedAt    int64
		readAt       sql.NullInt64
	)
	if err := row.Scan(
		&notification.ID,
		&notification.RecipientUserID,
		&notification.Topic,
		&notification.PayloadJSON,
		&notification.DedupeKey,
		&notification.Source,
		&createdAt,
		&updatedAt,
		&readAt,
	); err != nil {
		return domain.Notification{}, err
	}
	notification.CreatedAt = fromMillis(createdAt)
	notification.UpdatedAt = fromMillis(updatedAt)
	if readAt.Valid {
		value := fromMillis(readAt.Int64)
		notification.ReadAt = &value
	}
	return notification, nil
}
