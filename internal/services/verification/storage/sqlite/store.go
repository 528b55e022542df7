// Package sqlite implements the verification storage interfaces on SQLite.
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
	"github.com/veravid/veravid/internal/services/verification/domain"
	"github.com/veravid/veravid/internal/services/verification/storage"
	"github.com/veravid/veravid/internal/services/verification/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for verification requests.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a verification SQLite store at the provided path.
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

// PutRequest inserts or replaces a verification request.
func (s *Store) PutRequest(ctx context.Context, request domain.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(request.ID) == "" {
		return fmt.Errorf("request id is required")
	}
	if strings.TrimSpace(request.VideoID) == "" {
		return fmt.Errorf("video id is required")
	}
	if strings.TrimSpace(request.ReviewerUserID) == "" {
		return fmt.Errorf("reviewer user id is required")
	}
	if !request.Status.Valid() {
		return fmt.Errorf("request status %q is not valid", request.Status)
	}

	processed := sql.NullInt64{}
	if request.ProcessedAt != nil {
		processed = sql.NullInt64{Int64: toMillis(*request.ProcessedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO verification_requests (id, video_id, reviewer_user_id, status, created_at, processed_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    status = excluded.status,
    processed_at = excluded.processed_at
`,
		request.ID,
		request.VideoID,
		request.ReviewerUserID,
		string(request.Status),
		toMillis(request.CreatedAt),
		processed,
	)
	if err != nil {
		return fmt.Errorf("put request: %w", err)
	}
	return nil
}

// GetRequest fetches a verification request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID string) (domain.Request, error) {
	if err := ctx.Err(); err != nil {
		return domain.Request{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Request{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(requestID) == "" {
		return domain.Request{}, fmt.Errorf("request id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, video_id, reviewer_user_id, status, created_at, processed_at
FROM verification_requests WHERE id = ?
`, requestID)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Request{}, storage.ErrNotFound
		}
		return domain.Request{}, fmt.Errorf("get request: %w", err)
	}
	return request, nil
}

// ListPendingByReviewer returns a reviewer's pending queue, oldest first.
func (s *Store) ListPendingByReviewer(ctx context.Context, reviewerUserID string) ([]domain.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(reviewerUserID) == "" {
		return nil, fmt.Errorf("reviewer user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, video_id, reviewer_user_id, status, created_at, processed_at
FROM verification_requests
WHERE reviewer_user_id = ? AND status = ?
ORDER BY created_at ASC, id ASC
`, reviewerUserID, string(domain.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// ListByVideo returns every request attached to a video.
func (s *Store) ListByVideo(ctx context.Context, videoID string) ([]domain.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(videoID) == "" {
		return nil, fmt.Errorf("video id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, video_id, reviewer_user_id, status, created_at, processed_at
FROM verification_requests WHERE video_id = ? ORDER BY created_at ASC, id ASC
`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list requests by video: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// MarkProcessed transitions a pending request to a terminal status. The
// guard on the current status makes the one-way transition atomic even
// under concurrent batch applies.
func (s *Store) MarkProcessed(ctx context.Context, requestID string, status domain.Status, processedAt time.Time) (domain.Request, error) {
	if err := ctx.Err(); err != nil {
		return domain.Request{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Request{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(requestID) == "" {
		return domain.Request{}, fmt.Errorf("request id is required")
	}
	if !status.Terminal() {
		return domain.Request{}, fmt.Errorf("status %q is not terminal", status)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE verification_requests SET status = ?, processed_at = ?
WHERE id = ? AND status = ?
`, string(status), toMillis(processedAt), requestID, string(domain.StatusPending))
	if err != nil {
		return domain.Request{}, fmt.Errorf("mark processed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Request{}, fmt.Errorf("mark processed: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetRequest(ctx, requestID); getErr != nil {
			return domain.Request{}, getErr
		}
		return domain.Request{}, storage.ErrNotPending
	}

	return s.GetRequest(ctx, requestID)
}

func collectRequests(rows *sql.Rows) ([]domain.Request, error) {
	requests := make([]domain.Request, 0)
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return requests, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.Request, error) {
	var (
		request   domain.Request
		status    string
		createdAt int64
		processed sql.NullInt64
	)
	if err := row.Scan(&request.ID, &request.VideoID, &request.ReviewerUserID, &status, &createdAt, &processed); err != nil {
		return domain.Request{}, err
	}
	request.Status = domain.Status(status)
	request.CreatedAt = fromMillis(createdAt)
	if processed.Valid {
		value := fromMillis(processed.Int64)
		request.ProcessedAt = &value
	}
	return request, nil
}
