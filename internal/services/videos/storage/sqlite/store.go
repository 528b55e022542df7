// Package sqlite implements the videos storage interfaces on SQLite.
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
	"github.com/veravid/veravid/internal/services/videos/domain"
	"github.com/veravid/veravid/internal/services/videos/storage"
	"github.com/veravid/veravid/internal/services/videos/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for videos.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a videos SQLite store at the provided path.
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

// PutVideo inserts or replaces a video.
func (s *Store) PutVideo(ctx context.Context, video domain.Video) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(video.ID) == "" {
		return fmt.Errorf("video id is required")
	}
	if strings.TrimSpace(video.OwnerUserID) == "" {
		return fmt.Errorf("owner user id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO videos (id, owner_user_id, title, description, upload_url, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    title = excluded.title,
    description = excluded.description,
    upload_url = excluded.upload_url
`,
		video.ID,
		video.OwnerUserID,
		video.Title,
		video.Description,
		video.UploadURL,
		toMillis(video.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put video: %w", err)
	}
	return nil
}

// GetVideo fetches a video by ID.
func (s *Store) GetVideo(ctx context.Context, videoID string) (domain.Video, error) {
	if err := ctx.Err(); err != nil {
		return domain.Video{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Video{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(videoID) == "" {
		return domain.Video{}, fmt.Errorf("video id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, owner_user_id, title, description, upload_url, created_at
FROM videos WHERE id = ?
`, videoID)
	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Video{}, storage.ErrNotFound
		}
		return domain.Video{}, fmt.Errorf("get video: %w", err)
	}
	return video, nil
}

// ListByOwner returns a creator's videos, oldest first.
func (s *Store) ListByOwner(ctx context.Context, ownerUserID string) ([]domain.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(ownerUserID) == "" {
		return nil, fmt.Errorf("owner user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, owner_user_id, title, description, upload_url, created_at
FROM videos WHERE owner_user_id = ? ORDER BY created_at ASC, id ASC
`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("list videos by owner: %w", err)
	}
	defer rows.Close()

	videos := make([]domain.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (domain.Video, error) {
	var (
		video     domain.Video
		createdAt int64
	)
	if err := row.Scan(&video.ID, &video.OwnerUserID, &video.Title, &video.Description, &video.UploadURL, &createdAt); err != nil {
		return domain.Video{}, err
	}
	video.CreatedAt = fromMillis(createdAt)
	return video, nil
}
