package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/veravid/veravid/internal/services/auth/storage"
)

const credentialColumns = `credential_id, user_id, public_key, sign_count, transports,
backup_eligible, backup_state, created_at, updated_at, last_used_at`

// PutCredential inserts or replaces a WebAuthn credential.
func (s *Store) PutCredential(ctx context.Context, credential storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credential.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(credential.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if len(credential.PublicKey) == 0 {
		return fmt.Errorf("public key is required")
	}

	lastUsed := sql.NullInt64{}
	if credential.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: toMillis(*credential.LastUsedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO credentials (`+credentialColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (credential_id) DO UPDATE SET
    public_key = excluded.public_key,
    sign_count = excluded.sign_count,
    transports = excluded.transports,
    backup_eligible = excluded.backup_eligible,
    backup_state = excluded.backup_state,
    updated_at = excluded.updated_at,
    last_used_at = excluded.last_used_at
`,
		credential.CredentialID,
		credential.UserID,
		credential.PublicKey,
		int64(credential.SignCount),
		strings.Join(credential.Transports, ","),
		boolToInt(credential.BackupEligible),
		boolToInt(credential.BackupState),
		toMillis(credential.CreatedAt),
		toMillis(credential.UpdatedAt),
		lastUsed,
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// GetCredential fetches a stored WebAuthn credential.
func (s *Store) GetCredential(ctx context.Context, credentialID string) (storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return storage.Credential{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Credential{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return storage.Credential{}, fmt.Errorf("credential id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+credentialColumns+` FROM credentials WHERE credential_id = ?
`, credentialID)
	credential, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Credential{}, storage.ErrNotFound
		}
		return storage.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	return credential, nil
}

// ListCredentials returns credentials owned by a user.
func (s *Store) ListCredentials(ctx context.Context, userID string) ([]storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+credentialColumns+` FROM credentials WHERE user_id = ? ORDER BY created_at ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	credentials := make([]storage.Credential, 0)
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return credentials, nil
}

// DeleteCredential removes a credential.
func (s *Store) DeleteCredential(ctx context.Context, credentialID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, "DELETE FROM credentials WHERE credential_id = ?", credentialID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// UpdateCounter persists the assertion outcome for a credential.
func (s *Store) UpdateCounter(ctx context.Context, update storage.CounterUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(update.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE credentials SET sign_count = ?, backup_state = ?, updated_at = ?, last_used_at = ?
WHERE credential_id = ?
`,
		int64(update.SignCount),
		boolToInt(update.BackupState),
		toMillis(update.LastUsedAt),
		toMillis(update.LastUsedAt),
		update.CredentialID,
	)
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanCredential(row rowScanner) (storage.Credential, error) {
	var (
		credential     storage.Credential
		transports     string
		backupEligible int
		backupState    int
		createdAt      int64
		updatedAt      int64
		lastUsed       sql.NullInt64
	)
	if err := row.Scan(
		&credential.CredentialID,
		&credential.UserID,
		&credential.PublicKey,
		&credential.SignCount,
		&transports,
		&backupEligible,
		&backupState,
		&createdAt,
		&updatedAt,
		&lastUsed,
	); err != nil {
		return storage.Credential{}, err
	}
	if transports != "" {
		credential.Transports = strings.Split(transports, ",")
	}
	credential.BackupEligible = backupEligible != 0
	credential.BackupState = backupState != 0
	credential.CreatedAt = fromMillis(createdAt)
	credential.UpdatedAt = fromMillis(updatedAt)
	if lastUsed.Valid {
		value := fromMillis(lastUsed.Int64)
		credential.LastUsedAt = &value
	}
	return credential, nil
}
