package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
)

// PutCredential persists a security-key credential.
func (s *Store) PutCredential(ctx context.Context, credential domain.SecurityKeyCredential) error {
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
	if strings.TrimSpace(credential.CredentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO security_keys (credential_id, user_id, name, purpose, credential_json, created_at, removed)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(credential_id) DO UPDATE SET
	user_id = excluded.user_id,
	name = excluded.name,
	purpose = excluded.purpose,
	credential_json = excluded.credential_json,
	removed = excluded.removed
`,
		credential.CredentialID,
		credential.UserID,
		credential.Name,
		credential.Purpose.String(),
		credential.CredentialJSON,
		toMillis(credential.CreatedAt),
		boolToInt(credential.Removed),
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// GetCredential fetches a security-key credential by id, removed or not.
func (s *Store) GetCredential(ctx context.Context, credentialID string) (domain.SecurityKeyCredential, error) {
	if err := ctx.Err(); err != nil {
		return domain.SecurityKeyCredential{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.SecurityKeyCredential{}, fmt.Errorf("storage is not configured")
	}
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return domain.SecurityKeyCredential{}, fmt.Errorf("credential id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT credential_id, user_id, name, purpose, credential_json, created_at, removed
FROM security_keys
WHERE credential_id = ?
`, credentialID)

	credential, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SecurityKeyCredential{}, storage.ErrNotFound
		}
		return domain.SecurityKeyCredential{}, fmt.Errorf("get credential: %w", err)
	}
	return credential, nil
}

// ListCredentials returns all credentials that have not been removed.
func (s *Store) ListCredentials(ctx context.Context) ([]domain.SecurityKeyCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT credential_id, user_id, name, purpose, credential_json, created_at, removed
FROM security_keys
WHERE removed = 0
ORDER BY created_at, credential_id
`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var credentials []domain.SecurityKeyCredential
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return credentials, nil
}

// MarkCredentialRemoved soft-deletes a credential.
func (s *Store) MarkCredentialRemoved(ctx context.Context, credentialID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return fmt.Errorf("credential id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE security_keys SET removed = 1 WHERE credential_id = ? AND removed = 0
`, credentialID)
	if err != nil {
		return fmt.Errorf("mark credential removed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark credential removed rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanCredential(row rowScanner) (domain.SecurityKeyCredential, error) {
	var (
		credential domain.SecurityKeyCredential
		purpose    string
		createdAt  int64
		removed    int64
	)
	if err := row.Scan(
		&credential.CredentialID,
		&credential.UserID,
		&credential.Name,
		&purpose,
		&credential.CredentialJSON,
		&createdAt,
		&removed,
	); err != nil {
		return domain.SecurityKeyCredential{}, err
	}
	parsed, err := domain.ParsePurpose(purpose)
	if err != nil {
		return domain.SecurityKeyCredential{}, err
	}
	credential.Purpose = parsed
	credential.CreatedAt = fromMillis(createdAt)
	credential.Removed = removed != 0
	return credential, nil
}
