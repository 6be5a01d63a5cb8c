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

// PutCeremony stores an in-flight security-key ceremony.
func (s *Store) PutCeremony(ctx context.Context, ceremony storage.Ceremony) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(ceremony.ID) == "" {
		return fmt.Errorf("ceremony id is required")
	}
	if strings.TrimSpace(string(ceremony.Kind)) == "" {
		return fmt.Errorf("ceremony kind is required")
	}
	if strings.TrimSpace(ceremony.SessionJSON) == "" {
		return fmt.Errorf("ceremony session json is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO ceremonies (id, kind, user_id, key_name, purpose, session_json, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	kind = excluded.kind,
	user_id = excluded.user_id,
	key_name = excluded.key_name,
	purpose = excluded.purpose,
	session_json = excluded.session_json,
	expires_at = excluded.expires_at
`,
		ceremony.ID,
		string(ceremony.Kind),
		ceremony.UserID,
		ceremony.KeyName,
		ceremony.Purpose.String(),
		ceremony.SessionJSON,
		toMillis(ceremony.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("put ceremony: %w", err)
	}
	return nil
}

// GetCeremony fetches an in-flight ceremony by id.
func (s *Store) GetCeremony(ctx context.Context, ceremonyID string) (storage.Ceremony, error) {
	if err := ctx.Err(); err != nil {
		return storage.Ceremony{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Ceremony{}, fmt.Errorf("storage is not configured")
	}
	ceremonyID = strings.TrimSpace(ceremonyID)
	if ceremonyID == "" {
		return storage.Ceremony{}, fmt.Errorf("ceremony id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, kind, user_id, key_name, purpose, session_json, expires_at
FROM ceremonies
WHERE id = ?
`, ceremonyID)

	var (
		ceremony  storage.Ceremony
		kind      string
		purpose   string
		expiresAt int64
	)
	err := row.Scan(
		&ceremony.ID,
		&kind,
		&ceremony.UserID,
		&ceremony.KeyName,
		&purpose,
		&ceremony.SessionJSON,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Ceremony{}, storage.ErrNotFound
		}
		return storage.Ceremony{}, fmt.Errorf("get ceremony: %w", err)
	}

	parsed, err := domain.ParsePurpose(purpose)
	if err != nil {
		return storage.Ceremony{}, err
	}
	ceremony.Kind = storage.CeremonyKind(kind)
	ceremony.Purpose = parsed
	ceremony.ExpiresAt = fromMillis(expiresAt)
	return ceremony, nil
}

// DeleteCeremony removes an in-flight ceremony. Deleting an absent ceremony
// is not an error.
func (s *Store) DeleteCeremony(ctx context.Context, ceremonyID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	ceremonyID = strings.TrimSpace(ceremonyID)
	if ceremonyID == "" {
		return fmt.Errorf("ceremony id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM ceremonies WHERE id = ?`, ceremonyID); err != nil {
		return fmt.Errorf("delete ceremony: %w", err)
	}
	return nil
}
