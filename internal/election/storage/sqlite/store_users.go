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

// PutUser inserts or updates an authorized user record.
func (s *Store) PutUser(ctx context.Context, user domain.AuthorizedUser) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("user email is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, email, name, role, assigned_pin_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	email = excluded.email,
	name = excluded.name,
	role = excluded.role,
	assigned_pin_id = excluded.assigned_pin_id
`,
		user.ID,
		strings.ToLower(strings.TrimSpace(user.Email)),
		user.Name,
		user.Role.String(),
		user.AssignedPinID,
		toMillis(user.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches an authorized user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (domain.AuthorizedUser, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuthorizedUser{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.AuthorizedUser{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.AuthorizedUser{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, name, role, assigned_pin_id, created_at
FROM users
WHERE id = ?
`, userID)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AuthorizedUser{}, storage.ErrNotFound
		}
		return domain.AuthorizedUser{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail fetches an authorized user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.AuthorizedUser, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuthorizedUser{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.AuthorizedUser{}, fmt.Errorf("storage is not configured")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.AuthorizedUser{}, fmt.Errorf("user email is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, name, role, assigned_pin_id, created_at
FROM users
WHERE email = ?
`, email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AuthorizedUser{}, storage.ErrNotFound
		}
		return domain.AuthorizedUser{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// ListUsers returns all authorized users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]domain.AuthorizedUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, email, name, role, assigned_pin_id, created_at
FROM users
ORDER BY created_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.AuthorizedUser
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// DeleteUser removes an authorized user.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClearAssignedPin removes the pin back-reference from every user pointing
// at pinID.
func (s *Store) ClearAssignedPin(ctx context.Context, pinID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	pinID = strings.TrimSpace(pinID)
	if pinID == "" {
		return fmt.Errorf("pin id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE users SET assigned_pin_id = '' WHERE assigned_pin_id = ?
`, pinID)
	if err != nil {
		return fmt.Errorf("clear assigned pin: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (domain.AuthorizedUser, error) {
	var (
		user      domain.AuthorizedUser
		role      string
		createdAt int64
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.AssignedPinID, &createdAt); err != nil {
		return domain.AuthorizedUser{}, err
	}
	parsed, err := domain.ParseRole(role)
	if err != nil {
		return domain.AuthorizedUser{}, err
	}
	user.Role = parsed
	user.CreatedAt = fromMillis(createdAt)
	return user, nil
}
