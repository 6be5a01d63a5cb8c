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

// PutPin inserts or updates a PIN access entry.
func (s *Store) PutPin(ctx context.Context, pin domain.PinAccess) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(pin.ID) == "" {
		return fmt.Errorf("pin id is required")
	}
	if strings.TrimSpace(pin.Name) == "" {
		return fmt.Errorf("pin name is required")
	}
	if strings.TrimSpace(pin.PIN) == "" {
		return fmt.Errorf("pin code is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO pins (id, name, pin, active, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	pin = excluded.pin,
	active = excluded.active
`,
		pin.ID,
		pin.Name,
		pin.PIN,
		boolToInt(pin.Active),
		toMillis(pin.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put pin: %w", err)
	}
	return nil
}

// GetPin fetches a PIN access entry by id.
func (s *Store) GetPin(ctx context.Context, pinID string) (domain.PinAccess, error) {
	if err := ctx.Err(); err != nil {
		return domain.PinAccess{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.PinAccess{}, fmt.Errorf("storage is not configured")
	}
	pinID = strings.TrimSpace(pinID)
	if pinID == "" {
		return domain.PinAccess{}, fmt.Errorf("pin id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, pin, active, created_at
FROM pins
WHERE id = ?
`, pinID)

	pin, err := scanPin(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PinAccess{}, storage.ErrNotFound
		}
		return domain.PinAccess{}, fmt.Errorf("get pin: %w", err)
	}
	return pin, nil
}

// ListPins returns all PIN access entries ordered by creation time.
func (s *Store) ListPins(ctx context.Context) ([]domain.PinAccess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, pin, active, created_at
FROM pins
ORDER BY created_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}
	defer rows.Close()

	var pins []domain.PinAccess
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pin: %w", err)
		}
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pins: %w", err)
	}
	return pins, nil
}

// DeletePin removes a PIN access entry.
func (s *Store) DeletePin(ctx context.Context, pinID string) error {
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

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pins WHERE id = ?`, pinID)
	if err != nil {
		return fmt.Errorf("delete pin: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete pin rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPin(row rowScanner) (domain.PinAccess, error) {
	var (
		pin       domain.PinAccess
		active    int64
		createdAt int64
	)
	if err := row.Scan(&pin.ID, &pin.Name, &pin.PIN, &active, &createdAt); err != nil {
		return domain.PinAccess{}, err
	}
	pin.Active = active != 0
	pin.CreatedAt = fromMillis(createdAt)
	return pin, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}
