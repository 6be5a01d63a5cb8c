package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
)

// defaultVoteDisplayDelay is used when no settings row exists yet.
const defaultVoteDisplayDelay = 5 * time.Second

// GetSettings returns the election settings row, or defaults when none has
// been written yet.
func (s *Store) GetSettings(ctx context.Context) (domain.ElectionSettings, error) {
	if err := ctx.Err(); err != nil {
		return domain.ElectionSettings{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.ElectionSettings{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT active, pin_code, results_public, vote_display_delay_ms, updated_at
FROM settings
WHERE id = 1
`)

	var (
		settings      domain.ElectionSettings
		active        int64
		resultsPublic int64
		delayMillis   int64
		updatedAt     int64
	)
	err := row.Scan(&active, &settings.PinCode, &resultsPublic, &delayMillis, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ElectionSettings{VoteDisplayDelay: defaultVoteDisplayDelay}, nil
		}
		return domain.ElectionSettings{}, fmt.Errorf("get settings: %w", err)
	}

	settings.Active = active != 0
	settings.ResultsPublic = resultsPublic != 0
	settings.VoteDisplayDelay = time.Duration(delayMillis) * time.Millisecond
	settings.UpdatedAt = fromMillis(updatedAt)
	return settings, nil
}

// PutSettings replaces the election settings row.
func (s *Store) PutSettings(ctx context.Context, settings domain.ElectionSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO settings (id, active, pin_code, results_public, vote_display_delay_ms, updated_at)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	active = excluded.active,
	pin_code = excluded.pin_code,
	results_public = excluded.results_public,
	vote_display_delay_ms = excluded.vote_display_delay_ms,
	updated_at = excluded.updated_at
`,
		boolToInt(settings.Active),
		settings.PinCode,
		boolToInt(settings.ResultsPublic),
		settings.VoteDisplayDelay.Milliseconds(),
		toMillis(settings.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}
