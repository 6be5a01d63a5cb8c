package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/openschool/ballotbox/internal/election/storage"
)

// AppendAuditEvent records a committed privileged action.
func (s *Store) AppendAuditEvent(ctx context.Context, event storage.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("audit event id is required")
	}
	if strings.TrimSpace(event.Action) == "" {
		return fmt.Errorf("audit event action is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO audit_events (id, action, actor_id, subject_id, detail, ts)
VALUES (?, ?, ?, ?, ?, ?)
`,
		event.ID,
		event.Action,
		event.ActorID,
		event.SubjectID,
		event.Detail,
		toMillis(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
