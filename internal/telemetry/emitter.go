// Package telemetry records audit events for committed privileged actions.
package telemetry

import (
	"context"
	"time"

	"github.com/openschool/ballotbox/internal/election/storage"
	"github.com/openschool/ballotbox/internal/platform/id"
)

// Emitter appends audit events to the audit log.
type Emitter struct {
	store       storage.AuditStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewEmitter creates a new audit emitter.
func NewEmitter(store storage.AuditStore) *Emitter {
	return &Emitter{store: store, clock: time.Now, idGenerator: id.NewID}
}

// Emit records an audit event. It is a no-op when the store is nil; auditing
// must never block the action it describes.
func (e *Emitter) Emit(ctx context.Context, event storage.AuditEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if event.ID == "" {
		eventID, err := e.idGenerator()
		if err != nil {
			return err
		}
		event.ID = eventID
	}
	if event.Timestamp.IsZero() {
		if e.clock == nil {
			event.Timestamp = time.Now().UTC()
		} else {
			event.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendAuditEvent(ctx, event)
}
