// Package pinaccess manages the shared numeric codes that unlock the voting
// kiosk. Codes live in a named registry; a legacy single code on the election
// settings remains valid alongside it.
package pinaccess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
	"github.com/openschool/ballotbox/internal/platform/id"
)

// ErrPinMismatch reports a code that matches neither the legacy settings code
// nor any active registry entry. There is no lockout; the caller may retry.
var ErrPinMismatch = apperrors.New(apperrors.CodePinMismatch, "entered PIN does not match any active code")

// Registry owns the PIN collection. Mutations are expected to arrive through
// the sensitive-action gate; the registry itself only validates shape.
type Registry struct {
	pins        storage.PinStore
	users       storage.UserStore
	settings    storage.SettingsStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewRegistry builds a Registry over the given stores.
func NewRegistry(pins storage.PinStore, users storage.UserStore, settings storage.SettingsStore) *Registry {
	return &Registry{
		pins:        pins,
		users:       users,
		settings:    settings,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

func (r *Registry) ready() error {
	if r == nil || r.pins == nil || r.users == nil || r.settings == nil {
		return fmt.Errorf("pin registry storage is not configured")
	}
	return nil
}

// Add creates a new active registry entry.
func (r *Registry) Add(ctx context.Context, name, pin string) (domain.PinAccess, error) {
	if err := r.ready(); err != nil {
		return domain.PinAccess{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.PinAccess{}, apperrors.New(apperrors.CodePinNameEmpty, "pin name is required")
	}
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return domain.PinAccess{}, apperrors.New(apperrors.CodePinCodeEmpty, "pin code is required")
	}

	pinID, err := r.idGenerator()
	if err != nil {
		return domain.PinAccess{}, fmt.Errorf("create pin id: %w", err)
	}
	record := domain.PinAccess{
		ID:        pinID,
		Name:      name,
		PIN:       pin,
		Active:    true,
		CreatedAt: r.clock().UTC(),
	}
	if err := r.pins.PutPin(ctx, record); err != nil {
		return domain.PinAccess{}, fmt.Errorf("store pin: %w", err)
	}
	return record, nil
}

// Remove deletes an entry and clears the assignment on any user still
// pointing at it. The reference is weak; a dangling assignment must never
// survive the delete.
func (r *Registry) Remove(ctx context.Context, pinID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	pinID = strings.TrimSpace(pinID)
	if pinID == "" {
		return fmt.Errorf("pin id is required")
	}
	if err := r.pins.DeletePin(ctx, pinID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "pin not found")
		}
		return fmt.Errorf("delete pin: %w", err)
	}
	if err := r.users.ClearAssignedPin(ctx, pinID); err != nil {
		return fmt.Errorf("clear pin assignments: %w", err)
	}
	return nil
}

// Toggle flips an entry's active flag.
func (r *Registry) Toggle(ctx context.Context, pinID string) (domain.PinAccess, error) {
	if err := r.ready(); err != nil {
		return domain.PinAccess{}, err
	}
	record, err := r.get(ctx, pinID)
	if err != nil {
		return domain.PinAccess{}, err
	}
	record.Active = !record.Active
	if err := r.pins.PutPin(ctx, record); err != nil {
		return domain.PinAccess{}, fmt.Errorf("store pin: %w", err)
	}
	return record, nil
}

// Edit replaces an entry's name and code.
func (r *Registry) Edit(ctx context.Context, pinID, name, pin string) (domain.PinAccess, error) {
	if err := r.ready(); err != nil {
		return domain.PinAccess{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.PinAccess{}, apperrors.New(apperrors.CodePinNameEmpty, "pin name is required")
	}
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return domain.PinAccess{}, apperrors.New(apperrors.CodePinCodeEmpty, "pin code is required")
	}

	record, err := r.get(ctx, pinID)
	if err != nil {
		return domain.PinAccess{}, err
	}
	record.Name = name
	record.PIN = pin
	if err := r.pins.PutPin(ctx, record); err != nil {
		return domain.PinAccess{}, fmt.Errorf("store pin: %w", err)
	}
	return record, nil
}

// Assign points a user's pin assignment at an existing entry.
func (r *Registry) Assign(ctx context.Context, userID, pinID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if _, err := r.get(ctx, pinID); err != nil {
		return err
	}
	user, err := r.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	user.AssignedPinID = pinID
	if err := r.users.PutUser(ctx, user); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	return nil
}

// Unassign clears a user's pin assignment.
func (r *Registry) Unassign(ctx context.Context, userID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	user, err := r.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	user.AssignedPinID = ""
	if err := r.users.PutUser(ctx, user); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	return nil
}

// List returns every registry entry, active or not.
func (r *Registry) List(ctx context.Context) ([]domain.PinAccess, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	records, err := r.pins.ListPins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}
	return records, nil
}

// CheckPIN reports whether a code unlocks voting. The legacy settings code is
// checked first, then every active registry entry. Inactive entries never
// unlock.
func (r *Registry) CheckPIN(ctx context.Context, code string) error {
	if err := r.ready(); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrPinMismatch
	}

	settings, err := r.settings.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings.PinCode != "" && settings.PinCode == code {
		return nil
	}

	records, err := r.pins.ListPins(ctx)
	if err != nil {
		return fmt.Errorf("list pins: %w", err)
	}
	for _, record := range records {
		if record.Active && record.PIN == code {
			return nil
		}
	}
	return ErrPinMismatch
}

func (r *Registry) get(ctx context.Context, pinID string) (domain.PinAccess, error) {
	pinID = strings.TrimSpace(pinID)
	if pinID == "" {
		return domain.PinAccess{}, fmt.Errorf("pin id is required")
	}
	record, err := r.pins.GetPin(ctx, pinID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.PinAccess{}, apperrors.New(apperrors.CodeNotFound, "pin not found")
		}
		return domain.PinAccess{}, fmt.Errorf("load pin: %w", err)
	}
	return record, nil
}

func (r *Registry) loadUser(ctx context.Context, userID string) (domain.AuthorizedUser, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.AuthorizedUser{}, fmt.Errorf("user id is required")
	}
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.AuthorizedUser{}, apperrors.New(apperrors.CodeNotFound, "user not found")
		}
		return domain.AuthorizedUser{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
