// Package gate guards privileged election mutations behind a fresh or cached
// security-key verification. A mutation commits only while the verification
// session is valid, re-checked at the moment of commit.
package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/passkey"
	"github.com/openschool/ballotbox/internal/election/storage"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
	"github.com/openschool/ballotbox/internal/telemetry"
)

// State is the gate's position in the verification protocol.
type State string

const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting-verification"
	StateFailed   State = "failed"
)

// ErrNoPendingAction reports a verify or retry with nothing outstanding.
var ErrNoPendingAction = apperrors.New(apperrors.CodeNoPendingAction, "no pending action to verify")

// Verifier is the verification session the gate consults and marks.
type Verifier interface {
	SetVerified(purpose domain.Purpose)
	IsVerified(purpose domain.Purpose) bool
}

// Authenticator drives the security-key ceremony for the gate.
type Authenticator interface {
	BeginAuthentication(ctx context.Context, purpose domain.Purpose) (passkey.Challenge, error)
	FinishAuthentication(ctx context.Context, ceremonyID string, responseJSON []byte) (passkey.AuthResult, error)
	Cancel(ctx context.Context, ceremonyID string) error
}

// PinCommitter replays pin actions once verified.
type PinCommitter interface {
	Add(ctx context.Context, name, pin string) (domain.PinAccess, error)
	Remove(ctx context.Context, pinID string) error
	Toggle(ctx context.Context, pinID string) (domain.PinAccess, error)
	Edit(ctx context.Context, pinID, name, pin string) (domain.PinAccess, error)
	Unassign(ctx context.Context, userID string) error
}

// UserCommitter replays user actions once verified.
type UserCommitter interface {
	AddUser(ctx context.Context, email, name string, role domain.Role) (domain.AuthorizedUser, error)
	RemoveUser(ctx context.Context, userID string) error
	ChangeRole(ctx context.Context, userID string, role domain.Role) (domain.AuthorizedUser, error)
}

// ElectionCommitter replays election control actions once verified.
type ElectionCommitter interface {
	SetElectionActive(ctx context.Context, active bool) error
}

// KeyCommitter replays security-key removal once verified.
type KeyCommitter interface {
	Remove(ctx context.Context, credentialID string) error
}

// Outcome reports how far a gate call got. Either the action committed, or a
// ceremony challenge is outstanding.
type Outcome struct {
	Committed bool
	Challenge passkey.Challenge
}

// Gate holds at most one outstanding pending action for one operator
// session. A new sensitive action replaces the outstanding one.
type Gate struct {
	mu            sync.Mutex
	verifier      Verifier
	authenticator Authenticator
	pins          PinCommitter
	users         UserCommitter
	election      ElectionCommitter
	keys          KeyCommitter
	audit         *telemetry.Emitter

	state      State
	pending    *Action
	ceremonyID string
}

// New builds a Gate over its collaborators.
func New(verifier Verifier, authenticator Authenticator, pins PinCommitter, users UserCommitter, election ElectionCommitter, keys KeyCommitter, audit *telemetry.Emitter) *Gate {
	return &Gate{
		verifier:      verifier,
		authenticator: authenticator,
		pins:          pins,
		users:         users,
		election:      election,
		keys:          keys,
		audit:         audit,
		state:         StateIdle,
	}
}

func (g *Gate) ready() error {
	if g == nil || g.verifier == nil || g.authenticator == nil {
		return fmt.Errorf("gate is not configured")
	}
	return nil
}

// State reports the gate's current protocol state.
func (g *Gate) State() State {
	if g == nil {
		return StateIdle
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Pending returns a copy of the outstanding action, if any.
func (g *Gate) Pending() (Action, bool) {
	if g == nil {
		return Action{}, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return Action{}, false
	}
	return *g.pending, true
}

// Begin submits a sensitive action. A valid cached verification commits it
// immediately with no ceremony; the 60-second window amortizes a run of
// privileged actions over a single key tap. Otherwise the action is parked
// and a ceremony challenge returned. Role changes to non-privileged roles are
// not sensitive and commit without verification.
func (g *Gate) Begin(ctx context.Context, action Action) (Outcome, error) {
	if err := g.ready(); err != nil {
		return Outcome{}, err
	}
	if err := action.validate(); err != nil {
		return Outcome{}, err
	}

	if action.Kind == KindRoleChange && !action.Role.Privileged() {
		if err := g.commit(ctx, action); err != nil {
			return Outcome{}, err
		}
		return Outcome{Committed: true}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending = &action
	g.ceremonyID = ""

	if g.verifier.IsVerified(action.Purpose()) {
		return g.commitPendingLocked(ctx)
	}
	return g.challengeLocked(ctx)
}

// Verify forwards the ceremony response. On ceremony success the session is
// marked verified, then checked again immediately before the commit; an
// expiry between the two refuses the commit. Ceremony failure keeps the
// pending action so the operator can retry.
func (g *Gate) Verify(ctx context.Context, responseJSON []byte) (Outcome, error) {
	if err := g.ready(); err != nil {
		return Outcome{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil || g.ceremonyID == "" {
		return Outcome{}, ErrNoPendingAction
	}

	result, err := g.authenticator.FinishAuthentication(ctx, g.ceremonyID, responseJSON)
	g.ceremonyID = ""
	if err != nil {
		g.state = StateFailed
		return Outcome{}, err
	}

	g.verifier.SetVerified(result.Purpose)
	return g.commitPendingLocked(ctx)
}

// Retry issues a fresh ceremony for the still-pending action after a failed
// or timed-out attempt.
func (g *Gate) Retry(ctx context.Context) (Outcome, error) {
	if err := g.ready(); err != nil {
		return Outcome{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return Outcome{}, ErrNoPendingAction
	}
	if g.verifier.IsVerified(g.pending.Purpose()) {
		return g.commitPendingLocked(ctx)
	}
	return g.challengeLocked(ctx)
}

// Cancel discards the pending action without mutating anything.
func (g *Gate) Cancel(ctx context.Context) error {
	if err := g.ready(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ceremonyID != "" {
		if err := g.authenticator.Cancel(ctx, g.ceremonyID); err != nil {
			return fmt.Errorf("cancel ceremony: %w", err)
		}
	}
	g.pending = nil
	g.ceremonyID = ""
	g.state = StateIdle
	return nil
}

func (g *Gate) challengeLocked(ctx context.Context) (Outcome, error) {
	challenge, err := g.authenticator.BeginAuthentication(ctx, g.pending.Purpose())
	if err != nil {
		g.state = StateFailed
		return Outcome{}, fmt.Errorf("begin verification: %w", err)
	}
	g.ceremonyID = challenge.CeremonyID
	g.state = StateAwaiting
	return Outcome{Challenge: challenge}, nil
}

// commitPendingLocked commits the pending action if and only if the
// verification session is valid right now. Expiry between ceremony success
// and this check refuses the commit and keeps the action for retry.
func (g *Gate) commitPendingLocked(ctx context.Context) (Outcome, error) {
	action := *g.pending
	if !g.verifier.IsVerified(action.Purpose()) {
		g.state = StateFailed
		return Outcome{}, apperrors.New(apperrors.CodeVerificationRequired, "verification expired before commit")
	}

	if err := g.commit(ctx, action); err != nil {
		// The mutation failed after a valid verification. The operator must
		// re-initiate the action; re-verification is not required.
		g.pending = nil
		g.state = StateIdle
		return Outcome{}, err
	}

	g.pending = nil
	g.state = StateIdle
	return Outcome{Committed: true}, nil
}

func (g *Gate) commit(ctx context.Context, action Action) error {
	var err error
	switch action.Kind {
	case KindAddPin:
		err = g.requirePins(func() error {
			_, addErr := g.pins.Add(ctx, action.PinName, action.PinCode)
			return addErr
		})
	case KindRemovePin:
		err = g.requirePins(func() error { return g.pins.Remove(ctx, action.PinID) })
	case KindTogglePin:
		err = g.requirePins(func() error {
			_, toggleErr := g.pins.Toggle(ctx, action.PinID)
			return toggleErr
		})
	case KindEditPin:
		err = g.requirePins(func() error {
			_, editErr := g.pins.Edit(ctx, action.PinID, action.PinName, action.PinCode)
			return editErr
		})
	case KindUnassignPin:
		err = g.requirePins(func() error { return g.pins.Unassign(ctx, action.UserID) })
	case KindAddUser:
		err = g.requireUsers(func() error {
			_, addErr := g.users.AddUser(ctx, action.Email, action.Name, action.Role)
			return addErr
		})
	case KindRemoveUser:
		err = g.requireUsers(func() error { return g.users.RemoveUser(ctx, action.UserID) })
	case KindRoleChange:
		err = g.requireUsers(func() error {
			_, changeErr := g.users.ChangeRole(ctx, action.UserID, action.Role)
			return changeErr
		})
	case KindRemoveKey:
		err = g.requireKeys(func() error { return g.keys.Remove(ctx, action.CredentialID) })
	case KindStartElection:
		err = g.requireElection(func() error { return g.election.SetElectionActive(ctx, true) })
	case KindStopElection:
		err = g.requireElection(func() error { return g.election.SetElectionActive(ctx, false) })
	case KindViewResults:
		// The verification grant is the outcome; there is nothing to mutate.
	default:
		err = fmt.Errorf("unknown action kind %q", action.Kind)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeActionReplayFailure, fmt.Sprintf("commit %s", action.Kind), err)
	}

	_ = g.audit.Emit(ctx, storage.AuditEvent{
		Action:    string(action.Kind),
		ActorID:   action.ActorID,
		SubjectID: action.Subject(),
	})
	return nil
}

func (g *Gate) requirePins(fn func() error) error {
	if g.pins == nil {
		return fmt.Errorf("pin committer is not configured")
	}
	return fn()
}

func (g *Gate) requireUsers(fn func() error) error {
	if g.users == nil {
		return fmt.Errorf("user committer is not configured")
	}
	return fn()
}

func (g *Gate) requireKeys(fn func() error) error {
	if g.keys == nil {
		return fmt.Errorf("key committer is not configured")
	}
	return fn()
}

func (g *Gate) requireElection(fn func() error) error {
	if g.election == nil {
		return fmt.Errorf("election committer is not configured")
	}
	return fn()
}
