// Package kiosk runs the walk-up voting station state machine. A kiosk is a
// shared device: every voter unlocks it with a PIN, casts one ballot, and the
// station wipes itself before the next voter steps up.
package kiosk

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
)

// State is the kiosk's position in the voting round.
type State string

const (
	StateLocked         State = "locked"
	StateUnlocked       State = "unlocked"
	StateBallotComplete State = "ballot-complete"
	StateSubmitted      State = "submitted"
)

// PinChecker validates an entered kiosk code.
type PinChecker interface {
	CheckPIN(ctx context.Context, code string) error
}

// SessionClearer wipes the device's verification session between voters.
type SessionClearer interface {
	Clear()
}

// BallotPosition is one office with its candidates, in display order.
type BallotPosition struct {
	Position   domain.Position
	Candidates []domain.Candidate
}

// Controller is the state machine for one kiosk device. It is not shared
// across devices; the Manager hands out one per device token.
type Controller struct {
	mu           sync.Mutex
	pins         PinChecker
	positions    storage.PositionStore
	candidates   storage.CandidateStore
	votes        storage.VoteStore
	settings     storage.SettingsStore
	verification SessionClearer
	clock        func() time.Time

	state      State
	ballot     []BallotPosition
	selections map[string]string
	delay      time.Duration
	timer      *time.Timer
	generation uint64
}

// NewController builds a locked controller.
func NewController(pins PinChecker, positions storage.PositionStore, candidates storage.CandidateStore, votes storage.VoteStore, settings storage.SettingsStore, verification SessionClearer) *Controller {
	return &Controller{
		pins:         pins,
		positions:    positions,
		candidates:   candidates,
		votes:        votes,
		settings:     settings,
		verification: verification,
		clock:        time.Now,
		state:        StateLocked,
		selections:   map[string]string{},
	}
}

func (c *Controller) ready() error {
	if c == nil || c.pins == nil || c.positions == nil || c.candidates == nil || c.votes == nil || c.settings == nil {
		return fmt.Errorf("kiosk storage is not configured")
	}
	return nil
}

// State reports the controller's current state.
func (c *Controller) State() State {
	if c == nil {
		return StateLocked
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Unlock checks the entered PIN and opens a fresh ballot. The election must
// be active; the ballot is loaded at unlock so the voter sees a consistent
// snapshot for the whole round.
func (c *Controller) Unlock(ctx context.Context, pin string) ([]BallotPosition, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	settings, err := c.settings.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !settings.Active {
		return nil, apperrors.New(apperrors.CodeElectionInactive, "the election is not running")
	}

	if err := c.pins.CheckPIN(ctx, pin); err != nil {
		return nil, err
	}

	ballot, err := c.loadBallot(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.state = StateUnlocked
	c.ballot = ballot
	c.delay = settings.VoteDisplayDelay
	return ballot, nil
}

// Ballot returns the unlocked ballot snapshot.
func (c *Controller) Ballot() ([]BallotPosition, error) {
	if c == nil {
		return nil, fmt.Errorf("kiosk is not configured")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUnlocked && c.state != StateBallotComplete {
		return nil, apperrors.New(apperrors.CodeKioskLocked, "the kiosk is locked")
	}
	return c.ballot, nil
}

// Select records the voter's choice for one position, replacing any earlier
// choice for the same position.
func (c *Controller) Select(positionID, candidateID string) error {
	if c == nil {
		return fmt.Errorf("kiosk is not configured")
	}
	positionID = strings.TrimSpace(positionID)
	candidateID = strings.TrimSpace(candidateID)
	if positionID == "" || candidateID == "" {
		return fmt.Errorf("position id and candidate id are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUnlocked && c.state != StateBallotComplete {
		return apperrors.New(apperrors.CodeKioskLocked, "the kiosk is locked")
	}
	if !c.onBallotLocked(positionID, candidateID) {
		return apperrors.New(apperrors.CodeNotFound, "candidate is not on the ballot for that position")
	}

	c.selections[positionID] = candidateID
	if c.completeLocked() {
		c.state = StateBallotComplete
	}
	return nil
}

// Selections returns a copy of the current choices keyed by position id.
func (c *Controller) Selections() map[string]string {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	selections := make(map[string]string, len(c.selections))
	for positionID, candidateID := range c.selections {
		selections[positionID] = candidateID
	}
	return selections
}

// Complete reports whether every position has a choice.
func (c *Controller) Complete() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateLocked && c.state != StateSubmitted && c.completeLocked()
}

// Submit casts one vote record per position, then shows the success display.
// After the configured delay the kiosk relocks itself, wiping selections, the
// PIN state, and the device's verification session so the next voter inherits
// nothing.
func (c *Controller) Submit(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateLocked || c.state == StateSubmitted {
		return apperrors.New(apperrors.CodeKioskLocked, "the kiosk is locked")
	}
	if !c.completeLocked() {
		return apperrors.New(apperrors.CodeBallotIncomplete, "every position needs a choice before submitting")
	}

	castAt := c.clock().UTC()
	ballot := make([]domain.Vote, 0, len(c.ballot))
	for _, entry := range c.ballot {
		ballot = append(ballot, domain.Vote{
			ID:          uuid.NewString(),
			PositionID:  entry.Position.ID,
			CandidateID: c.selections[entry.Position.ID],
			CastAt:      castAt,
		})
	}
	// All or nothing: a retried Submit after a storage failure must not
	// double-count positions that already landed.
	if err := c.votes.PutBallot(ctx, ballot); err != nil {
		return fmt.Errorf("record ballot: %w", err)
	}

	c.state = StateSubmitted
	c.scheduleResetLocked()
	return nil
}

// Reset relocks the kiosk immediately.
func (c *Controller) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) scheduleResetLocked() {
	delay := c.delay
	if delay <= 0 {
		c.resetLocked()
		return
	}
	c.generation++
	generation := c.generation
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// A newer round owns the controller now; leave it alone.
		if c.generation != generation {
			return
		}
		c.resetLocked()
	})
}

func (c *Controller) resetLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.state = StateLocked
	c.ballot = nil
	c.selections = map[string]string{}
	if c.verification != nil {
		c.verification.Clear()
	}
}

func (c *Controller) completeLocked() bool {
	if len(c.ballot) == 0 {
		return false
	}
	for _, entry := range c.ballot {
		if _, ok := c.selections[entry.Position.ID]; !ok {
			return false
		}
	}
	return true
}

func (c *Controller) onBallotLocked(positionID, candidateID string) bool {
	for _, entry := range c.ballot {
		if entry.Position.ID != positionID {
			continue
		}
		for _, candidate := range entry.Candidates {
			if candidate.ID == candidateID {
				return true
			}
		}
	}
	return false
}

func (c *Controller) loadBallot(ctx context.Context) ([]BallotPosition, error) {
	positions, err := c.positions.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Order < positions[j].Order })

	ballot := make([]BallotPosition, 0, len(positions))
	for _, position := range positions {
		candidates, err := c.candidates.ListCandidatesByPosition(ctx, position.ID)
		if err != nil {
			return nil, fmt.Errorf("list candidates: %w", err)
		}
		ballot = append(ballot, BallotPosition{Position: position, Candidates: candidates})
	}
	return ballot, nil
}

// Manager hands out one controller per kiosk device token.
type Manager struct {
	mu          sync.Mutex
	controllers map[string]*Controller
	build       func() *Controller
}

// NewManager builds a Manager that constructs controllers with build.
func NewManager(build func() *Controller) *Manager {
	return &Manager{controllers: map[string]*Controller{}, build: build}
}

// Controller returns the controller for a device token, creating it on first
// use.
func (m *Manager) Controller(token string) (*Controller, error) {
	if m == nil || m.build == nil {
		return nil, fmt.Errorf("kiosk manager is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("device token is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	controller, ok := m.controllers[token]
	if !ok {
		controller = m.build()
		m.controllers[token] = controller
	}
	return controller, nil
}
