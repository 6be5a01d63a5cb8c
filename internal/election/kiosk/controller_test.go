package kiosk

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/pinaccess"
	"github.com/openschool/ballotbox/internal/election/storage"
	"github.com/openschool/ballotbox/internal/election/storage/sqlite"
	"github.com/openschool/ballotbox/internal/election/verification"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
)

type kioskFixture struct {
	controller   *Controller
	store        *sqlite.Store
	verification *verification.Store
}

func newKioskFixture(t *testing.T) *kioskFixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ballotbox.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	ctx := context.Background()
	settings, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	settings.Active = true
	settings.PinCode = "1234"
	settings.VoteDisplayDelay = 20 * time.Millisecond
	if err := store.PutSettings(ctx, settings); err != nil {
		t.Fatalf("store settings: %v", err)
	}

	positions := []domain.Position{
		{ID: "pres", Name: "President", Order: 1},
		{ID: "vp", Name: "Vice President", Order: 2},
	}
	for _, position := range positions {
		if err := store.PutPosition(ctx, position); err != nil {
			t.Fatalf("store position: %v", err)
		}
	}
	candidates := []domain.Candidate{
		{ID: "c1", PositionID: "pres", Name: "Alex"},
		{ID: "c2", PositionID: "pres", Name: "Brook"},
		{ID: "c3", PositionID: "vp", Name: "Casey"},
	}
	for _, candidate := range candidates {
		if err := store.PutCandidate(ctx, candidate); err != nil {
			t.Fatalf("store candidate: %v", err)
		}
	}

	verificationStore := verification.NewStore(time.Minute)
	registry := pinaccess.NewRegistry(store, store, store)
	return &kioskFixture{
		controller:   NewController(registry, store, store, store, store, verificationStore),
		store:        store,
		verification: verificationStore,
	}
}

func TestUnlockRequiresActiveElection(t *testing.T) {
	t.Parallel()

	f := newKioskFixture(t)
	ctx := context.Background()

	settings, err := f.store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	settings.Active = false
	if err := f.store.PutSettings(ctx, settings); err != nil {
		t.Fatalf("store settings: %v", err)
	}

	if _, err := f.controller.Unlock(ctx, "1234"); apperrors.GetCode(err) != apperrors.CodeElectionInactive {
		t.Fatalf("code = %v, want ELECTION_INACTIVE", apperrors.GetCode(err))
	}
}

func TestUnlockChecksPin(t *testing.T) {
	t.Parallel()

	f := newKioskFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Unlock(ctx, "0000"); !errors.Is(err, pinaccess.ErrPinMismatch) {
		t.Fatalf("err = %v, want ErrPinMismatch", err)
	}
	if got := f.controller.State(); got != StateLocked {
		t.Fatalf("state = %v, want locked", got)
	}

	ballot, err := f.controller.Unlock(ctx, "1234")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if len(ballot) != 2 || ballot[0].Position.ID != "pres" || ballot[1].Position.ID != "vp" {
		t.Fatalf("ballot = %+v", ballot)
	}
	if got := f.controller.State(); got != StateUnlocked {
		t.Fatalf("state = %v, want unlocked", got)
	}
}

func TestSelectTracksOneChoicePerPosition(t *testing.T) {
	t.Parallel()

	f := newKioskFixture(t)
	ctx := context.Background()

	if err := f.controller.Select("pres", "c1"); apperrors.GetCode(err) != apperrors.CodeKioskLocked {
		t.Fatalf("locked select code = %v, want KIOSK_LOCKED", apperrors.GetCode(err))
	}
	if _, err := f.controller.Unlock(ctx, "1234"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	if err := f.controller.Select("pres", "c3"); apperrors.GetCode(err) != apperrors.CodeNotFound {
		t.Fatalf("off-ballot code = %v, want NOT_FOUND", apperrors.GetCode(err))
	}
	if err := f.controller.Select("pres", "c1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.controller.Select("pres", "c2"); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if f.controller.Complete() {
		t.Fatal("ballot should not be complete with one position chosen")
	}
	if err := f.controller.Select("vp", "c3"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if !f.controller.Complete() {
		t.Fatal("ballot should be complete")
	}
	if got := f.controller.Selections()["pres"]; got != "c2" {
		t.Fatalf("pres selection = %q, want c2", got)
	}
	if got := f.controller.State(); got != StateBallotComplete {
		t.Fatalf("state = %v, want ballot-complete", got)
	}
}

func TestSubmitRequiresCompleteBallot(t *testing.T) {
	t.Parallel()

	f := newKioskFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Unlock(ctx, "1234"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := f.controller.Select("pres", "c1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.controller.Submit(ctx); apperrors.GetCode(err) != apperrors.CodeBallotIncomplete {
		t.Fatalf("code = %v, want BALLOT_INCOMPLETE", apperrors.GetCode(err))
	}
}

func TestFullVotingRound(t *testing.T) {
	t.Parallel()

	f := newKioskFixture(t)
	ctx := context.Background()

	// A verification left behind by an operator must not survive the round.
	f.verification.SetVerified(domain.PurposeElection)

	if _, err := f.controller.Unlock(ctx, "1234"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := f.controller.Select("pres", "c1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.controller.Select("vp", "c3"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.controller.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := f.controller.State(); got != StateSubmitted {
		t.Fatalf("state = %v, want submitted", got)
	}

	counts, err := f.store.CountVotes(ctx)
	if err != nil {
		t.Fatalf("count votes: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("counts = %+v, want one row per position", counts)
	}

	// The display delay relocks the kiosk and wipes everything.
	deadline := time.Now().Add(time.Second)
	for f.controller.State() != StateLocked {
		if time.Now().After(deadline) {
			t.Fatal("kiosk did not relock after the display delay")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(f.controller.Selections()) != 0 {
		t.Fatalf("selections = %v, want empty", f.controller.Selections())
	}
	if f.verification.IsVerified(domain.PurposeElection) {
		t.Fatal("verification session should be cleared after the round")
	}

	// The next voter re-enters with no residue from the prior ballot.
	if _, err := f.controller.Unlock(ctx, "1234"); err != nil {
		t.Fatalf("re-unlock: %v", err)
	}
	if len(f.controller.Selections()) != 0 {
		t.Fatalf("selections = %v, want empty after re-unlock", f.controller.Selections())
	}
	if err := f.controller.Submit(ctx); apperrors.GetCode(err) != apperrors.CodeBallotIncomplete {
		t.Fatalf("code = %v, want BALLOT_INCOMPLETE", apperrors.GetCode(err))
	}
}

// flakyVoteStore fails a configured number of ballot writes, then delegates.
type flakyVoteStore struct {
	storage.VoteStore
	failures int
}

func (f *flakyVoteStore) PutBallot(ctx context.Context, votes []domain.Vote) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	return f.VoteStore.PutBallot(ctx, votes)
}

func TestSubmitRetryAfterStoreFailureCountsOnce(t *testing.T) {
	t.Parallel()

	f := newKioskFixture(t)
	ctx := context.Background()

	votes := &flakyVoteStore{VoteStore: f.store, failures: 1}
	registry := pinaccess.NewRegistry(f.store, f.store, f.store)
	controller := NewController(registry, f.store, f.store, votes, f.store, verification.NewStore(time.Minute))

	if _, err := controller.Unlock(ctx, "1234"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := controller.Select("pres", "c1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := controller.Select("vp", "c3"); err != nil {
		t.Fatalf("select: %v", err)
	}

	if err := controller.Submit(ctx); err == nil {
		t.Fatal("expected the first submit to fail")
	}
	if got := controller.State(); got != StateBallotComplete {
		t.Fatalf("state after failed submit = %v, want ballot-complete", got)
	}

	if err := controller.Submit(ctx); err != nil {
		t.Fatalf("retry submit: %v", err)
	}

	counts, err := f.store.CountVotes(ctx)
	if err != nil {
		t.Fatalf("count votes: %v", err)
	}
	for _, count := range counts {
		if count.Count != 1 {
			t.Fatalf("count for %s/%s = %d, want 1", count.PositionID, count.CandidateID, count.Count)
		}
	}
	if len(counts) != 2 {
		t.Fatalf("counts = %+v, want one row per position", counts)
	}
}

func TestManagerIsolatesDevices(t *testing.T) {
	t.Parallel()

	f := newKioskFixture(t)
	manager := NewManager(func() *Controller {
		registry := pinaccess.NewRegistry(f.store, f.store, f.store)
		return NewController(registry, f.store, f.store, f.store, f.store, verification.NewStore(time.Minute))
	})

	first, err := manager.Controller("device-a")
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	again, err := manager.Controller("device-a")
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if first != again {
		t.Fatal("same token must map to the same controller")
	}
	other, err := manager.Controller("device-b")
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if first == other {
		t.Fatal("different tokens must map to different controllers")
	}
	if _, err := manager.Controller("  "); err == nil {
		t.Fatal("empty token must be rejected")
	}
}
