package results

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage/sqlite"
)

func newTestService(t *testing.T) (*Service, *sqlite.Store) {
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
	return NewService(store, store, store, store), store
}

func seedBallot(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	for _, position := range []domain.Position{
		{ID: "pres", Name: "President", Order: 1},
		{ID: "vp", Name: "Vice President", Order: 2},
	} {
		if err := store.PutPosition(ctx, position); err != nil {
			t.Fatalf("store position: %v", err)
		}
	}
	for _, candidate := range []domain.Candidate{
		{ID: "c1", PositionID: "pres", Name: "Alex"},
		{ID: "c2", PositionID: "pres", Name: "Brook"},
		{ID: "c3", PositionID: "vp", Name: "Casey"},
	} {
		if err := store.PutCandidate(ctx, candidate); err != nil {
			t.Fatalf("store candidate: %v", err)
		}
	}
}

func TestTallyCountsPerPosition(t *testing.T) {
	t.Parallel()

	service, store := newTestService(t)
	seedBallot(t, store)
	ctx := context.Background()

	castAt := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	votes := []domain.Vote{
		{ID: "v1", PositionID: "pres", CandidateID: "c1", CastAt: castAt},
		{ID: "v2", PositionID: "pres", CandidateID: "c2", CastAt: castAt},
		{ID: "v3", PositionID: "pres", CandidateID: "c2", CastAt: castAt},
		{ID: "v4", PositionID: "vp", CandidateID: "c3", CastAt: castAt},
	}
	for _, vote := range votes {
		if err := store.PutVote(ctx, vote); err != nil {
			t.Fatalf("store vote: %v", err)
		}
	}

	tallies, err := service.Tally(ctx)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if len(tallies) != 2 {
		t.Fatalf("tallies = %+v", tallies)
	}

	pres := tallies[0]
	if pres.Position.ID != "pres" || pres.TotalVotes != 3 {
		t.Fatalf("pres = %+v", pres)
	}
	if pres.Candidates[0].Candidate.ID != "c2" || pres.Candidates[0].Count != 2 {
		t.Fatalf("pres leader = %+v", pres.Candidates[0])
	}
	if pres.Candidates[1].Candidate.ID != "c1" || pres.Candidates[1].Count != 1 {
		t.Fatalf("pres runner-up = %+v", pres.Candidates[1])
	}

	vp := tallies[1]
	if vp.Position.ID != "vp" || vp.TotalVotes != 1 || vp.Candidates[0].Count != 1 {
		t.Fatalf("vp = %+v", vp)
	}
}

func TestTallyIncludesZeroCountCandidates(t *testing.T) {
	t.Parallel()

	service, store := newTestService(t)
	seedBallot(t, store)

	tallies, err := service.Tally(context.Background())
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if len(tallies[0].Candidates) != 2 {
		t.Fatalf("pres candidates = %+v", tallies[0].Candidates)
	}
	for _, candidate := range tallies[0].Candidates {
		if candidate.Count != 0 {
			t.Fatalf("count = %d, want 0", candidate.Count)
		}
	}
}

func TestElectionSwitches(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	public, err := service.Public(ctx)
	if err != nil {
		t.Fatalf("public: %v", err)
	}
	if public {
		t.Fatal("results should not be public by default")
	}

	if err := service.SetElectionActive(ctx, true); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := service.SetResultsPublic(ctx, true); err != nil {
		t.Fatalf("set public: %v", err)
	}

	settings, err := service.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if !settings.Active || !settings.ResultsPublic {
		t.Fatalf("settings = %+v", settings)
	}
}
