// Package results tallies votes and owns the election-wide control switches.
package results

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
)

// CandidateTally is one candidate's count within a position.
type CandidateTally struct {
	Candidate domain.Candidate
	Count     int
}

// PositionTally is the tallied outcome for one position, candidates sorted
// by count descending.
type PositionTally struct {
	Position   domain.Position
	Candidates []CandidateTally
	TotalVotes int
}

// Service tallies votes and flips the election switches.
type Service struct {
	votes      storage.VoteStore
	positions  storage.PositionStore
	candidates storage.CandidateStore
	settings   storage.SettingsStore
	clock      func() time.Time
}

// NewService builds a results service.
func NewService(votes storage.VoteStore, positions storage.PositionStore, candidates storage.CandidateStore, settings storage.SettingsStore) *Service {
	return &Service{
		votes:      votes,
		positions:  positions,
		candidates: candidates,
		settings:   settings,
		clock:      time.Now,
	}
}

func (s *Service) ready() error {
	if s == nil || s.votes == nil || s.positions == nil || s.candidates == nil || s.settings == nil {
		return fmt.Errorf("results storage is not configured")
	}
	return nil
}

// Tally returns per-position candidate counts. Candidates with no votes
// appear with a zero count so the display is complete.
func (s *Service) Tally(ctx context.Context) ([]PositionTally, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	positions, err := s.positions.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Order < positions[j].Order })

	counts, err := s.votes.CountVotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	countByCandidate := make(map[string]int, len(counts))
	for _, count := range counts {
		countByCandidate[count.PositionID+"/"+count.CandidateID] = count.Count
	}

	tallies := make([]PositionTally, 0, len(positions))
	for _, position := range positions {
		candidates, err := s.candidates.ListCandidatesByPosition(ctx, position.ID)
		if err != nil {
			return nil, fmt.Errorf("list candidates: %w", err)
		}
		tally := PositionTally{Position: position}
		for _, candidate := range candidates {
			count := countByCandidate[position.ID+"/"+candidate.ID]
			tally.Candidates = append(tally.Candidates, CandidateTally{Candidate: candidate, Count: count})
			tally.TotalVotes += count
		}
		sort.SliceStable(tally.Candidates, func(i, j int) bool {
			return tally.Candidates[i].Count > tally.Candidates[j].Count
		})
		tallies = append(tallies, tally)
	}
	return tallies, nil
}

// Public reports whether results are viewable without a verification grant.
func (s *Service) Public(ctx context.Context) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	return settings.ResultsPublic, nil
}

// SetElectionActive starts or stops the election. Arrives through the
// sensitive-action gate.
func (s *Service) SetElectionActive(ctx context.Context, active bool) error {
	return s.updateSettings(ctx, func(settings *domain.ElectionSettings) {
		settings.Active = active
	})
}

// SetResultsPublic flips the public-results switch. Arrives through the
// sensitive-action gate via a settings change.
func (s *Service) SetResultsPublic(ctx context.Context, public bool) error {
	return s.updateSettings(ctx, func(settings *domain.ElectionSettings) {
		settings.ResultsPublic = public
	})
}

// Settings returns the current election settings.
func (s *Service) Settings(ctx context.Context) (domain.ElectionSettings, error) {
	if err := s.ready(); err != nil {
		return domain.ElectionSettings{}, err
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return domain.ElectionSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

func (s *Service) updateSettings(ctx context.Context, mutate func(*domain.ElectionSettings)) error {
	if err := s.ready(); err != nil {
		return err
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	mutate(&settings)
	settings.UpdatedAt = s.clock().UTC()
	if err := s.settings.PutSettings(ctx, settings); err != nil {
		return fmt.Errorf("store settings: %w", err)
	}
	return nil
}
