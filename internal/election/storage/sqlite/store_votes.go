package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/storage"
)

// PutVote appends a cast vote. Votes are never updated.
func (s *Store) PutVote(ctx context.Context, vote domain.Vote) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(vote.ID) == "" {
		return fmt.Errorf("vote id is required")
	}
	if strings.TrimSpace(vote.PositionID) == "" {
		return fmt.Errorf("vote position id is required")
	}
	if strings.TrimSpace(vote.CandidateID) == "" {
		return fmt.Errorf("vote candidate id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO votes (id, position_id, candidate_id, cast_at)
VALUES (?, ?, ?, ?)
`, vote.ID, vote.PositionID, vote.CandidateID, toMillis(vote.CastAt))
	if err != nil {
		return fmt.Errorf("put vote: %w", err)
	}
	return nil
}

// PutBallot appends one voter's votes in a single transaction. Either the
// whole ballot lands or none of it does.
func (s *Store) PutBallot(ctx context.Context, votes []domain.Vote) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(votes) == 0 {
		return fmt.Errorf("ballot has no votes")
	}
	for _, vote := range votes {
		if strings.TrimSpace(vote.ID) == "" {
			return fmt.Errorf("vote id is required")
		}
		if strings.TrimSpace(vote.PositionID) == "" {
			return fmt.Errorf("vote position id is required")
		}
		if strings.TrimSpace(vote.CandidateID) == "" {
			return fmt.Errorf("vote candidate id is required")
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, vote := range votes {
		_, err := tx.ExecContext(ctx, `
INSERT INTO votes (id, position_id, candidate_id, cast_at)
VALUES (?, ?, ?, ?)
`, vote.ID, vote.PositionID, vote.CandidateID, toMillis(vote.CastAt))
		if err != nil {
			return fmt.Errorf("put ballot vote: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ballot: %w", err)
	}
	return nil
}

// CountVotes tallies recorded votes grouped by position and candidate.
func (s *Store) CountVotes(ctx context.Context) ([]storage.VoteCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT position_id, candidate_id, COUNT(*)
FROM votes
GROUP BY position_id, candidate_id
ORDER BY position_id, candidate_id
`)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	defer rows.Close()

	var counts []storage.VoteCount
	for rows.Next() {
		var count storage.VoteCount
		if err := rows.Scan(&count.PositionID, &count.CandidateID, &count.Count); err != nil {
			return nil, fmt.Errorf("scan vote count: %w", err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote counts: %w", err)
	}
	return counts, nil
}
