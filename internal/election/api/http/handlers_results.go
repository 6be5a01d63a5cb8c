package httpapi

import (
	"net/http"

	"github.com/openschool/ballotbox/internal/election/domain"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
)

type tallyBody struct {
	Position   positionBody         `json:"position"`
	Candidates []candidateTallyBody `json:"candidates"`
	TotalVotes int                  `json:"total_votes"`
}

type candidateTallyBody struct {
	Candidate candidateBody `json:"candidate"`
	Count     int           `json:"count"`
}

// handleResults serves the tally. Results are open to everyone once the
// public switch is on; otherwise the caller needs a live election-purpose
// verification, obtained by driving the gate's view-results action.
func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	public, err := h.results.Public(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	if !public {
		caller, err := h.authenticate(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		session := h.session(caller.user.ID)
		if !session.verification.IsVerified(domain.PurposeElection) {
			WriteError(w, apperrors.New(apperrors.CodeVerificationRequired, "a security key verification is required to view results"))
			return
		}
	}

	tallies, err := h.results.Tally(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	body := make([]tallyBody, 0, len(tallies))
	for _, tally := range tallies {
		entry := tallyBody{
			Position: positionBody{
				ID:    tally.Position.ID,
				Name:  tally.Position.Name,
				Order: tally.Position.Order,
			},
			TotalVotes: tally.TotalVotes,
		}
		for _, candidate := range tally.Candidates {
			entry.Candidates = append(entry.Candidates, candidateTallyBody{
				Candidate: candidateBody{
					ID:         candidate.Candidate.ID,
					PositionID: candidate.Candidate.PositionID,
					Name:       candidate.Candidate.Name,
					Bio:        candidate.Candidate.Bio,
					PhotoURL:   candidate.Candidate.PhotoURL,
				},
				Count: candidate.Count,
			})
		}
		body = append(body, entry)
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"results": body})
}
