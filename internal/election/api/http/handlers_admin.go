package httpapi

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
)

type pinBody struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PIN       string    `json:"pin"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// PIN codes are returned as stored. The admin surface displays them unmasked;
// see the project notes on plaintext PIN handling.
func (h *Handler) handleListPins(w http.ResponseWriter, r *http.Request, _ principal) {
	records, err := h.pins.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	pins := make([]pinBody, 0, len(records))
	for _, record := range records {
		pins = append(pins, pinBody{
			ID:        record.ID,
			Name:      record.Name,
			PIN:       record.PIN,
			Active:    record.Active,
			CreatedAt: record.CreatedAt,
		})
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"pins": pins})
}

type assignPinRequest struct {
	UserID string `json:"user_id"`
	PinID  string `json:"pin_id"`
}

func (h *Handler) handleAssignPin(w http.ResponseWriter, r *http.Request, _ principal) {
	var req assignPinRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.pins.Assign(r.Context(), req.UserID, req.PinID); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]bool{"assigned": true})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request, _ principal) {
	records, err := h.identity.ListUsers(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Email < records[j].Email })
	users := make([]map[string]any, 0, len(records))
	for _, record := range records {
		users = append(users, userBody(record))
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

type positionBody struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

func (h *Handler) handleListPositions(w http.ResponseWriter, r *http.Request, _ principal) {
	records, err := h.positions.ListPositions(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Order < records[j].Order })
	positions := make([]positionBody, 0, len(records))
	for _, record := range records {
		positions = append(positions, positionBody{ID: record.ID, Name: record.Name, Order: record.Order})
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

type addPositionRequest struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

func (h *Handler) handleAddPosition(w http.ResponseWriter, r *http.Request, _ principal) {
	var req addPositionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		WriteError(w, apperrors.New(apperrors.CodeUnknown, "position name is required"))
		return
	}
	positionID, err := h.idGenerator()
	if err != nil {
		WriteError(w, err)
		return
	}
	position := domain.Position{ID: positionID, Name: req.Name, Order: req.Order}
	if err := h.positions.PutPosition(r.Context(), position); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, positionBody{ID: position.ID, Name: position.Name, Order: position.Order})
}

type removePositionRequest struct {
	PositionID string `json:"position_id"`
}

func (h *Handler) handleRemovePosition(w http.ResponseWriter, r *http.Request, _ principal) {
	var req removePositionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.positions.DeletePosition(r.Context(), req.PositionID); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

type candidateBody struct {
	ID         string `json:"id"`
	PositionID string `json:"position_id"`
	Name       string `json:"name"`
	Bio        string `json:"bio,omitempty"`
	PhotoURL   string `json:"photo_url,omitempty"`
}

func (h *Handler) handleListCandidates(w http.ResponseWriter, r *http.Request, _ principal) {
	positionID := strings.TrimSpace(r.URL.Query().Get("position_id"))
	var (
		records []domain.Candidate
		err     error
	)
	if positionID != "" {
		records, err = h.candidates.ListCandidatesByPosition(r.Context(), positionID)
	} else {
		records, err = h.candidates.ListCandidates(r.Context())
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	candidates := make([]candidateBody, 0, len(records))
	for _, record := range records {
		candidates = append(candidates, candidateBody{
			ID:         record.ID,
			PositionID: record.PositionID,
			Name:       record.Name,
			Bio:        record.Bio,
			PhotoURL:   record.PhotoURL,
		})
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

type addCandidateRequest struct {
	PositionID string `json:"position_id"`
	Name       string `json:"name"`
	Bio        string `json:"bio,omitempty"`
	PhotoURL   string `json:"photo_url,omitempty"`
}

func (h *Handler) handleAddCandidate(w http.ResponseWriter, r *http.Request, _ principal) {
	var req addCandidateRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.PositionID = strings.TrimSpace(req.PositionID)
	if req.Name == "" || req.PositionID == "" {
		WriteError(w, apperrors.New(apperrors.CodeUnknown, "candidate name and position id are required"))
		return
	}
	candidateID, err := h.idGenerator()
	if err != nil {
		WriteError(w, err)
		return
	}
	candidate := domain.Candidate{
		ID:         candidateID,
		PositionID: req.PositionID,
		Name:       req.Name,
		Bio:        strings.TrimSpace(req.Bio),
		PhotoURL:   strings.TrimSpace(req.PhotoURL),
	}
	if err := h.candidates.PutCandidate(r.Context(), candidate); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, candidateBody{
		ID:         candidate.ID,
		PositionID: candidate.PositionID,
		Name:       candidate.Name,
		Bio:        candidate.Bio,
		PhotoURL:   candidate.PhotoURL,
	})
}

type removeCandidateRequest struct {
	CandidateID string `json:"candidate_id"`
}

func (h *Handler) handleRemoveCandidate(w http.ResponseWriter, r *http.Request, _ principal) {
	var req removeCandidateRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.candidates.DeleteCandidate(r.Context(), req.CandidateID); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request, _ principal) {
	settings, err := h.results.Settings(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"active":                settings.Active,
		"results_public":        settings.ResultsPublic,
		"vote_display_delay_ms": settings.VoteDisplayDelay.Milliseconds(),
	})
}

type setResultsPublicRequest struct {
	Public bool `json:"public"`
}

// handleSetResultsPublic flips the public-results switch. It requires a live
// election-purpose verification, same as the other election controls.
func (h *Handler) handleSetResultsPublic(w http.ResponseWriter, r *http.Request, caller principal) {
	var req setResultsPublicRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	session := h.session(caller.user.ID)
	if !session.verification.IsVerified(domain.PurposeElection) {
		WriteError(w, apperrors.New(apperrors.CodeVerificationRequired, "a security key verification is required"))
		return
	}
	if err := h.results.SetResultsPublic(r.Context(), req.Public); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]bool{"results_public": req.Public})
}
