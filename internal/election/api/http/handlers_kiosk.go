package httpapi

import (
	"net/http"
	"strings"

	"github.com/openschool/ballotbox/internal/election/kiosk"
)

type kioskBallotBody struct {
	State     string              `json:"state"`
	Positions []kioskPositionBody `json:"positions,omitempty"`
}

type kioskPositionBody struct {
	Position   positionBody    `json:"position"`
	Candidates []candidateBody `json:"candidates"`
	Selected   string          `json:"selected,omitempty"`
}

func ballotBody(controller *kiosk.Controller, ballot []kiosk.BallotPosition) kioskBallotBody {
	selections := controller.Selections()
	body := kioskBallotBody{State: string(controller.State())}
	for _, entry := range ballot {
		position := kioskPositionBody{
			Position: positionBody{ID: entry.Position.ID, Name: entry.Position.Name, Order: entry.Position.Order},
			Selected: selections[entry.Position.ID],
		}
		for _, candidate := range entry.Candidates {
			position.Candidates = append(position.Candidates, candidateBody{
				ID:         candidate.ID,
				PositionID: candidate.PositionID,
				Name:       candidate.Name,
				Bio:        candidate.Bio,
				PhotoURL:   candidate.PhotoURL,
			})
		}
		body.Positions = append(body.Positions, position)
	}
	return body
}

func (h *Handler) kioskController(w http.ResponseWriter, token string) (*kiosk.Controller, bool) {
	controller, err := h.kiosks.Controller(token)
	if err != nil {
		WriteError(w, err)
		return nil, false
	}
	return controller, true
}

type kioskUnlockRequest struct {
	DeviceToken string `json:"device_token"`
	PIN         string `json:"pin"`
}

func (h *Handler) handleKioskUnlock(w http.ResponseWriter, r *http.Request) {
	var req kioskUnlockRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	controller, ok := h.kioskController(w, req.DeviceToken)
	if !ok {
		return
	}
	ballot, err := controller.Unlock(r.Context(), req.PIN)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, ballotBody(controller, ballot))
}

func (h *Handler) handleKioskBallot(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.kioskController(w, strings.TrimSpace(r.URL.Query().Get("device_token")))
	if !ok {
		return
	}
	ballot, err := controller.Ballot()
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, ballotBody(controller, ballot))
}

type kioskSelectRequest struct {
	DeviceToken string `json:"device_token"`
	PositionID  string `json:"position_id"`
	CandidateID string `json:"candidate_id"`
}

func (h *Handler) handleKioskSelect(w http.ResponseWriter, r *http.Request) {
	var req kioskSelectRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	controller, ok := h.kioskController(w, req.DeviceToken)
	if !ok {
		return
	}
	if err := controller.Select(req.PositionID, req.CandidateID); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"state":    string(controller.State()),
		"complete": controller.Complete(),
	})
}

type kioskSubmitRequest struct {
	DeviceToken string `json:"device_token"`
}

func (h *Handler) handleKioskSubmit(w http.ResponseWriter, r *http.Request) {
	var req kioskSubmitRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	controller, ok := h.kioskController(w, req.DeviceToken)
	if !ok {
		return
	}
	if err := controller.Submit(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"state": string(controller.State())})
}

func (h *Handler) handleKioskState(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.kioskController(w, strings.TrimSpace(r.URL.Query().Get("device_token")))
	if !ok {
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"state":    string(controller.State()),
		"complete": controller.Complete(),
	})
}
