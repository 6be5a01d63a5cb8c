package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/openschool/ballotbox/internal/election/domain"
	"github.com/openschool/ballotbox/internal/election/gate"
)

type gateBeginRequest struct {
	Kind    string `json:"kind"`
	PinID   string `json:"pin_id,omitempty"`
	PinName string `json:"pin_name,omitempty"`
	PinCode string `json:"pin_code,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`

	CredentialID string `json:"credential_id,omitempty"`
}

type gateOutcomeBody struct {
	Committed  bool            `json:"committed"`
	State      string          `json:"state"`
	CeremonyID string          `json:"ceremony_id,omitempty"`
	Options    json.RawMessage `json:"options,omitempty"`
}

func (h *Handler) gateOutcome(session *operatorSession, outcome gate.Outcome) gateOutcomeBody {
	body := gateOutcomeBody{
		Committed: outcome.Committed,
		State:     string(session.gate.State()),
	}
	if outcome.Challenge.CeremonyID != "" {
		body.CeremonyID = outcome.Challenge.CeremonyID
		body.Options = json.RawMessage(outcome.Challenge.OptionsJSON)
	}
	return body
}

func (h *Handler) handleGateBegin(w http.ResponseWriter, r *http.Request, caller principal) {
	var req gateBeginRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	role := domain.RoleGuest
	if req.Role != "" {
		parsed, err := domain.ParseRole(req.Role)
		if err != nil {
			WriteError(w, err)
			return
		}
		role = parsed
	}
	action := gate.Action{
		Kind:    gate.Kind(req.Kind),
		ActorID: caller.user.ID,
		PinID:   req.PinID,
		PinName: req.PinName,
		PinCode: req.PinCode,
		UserID:  req.UserID,
		Email:   req.Email,
		Name:    req.Name,
		Role:    role,

		CredentialID: req.CredentialID,
	}

	session := h.session(caller.user.ID)
	outcome, err := session.gate.Begin(r.Context(), action)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, h.gateOutcome(session, outcome))
}

type gateVerifyRequest struct {
	Response json.RawMessage `json:"response"`
}

func (h *Handler) handleGateVerify(w http.ResponseWriter, r *http.Request, caller principal) {
	var req gateVerifyRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	session := h.session(caller.user.ID)
	outcome, err := session.gate.Verify(r.Context(), req.Response)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, h.gateOutcome(session, outcome))
}

func (h *Handler) handleGateRetry(w http.ResponseWriter, r *http.Request, caller principal) {
	session := h.session(caller.user.ID)
	outcome, err := session.gate.Retry(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, h.gateOutcome(session, outcome))
}

func (h *Handler) handleGateCancel(w http.ResponseWriter, r *http.Request, caller principal) {
	session := h.session(caller.user.ID)
	if err := session.gate.Cancel(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, gateOutcomeBody{State: string(session.gate.State())})
}

func (h *Handler) handleVerificationState(w http.ResponseWriter, _ *http.Request, caller principal) {
	session := h.session(caller.user.ID)
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"general":      session.verification.IsVerified(domain.PurposeGeneral),
		"election":     session.verification.IsVerified(domain.PurposeElection),
		"remaining_ms": session.verification.TimeRemaining().Milliseconds(),
	})
}
