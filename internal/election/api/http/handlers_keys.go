package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openschool/ballotbox/internal/election/gate"
)

type registerBeginRequest struct {
	KeyName string `json:"key_name"`
}

type ceremonyBody struct {
	CeremonyID string          `json:"ceremony_id"`
	Options    json.RawMessage `json:"options"`
}

func (h *Handler) handleRegisterBegin(w http.ResponseWriter, r *http.Request, caller principal) {
	var req registerBeginRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	challenge, err := h.passkeys.BeginRegistration(r.Context(), caller.user.ID, req.KeyName)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, ceremonyBody{
		CeremonyID: challenge.CeremonyID,
		Options:    json.RawMessage(challenge.OptionsJSON),
	})
}

type registerFinishRequest struct {
	CeremonyID string          `json:"ceremony_id"`
	Response   json.RawMessage `json:"response"`
}

type keyBody struct {
	CredentialID string    `json:"credential_id"`
	Name         string    `json:"name"`
	Purpose      string    `json:"purpose"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *Handler) handleRegisterFinish(w http.ResponseWriter, r *http.Request, _ principal) {
	var req registerFinishRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	record, err := h.passkeys.FinishRegistration(r.Context(), req.CeremonyID, req.Response)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, keyBody{
		CredentialID: record.CredentialID,
		Name:         record.Name,
		Purpose:      record.Purpose.String(),
		CreatedAt:    record.CreatedAt,
	})
}

type removeKeyRequest struct {
	CredentialID string `json:"credential_id"`
}

// handleRemoveKey parks the removal behind the operator's gate; the
// credential is only marked removed once a security key verifies it.
func (h *Handler) handleRemoveKey(w http.ResponseWriter, r *http.Request, caller principal) {
	var req removeKeyRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	session := h.session(caller.user.ID)
	outcome, err := session.gate.Begin(r.Context(), gate.Action{
		Kind:         gate.KindRemoveKey,
		ActorID:      caller.user.ID,
		CredentialID: req.CredentialID,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, h.gateOutcome(session, outcome))
}

func (h *Handler) handleListKeys(w http.ResponseWriter, r *http.Request, _ principal) {
	records, err := h.credentials.ListCredentials(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	keys := make([]keyBody, 0, len(records))
	for _, record := range records {
		keys = append(keys, keyBody{
			CredentialID: record.CredentialID,
			Name:         record.Name,
			Purpose:      record.Purpose.String(),
			CreatedAt:    record.CreatedAt,
		})
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"keys": keys})
}
