package httpapi

import (
	"net/http"
	"time"
)

type studentBody struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	Name        string     `json:"name"`
	Grade       string     `json:"grade,omitempty"`
	CheckedIn   bool       `json:"checked_in"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request, _ principal) {
	records, err := h.checkin.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		WriteError(w, err)
		return
	}
	students := make([]studentBody, 0, len(records))
	for _, record := range records {
		students = append(students, studentBody{
			ID:          record.ID,
			StudentID:   record.StudentID,
			Name:        record.Name,
			Grade:       record.Grade,
			CheckedIn:   record.CheckedIn,
			CheckedInAt: record.CheckedInAt,
		})
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"students": students})
}

type addStudentRequest struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Grade     string `json:"grade,omitempty"`
}

func (h *Handler) handleAddStudent(w http.ResponseWriter, r *http.Request, _ principal) {
	var req addStudentRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	student, err := h.checkin.Add(r.Context(), req.StudentID, req.Name, req.Grade)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, studentBody{
		ID:        student.ID,
		StudentID: student.StudentID,
		Name:      student.Name,
		Grade:     student.Grade,
	})
}

type removeStudentRequest struct {
	ID string `json:"id"`
}

func (h *Handler) handleRemoveStudent(w http.ResponseWriter, r *http.Request, _ principal) {
	var req removeStudentRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.checkin.Remove(r.Context(), req.ID); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

type checkInRequest struct {
	ID string `json:"id"`
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request, _ principal) {
	var req checkInRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.checkin.CheckIn(r.Context(), req.ID); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]bool{"checked_in": true})
}

func (h *Handler) handleCheckInUndo(w http.ResponseWriter, r *http.Request, _ principal) {
	var req checkInRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.checkin.Undo(r.Context(), req.ID); err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]bool{"checked_in": false})
}
