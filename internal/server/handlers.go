package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/storage"
)

// handleGetActiveSession returns the caller's single ACTIVE session. A
// session whose routine has since been deleted is auto-cancelled here and
// reported as absent; clients never see orphaned backend sessions twice.
func (s *Server) handleGetActiveSession(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	session, err := s.db.GetActiveSession(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "NO_ACTIVE_SESSION", "no active session")
		return
	}

	exists, err := s.db.RoutineExists(r.Context(), session.RoutineID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if !exists {
		if err := s.db.CancelSession(r.Context(), userID, session.ID); err != nil {
			s.log.Warn("auto-cancel of orphaned session failed", "session_id", session.ID, "error", err)
		} else {
			s.log.Info("auto-cancelled orphaned session", "session_id", session.ID, "routine_id", session.RoutineID)
		}
		writeError(w, http.StatusNotFound, "NO_ACTIVE_SESSION", "no active session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req struct {
		RoutineID int64     `json:"routine_id"`
		StartedAt time.Time `json:"started_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON: "+err.Error())
		return
	}
	if req.RoutineID == 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "routine_id is required")
		return
	}
	if req.StartedAt.IsZero() {
		req.StartedAt = time.Now().UTC()
	}

	exists, err := s.db.RoutineExists(r.Context(), req.RoutineID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "ROUTINE_NOT_FOUND", "routine not found")
		return
	}

	session, err := s.db.StartSession(r.Context(), userID, req.RoutineID, req.StartedAt)
	if errors.Is(err, storage.ErrActiveSessionExists) {
		writeError(w, http.StatusConflict, "ACTIVE_SESSION_EXISTS", "an active session exists for another routine")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session ID")
		return
	}

	var req struct {
		EndedAt time.Time `json:"ended_at"`
		Notes   string    `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON: "+err.Error())
		return
	}
	if req.EndedAt.IsZero() {
		req.EndedAt = time.Now().UTC()
	}

	err = s.db.CompleteSession(r.Context(), userID, sessionID, req.EndedAt, req.Notes)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
	case errors.Is(err, storage.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, "SESSION_ALREADY_TERMINAL", "session is already completed or cancelled")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": string(models.SessionCompleted)})
	}
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session ID")
		return
	}

	err = s.db.CancelSession(r.Context(), userID, sessionID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
	case errors.Is(err, storage.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, "SESSION_ALREADY_TERMINAL", "session is already completed")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": string(models.SessionCancelled)})
	}
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	routines, err := s.db.ListRoutines(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if routines == nil {
		routines = []models.Routine{}
	}
	writeJSON(w, http.StatusOK, routines)
}

func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid routine ID")
		return
	}

	routine, err := s.db.GetRoutine(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ROUTINE_NOT_FOUND", "routine not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, routine)
}

func (s *Server) handleAssignRoutine(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req struct {
		RoutineID int64     `json:"routine_id"`
		StartDate time.Time `json:"start_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON: "+err.Error())
		return
	}
	if req.RoutineID == 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "routine_id is required")
		return
	}
	if req.StartDate.IsZero() {
		req.StartDate = time.Now().UTC()
	}

	assignment, err := s.db.AssignRoutine(r.Context(), userID, req.RoutineID, req.StartDate)
	switch {
	case errors.Is(err, storage.ErrAlreadyAssigned):
		writeError(w, http.StatusConflict, "ROUTINE_ALREADY_ASSIGNED", "user already has an active routine")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "ROUTINE_NOT_FOUND", "routine not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	default:
		writeJSON(w, http.StatusCreated, assignment)
	}
}

func (s *Server) handleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string                   `json:"name"`
		Exercises []models.RoutineExercise `json:"exercises"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "name is required")
		return
	}

	routine, err := s.db.CreateRoutine(r.Context(), req.Name, req.Exercises)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, routine)
}

func (s *Server) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid routine ID")
		return
	}

	err = s.db.DeleteRoutine(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ROUTINE_NOT_FOUND", "routine not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}
