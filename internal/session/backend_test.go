package session

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/liftlog/internal/gateway"
	"github.com/claude/liftlog/internal/localstore"
	"github.com/claude/liftlog/internal/models"
)

// fakeBackend is an in-memory session backend that enforces the same
// invariants as the real server: at most one ACTIVE session per user,
// auto-cancellation of sessions whose routine was deleted, idempotent
// cancels, and terminal-state conflicts on complete.
type fakeBackend struct {
	mu          sync.Mutex
	routines    map[int64]models.Routine
	sessions    map[uuid.UUID]*models.RemoteSession
	assignments map[int]int64

	failComplete  bool // next CompleteSession returns 500
	blockActive   chan struct{}
	completeCalls int
	cancelled     []uuid.UUID

	srv *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		routines:    map[int64]models.Routine{},
		sessions:    map[uuid.UUID]*models.RemoteSession{},
		assignments: map[int]int64{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sessions/active", fb.handleActive)
	mux.HandleFunc("POST /api/v1/sessions", fb.handleStart)
	mux.HandleFunc("POST /api/v1/sessions/{id}/complete", fb.handleComplete)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", fb.handleCancel)
	mux.HandleFunc("GET /api/v1/routines", fb.handleListRoutines)
	mux.HandleFunc("GET /api/v1/routines/{id}", fb.handleGetRoutine)
	mux.HandleFunc("POST /api/v1/assignments", fb.handleAssign)

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) addRoutine(r models.Routine) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.routines[r.ID] = r
}

func (fb *fakeBackend) deleteRoutine(id int64) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	delete(fb.routines, id)
}

func (fb *fakeBackend) addSession(s models.RemoteSession) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.sessions[s.ID] = &s
}

func (fb *fakeBackend) session(id uuid.UUID) models.RemoteSession {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return *fb.sessions[id]
}

func (fb *fakeBackend) activeCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, s := range fb.sessions {
		if s.Status == models.SessionActive {
			n++
		}
	}
	return n
}

func userOf(r *http.Request) int {
	if id, err := strconv.Atoi(r.Header.Get("X-User-ID")); err == nil && id > 0 {
		return id
	}
	return 1
}

func fbError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "code": code})
}

func fbJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) activeFor(userID int) *models.RemoteSession {
	for _, s := range fb.sessions {
		if s.UserID == userID && s.Status == models.SessionActive {
			return s
		}
	}
	return nil
}

func (fb *fakeBackend) handleActive(w http.ResponseWriter, r *http.Request) {
	if fb.blockActive != nil {
		<-fb.blockActive
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	active := fb.activeFor(userOf(r))
	if active == nil {
		fbError(w, http.StatusNotFound, "NO_ACTIVE_SESSION")
		return
	}
	if _, ok := fb.routines[active.RoutineID]; !ok {
		active.Status = models.SessionCancelled
		fb.cancelled = append(fb.cancelled, active.ID)
		fbError(w, http.StatusNotFound, "NO_ACTIVE_SESSION")
		return
	}
	fbJSON(w, http.StatusOK, active)
}

func (fb *fakeBackend) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoutineID int64     `json:"routine_id"`
		StartedAt time.Time `json:"started_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fbError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if _, ok := fb.routines[req.RoutineID]; !ok {
		fbError(w, http.StatusNotFound, "ROUTINE_NOT_FOUND")
		return
	}

	userID := userOf(r)
	if active := fb.activeFor(userID); active != nil {
		if active.RoutineID == req.RoutineID {
			fbJSON(w, http.StatusOK, active)
			return
		}
		fbError(w, http.StatusConflict, "ACTIVE_SESSION_EXISTS")
		return
	}

	s := &models.RemoteSession{
		ID:        uuid.New(),
		UserID:    userID,
		RoutineID: req.RoutineID,
		Status:    models.SessionActive,
		StartedAt: req.StartedAt,
	}
	fb.sessions[s.ID] = s
	fbJSON(w, http.StatusCreated, s)
}

func (fb *fakeBackend) handleComplete(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.completeCalls++
	if fb.failComplete {
		fbError(w, http.StatusInternalServerError, "INTERNAL")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		fbError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	s, ok := fb.sessions[id]
	if !ok || s.UserID != userOf(r) {
		fbError(w, http.StatusNotFound, "SESSION_NOT_FOUND")
		return
	}
	if s.Status.Terminal() {
		fbError(w, http.StatusConflict, "SESSION_ALREADY_TERMINAL")
		return
	}

	var req struct {
		EndedAt time.Time `json:"ended_at"`
		Notes   string    `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fbError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	s.Status = models.SessionCompleted
	s.EndedAt = &req.EndedAt
	s.Notes = req.Notes
	fbJSON(w, http.StatusOK, map[string]string{"status": "COMPLETED"})
}

func (fb *fakeBackend) handleCancel(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		fbError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	s, ok := fb.sessions[id]
	if !ok || s.UserID != userOf(r) {
		fbError(w, http.StatusNotFound, "SESSION_NOT_FOUND")
		return
	}
	switch s.Status {
	case models.SessionCompleted:
		fbError(w, http.StatusConflict, "SESSION_ALREADY_TERMINAL")
	case models.SessionCancelled:
		fbJSON(w, http.StatusOK, map[string]string{"status": "CANCELLED"})
	default:
		s.Status = models.SessionCancelled
		fb.cancelled = append(fb.cancelled, s.ID)
		fbJSON(w, http.StatusOK, map[string]string{"status": "CANCELLED"})
	}
}

func (fb *fakeBackend) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	routines := make([]models.Routine, 0, len(fb.routines))
	for _, rt := range fb.routines {
		routines = append(routines, rt)
	}
	sort.Slice(routines, func(i, j int) bool { return routines[i].ID < routines[j].ID })

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n < len(routines) {
			routines = routines[:n]
		}
	}
	fbJSON(w, http.StatusOK, routines)
}

func (fb *fakeBackend) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	routine, ok := fb.routines[id]
	if !ok {
		fbError(w, http.StatusNotFound, "ROUTINE_NOT_FOUND")
		return
	}
	fbJSON(w, http.StatusOK, routine)
}

func (fb *fakeBackend) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoutineID int64 `json:"routine_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fbError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	userID := userOf(r)
	if _, ok := fb.assignments[userID]; ok {
		fbError(w, http.StatusConflict, "ROUTINE_ALREADY_ASSIGNED")
		return
	}
	fb.assignments[userID] = req.RoutineID
	fbJSON(w, http.StatusCreated, map[string]any{"routine_id": req.RoutineID})
}

// --- test wiring helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func benchRoutine() models.Routine {
	return models.Routine{
		ID:        12,
		Name:      "Push Day",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Exercises: []models.RoutineExercise{
			{ID: 5, Name: "Bench Press", Sets: 3, Reps: 10, Weight: 40},
			{ID: 6, Name: "Overhead Press", Sets: 2, Reps: 8, Weight: 25},
		},
	}
}

func newTestStore(t *testing.T) (*localstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := localstore.Open(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func newTestController(t *testing.T, fb *fakeBackend) (*Controller, *localstore.Store) {
	t.Helper()
	store, _ := newTestStore(t)
	gw := gateway.New(fb.srv.URL, "", 1)
	return NewController(store, gw, testLogger()), store
}

// newTestControllerAt builds a controller over an explicit state dir so tests
// can simulate a process restart by reopening the same directory.
func newTestControllerAt(t *testing.T, fb *fakeBackend, dir string) (*Controller, *localstore.Store) {
	t.Helper()
	store, err := localstore.Open(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	gw := gateway.New(fb.srv.URL, "", 1)
	return NewController(store, gw, testLogger()), store
}
