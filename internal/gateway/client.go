// Package gateway is the REST client for the workout-session backend. It is
// the only path through which the tracker touches authoritative state.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/liftlog/internal/models"
)

// Sentinel errors for backend outcomes the tracker branches on. Anything
// else coming out of the client is transient and propagates unmodified.
var (
	ErrActiveSessionExists    = errors.New("an active session already exists for another routine")
	ErrRoutineNotFound        = errors.New("routine not found")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionAlreadyTerminal = errors.New("session is already completed or cancelled")
	ErrRoutineAlreadyAssigned = errors.New("routine is already assigned")
)

// codeErrors maps backend machine codes to sentinels.
var codeErrors = map[string]error{
	"ACTIVE_SESSION_EXISTS":    ErrActiveSessionExists,
	"ROUTINE_NOT_FOUND":        ErrRoutineNotFound,
	"SESSION_NOT_FOUND":        ErrSessionNotFound,
	"NO_ACTIVE_SESSION":        ErrSessionNotFound,
	"SESSION_ALREADY_TERMINAL": ErrSessionAlreadyTerminal,
	"ROUTINE_ALREADY_ASSIGNED": ErrRoutineAlreadyAssigned,
}

// apiError is the backend's JSON error envelope.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Client calls the liftlog session backend over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	userID     int
	httpClient *http.Client
}

// New creates a Client targeting the given base URL. userID scopes every
// request via the X-User-ID header; apiKey may be empty for read-only use.
func New(baseURL, apiKey string, userID int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		userID:     userID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload any) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("X-User-ID", fmt.Sprint(c.userID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	var envelope apiError
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Code != "" {
		if sentinel, ok := codeErrors[envelope.Code]; ok {
			return nil, fmt.Errorf("gateway: %s %s: %w", method, path, sentinel)
		}
		return nil, fmt.Errorf("gateway: %s %s returned %d (%s): %s",
			method, path, resp.StatusCode, envelope.Code, envelope.Error)
	}
	return nil, fmt.Errorf("gateway: %s %s returned %d: %s", method, path, resp.StatusCode, data)
}

// GetActiveSession returns the caller's single ACTIVE session, or nil when
// there is none. "No active session" is a normal outcome, not an error.
func (c *Client) GetActiveSession(ctx context.Context) (*models.RemoteSession, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/sessions/active", nil, nil)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var session models.RemoteSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("gateway: decode active session: %w", err)
	}
	return &session, nil
}

// StartSession creates a new ACTIVE session for the routine. The backend is
// the authority on the one-active-session invariant: it returns the existing
// session unchanged when it already targets the same routine, and
// ErrActiveSessionExists when it targets a different one.
func (c *Client) StartSession(ctx context.Context, routineID int64, startedAt time.Time) (*models.RemoteSession, error) {
	payload := map[string]any{
		"routine_id": routineID,
		"started_at": startedAt.UTC().Format(time.RFC3339),
	}
	data, err := c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, payload)
	if err != nil {
		return nil, err
	}

	var session models.RemoteSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("gateway: decode session: %w", err)
	}
	return &session, nil
}

// CompleteSession transitions ACTIVE -> COMPLETED. Completing a session that
// is already terminal yields ErrSessionAlreadyTerminal.
func (c *Client) CompleteSession(ctx context.Context, id uuid.UUID, endedAt time.Time, notes string) error {
	payload := map[string]any{
		"ended_at": endedAt.UTC().Format(time.RFC3339),
	}
	if notes != "" {
		payload["notes"] = notes
	}
	_, err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id.String()+"/complete", nil, payload)
	return err
}

// CancelSession transitions ACTIVE -> CANCELLED. An unknown session yields
// ErrSessionNotFound, which callers treat as success-equivalent: the backend
// may already have auto-cancelled it.
func (c *Client) CancelSession(ctx context.Context, id uuid.UUID) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id.String()+"/cancel", nil, nil)
	return err
}

// GetRoutine fetches a routine with its exercise list, used both to start
// sessions and to validate that a stored session's routine still exists.
func (c *Client) GetRoutine(ctx context.Context, id int64) (*models.Routine, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/routines/%d", id), nil, nil)
	if err != nil {
		return nil, err
	}

	var routine models.Routine
	if err := json.Unmarshal(data, &routine); err != nil {
		return nil, fmt.Errorf("gateway: decode routine: %w", err)
	}
	return &routine, nil
}

// AssignRoutine creates a routine assignment for the user.
// ErrRoutineAlreadyAssigned is returned when one is already active; callers
// treat that as success.
func (c *Client) AssignRoutine(ctx context.Context, routineID int64, startDate time.Time) error {
	payload := map[string]any{
		"routine_id": routineID,
		"start_date": startDate.UTC().Format(time.RFC3339),
	}
	_, err := c.do(ctx, http.MethodPost, "/api/v1/assignments", nil, payload)
	return err
}

// ListRoutines returns up to limit routines ordered by id.
func (c *Client) ListRoutines(ctx context.Context, limit int) ([]models.Routine, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	data, err := c.do(ctx, http.MethodGet, "/api/v1/routines", params, nil)
	if err != nil {
		return nil, err
	}

	var routines []models.Routine
	if err := json.Unmarshal(data, &routines); err != nil {
		return nil, fmt.Errorf("gateway: decode routines: %w", err)
	}
	return routines, nil
}

// FirstRoutine returns the oldest routine, or nil when the backend has none.
// Its identity and creation date form the backend data-generation
// fingerprint.
func (c *Client) FirstRoutine(ctx context.Context) (*models.Routine, error) {
	routines, err := c.ListRoutines(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(routines) == 0 {
		return nil, nil
	}
	return &routines[0], nil
}
