package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/liftlog/internal/gateway"
	"github.com/claude/liftlog/internal/session"
)

// --- Tool definitions ---

var toolListRoutines = mcp.NewTool("list_routines",
	mcp.WithDescription("List available workout routines with their IDs. Use a routine ID to start a workout."),
	mcp.WithNumber("limit", mcp.Description("Maximum number of routines to return. Defaults to 50.")),
)

var toolStartWorkout = mcp.NewTool("start_workout",
	mcp.WithDescription("Start a workout session for a routine. Fails with a conflict when a session is already active or pending; use get_workout_state and resume_workout or discard_workout first."),
	mcp.WithNumber("routine_id", mcp.Required(), mcp.Description("ID of the routine to perform")),
)

var toolLogSet = mcp.NewTool("log_set",
	mcp.WithDescription("Log one completed set of the active workout. The entry is durably checkpointed before this returns."),
	mcp.WithNumber("exercise_id", mcp.Required(), mcp.Description("Exercise ID within the routine")),
	mcp.WithNumber("set_number", mcp.Required(), mcp.Description("1-based set number within the exercise")),
	mcp.WithNumber("reps", mcp.Description("Repetitions performed. Defaults to the routine's prescription.")),
	mcp.WithNumber("weight", mcp.Description("Weight used, in kg.")),
)

var toolWorkoutState = mcp.NewTool("get_workout_state",
	mcp.WithDescription("Current workout state: reconciles local and backend sessions and reports none, an in-progress workout, a resumable local session, or a backend-only session from another device."),
)

var toolResumeWorkout = mcp.NewTool("resume_workout",
	mcp.WithDescription("Resume the pending session reported by get_workout_state."),
)

var toolSaveWorkout = mcp.NewTool("save_workout",
	mcp.WithDescription("Complete the active workout on the backend and clear local state. Safe to retry on failure; nothing is lost until the save succeeds."),
	mcp.WithString("notes", mcp.Description("Optional session notes")),
)

var toolDiscardWorkout = mcp.NewTool("discard_workout",
	mcp.WithDescription("Discard the active or pending workout. The backend session is cancelled best-effort and local state is cleared."),
)

// --- Tool handlers ---

func (h *handlers) listRoutines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 50)

	routines, err := h.gw.ListRoutines(ctx, limit)
	if err != nil {
		h.log.Error("mcp list_routines", "error", err)
		return mcp.NewToolResultError("listing routines failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(routines)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) startWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	routineID, err := req.RequireInt("routine_id")
	if err != nil {
		return mcp.NewToolResultError("routine_id parameter is required"), nil
	}

	if err := h.ctrl.Start(ctx, int64(routineID)); err != nil {
		switch {
		case errors.Is(err, gateway.ErrActiveSessionExists),
			errors.Is(err, session.ErrExecutionInProgress),
			errors.Is(err, session.ErrPendingSessionExists):
			return mcp.NewToolResultError("session conflict: " + err.Error()), nil
		case errors.Is(err, gateway.ErrRoutineNotFound):
			return mcp.NewToolResultError("routine not found"), nil
		}
		h.log.Error("mcp start_workout", "error", err)
		return mcp.NewToolResultError("start failed: " + err.Error()), nil
	}

	return h.stateResult()
}

func (h *handlers) logSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exerciseID, err := req.RequireInt("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	setNumber, err := req.RequireInt("set_number")
	if err != nil {
		return mcp.NewToolResultError("set_number parameter is required"), nil
	}

	var reps *int
	if v := req.GetInt("reps", -1); v >= 0 {
		reps = &v
	}
	var weight *float64
	if v := req.GetFloat("weight", -1); v >= 0 {
		weight = &v
	}

	if err := h.ctrl.CompleteSet(ctx, int64(exerciseID), setNumber, reps, weight); err != nil {
		if errors.Is(err, session.ErrNoActiveExecution) {
			return mcp.NewToolResultError("no workout in progress; call start_workout first"), nil
		}
		h.log.Error("mcp log_set", "error", err)
		return mcp.NewToolResultError("logging set failed: " + err.Error()), nil
	}

	return h.stateResult()
}

func (h *handlers) workoutState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := h.ctrl.Load(ctx)
	if err != nil {
		h.log.Error("mcp get_workout_state", "error", err)
		return mcp.NewToolResultError("state load failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"outcome": outcome.Kind.String(),
		"running": h.ctrl.Running(),
		"session": outcome.Session,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) resumeWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := h.ctrl.Load(ctx)
	if err != nil {
		h.log.Error("mcp resume_workout", "error", err)
		return mcp.NewToolResultError("state load failed: " + err.Error()), nil
	}
	if outcome.Kind == session.OutcomeNone || outcome.Session == nil {
		return mcp.NewToolResultError("nothing to resume"), nil
	}

	if err := h.ctrl.Resume(ctx, outcome.Session); err != nil {
		h.log.Error("mcp resume_workout", "error", err)
		return mcp.NewToolResultError("resume failed: " + err.Error()), nil
	}

	return h.stateResult()
}

func (h *handlers) saveWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes := req.GetString("notes", "")

	if err := h.ctrl.Save(ctx, notes); err != nil {
		if errors.Is(err, session.ErrNoActiveExecution) {
			return mcp.NewToolResultError("no workout in progress"), nil
		}
		h.log.Error("mcp save_workout", "error", err)
		return mcp.NewToolResultError("save failed, state kept for retry: " + err.Error()), nil
	}

	return mcp.NewToolResultText("workout saved"), nil
}

func (h *handlers) discardWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.ctrl.Discard(ctx); err != nil {
		h.log.Error("mcp discard_workout", "error", err)
		return mcp.NewToolResultError("discard failed: " + err.Error()), nil
	}
	return mcp.NewToolResultText("workout discarded"), nil
}

func (h *handlers) stateResult() (*mcp.CallToolResult, error) {
	st := h.ctrl.State()
	if st == nil {
		return mcp.NewToolResultText("no workout in progress"), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"routine_id":             st.RoutineID,
		"routine_name":           st.RoutineName,
		"session_id":             st.WorkoutSessionID,
		"started_at":             st.StartedAt,
		"current_exercise_index": st.CurrentExerciseIndex,
		"current_set":            st.CurrentSet,
		"completed_sets":         st.CompletedSets,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// --- Resource definitions ---

var resActiveSession = mcp.NewResource(
	"liftlog://active_session",
	"Active Workout Session",
	mcp.WithResourceDescription("The in-progress workout, if any: routine, cursors, and the completed-set log"),
	mcp.WithMIMEType("application/json"),
)

func (h *handlers) activeSession(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var payload any
	if st := h.ctrl.State(); st != nil {
		payload = st.Snapshot()
	} else {
		payload = map[string]any{"active": false}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
