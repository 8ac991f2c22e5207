// Package session implements the workout execution tracker: the in-memory
// execution engine, the local/remote reconciler, and the lifecycle
// controller that orchestrates both against the local store and the backend
// gateway.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claude/liftlog/internal/models"
)

var (
	// ErrNoActiveExecution is returned by engine mutations while no workout
	// is in progress.
	ErrNoActiveExecution = errors.New("no workout execution in progress")

	// ErrExecutionInProgress is returned when a start would silently abandon
	// an in-progress workout for a different routine.
	ErrExecutionInProgress = errors.New("a workout for a different routine is in progress")
)

// Engine owns the in-memory ExecutionState for the lifetime of an active
// workout. It has two states: idle (no ExecutionState) and running (exactly
// one). All mutations happen on the caller's goroutine; the controller
// serializes access.
type Engine struct {
	state *models.ExecutionState
}

// NewEngine returns an idle engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Running reports whether a workout execution is in progress.
func (e *Engine) Running() bool {
	return e.state != nil
}

// State returns the live execution state, or nil when idle. Callers must not
// retain it across Finish.
func (e *Engine) State() *models.ExecutionState {
	return e.state
}

// Start transitions idle -> running, seeding cursors at the first
// exercise/first set and a full per-exercise checklist sized from each
// exercise's configured set count. Starting again for the same routine is a
// no-op (an implicit resume); starting for a different routine is rejected
// so an in-progress workout is never silently abandoned.
func (e *Engine) Start(routine *models.Routine, sessionID uuid.UUID, startedAt time.Time) error {
	if e.state != nil {
		if e.state.RoutineID == routine.ID {
			return nil
		}
		return fmt.Errorf("%w (routine %d)", ErrExecutionInProgress, e.state.RoutineID)
	}

	states := make([]models.ExerciseState, 0, len(routine.Exercises))
	for _, ex := range routine.Exercises {
		sets := make([]models.SetState, ex.Sets)
		for i := range sets {
			sets[i] = models.SetState{Reps: ex.Reps, Weight: ex.Weight}
		}
		states = append(states, models.ExerciseState{ExerciseID: ex.ID, Sets: sets})
	}

	e.state = &models.ExecutionState{
		RoutineID:            routine.ID,
		RoutineName:          routine.Name,
		WorkoutSessionID:     sessionID,
		StartedAt:            startedAt,
		CurrentExerciseIndex: 0,
		CurrentSet:           1,
		CompletedSets:        []models.CompletedSet{},
		ExerciseStates:       states,
	}
	return nil
}

// CompleteSet appends one entry to the completed-set log and marks the
// matching checklist entry. The cursors are advisory and not recomputed
// here; the controller keeps them consistent via SetCursor.
func (e *Engine) CompleteSet(exerciseID int64, setNumber int, reps *int, weight *float64) error {
	if e.state == nil {
		return ErrNoActiveExecution
	}

	e.state.CompletedSets = append(e.state.CompletedSets, models.CompletedSet{
		ExerciseID:  exerciseID,
		SetNumber:   setNumber,
		Reps:        reps,
		Weight:      weight,
		CompletedAt: time.Now().UTC(),
	})

	for i := range e.state.ExerciseStates {
		es := &e.state.ExerciseStates[i]
		if es.ExerciseID != exerciseID {
			continue
		}
		if setNumber >= 1 && setNumber <= len(es.Sets) {
			set := &es.Sets[setNumber-1]
			set.Completed = true
			if reps != nil {
				set.Reps = *reps
			}
			if weight != nil {
				set.Weight = *weight
			}
		}
		break
	}
	return nil
}

// SetCursor overwrites the advisory progress markers.
func (e *Engine) SetCursor(exerciseIndex, set int) error {
	if e.state == nil {
		return ErrNoActiveExecution
	}
	e.state.CurrentExerciseIndex = exerciseIndex
	e.state.CurrentSet = set
	return nil
}

// SetDuration records the elapsed seconds checkpointed by the caller.
func (e *Engine) SetDuration(seconds int) error {
	if e.state == nil {
		return ErrNoActiveExecution
	}
	e.state.Duration = seconds
	return nil
}

// SetExpanded records which exercises the UI has expanded.
func (e *Engine) SetExpanded(exerciseIDs []int64) error {
	if e.state == nil {
		return ErrNoActiveExecution
	}
	e.state.ExpandedExercises = exerciseIDs
	return nil
}

// Resume rehydrates the engine from a snapshot, overwriting the entire
// execution state rather than replaying individual set completions. Used
// when a reconciliation outcome is resumed.
func (e *Engine) Resume(snapshot *models.IncompleteSession) {
	e.state = snapshot.Restore()
	if e.state.CompletedSets == nil {
		e.state.CompletedSets = []models.CompletedSet{}
	}
}

// Finish transitions running -> idle, dropping the execution state. There is
// no way back except through Start or Resume.
func (e *Engine) Finish() {
	e.state = nil
}
