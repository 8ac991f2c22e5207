package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a backend workout session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// RemoteSession is the authoritative backend record of a workout session.
// At most one ACTIVE session exists per user; the backend enforces that.
type RemoteSession struct {
	ID        uuid.UUID     `json:"id"`
	UserID    int           `json:"user_id"`
	RoutineID int64         `json:"routine_id"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Notes     string        `json:"notes,omitempty"`
}

// CompletedSet is one logged set. The log is append-only for the lifetime of
// a session.
type CompletedSet struct {
	ExerciseID  int64     `json:"exercise_id"`
	SetNumber   int       `json:"set_number"`
	Reps        *int      `json:"reps,omitempty"`
	Weight      *float64  `json:"weight,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// SetState is the UI checklist entry for a single planned set.
type SetState struct {
	Reps      int     `json:"reps"`
	Weight    float64 `json:"weight"`
	Completed bool    `json:"completed"`
}

// ExerciseState is the per-exercise checklist, sized from the routine's
// configured set count when a session starts.
type ExerciseState struct {
	ExerciseID int64      `json:"exercise_id"`
	Sets       []SetState `json:"sets"`
}

// ExecutionState is the in-memory state of the currently active workout.
// It exists if and only if a workout is in progress in this process; the
// cursors are advisory progress markers maintained by the caller, not
// derived from CompletedSets.
type ExecutionState struct {
	RoutineID            int64
	RoutineName          string
	WorkoutSessionID     uuid.UUID
	StartedAt            time.Time
	CurrentExerciseIndex int
	CurrentSet           int
	Duration             int // elapsed seconds, checkpointed periodically
	CompletedSets        []CompletedSet
	ExerciseStates       []ExerciseState
	ExpandedExercises    []int64
}

// IncompleteSession is the durable snapshot of an in-progress workout.
// At most one exists device-wide; every ExecutionState field must be
// reflected here before the process may be safely killed.
type IncompleteSession struct {
	RoutineID            int64           `json:"routine_id"`
	RoutineName          string          `json:"routine_name"`
	WorkoutSessionID     uuid.UUID       `json:"workout_session_id"`
	StartedAt            time.Time       `json:"started_at"`
	CurrentExerciseIndex int             `json:"current_exercise_index"`
	CurrentSet           int             `json:"current_set"`
	Duration             int             `json:"duration"`
	CompletedSets        []CompletedSet  `json:"completed_sets"`
	ExerciseStates       []ExerciseState `json:"exercise_states,omitempty"`
	ExpandedExercises    []int64         `json:"expanded_exercises,omitempty"`
}

// Snapshot converts the in-memory execution state into its durable form.
func (e *ExecutionState) Snapshot() *IncompleteSession {
	return &IncompleteSession{
		RoutineID:            e.RoutineID,
		RoutineName:          e.RoutineName,
		WorkoutSessionID:     e.WorkoutSessionID,
		StartedAt:            e.StartedAt,
		CurrentExerciseIndex: e.CurrentExerciseIndex,
		CurrentSet:           e.CurrentSet,
		Duration:             e.Duration,
		CompletedSets:        e.CompletedSets,
		ExerciseStates:       e.ExerciseStates,
		ExpandedExercises:    e.ExpandedExercises,
	}
}

// Restore converts a durable snapshot back into execution state, wholesale.
func (s *IncompleteSession) Restore() *ExecutionState {
	return &ExecutionState{
		RoutineID:            s.RoutineID,
		RoutineName:          s.RoutineName,
		WorkoutSessionID:     s.WorkoutSessionID,
		StartedAt:            s.StartedAt,
		CurrentExerciseIndex: s.CurrentExerciseIndex,
		CurrentSet:           s.CurrentSet,
		Duration:             s.Duration,
		CompletedSets:        s.CompletedSets,
		ExerciseStates:       s.ExerciseStates,
		ExpandedExercises:    s.ExpandedExercises,
	}
}
