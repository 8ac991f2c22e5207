package models

import "time"

// RoutineExercise is one exercise slot in a routine, with its prescribed
// set/rep/weight scheme.
type RoutineExercise struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Sets     int     `json:"sets"`
	Reps     int     `json:"reps"`
	Weight   float64 `json:"weight"`
	Position int     `json:"position"`
}

// Routine is a workout routine as served by the backend, including its
// ordered exercise list.
type Routine struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"created_at"`
	Exercises []RoutineExercise `json:"exercises"`
}

// RoutineAssignment links a user to a routine they are currently following.
type RoutineAssignment struct {
	ID        int64     `json:"id"`
	UserID    int       `json:"user_id"`
	RoutineID int64     `json:"routine_id"`
	StartDate time.Time `json:"start_date"`
	Active    bool      `json:"active"`
}
