package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claude/liftlog/internal/models"
)

// CreateRoutine inserts a routine with its exercise list and returns the
// stored form with assigned IDs.
func (db *DB) CreateRoutine(ctx context.Context, name string, exercises []models.RoutineExercise) (*models.Routine, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning routine insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	routine := &models.Routine{Name: name}
	err = tx.QueryRow(ctx,
		`INSERT INTO routines (name) VALUES ($1) RETURNING id, created_at`,
		name).Scan(&routine.ID, &routine.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting routine: %w", err)
	}

	for i, ex := range exercises {
		var stored models.RoutineExercise
		err = tx.QueryRow(ctx,
			`INSERT INTO routine_exercises (routine_id, name, sets, reps, weight, position)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, name, sets, reps, weight, position`,
			routine.ID, ex.Name, ex.Sets, ex.Reps, ex.Weight, i).
			Scan(&stored.ID, &stored.Name, &stored.Sets, &stored.Reps, &stored.Weight, &stored.Position)
		if err != nil {
			return nil, fmt.Errorf("inserting routine exercise: %w", err)
		}
		routine.Exercises = append(routine.Exercises, stored)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing routine insert: %w", err)
	}
	return routine, nil
}

// GetRoutine retrieves a routine and its ordered exercise list.
func (db *DB) GetRoutine(ctx context.Context, id int64) (*models.Routine, error) {
	var routine models.Routine
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM routines WHERE id = $1`, id).
		Scan(&routine.ID, &routine.Name, &routine.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying routine: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, sets, reps, weight, position
		 FROM routine_exercises WHERE routine_id = $1 ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("querying routine exercises: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ex models.RoutineExercise
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.Sets, &ex.Reps, &ex.Weight, &ex.Position); err != nil {
			return nil, fmt.Errorf("scanning routine exercise: %w", err)
		}
		routine.Exercises = append(routine.Exercises, ex)
	}
	return &routine, rows.Err()
}

// ListRoutines retrieves routines ordered by id, oldest first. The first row
// feeds the client-side data-generation fingerprint, so the ordering is part
// of the contract.
func (db *DB) ListRoutines(ctx context.Context, limit int) ([]models.Routine, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, created_at FROM routines ORDER BY id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	var routines []models.Routine
	for rows.Next() {
		var r models.Routine
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		routines = append(routines, r)
	}
	return routines, rows.Err()
}

// DeleteRoutine removes a routine and its exercises. Workout sessions keep
// their routine_id on purpose: sessions referencing a deleted routine are the
// orphan case the client reconciler and the server auto-cleanup both handle.
func (db *DB) DeleteRoutine(ctx context.Context, id int64) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM routines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting routine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RoutineExists reports whether a routine row exists.
func (db *DB) RoutineExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM routines WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking routine: %w", err)
	}
	return exists, nil
}
