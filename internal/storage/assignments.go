package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/claude/liftlog/internal/models"
)

// AssignRoutine creates an active routine assignment for the user. A second
// active assignment yields ErrAlreadyAssigned via the partial unique index on
// (user_id) WHERE active.
func (db *DB) AssignRoutine(ctx context.Context, userID int, routineID int64, startDate time.Time) (*models.RoutineAssignment, error) {
	a := &models.RoutineAssignment{
		UserID:    userID,
		RoutineID: routineID,
		StartDate: startDate,
		Active:    true,
	}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO routine_assignments (user_id, routine_id, start_date, active)
		 VALUES ($1, $2, $3, TRUE)
		 RETURNING id`,
		userID, routineID, startDate).Scan(&a.ID)
	if err == nil {
		return a, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return nil, ErrAlreadyAssigned
		case "23503":
			return nil, ErrNotFound
		}
	}
	return nil, fmt.Errorf("inserting assignment: %w", err)
}
