package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/claude/liftlog/internal/models"
)

const sessionColumns = `id, user_id, routine_id, status, started_at, ended_at, notes`

func scanSession(row pgx.Row) (*models.RemoteSession, error) {
	var s models.RemoteSession
	err := row.Scan(&s.ID, &s.UserID, &s.RoutineID, &s.Status, &s.StartedAt, &s.EndedAt, &s.Notes)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetActiveSession returns the user's single ACTIVE session, or nil.
func (db *DB) GetActiveSession(ctx context.Context, userID int) (*models.RemoteSession, error) {
	session, err := scanSession(db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM workout_sessions
		 WHERE user_id = $1 AND status = 'ACTIVE'`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active session: %w", err)
	}
	return session, nil
}

// StartSession creates an ACTIVE session. The one-active-session invariant is
// enforced by a partial unique index on (user_id) WHERE status = 'ACTIVE';
// this is the authoritative enforcement point, clients are best-effort only.
// When an active session for the same routine already exists it is returned
// unchanged; a different routine yields ErrActiveSessionExists.
func (db *DB) StartSession(ctx context.Context, userID int, routineID int64, startedAt time.Time) (*models.RemoteSession, error) {
	session, err := scanSession(db.Pool.QueryRow(ctx,
		`INSERT INTO workout_sessions (id, user_id, routine_id, status, started_at)
		 VALUES ($1, $2, $3, 'ACTIVE', $4)
		 RETURNING `+sessionColumns,
		uuid.New(), userID, routineID, startedAt))
	if err == nil {
		return session, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		active, aerr := db.GetActiveSession(ctx, userID)
		if aerr != nil {
			return nil, aerr
		}
		if active != nil && active.RoutineID == routineID {
			return active, nil
		}
		return nil, ErrActiveSessionExists
	}
	return nil, fmt.Errorf("inserting session: %w", err)
}

// CompleteSession transitions ACTIVE -> COMPLETED. Returns ErrNotFound for an
// unknown session and ErrAlreadyTerminal when it is already completed or
// cancelled.
func (db *DB) CompleteSession(ctx context.Context, userID int, id uuid.UUID, endedAt time.Time, notes string) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE workout_sessions SET status = 'COMPLETED', ended_at = $1, notes = $2
		 WHERE id = $3 AND user_id = $4 AND status = 'ACTIVE'`,
		endedAt, notes, id, userID)
	if err != nil {
		return fmt.Errorf("completing session: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return db.terminalOrMissing(ctx, userID, id)
}

// CancelSession transitions ACTIVE -> CANCELLED. Cancelling an
// already-CANCELLED session is a no-op success; a COMPLETED one yields
// ErrAlreadyTerminal, an unknown one ErrNotFound.
func (db *DB) CancelSession(ctx context.Context, userID int, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE workout_sessions SET status = 'CANCELLED', ended_at = now()
		 WHERE id = $1 AND user_id = $2 AND status = 'ACTIVE'`,
		id, userID)
	if err != nil {
		return fmt.Errorf("cancelling session: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status models.SessionStatus
	err = db.Pool.QueryRow(ctx,
		`SELECT status FROM workout_sessions WHERE id = $1 AND user_id = $2`,
		id, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying session status: %w", err)
	}
	if status == models.SessionCancelled {
		return nil
	}
	return ErrAlreadyTerminal
}

func (db *DB) terminalOrMissing(ctx context.Context, userID int, id uuid.UUID) error {
	var status models.SessionStatus
	err := db.Pool.QueryRow(ctx,
		`SELECT status FROM workout_sessions WHERE id = $1 AND user_id = $2`,
		id, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying session status: %w", err)
	}
	return ErrAlreadyTerminal
}
