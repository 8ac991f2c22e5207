package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/claude/liftlog/internal/gateway"
	"github.com/claude/liftlog/internal/localstore"
	"github.com/claude/liftlog/internal/models"
)

// OutcomeKind is the closed set of reconciliation results.
type OutcomeKind int

const (
	// OutcomeNone means no session exists anywhere; any stale local data has
	// been cleared and a new workout may start.
	OutcomeNone OutcomeKind = iota

	// OutcomeResumable means a local snapshot exists and its routine still
	// exists; the user chooses to resume or discard it.
	OutcomeResumable

	// OutcomeBackendOnly means the backend reports an active session this
	// device has no record of. The attached snapshot is reconstructed from
	// backend data and is not persisted until the user actually resumes.
	OutcomeBackendOnly
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResumable:
		return "resumable"
	case OutcomeBackendOnly:
		return "backend-only"
	default:
		return "none"
	}
}

// Outcome is the single consistent result of comparing local and remote
// session state.
type Outcome struct {
	Kind    OutcomeKind
	Session *models.IncompleteSession
}

// Reconciler collapses the {local snapshot} x {backend session} state space
// into one Outcome. Local state is read first because it is cheap and, when
// valid, avoids a second network call; the backend is the final authority
// whenever local state is ambiguous or contradicted.
type Reconciler struct {
	store *localstore.Store
	gw    *gateway.Client
	log   *slog.Logger
}

// NewReconciler wires a reconciler over the local store and backend gateway.
func NewReconciler(store *localstore.Store, gw *gateway.Client, log *slog.Logger) *Reconciler {
	return &Reconciler{store: store, gw: gw, log: log}
}

// Reconcile runs the resolution algorithm:
//
//  1. Read the local snapshot; if absent, consult the backend (step 4).
//  2. If the snapshot's routine still exists, it is resumable.
//  3. If the routine is gone, the session is orphaned: cancel the dangling
//     remote session best-effort, wipe local state, then fall through to
//     step 4.
//  4. Ask the backend for an active session. None -> NONE. One whose routine
//     resolves -> BACKEND_ONLY. One whose routine is gone is left for the
//     backend's own auto-cleanup -> NONE.
func (r *Reconciler) Reconcile(ctx context.Context) (Outcome, error) {
	snapshot, err := r.store.Get()
	if err != nil {
		return Outcome{}, fmt.Errorf("reading local session: %w", err)
	}

	if snapshot != nil {
		_, err := r.gw.GetRoutine(ctx, snapshot.RoutineID)
		switch {
		case err == nil:
			return Outcome{Kind: OutcomeResumable, Session: snapshot}, nil
		case errors.Is(err, gateway.ErrRoutineNotFound):
			if err := r.cleanupOrphan(ctx, snapshot); err != nil {
				return Outcome{}, err
			}
			// fall through to the backend check with local state wiped
		default:
			return Outcome{}, err
		}
	}

	active, err := r.gw.GetActiveSession(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if active == nil {
		return Outcome{Kind: OutcomeNone}, nil
	}

	routine, err := r.gw.GetRoutine(ctx, active.RoutineID)
	if err != nil {
		if errors.Is(err, gateway.ErrRoutineNotFound) {
			// The backend collects routine-less sessions on its next
			// active-session read; nothing to do here.
			r.log.Info("ignoring backend session with deleted routine",
				"session_id", active.ID, "routine_id", active.RoutineID)
			return Outcome{Kind: OutcomeNone}, nil
		}
		return Outcome{}, err
	}

	return Outcome{
		Kind:    OutcomeBackendOnly,
		Session: reconstructSnapshot(active, routine),
	}, nil
}

// cleanupOrphan cancels the remote session behind a local snapshot whose
// routine was deleted, then wipes the snapshot. Cancel failures are absorbed:
// a not-found means the backend already cancelled it, and an unreachable
// backend must not block local convergence.
func (r *Reconciler) cleanupOrphan(ctx context.Context, snapshot *models.IncompleteSession) error {
	if err := r.gw.CancelSession(ctx, snapshot.WorkoutSessionID); err != nil && !errors.Is(err, gateway.ErrSessionNotFound) {
		r.log.Warn("cancel of orphaned session failed",
			"session_id", snapshot.WorkoutSessionID, "error", err)
	}
	if err := r.store.Clear(); err != nil {
		return fmt.Errorf("clearing orphaned session: %w", err)
	}
	r.log.Info("cleaned up orphaned session",
		"session_id", snapshot.WorkoutSessionID, "routine_id", snapshot.RoutineID)
	return nil
}

// reconstructSnapshot builds a minimal IncompleteSession from backend data.
// It is not persisted here; persistence happens only once the user resumes.
func reconstructSnapshot(active *models.RemoteSession, routine *models.Routine) *models.IncompleteSession {
	return &models.IncompleteSession{
		RoutineID:            routine.ID,
		RoutineName:          routine.Name,
		WorkoutSessionID:     active.ID,
		StartedAt:            active.StartedAt,
		CurrentExerciseIndex: 0,
		CurrentSet:           1,
		CompletedSets:        []models.CompletedSet{},
	}
}
