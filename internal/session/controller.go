package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/claude/liftlog/internal/gateway"
	"github.com/claude/liftlog/internal/localstore"
	"github.com/claude/liftlog/internal/models"
)

var (
	// ErrPendingSessionExists is returned when a start targets a different
	// routine than a locally persisted, not-yet-resumed session.
	ErrPendingSessionExists = errors.New("a pending local session exists for another routine")

	// ErrOperationInFlight is returned when a lifecycle operation is issued
	// while another one is still running.
	ErrOperationInFlight = errors.New("another session operation is in flight")
)

// Controller sequences the reconciler, engine, local store, and backend
// gateway under one set of invariants. It is the only component whose side
// effects are visible to callers; the engine and reconciler never touch the
// UI directly.
//
// Lifecycle operations (Load, Start, Resume, Save, Discard, ForceCleanup,
// CheckDBVersionAndCleanup) reject overlap outright instead of trusting the
// UI to disable its triggers while a call is in flight.
type Controller struct {
	store      *localstore.Store
	gw         *gateway.Client
	engine     *Engine
	reconciler *Reconciler
	log        *slog.Logger
	busy       atomic.Bool
}

// NewController wires a controller over an injected store and gateway so
// tests can substitute fakes for both.
func NewController(store *localstore.Store, gw *gateway.Client, log *slog.Logger) *Controller {
	return &Controller{
		store:      store,
		gw:         gw,
		engine:     NewEngine(),
		reconciler: NewReconciler(store, gw, log),
		log:        log,
	}
}

func (c *Controller) begin() error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrOperationInFlight
	}
	return nil
}

func (c *Controller) end() {
	c.busy.Store(false)
}

// Running reports whether a workout is in progress in this process.
func (c *Controller) Running() bool {
	return c.engine.Running()
}

// State returns the live execution state, or nil when no workout is active.
func (c *Controller) State() *models.ExecutionState {
	return c.engine.State()
}

// Load resolves the world into a single consistent outcome at app start or
// resume time. When a workout is already running in this process the engine
// is the source of truth and no network round-trip is made.
func (c *Controller) Load(ctx context.Context) (Outcome, error) {
	if err := c.begin(); err != nil {
		return Outcome{}, err
	}
	defer c.end()

	if st := c.engine.State(); st != nil {
		return Outcome{Kind: OutcomeResumable, Session: st.Snapshot()}, nil
	}
	return c.reconciler.Reconcile(ctx)
}

// Start begins a workout for the routine. Callers are expected to have
// resolved any RESUMABLE/BACKEND_ONLY outcome first; Start still re-checks
// the backend's active session immediately before creating one to close the
// race between reconciliation and start.
//
// On successful return, durable local state and backend state agree: the
// backend holds an ACTIVE session for the routine and the local store holds
// its first snapshot.
func (c *Controller) Start(ctx context.Context, routineID int64) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if st := c.engine.State(); st != nil {
		if st.RoutineID == routineID {
			return nil // implicit resume
		}
		return fmt.Errorf("%w (routine %d)", ErrExecutionInProgress, st.RoutineID)
	}

	snapshot, err := c.store.Get()
	if err != nil {
		return err
	}
	if snapshot != nil {
		if snapshot.RoutineID != routineID {
			return fmt.Errorf("%w (routine %d)", ErrPendingSessionExists, snapshot.RoutineID)
		}
		c.engine.Resume(snapshot)
		return nil
	}

	routine, err := c.gw.GetRoutine(ctx, routineID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := c.gw.AssignRoutine(ctx, routineID, now); err != nil && !errors.Is(err, gateway.ErrRoutineAlreadyAssigned) {
		return err
	}

	active, err := c.gw.GetActiveSession(ctx)
	if err != nil {
		return err
	}

	var remote *models.RemoteSession
	created := false
	switch {
	case active == nil:
		remote, err = c.gw.StartSession(ctx, routineID, now)
		if err != nil {
			return err
		}
		created = true
	case active.RoutineID == routineID:
		remote = active
	default:
		return fmt.Errorf("%w (routine %d)", gateway.ErrActiveSessionExists, active.RoutineID)
	}

	if err := c.engine.Start(routine, remote.ID, remote.StartedAt); err != nil {
		return err
	}

	if err := c.store.Save(c.engine.State().Snapshot()); err != nil {
		// The first snapshot is the durability boundary of Start. Without it
		// the backend session would outlive any local record, so roll back.
		c.engine.Finish()
		if created {
			if cancelErr := c.gw.CancelSession(ctx, remote.ID); cancelErr != nil && !errors.Is(cancelErr, gateway.ErrSessionNotFound) {
				c.log.Warn("rollback cancel failed", "session_id", remote.ID, "error", cancelErr)
			}
		}
		return err
	}

	c.log.Info("workout started", "routine_id", routineID, "session_id", remote.ID, "reused_backend_session", !created)
	return nil
}

// Resume rehydrates the engine from a reconciliation snapshot and persists
// it; a BACKEND_ONLY snapshot becomes durable only here, once the user has
// actually chosen to resume.
func (c *Controller) Resume(ctx context.Context, snapshot *models.IncompleteSession) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if st := c.engine.State(); st != nil {
		if st.WorkoutSessionID == snapshot.WorkoutSessionID {
			return nil
		}
		return fmt.Errorf("%w (routine %d)", ErrExecutionInProgress, st.RoutineID)
	}

	c.engine.Resume(snapshot)
	if err := c.store.Save(c.engine.State().Snapshot()); err != nil {
		return err
	}
	c.log.Info("workout resumed", "routine_id", snapshot.RoutineID, "session_id", snapshot.WorkoutSessionID)
	return nil
}

// CompleteSet logs one set and mirrors the mutation into the local store
// before returning. On a store error the in-memory log keeps the entry and
// the error propagates; the caller retries Checkpoint (a full snapshot
// replace) rather than re-logging the set, which would duplicate it.
func (c *Controller) CompleteSet(ctx context.Context, exerciseID int64, setNumber int, reps *int, weight *float64) error {
	if err := c.engine.CompleteSet(exerciseID, setNumber, reps, weight); err != nil {
		return err
	}
	return c.persist()
}

// UpdateProgress overwrites the advisory cursors and mirrors them durably.
func (c *Controller) UpdateProgress(ctx context.Context, exerciseIndex, currentSet int) error {
	if err := c.engine.SetCursor(exerciseIndex, currentSet); err != nil {
		return err
	}
	return c.persist()
}

// Tick checkpoints the elapsed duration.
func (c *Controller) Tick(ctx context.Context, durationSeconds int) error {
	if err := c.engine.SetDuration(durationSeconds); err != nil {
		return err
	}
	return c.persist()
}

// SetExpanded checkpoints the UI's expanded-exercise list so a killed app
// restores identical progress.
func (c *Controller) SetExpanded(ctx context.Context, exerciseIDs []int64) error {
	if err := c.engine.SetExpanded(exerciseIDs); err != nil {
		return err
	}
	return c.persist()
}

// Checkpoint re-persists the current execution state. Safe to retry: each
// save replaces the single slot in full.
func (c *Controller) Checkpoint(ctx context.Context) error {
	if !c.engine.Running() {
		return ErrNoActiveExecution
	}
	return c.persist()
}

func (c *Controller) persist() error {
	return c.store.Save(c.engine.State().Snapshot())
}

// Save completes the backend session, then clears local state. If the
// backend call fails nothing is cleared and the caller must retry; clearing
// first would durably lose the only record that a save is still owed. A
// retry whose first attempt actually landed sees the session already
// terminal and proceeds to the clear.
func (c *Controller) Save(ctx context.Context, notes string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	st := c.engine.State()
	if st == nil {
		return ErrNoActiveExecution
	}

	err := c.gw.CompleteSession(ctx, st.WorkoutSessionID, time.Now().UTC(), notes)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrSessionAlreadyTerminal):
		c.log.Info("session already completed on backend", "session_id", st.WorkoutSessionID)
	default:
		return err
	}

	if err := c.store.Clear(); err != nil {
		// Engine stays running so a retried Save reaches this clear again.
		return err
	}
	c.engine.Finish()
	c.log.Info("workout saved", "session_id", st.WorkoutSessionID, "sets", len(st.CompletedSets))
	return nil
}

// Discard cancels the backend session best-effort and unconditionally clears
// local and in-memory state. Cancel failures are logged and swallowed: the
// user's intent is already satisfied locally. Works both mid-workout and on
// a pending snapshot that was never resumed.
func (c *Controller) Discard(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	sessionID := uuid.Nil
	if st := c.engine.State(); st != nil {
		sessionID = st.WorkoutSessionID
	} else if snapshot, err := c.store.Get(); err == nil && snapshot != nil {
		sessionID = snapshot.WorkoutSessionID
	}

	if sessionID != uuid.Nil {
		if err := c.gw.CancelSession(ctx, sessionID); err != nil && !errors.Is(err, gateway.ErrSessionNotFound) {
			c.log.Warn("cancel during discard failed", "session_id", sessionID, "error", err)
		}
	}

	c.engine.Finish()
	if err := c.store.Clear(); err != nil {
		return err
	}
	c.log.Info("workout discarded", "session_id", sessionID)
	return nil
}

// ForceCleanupOrphanedSession is the escape hatch for a stuck backend
// session the normal reconciliation path cannot resolve: it cancels whatever
// active session the backend reports and clears local state regardless of
// the outcome.
func (c *Controller) ForceCleanupOrphanedSession(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	var firstErr error
	active, err := c.gw.GetActiveSession(ctx)
	if err != nil {
		firstErr = err
	} else if active != nil {
		if err := c.gw.CancelSession(ctx, active.ID); err != nil && !errors.Is(err, gateway.ErrSessionNotFound) {
			firstErr = err
		}
	}

	c.engine.Finish()
	if err := c.store.Clear(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.log.Info("forced session cleanup", "error", firstErr)
	return firstErr
}

// CheckDBVersionAndCleanup fingerprints the backend's data generation from
// its oldest routine and compares it with the last-seen fingerprint. A
// mismatch means the backend was reset or reseeded independently of this
// device, so none of the locally stored identifiers can be trusted: all
// session state is wiped. Returns true when a wipe happened.
func (c *Controller) CheckDBVersionAndCleanup(ctx context.Context) (bool, error) {
	if err := c.begin(); err != nil {
		return false, err
	}
	defer c.end()

	first, err := c.gw.FirstRoutine(ctx)
	if err != nil {
		return false, err
	}
	if first == nil {
		// Empty backend: nothing stable to fingerprint against.
		return false, nil
	}

	current := fmt.Sprintf("%d_%s", first.ID, first.CreatedAt.UTC().Format("2006-01-02"))
	stored, err := c.store.Fingerprint()
	if err != nil {
		return false, err
	}

	if stored == current {
		return false, nil
	}
	if stored == "" {
		return false, c.store.SetFingerprint(current)
	}

	c.log.Warn("backend data generation changed, wiping local session state",
		"stored", stored, "current", current)
	c.engine.Finish()
	if err := c.store.Clear(); err != nil {
		return false, err
	}
	if err := c.store.SetFingerprint(current); err != nil {
		return true, err
	}
	return true, nil
}
