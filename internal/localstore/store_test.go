package localstore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/liftlog/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSnapshot() *models.IncompleteSession {
	reps := 8
	weight := 42.5
	return &models.IncompleteSession{
		RoutineID:            12,
		RoutineName:          "Push Day",
		WorkoutSessionID:     uuid.New(),
		StartedAt:            time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		CurrentExerciseIndex: 1,
		CurrentSet:           2,
		Duration:             900,
		CompletedSets: []models.CompletedSet{
			{ExerciseID: 5, SetNumber: 1, Reps: &reps, Weight: &weight,
				CompletedAt: time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)},
		},
		ExerciseStates: []models.ExerciseState{
			{ExerciseID: 5, Sets: []models.SetState{{Reps: 8, Weight: 42.5, Completed: true}, {Reps: 10, Weight: 40}}},
		},
		ExpandedExercises: []int64{5},
	}
}

func TestStoreEmptySlot(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("empty slot returned %+v", got)
	}
}

func TestStoreSaveGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := sampleSnapshot()

	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("saved snapshot not found")
	}

	if got.RoutineID != want.RoutineID || got.RoutineName != want.RoutineName {
		t.Errorf("routine = %d %q, want %d %q", got.RoutineID, got.RoutineName, want.RoutineID, want.RoutineName)
	}
	if got.WorkoutSessionID != want.WorkoutSessionID {
		t.Errorf("session = %s, want %s", got.WorkoutSessionID, want.WorkoutSessionID)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("started at = %v, want %v", got.StartedAt, want.StartedAt)
	}
	if got.CurrentExerciseIndex != 1 || got.CurrentSet != 2 || got.Duration != 900 {
		t.Errorf("progress = (%d, %d, %d)", got.CurrentExerciseIndex, got.CurrentSet, got.Duration)
	}
	if len(got.CompletedSets) != 1 {
		t.Fatalf("completed sets = %d, want 1", len(got.CompletedSets))
	}
	entry := got.CompletedSets[0]
	if entry.Reps == nil || *entry.Reps != 8 || entry.Weight == nil || *entry.Weight != 42.5 {
		t.Errorf("entry values = %v/%v, want 8/42.5", entry.Reps, entry.Weight)
	}
	if len(got.ExerciseStates) != 1 || len(got.ExerciseStates[0].Sets) != 2 {
		t.Errorf("checklist shape wrong: %+v", got.ExerciseStates)
	}
	if !got.ExerciseStates[0].Sets[0].Completed || got.ExerciseStates[0].Sets[1].Completed {
		t.Error("checklist completion flags wrong")
	}
	if len(got.ExpandedExercises) != 1 || got.ExpandedExercises[0] != 5 {
		t.Errorf("expanded = %v, want [5]", got.ExpandedExercises)
	}
}

func TestStoreSingleSlotReplaces(t *testing.T) {
	s := newTestStore(t)

	first := sampleSnapshot()
	if err := s.Save(first); err != nil {
		t.Fatal(err)
	}

	second := sampleSnapshot()
	second.RoutineID = 99
	second.CompletedSets = nil
	if err := s.Save(second); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get()
	if err != nil {
		t.Fatal(err)
	}
	if got.RoutineID != 99 {
		t.Errorf("routine = %d, want the replacement 99", got.RoutineID)
	}
	if got.WorkoutSessionID != second.WorkoutSessionID {
		t.Error("slot still holds the first snapshot")
	}
}

func TestStoreClear(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := s.Get(); got != nil {
		t.Error("snapshot survived Clear")
	}

	// Clearing an empty slot is a no-op.
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear of empty slot: %v", err)
	}
}

func TestStoreCorruptPayloadTreatedAsAbsent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO incomplete_session (slot, payload) VALUES (1, ?)`,
		`{"routine_id": not json`,
	)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Get()
	if err != nil {
		t.Fatalf("Get over corrupt payload: %v", err)
	}
	if got != nil {
		t.Errorf("corrupt payload decoded to %+v", got)
	}

	// The slot is still writable afterwards.
	if err := s.Save(sampleSnapshot()); err != nil {
		t.Fatalf("Save after corruption: %v", err)
	}
	if got, _ := s.Get(); got == nil {
		t.Error("fresh snapshot not readable after corruption")
	}
}

func TestStoreFingerprint(t *testing.T) {
	s := newTestStore(t)

	fp, err := s.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if fp != "" {
		t.Errorf("initial fingerprint = %q, want empty", fp)
	}

	if err := s.SetFingerprint("3_2024-01-01"); err != nil {
		t.Fatalf("SetFingerprint: %v", err)
	}
	if fp, _ = s.Fingerprint(); fp != "3_2024-01-01" {
		t.Errorf("fingerprint = %q", fp)
	}

	if err := s.SetFingerprint("9_2024-06-01"); err != nil {
		t.Fatalf("SetFingerprint overwrite: %v", err)
	}
	if fp, _ = s.Fingerprint(); fp != "9_2024-06-01" {
		t.Errorf("fingerprint after overwrite = %q", fp)
	}
}

func TestStoreFingerprintSurvivesClear(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetFingerprint("3_2024-01-01"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}

	// Clear empties the session slot only; device state is separate.
	if fp, _ := s.Fingerprint(); fp != "3_2024-01-01" {
		t.Errorf("fingerprint lost on Clear: %q", fp)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := Open(dir, log)
	if err != nil {
		t.Fatal(err)
	}
	want := sampleSnapshot()
	if err := s.Save(want); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFingerprint("3_2024-01-01"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "session.db")); err != nil {
		t.Fatalf("state database missing: %v", err)
	}

	s2, err := Open(dir, log)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	got, err := s2.Get()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.WorkoutSessionID != want.WorkoutSessionID {
		t.Error("snapshot did not survive reopen")
	}
	if fp, _ := s2.Fingerprint(); fp != "3_2024-01-01" {
		t.Error("fingerprint did not survive reopen")
	}
}
