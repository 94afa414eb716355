package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/tdgen/internal/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_runs_started", "idx_events_record", "idx_events_kind_created"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	started := time.Now().Add(-time.Minute)

	if err := s.StartRun("run-1", started); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	r, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Status != RunRunning || !r.FinishedAt.IsZero() {
		t.Errorf("running run = %+v", r)
	}
	if r.StartedAt.Sub(started.UTC()).Abs() > time.Millisecond {
		t.Errorf("StartedAt = %v, want %v", r.StartedAt, started)
	}

	if err := s.FinishRun("run-1", RunCompleted, 3, 1, 2); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	r, _ = s.GetRun("run-1")
	if r.Status != RunCompleted || r.Processed != 3 || r.Failed != 1 || r.Skipped != 2 || r.FinishedAt.IsZero() {
		t.Errorf("finished run = %+v", r)
	}
}

func TestRunNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun err = %v, want ErrNotFound", err)
	}
	if err := s.FinishRun("missing", RunCompleted, 0, 0, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun err = %v, want ErrNotFound", err)
	}
}

func TestRecentRuns(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		if err := s.StartRun(id, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("runs = %+v", runs)
	}
}

func saveEvents(t *testing.T, s *Store) {
	t.Helper()
	base := time.Now()
	evs := []events.Event{
		{ID: "e1", RunID: "r", Time: base, RecordID: "a.json", Component: events.ComponentGeneration, Kind: events.KindAccess, Outcome: "attempt 1/6"},
		{ID: "e2", RunID: "r", Time: base.Add(time.Millisecond), RecordID: "a.json", Component: events.ComponentDataset, Kind: events.KindFailure, Outcome: "left pending", Cause: "6 rows"},
		{ID: "e3", RunID: "r", Time: base.Add(2 * time.Millisecond), RecordID: "b.json", Component: events.ComponentGeneration, Kind: events.KindAccess, Outcome: "attempt 1/6"},
		{ID: "e4", RunID: "r", Time: base.Add(3 * time.Millisecond), RecordID: "b.json", Component: events.ComponentGeneration, Kind: events.KindFailure, Outcome: "left pending", Cause: "exhausted"},
	}
	for _, ev := range evs {
		if err := s.SaveEvent(ev); err != nil {
			t.Fatalf("SaveEvent(%s): %v", ev.ID, err)
		}
	}
}

func TestListEvents(t *testing.T) {
	s := openTestStore(t)
	saveEvents(t, s)

	all, err := s.ListEvents(EventFilter{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 4 || all[0].ID != "e4" {
		t.Errorf("all events newest first, got %d starting %q", len(all), all[0].ID)
	}

	failures, _ := s.ListEvents(EventFilter{Kind: events.KindFailure})
	if len(failures) != 2 {
		t.Errorf("failures = %d, want 2", len(failures))
	}
	if failures[1].Cause != "6 rows" || failures[1].Kind != events.KindFailure {
		t.Errorf("failure round trip = %+v", failures[1])
	}

	forA, _ := s.ListEvents(EventFilter{RecordID: "a.json", Limit: 1})
	if len(forA) != 1 || forA[0].ID != "e2" {
		t.Errorf("record filter with limit = %+v", forA)
	}
}

func TestStoreIsEventSink(t *testing.T) {
	s := openTestStore(t)
	rec := events.NewRecorder(s, "run-9")
	rec.Failure(context.Background(), "x.json", events.ComponentLifecycle, "relocation failed", errors.New("read-only"))

	evs, err := s.ListEvents(EventFilter{RecordID: "x.json"})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(evs) != 1 || evs[0].RunID != "run-9" || evs[0].Cause != "read-only" {
		t.Errorf("events = %+v", evs)
	}
}

func TestFailureCountsByComponent(t *testing.T) {
	s := openTestStore(t)
	saveEvents(t, s)

	counts, err := s.FailureCountsByComponent()
	if err != nil {
		t.Fatalf("FailureCountsByComponent: %v", err)
	}
	if counts[events.ComponentDataset] != 1 || counts[events.ComponentGeneration] != 1 || len(counts) != 2 {
		t.Errorf("counts = %v", counts)
	}

	all, _ := s.EventCounts()
	if len(all) != 3 {
		t.Errorf("EventCounts = %+v, want 3 groups", all)
	}
}
