package state

import (
	"testing"
	"time"

	"github.com/leapstack-labs/kbforge/internal/loader"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return store
}

func sampleReport(id string, started time.Time) *loader.Report {
	return &loader.Report{
		RunID:       id,
		Project:     "world",
		State:       loader.StateDone,
		StartedAt:   started,
		CompletedAt: started.Add(2 * time.Second),
		Tables: []loader.TableReport{
			{Table: "country", Sources: 1, Attempted: 2, Written: 2},
			{Table: "city", Sources: 1, Attempted: 3, Written: 2, Rejected: 1,
				Reasons: map[string]int{"dangling_reference": 1}},
		},
	}
}

func TestStore_RecordAndGetRun(t *testing.T) {
	store := setupTestStore(t)
	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	if err := store.RecordRun(sampleReport("run-1", started)); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	sum, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if sum == nil {
		t.Fatal("expected a run summary")
	}
	if sum.Project != "world" {
		t.Errorf("expected project world, got %q", sum.Project)
	}
	if sum.Outcome != string(loader.OutcomePartial) {
		t.Errorf("expected partial outcome, got %q", sum.Outcome)
	}
	if sum.Written != 4 || sum.Rejected != 1 {
		t.Errorf("unexpected totals: written=%d rejected=%d", sum.Written, sum.Rejected)
	}
	if sum.CompletedAt.IsZero() {
		t.Error("completed_at should round-trip")
	}
}

func TestStore_GetRun_Missing(t *testing.T) {
	store := setupTestStore(t)
	sum, err := store.GetRun("ghost")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if sum != nil {
		t.Errorf("expected nil for a missing run, got %+v", sum)
	}
}

func TestStore_ListRuns(t *testing.T) {
	store := setupTestStore(t)
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		rep := sampleReport(id, base.Add(time.Duration(i)*time.Hour))
		if err := store.RecordRun(rep); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", id, err)
		}
	}

	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Errorf("expected newest first, got %s then %s", runs[0].ID, runs[1].ID)
	}
}

func TestStore_RecordRun_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	started := time.Now().UTC()

	if err := store.RecordRun(sampleReport("run-1", started)); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := store.RecordRun(sampleReport("run-1", started)); err == nil {
		t.Error("expected a duplicate id to fail")
	}
}

func TestStore_Unopened(t *testing.T) {
	store := NewStore()
	if err := store.InitSchema(); err == nil {
		t.Error("InitSchema should fail before Open")
	}
	if err := store.RecordRun(&loader.Report{}); err == nil {
		t.Error("RecordRun should fail before Open")
	}
	if _, err := store.ListRuns(5); err == nil {
		t.Error("ListRuns should fail before Open")
	}
}
