package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"specforge/internal/model"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite := NewSQLiteStore(filepath.Join(t.TempDir(), "specforge.db"))
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestSpecRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Init(ctx); err != nil {
				t.Fatalf("init: %v", err)
			}

			spec := model.Spec{
				"objects": []any{map[string]any{"id": "floor_1", "material": "oak"}},
			}
			if err := store.SaveSpec(ctx, "base", spec); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, ok, err := store.GetSpec(ctx, "base")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			obj, found := got.FindObject("floor_1")
			if !found || obj["material"] != "oak" {
				t.Fatalf("spec did not round-trip: %v", got)
			}

			if _, ok, err := store.GetSpec(ctx, "absent"); err != nil || ok {
				t.Fatalf("expected miss for absent spec, ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestRevisionsListChronologically(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Init(ctx); err != nil {
				t.Fatalf("init: %v", err)
			}

			for _, at := range []int64{30, 10, 20} {
				rec := model.RevisionRecord{
					VersionedRecord: Stamp(),
					SpecID:          "kitchen",
					Snapshot:        model.Spec{"at": float64(at)},
					Rating:          3.0,
					RatedAt:         time.Unix(at, 0).UTC(),
				}
				if err := store.AppendRevision(ctx, rec); err != nil {
					t.Fatalf("append: %v", err)
				}
			}

			got, err := store.ListRevisions(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 revisions, got %d", len(got))
			}
			for i := 1; i < len(got); i++ {
				if got[i].RatedAt.Before(got[i-1].RatedAt) {
					t.Fatal("revisions are not chronological")
				}
			}
		})
	}
}

func TestUnratedRevisionSurvivesRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Init(ctx); err != nil {
				t.Fatalf("init: %v", err)
			}

			rec := model.RevisionRecord{
				VersionedRecord: Stamp(),
				SpecID:          "hall",
				Snapshot:        model.Spec{"v": 1.0},
				Rating:          math.NaN(),
				RatedAt:         time.Unix(5, 0).UTC(),
			}
			if err := store.AppendRevision(ctx, rec); err != nil {
				t.Fatalf("append: %v", err)
			}

			got, err := store.ListRevisions(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 1 || !math.IsNaN(got[0].Rating) {
				t.Fatalf("unrated revision lost its NaN marker: %+v", got)
			}
		})
	}
}

func TestTrainingRunAndRewardHistoryRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Init(ctx); err != nil {
				t.Fatalf("init: %v", err)
			}

			run := model.TrainingRun{
				VersionedRecord: Stamp(),
				ID:              "run-1",
				Kind:            model.RunKindPolicy,
				CheckpointPath:  "checkpoints/policy.json",
				StartedAt:       time.Unix(100, 0).UTC(),
				FinishedAt:      time.Unix(200, 0).UTC(),
				Summary:         model.RunSummary{Count: 3, Mean: 0.5},
			}
			if err := store.SaveTrainingRun(ctx, run); err != nil {
				t.Fatalf("save run: %v", err)
			}
			got, ok, err := store.GetTrainingRun(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("get run: ok=%v err=%v", ok, err)
			}
			if got.CheckpointPath != run.CheckpointPath || got.Summary.Count != 3 {
				t.Fatalf("run did not round-trip: %+v", got)
			}

			history := []float64{0.1, 0.2, 0.3}
			if err := store.SaveRewardHistory(ctx, "run-1", history); err != nil {
				t.Fatalf("save history: %v", err)
			}
			gotHistory, ok, err := store.GetRewardHistory(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("get history: ok=%v err=%v", ok, err)
			}
			if len(gotHistory) != 3 || gotHistory[2] != 0.3 {
				t.Fatalf("reward history did not round-trip: %v", gotHistory)
			}

			runs, err := store.ListTrainingRuns(ctx)
			if err != nil || len(runs) != 1 {
				t.Fatalf("list runs: %v (%d)", err, len(runs))
			}
		})
	}
}

func TestFactoryRejectsUnknownBackend(t *testing.T) {
	if _, err := NewStore("etcd", ""); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}
