package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	workdir := t.TempDir()
	if err := os.Chdir(workdir); err != nil {
		t.Fatalf("chdir tempdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origWD)
	})
	return workdir
}

func TestCommandsSQLiteEndToEnd(t *testing.T) {
	workdir := chdirTemp(t)
	dbPath := filepath.Join(workdir, "specforge.db")
	ctx := context.Background()

	if err := run(ctx, []string{"init", "-store", "sqlite", "-db-path", dbPath}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected sqlite db at %s: %v", dbPath, err)
	}

	specPath := writeFile(t, "base.json",
		`{"objects":[{"id":"desk_1","material":"pine","width":1.4}]}`)
	if err := run(ctx, []string{"save-spec", "-store", "sqlite", "-db-path", dbPath,
		"-id", "office", "-file", specPath}); err != nil {
		t.Fatalf("save-spec: %v", err)
	}

	base := time.Unix(1_700_000_000, 0).UTC()
	for i, step := range []struct {
		material string
		rating   string
	}{
		{"pine", "2"},
		{"oak", "3.5"},
		{"walnut", "5"},
	} {
		snap := writeFile(t, fmt.Sprintf("rev%d.json", i),
			fmt.Sprintf(`{"objects":[{"id":"desk_1","material":%q,"width":1.4}]}`, step.material))
		err := run(ctx, []string{"revise", "-store", "sqlite", "-db-path", dbPath,
			"-id", "office", "-file", snap,
			"-rating", step.rating,
			"-rated-at", base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)})
		if err != nil {
			t.Fatalf("revise %d: %v", i, err)
		}
	}

	if err := run(ctx, []string{"pairs", "-store", "sqlite", "-db-path", dbPath,
		"-min-delta", "0.5"}); err != nil {
		t.Fatalf("pairs: %v", err)
	}

	if err := run(ctx, []string{"train-reward", "-store", "sqlite", "-db-path", dbPath,
		"-epochs", "3", "-lr", "0.05", "-seed", "7",
		"-vocab", "256", "-max-tokens", "64", "-embedding-dim", "8", "-hidden-dim", "16"}); err != nil {
		t.Fatalf("train-reward: %v", err)
	}

	catalogPath := writeFile(t, "catalog.json",
		`[{"object_id":"desk_1","field":"material","value":"oak"},{"object_id":"desk_1","field":"material","value":"walnut"}]`)
	if err := run(ctx, []string{"train-policy", "-store", "sqlite", "-db-path", dbPath,
		"-spec-id", "office", "-catalog", catalogPath,
		"-n-steps", "8", "-batch-size", "8", "-n-epochs", "2",
		"-total-steps", "16", "-n-envs", "1", "-episode-length", "4",
		"-seed", "11"}); err != nil {
		t.Fatalf("train-policy: %v", err)
	}

	if err := run(ctx, []string{"score", "-store", "sqlite", "-db-path", dbPath,
		"-id", "office"}); err != nil {
		t.Fatalf("score: %v", err)
	}
	if err := run(ctx, []string{"suggest", "-store", "sqlite", "-db-path", dbPath,
		"-id", "office", "-catalog", catalogPath}); err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if err := run(ctx, []string{"runs", "-store", "sqlite", "-db-path", dbPath}); err != nil {
		t.Fatalf("runs: %v", err)
	}

	entries, err := os.ReadDir("checkpoints")
	if err != nil {
		t.Fatalf("read checkpoints dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected reward and policy checkpoints, got %d files", len(entries))
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"evolve"}); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestRunRejectsMissingCommand(t *testing.T) {
	if err := run(context.Background(), nil); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestRunsRejectsUnknownKind(t *testing.T) {
	if err := run(context.Background(), []string{"runs", "-kind", "tuning"}); err == nil {
		t.Fatal("expected error for unknown run kind")
	}
}
