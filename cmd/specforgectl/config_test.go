package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadSpecFile(t *testing.T) {
	path := writeFile(t, "spec.json", `{"objects":[{"id":"sofa_1","material":"leather"}]}`)
	spec, err := loadSpecFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := spec.FindObject("sofa_1"); !ok {
		t.Fatalf("object missing from loaded spec: %v", spec)
	}
}

func TestLoadSpecFileRejectsInvalidJSON(t *testing.T) {
	path := writeFile(t, "spec.json", `{"objects":`)
	if _, err := loadSpecFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := writeFile(t, "catalog.json",
		`[{"object_id":"sofa_1","field":"material","value":"velvet"},{"object_id":"sofa_1","field":"width","value":2.2}]`)
	catalog, err := loadCatalogFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(catalog) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(catalog))
	}
	if catalog[0].Field != "material" || catalog[1].Value != 2.2 {
		t.Fatalf("catalog did not decode: %+v", catalog)
	}
}

func TestLoadCatalogFileRejectsIncompleteEntry(t *testing.T) {
	path := writeFile(t, "catalog.json", `[{"object_id":"sofa_1","value":"velvet"}]`)
	if _, err := loadCatalogFile(path); err == nil {
		t.Fatal("expected error for entry without field")
	}
}

func TestLoadPolicyConfig(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"learning_rate": 0.001,
		"n_steps": 64,
		"batch_size": 32,
		"gamma": 0.98,
		"total_steps": 512,
		"n_parallel_envs": 2,
		"episode_length": 8,
		"seed": 42
	}`)
	cfg, err := loadPolicyConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LearningRate != 0.001 || cfg.NSteps != 64 || cfg.BatchSize != 32 {
		t.Fatalf("optimizer fields: %+v", cfg)
	}
	if cfg.Gamma != 0.98 || cfg.TotalSteps != 512 || cfg.NParallelEnvs != 2 {
		t.Fatalf("rollout fields: %+v", cfg)
	}
	if cfg.EpisodeLength != 8 || cfg.Seed != 42 {
		t.Fatalf("episode fields: %+v", cfg)
	}
	if cfg.NEpochs != 0 || cfg.ClipRange != 0 {
		t.Fatalf("absent keys must stay zero: %+v", cfg)
	}
}

func TestOverrideFromFlagsLeavesConfigSeedWhenFlagUnset(t *testing.T) {
	path := writeFile(t, "config.json", `{"seed": 42, "n_steps": 64}`)
	cfg, err := loadPolicyConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	overrideFromFlags(&cfg, map[string]bool{}, map[string]any{
		"seed":    int64(1),
		"n-steps": 0,
	})
	if cfg.Seed != 42 {
		t.Fatalf("flag default clobbered config seed: %d", cfg.Seed)
	}
	if cfg.NSteps != 64 {
		t.Fatalf("flag default clobbered config n_steps: %d", cfg.NSteps)
	}
}

func TestOverrideFromFlagsAppliesSetFlags(t *testing.T) {
	path := writeFile(t, "config.json", `{"seed": 42, "batch_size": 32}`)
	cfg, err := loadPolicyConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	overrideFromFlags(&cfg, map[string]bool{"seed": true, "batch-size": true}, map[string]any{
		"seed":       int64(7),
		"batch-size": 16,
	})
	if cfg.Seed != 7 {
		t.Fatalf("explicit seed flag not applied: %d", cfg.Seed)
	}
	if cfg.BatchSize != 16 {
		t.Fatalf("explicit batch-size flag not applied: %d", cfg.BatchSize)
	}
}

func TestLoadPolicyConfigEmptyPath(t *testing.T) {
	cfg, err := loadPolicyConfig("")
	if err != nil {
		t.Fatalf("empty path must not error: %v", err)
	}
	if cfg.NSteps != 0 {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}
