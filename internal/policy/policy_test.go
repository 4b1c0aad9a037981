package policy

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"specforge/internal/model"
	"specforge/internal/reward"
)

func trainerFixtures() (model.Spec, []model.EditAction, *reward.Model) {
	base := model.Spec{
		"objects": []any{
			map[string]any{"id": "floor_1", "type": "floor", "material": "pine"},
			map[string]any{"id": "wall_1", "type": "wall", "color": "white"},
		},
	}
	catalog := []model.EditAction{
		{ObjectID: "floor_1", Field: "material", Value: "oak"},
		{ObjectID: "wall_1", Field: "color", Value: "sage"},
		{ObjectID: "ghost_9", Field: "material", Value: "steel"},
	}
	scorer := reward.New(reward.Config{VocabSize: 128, MaxTokens: 64, EmbeddingDim: 8, HiddenDim: 16}, 9)
	return base, catalog, scorer
}

func smallTrainerConfig() Config {
	return Config{
		NSteps:         16,
		BatchSize:      8,
		NEpochs:        2,
		TotalSteps:     32,
		NParallelEnvs:  2,
		EpisodeLength:  4,
		ObservationDim: 32,
		HiddenDim:      8,
		Seed:           17,
	}
}

func TestBatchSizeClampsToRolloutBuffer(t *testing.T) {
	base, catalog, scorer := trainerFixtures()

	var gotRequested, gotEffective int
	hooks := Hooks{OnBatchClamp: func(requested, effective int) {
		gotRequested, gotEffective = requested, effective
	}}

	tr, err := NewTrainer(base, catalog, scorer, Config{NSteps: 512, BatchSize: 2048}, hooks)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if tr.Config().BatchSize != 512 {
		t.Fatalf("expected effective batch size 512, got %d", tr.Config().BatchSize)
	}
	if gotRequested != 2048 || gotEffective != 512 {
		t.Fatalf("expected clamp warning (2048 -> 512), got (%d -> %d)", gotRequested, gotEffective)
	}
}

func TestTrainerRequiresScorer(t *testing.T) {
	base, catalog, _ := trainerFixtures()
	if _, err := NewTrainer(base, catalog, nil, Config{}, Hooks{}); err == nil {
		t.Fatal("expected construction to fail without a reward model")
	}
}

func TestTrainRunsToRequestedSteps(t *testing.T) {
	base, catalog, scorer := trainerFixtures()

	rollouts := 0
	hooks := Hooks{OnRolloutComplete: func(iteration, stepsDone int, meanReward float64) {
		rollouts++
		if math.IsNaN(meanReward) {
			t.Fatalf("rollout %d produced NaN mean reward", iteration)
		}
	}}

	tr, err := NewTrainer(base, catalog, scorer, smallTrainerConfig(), hooks)
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	report, err := tr.Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if report.Steps < 32 {
		t.Fatalf("expected at least 32 steps, got %d", report.Steps)
	}
	if len(report.StepRewards) != report.Steps {
		t.Fatalf("reward history length %d does not match steps %d", len(report.StepRewards), report.Steps)
	}
	if report.Iterations != rollouts {
		t.Fatalf("hook fired %d times for %d iterations", rollouts, report.Iterations)
	}
}

func TestTrainingIsDeterministicPerSeed(t *testing.T) {
	base, catalog, scorer := trainerFixtures()

	run := func() Report {
		tr, err := NewTrainer(base, catalog, scorer, smallTrainerConfig(), Hooks{})
		if err != nil {
			t.Fatalf("new trainer: %v", err)
		}
		report, err := tr.Train(context.Background())
		if err != nil {
			t.Fatalf("train: %v", err)
		}
		return report
	}

	first := run()
	second := run()
	if len(first.StepRewards) != len(second.StepRewards) {
		t.Fatalf("runs differ in length: %d vs %d", len(first.StepRewards), len(second.StepRewards))
	}
	for i := range first.StepRewards {
		if first.StepRewards[i] != second.StepRewards[i] {
			t.Fatalf("seeded runs diverged at step %d", i)
		}
	}
}

func TestGAEHandComputedTrajectory(t *testing.T) {
	tr := trajectory{
		obs:       [][]float64{{0}, {0}},
		actions:   []int{0, 0},
		logProbs:  []float64{0, 0},
		values:    []float64{1, 2},
		rewards:   []float64{1, 1},
		dones:     []bool{false, true},
		lastValue: 5, // must be ignored past the imposed episode end
	}

	samples := tr.samples(0.5, 0.5)
	if got := samples[1].advantage; got != -1 {
		t.Fatalf("advantage[1] = %v, want -1", got)
	}
	if got := samples[0].advantage; got != 0.75 {
		t.Fatalf("advantage[0] = %v, want 0.75", got)
	}
	if got := samples[0].ret; got != 1.75 {
		t.Fatalf("return[0] = %v, want 1.75", got)
	}
}

func TestPolicyCheckpointRoundTrip(t *testing.T) {
	base, catalog, scorer := trainerFixtures()
	tr, err := NewTrainer(base, catalog, scorer, smallTrainerConfig(), Hooks{})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}
	if _, err := tr.Train(context.Background()); err != nil {
		t.Fatalf("train: %v", err)
	}

	path := filepath.Join(t.TempDir(), "policy.json")
	if err := tr.Network().Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	probe := make([]float64, 32)
	for i := range probe {
		probe[i] = float64(i%7) / 7
	}
	if tr.Network().Greedy(probe) != loaded.Greedy(probe) {
		t.Fatal("reloaded policy chose a different greedy action")
	}
	if tr.Network().Value(probe) != loaded.Value(probe) {
		t.Fatal("reloaded policy diverged on value estimate")
	}
}
