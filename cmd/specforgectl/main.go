package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"specforge/internal/model"
	"specforge/internal/storage"
	forge "specforge/pkg/specforge"
)

const checkpointsDir = "checkpoints"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "save-spec":
		return runSaveSpec(ctx, args[1:])
	case "revise":
		return runRevise(ctx, args[1:])
	case "pairs":
		return runPairs(ctx, args[1:])
	case "train-reward":
		return runTrainReward(ctx, args[1:])
	case "train-policy":
		return runTrainPolicy(ctx, args[1:])
	case "score":
		return runScore(ctx, args[1:])
	case "suggest":
		return runSuggest(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "rewards":
		return runRewards(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func addStoreFlags(fs *flag.FlagSet) (storeKind, dbPath *string) {
	storeKind = fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath = fs.String("db-path", "specforge.db", "sqlite database path")
	return storeKind, dbPath
}

func newClient(storeKind, dbPath string) (*forge.Client, error) {
	return forge.New(forge.Options{
		StoreKind:      storeKind,
		DBPath:         dbPath,
		CheckpointsDir: checkpointsDir,
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runSaveSpec(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("save-spec", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	id := fs.String("id", "", "spec id")
	file := fs.String("file", "", "spec JSON file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *file == "" {
		return usageError("save-spec requires -id and -file")
	}

	spec, err := loadSpecFile(*file)
	if err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	if err := client.SaveSpec(ctx, *id, spec); err != nil {
		return err
	}
	fmt.Printf("saved spec id=%s\n", *id)
	return nil
}

func runRevise(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revise", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	id := fs.String("id", "", "spec id")
	file := fs.String("file", "", "snapshot JSON file path")
	rating := fs.Float64("rating", math.NaN(), "user rating (omit for an unrated revision)")
	ratedAt := fs.String("rated-at", "", "rating timestamp, RFC3339 (defaults to now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *file == "" {
		return usageError("revise requires -id and -file")
	}

	spec, err := loadSpecFile(*file)
	if err != nil {
		return err
	}
	req := forge.AddRevisionRequest{SpecID: *id, Snapshot: spec}
	if !math.IsNaN(*rating) {
		req.Rating = rating
	}
	if *ratedAt != "" {
		at, err := time.Parse(time.RFC3339, *ratedAt)
		if err != nil {
			return fmt.Errorf("parse -rated-at: %w", err)
		}
		req.RatedAt = at
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	if err := client.AddRevision(ctx, req); err != nil {
		return err
	}
	fmt.Printf("recorded revision spec=%s rated=%v\n", *id, req.Rating != nil)
	return nil
}

func runPairs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pairs", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	minDelta := fs.Float64("min-delta", 0.5, "minimum rating delta for a pair")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	extracted, err := client.ExtractPairs(ctx, *minDelta)
	if err != nil {
		return err
	}
	fmt.Printf("pairs=%d min_delta=%g\n", len(extracted), *minDelta)
	return printJSON(extracted)
}

func runTrainReward(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train-reward", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	minDelta := fs.Float64("min-delta", 0.5, "minimum rating delta for a pair")
	epochs := fs.Int("epochs", 3, "training epochs over the pair list")
	lr := fs.Float64("lr", 0.01, "learning rate")
	margin := fs.Float64("margin", 0.1, "ranking margin")
	seed := fs.Int64("seed", 1, "rng seed")
	vocab := fs.Int("vocab", 0, "token vocabulary size (0 uses default)")
	maxTokens := fs.Int("max-tokens", 0, "token truncation limit (0 uses default)")
	embeddingDim := fs.Int("embedding-dim", 0, "embedding width (0 uses default)")
	hiddenDim := fs.Int("hidden-dim", 0, "hidden layer width (0 uses default)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.TrainRewardModel(ctx, forge.TrainRewardRequest{
		MinDelta:     *minDelta,
		Epochs:       *epochs,
		LearningRate: *lr,
		Margin:       *margin,
		Seed:         *seed,
		VocabSize:    *vocab,
		MaxTokens:    *maxTokens,
		EmbeddingDim: *embeddingDim,
		HiddenDim:    *hiddenDim,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run=%s pairs=%d checkpoint=%s\n", summary.RunID, summary.Pairs, summary.CheckpointPath)
	for i, loss := range summary.EpochLosses {
		fmt.Printf("epoch=%d mean_loss=%.6f\n", i+1, loss)
	}
	return nil
}

func runTrainPolicy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train-policy", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	specID := fs.String("spec-id", "", "base spec id")
	catalogPath := fs.String("catalog", "", "action catalog JSON file path")
	rewardRun := fs.String("reward-run", "", "reward run id to score against (defaults to latest)")
	configPath := fs.String("config", "", "optional training config JSON path")
	lr := fs.Float64("lr", 0, "learning rate (0 uses default)")
	nSteps := fs.Int("n-steps", 0, "rollout buffer size per environment (0 uses default)")
	batchSize := fs.Int("batch-size", 0, "minibatch size (0 uses default)")
	nEpochs := fs.Int("n-epochs", 0, "optimization epochs per rollout (0 uses default)")
	totalSteps := fs.Int("total-steps", 0, "total environment steps (0 uses default)")
	nEnvs := fs.Int("n-envs", 0, "parallel environment count (0 uses default)")
	episodeLength := fs.Int("episode-length", 0, "imposed episode length (0 uses default)")
	seed := fs.Int64("seed", 1, "rng seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *specID == "" || *catalogPath == "" {
		return usageError("train-policy requires -spec-id and -catalog")
	}

	catalog, err := loadCatalogFile(*catalogPath)
	if err != nil {
		return err
	}
	cfg, err := loadPolicyConfig(*configPath)
	if err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	overrideFromFlags(&cfg, setFlags, map[string]any{
		"lr":             *lr,
		"n-steps":        *nSteps,
		"batch-size":     *batchSize,
		"n-epochs":       *nEpochs,
		"total-steps":    *totalSteps,
		"n-envs":         *nEnvs,
		"episode-length": *episodeLength,
		"seed":           *seed,
	})
	if !setFlags["seed"] && cfg.Seed == 0 {
		cfg.Seed = *seed
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.TrainPolicy(ctx, forge.TrainPolicyRequest{
		SpecID:      *specID,
		Catalog:     catalog,
		RewardRunID: *rewardRun,
		Config:      cfg,
	})
	if err != nil {
		return err
	}

	if summary.BatchSizeRequested > 0 {
		fmt.Fprintf(os.Stderr, "warning: batch size %d exceeds rollout buffer, clamped to %d\n",
			summary.BatchSizeRequested, summary.BatchSizeEffective)
	}
	fmt.Printf("run=%s steps=%d iterations=%d checkpoint=%s\n",
		summary.RunID, summary.Steps, summary.Iterations, summary.CheckpointPath)
	fmt.Printf("reward mean=%.6f median=%.6f p10=%.6f p90=%.6f std=%.6f\n",
		summary.Summary.Mean, summary.Summary.Median, summary.Summary.P10,
		summary.Summary.P90, summary.Summary.Std)
	return nil
}

func runScore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	rewardRun := fs.String("reward-run", "", "reward run id (defaults to latest)")
	id := fs.String("id", "", "stored spec id to score")
	file := fs.String("file", "", "inline spec JSON file path (overrides -id)")
	contextText := fs.String("context", "", "free-text scoring context")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := forge.ScoreRequest{RewardRunID: *rewardRun, Context: *contextText, SpecID: *id}
	if *file != "" {
		spec, err := loadSpecFile(*file)
		if err != nil {
			return err
		}
		req.Spec = spec
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	score, err := client.Score(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("score=%.6f\n", score)
	return nil
}

func runSuggest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("suggest", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	policyRun := fs.String("policy-run", "", "policy run id (defaults to latest)")
	id := fs.String("id", "", "stored spec id")
	file := fs.String("file", "", "inline spec JSON file path (overrides -id)")
	catalogPath := fs.String("catalog", "", "action catalog JSON file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *catalogPath == "" {
		return usageError("suggest requires -catalog")
	}

	catalog, err := loadCatalogFile(*catalogPath)
	if err != nil {
		return err
	}
	req := forge.SuggestRequest{PolicyRunID: *policyRun, SpecID: *id, Catalog: catalog}
	if *file != "" {
		spec, err := loadSpecFile(*file)
		if err != nil {
			return err
		}
		req.Spec = spec
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	result, err := client.Suggest(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("action=%d object=%s field=%s value=%v\n",
		result.Index, result.Action.ObjectID, result.Action.Field, result.Action.Value)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	kind := fs.String("kind", "", "filter by run kind: reward|policy")
	limit := fs.Int("limit", 0, "maximum runs to list (0 lists all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch *kind {
	case "", string(model.RunKindReward), string(model.RunKindPolicy):
	default:
		return usageError(fmt.Sprintf("unknown run kind: %s", *kind))
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	runs, err := client.Runs(ctx, forge.RunsRequest{Kind: model.RunKind(*kind), Limit: *limit})
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("run=%s kind=%s started=%s mean=%.6f checkpoint=%s\n",
			run.ID, run.Kind, run.StartedAt.Format(time.RFC3339), run.Summary.Mean, run.CheckpointPath)
	}
	return nil
}

func runRewards(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rewards", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	runID := fs.String("run", "", "training run id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("rewards requires -run")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	history, err := client.RewardHistory(ctx, *runID)
	if err != nil {
		return err
	}
	for i, v := range history {
		fmt.Printf("step=%d reward=%.6f\n", i+1, v)
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: specforgectl <init|save-spec|revise|pairs|train-reward|train-policy|score|suggest|runs|rewards> [flags]", msg)
}
