// Package specforge is the embedding API for the preference-learning core:
// rated spec revisions in, trained reward and policy checkpoints out.
package specforge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"specforge/internal/diag"
	"specforge/internal/encoder"
	"specforge/internal/model"
	"specforge/internal/pairs"
	"specforge/internal/policy"
	"specforge/internal/reward"
	"specforge/internal/specedit"
	"specforge/internal/storage"
)

const (
	defaultCheckpointsDir = "checkpoints"
	defaultDBPath         = "specforge.db"
	defaultMinDelta       = 0.5
)

type Options struct {
	StoreKind      string
	DBPath         string
	CheckpointsDir string
}

type Client struct {
	store          storage.Store
	checkpointsDir string
}

type AddRevisionRequest struct {
	SpecID   string
	Snapshot model.Spec
	// Rating is nil while the revision is awaiting a rating.
	Rating  *float64
	RatedAt time.Time
}

type TrainRewardRequest struct {
	MinDelta     float64
	Epochs       int
	LearningRate float64
	Margin       float64
	Seed         int64
	VocabSize    int
	MaxTokens    int
	EmbeddingDim int
	HiddenDim    int
}

type TrainRewardSummary struct {
	RunID          string
	CheckpointPath string
	Pairs          int
	EpochLosses    []float64
	Summary        model.RunSummary
}

type TrainPolicyRequest struct {
	SpecID      string
	Catalog     []model.EditAction
	RewardRunID string
	Config      policy.Config
}

type TrainPolicySummary struct {
	RunID          string
	CheckpointPath string
	Steps          int
	Iterations     int
	// BatchSizeRequested/BatchSizeEffective report a batch-size clamp to the
	// rollout buffer size; both stay zero when no clamp happened.
	BatchSizeRequested int
	BatchSizeEffective int
	Summary            model.RunSummary
}

type ScoreRequest struct {
	RewardRunID string
	Context     string
	SpecID      string
	Spec        model.Spec
}

type SuggestRequest struct {
	PolicyRunID string
	SpecID      string
	Spec        model.Spec
	Catalog     []model.EditAction
}

type SuggestResult struct {
	Index  int
	Action model.EditAction
}

type RunsRequest struct {
	Kind  model.RunKind
	Limit int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	checkpointsDir := opts.CheckpointsDir
	if checkpointsDir == "" {
		checkpointsDir = defaultCheckpointsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:          store,
		checkpointsDir: checkpointsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) SaveSpec(ctx context.Context, id string, spec model.Spec) error {
	if id == "" {
		return errors.New("spec id must not be empty")
	}
	if spec == nil {
		return errors.New("spec must not be nil")
	}
	return c.store.SaveSpec(ctx, id, spec)
}

func (c *Client) GetSpec(ctx context.Context, id string) (model.Spec, error) {
	spec, ok, err := c.store.GetSpec(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("spec %q not found", id)
	}
	return spec, nil
}

// AddRevision appends a snapshot of a spec to the rated history. Revisions
// without a rating are stored and skipped by pair extraction until re-added
// with one.
func (c *Client) AddRevision(ctx context.Context, req AddRevisionRequest) error {
	if req.SpecID == "" {
		return errors.New("revision spec id must not be empty")
	}
	if req.Snapshot == nil {
		return errors.New("revision snapshot must not be nil")
	}
	ratedAt := req.RatedAt
	if ratedAt.IsZero() {
		ratedAt = time.Now().UTC()
	}
	rating := math.NaN()
	if req.Rating != nil {
		rating = *req.Rating
	}
	return c.store.AppendRevision(ctx, model.RevisionRecord{
		VersionedRecord: storage.Stamp(),
		SpecID:          req.SpecID,
		Snapshot:        req.Snapshot.Clone(),
		Rating:          rating,
		RatedAt:         ratedAt,
	})
}

// ExtractPairs mines the stored revision history for preference pairs.
func (c *Client) ExtractPairs(ctx context.Context, minDelta float64) ([]model.PreferencePair, error) {
	if minDelta < 0 {
		return nil, errors.New("min delta must be >= 0")
	}
	history, err := c.store.ListRevisions(ctx)
	if err != nil {
		return nil, err
	}
	return pairs.Extract(history, minDelta), nil
}

// TrainRewardModel extracts pairs from the stored history, fits a fresh
// reward model on them, and records the run with its checkpoint.
func (c *Client) TrainRewardModel(ctx context.Context, req TrainRewardRequest) (TrainRewardSummary, error) {
	if req.MinDelta < 0 {
		return TrainRewardSummary{}, errors.New("min delta must be >= 0")
	}
	if req.MinDelta == 0 {
		req.MinDelta = defaultMinDelta
	}

	pairsList, err := c.ExtractPairs(ctx, req.MinDelta)
	if err != nil {
		return TrainRewardSummary{}, err
	}
	if len(pairsList) == 0 {
		return TrainRewardSummary{}, errors.New("no preference pairs in revision history; add rated revisions first")
	}

	m := reward.New(reward.Config{
		VocabSize:    req.VocabSize,
		MaxTokens:    req.MaxTokens,
		EmbeddingDim: req.EmbeddingDim,
		HiddenDim:    req.HiddenDim,
	}, req.Seed)

	startedAt := time.Now().UTC()
	result, err := m.Train(pairsList, reward.TrainConfig{
		Epochs:       req.Epochs,
		LearningRate: req.LearningRate,
		Margin:       req.Margin,
	})
	if err != nil {
		return TrainRewardSummary{}, err
	}

	runID := uuid.NewString()
	checkpointPath, err := c.checkpointPath(runID)
	if err != nil {
		return TrainRewardSummary{}, err
	}
	if err := m.Save(checkpointPath); err != nil {
		return TrainRewardSummary{}, err
	}

	summary := diag.Summarize(result.EpochLosses)
	run := model.TrainingRun{
		VersionedRecord: storage.Stamp(),
		ID:              runID,
		Kind:            model.RunKindReward,
		CheckpointPath:  checkpointPath,
		StartedAt:       startedAt,
		FinishedAt:      time.Now().UTC(),
		Summary:         summary,
	}
	if err := c.store.SaveTrainingRun(ctx, run); err != nil {
		return TrainRewardSummary{}, err
	}
	if err := c.store.SaveRewardHistory(ctx, runID, result.EpochLosses); err != nil {
		return TrainRewardSummary{}, err
	}

	return TrainRewardSummary{
		RunID:          runID,
		CheckpointPath: checkpointPath,
		Pairs:          result.Pairs,
		EpochLosses:    result.EpochLosses,
		Summary:        summary,
	}, nil
}

// TrainPolicy optimizes an edit policy against a frozen reward model from an
// earlier reward run. The base spec and action catalog define the
// environment; every action must reference a field edit on some object.
func (c *Client) TrainPolicy(ctx context.Context, req TrainPolicyRequest) (TrainPolicySummary, error) {
	if req.SpecID == "" {
		return TrainPolicySummary{}, errors.New("base spec id must not be empty")
	}
	if len(req.Catalog) == 0 {
		return TrainPolicySummary{}, errors.New("action catalog must not be empty")
	}

	base, err := c.GetSpec(ctx, req.SpecID)
	if err != nil {
		return TrainPolicySummary{}, err
	}
	scorer, err := c.loadRewardModel(ctx, req.RewardRunID)
	if err != nil {
		return TrainPolicySummary{}, err
	}

	var clampRequested, clampEffective int
	trainer, err := policy.NewTrainer(base, req.Catalog, scorer, req.Config, policy.Hooks{
		OnBatchClamp: func(requested, effective int) {
			clampRequested, clampEffective = requested, effective
		},
	})
	if err != nil {
		return TrainPolicySummary{}, err
	}

	startedAt := time.Now().UTC()
	report, err := trainer.Train(ctx)
	if err != nil {
		return TrainPolicySummary{}, err
	}

	runID := uuid.NewString()
	checkpointPath, err := c.checkpointPath(runID)
	if err != nil {
		return TrainPolicySummary{}, err
	}
	if err := trainer.Network().Save(checkpointPath); err != nil {
		return TrainPolicySummary{}, err
	}

	summary := diag.Summarize(report.StepRewards)
	run := model.TrainingRun{
		VersionedRecord: storage.Stamp(),
		ID:              runID,
		Kind:            model.RunKindPolicy,
		CheckpointPath:  checkpointPath,
		StartedAt:       startedAt,
		FinishedAt:      time.Now().UTC(),
		Summary:         summary,
	}
	if err := c.store.SaveTrainingRun(ctx, run); err != nil {
		return TrainPolicySummary{}, err
	}
	if err := c.store.SaveRewardHistory(ctx, runID, report.StepRewards); err != nil {
		return TrainPolicySummary{}, err
	}

	return TrainPolicySummary{
		RunID:              runID,
		CheckpointPath:     checkpointPath,
		Steps:              report.Steps,
		Iterations:         report.Iterations,
		BatchSizeRequested: clampRequested,
		BatchSizeEffective: clampEffective,
		Summary:            summary,
	}, nil
}

// Score evaluates a spec under a trained reward model.
func (c *Client) Score(ctx context.Context, req ScoreRequest) (float64, error) {
	spec := req.Spec
	if spec == nil {
		if req.SpecID == "" {
			return 0, errors.New("either an inline spec or a spec id is required")
		}
		var err error
		spec, err = c.GetSpec(ctx, req.SpecID)
		if err != nil {
			return 0, err
		}
	}
	m, err := c.loadRewardModel(ctx, req.RewardRunID)
	if err != nil {
		return 0, err
	}
	return m.Score(req.Context, spec)
}

// Suggest returns the edit a trained policy would apply to the spec.
func (c *Client) Suggest(ctx context.Context, req SuggestRequest) (SuggestResult, error) {
	if len(req.Catalog) == 0 {
		return SuggestResult{}, errors.New("action catalog must not be empty")
	}
	spec := req.Spec
	if spec == nil {
		if req.SpecID == "" {
			return SuggestResult{}, errors.New("either an inline spec or a spec id is required")
		}
		var err error
		spec, err = c.GetSpec(ctx, req.SpecID)
		if err != nil {
			return SuggestResult{}, err
		}
	}

	run, err := c.resolveRun(ctx, req.PolicyRunID, model.RunKindPolicy)
	if err != nil {
		return SuggestResult{}, err
	}
	net, err := policy.Load(run.CheckpointPath)
	if err != nil {
		return SuggestResult{}, err
	}

	enc := encoder.Encoder{ObservationDim: net.ObservationDim()}
	obs, err := enc.Observation("", spec)
	if err != nil {
		return SuggestResult{}, err
	}
	idx := net.Greedy(obs)
	if idx < 0 || idx >= len(req.Catalog) {
		return SuggestResult{}, fmt.Errorf("policy selected action %d outside catalog of %d", idx, len(req.Catalog))
	}
	return SuggestResult{Index: idx, Action: req.Catalog[idx]}, nil
}

// Runs lists recorded training runs, most recent first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.TrainingRun, error) {
	runs, err := c.store.ListTrainingRuns(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]model.TrainingRun, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		if req.Kind != "" && run.Kind != req.Kind {
			continue
		}
		filtered = append(filtered, run)
		if req.Limit > 0 && len(filtered) >= req.Limit {
			break
		}
	}
	return filtered, nil
}

// RewardHistory returns the per-step reward trace of a policy run, or the
// per-epoch loss trace of a reward run.
func (c *Client) RewardHistory(ctx context.Context, runID string) ([]float64, error) {
	history, ok, err := c.store.GetRewardHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no reward history recorded for run %q", runID)
	}
	return history, nil
}

func (c *Client) checkpointPath(runID string) (string, error) {
	if err := os.MkdirAll(c.checkpointsDir, 0o755); err != nil {
		return "", fmt.Errorf("create checkpoints dir: %w", err)
	}
	return filepath.Join(c.checkpointsDir, runID+".json"), nil
}

func (c *Client) resolveRun(ctx context.Context, runID string, kind model.RunKind) (model.TrainingRun, error) {
	if runID != "" {
		run, ok, err := c.store.GetTrainingRun(ctx, runID)
		if err != nil {
			return model.TrainingRun{}, err
		}
		if !ok {
			return model.TrainingRun{}, fmt.Errorf("training run %q not found", runID)
		}
		if run.Kind != kind {
			return model.TrainingRun{}, fmt.Errorf("training run %q is a %s run, not %s", runID, run.Kind, kind)
		}
		return run, nil
	}

	// No run named: fall back to the latest run of the requested kind.
	runs, err := c.store.ListTrainingRuns(ctx)
	if err != nil {
		return model.TrainingRun{}, err
	}
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Kind == kind {
			return runs[i], nil
		}
	}
	return model.TrainingRun{}, fmt.Errorf("no %s training run recorded", kind)
}

func (c *Client) loadRewardModel(ctx context.Context, runID string) (*reward.Model, error) {
	run, err := c.resolveRun(ctx, runID, model.RunKindReward)
	if err != nil {
		return nil, err
	}
	m, err := reward.Load(run.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("load reward checkpoint %s: %w", run.CheckpointPath, err)
	}
	return m, nil
}

var _ specedit.Scorer = (*reward.Model)(nil)
