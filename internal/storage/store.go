package storage

import (
	"context"

	"specforge/internal/model"
)

// Store defines persistence operations for design specs, their rated
// revision history, and training-run records. The learning core itself never
// persists specs; this store is the collaborator that feeds it.
type Store interface {
	Init(ctx context.Context) error
	SaveSpec(ctx context.Context, id string, spec model.Spec) error
	GetSpec(ctx context.Context, id string) (model.Spec, bool, error)
	AppendRevision(ctx context.Context, rec model.RevisionRecord) error
	ListRevisions(ctx context.Context) ([]model.RevisionRecord, error)
	SaveTrainingRun(ctx context.Context, run model.TrainingRun) error
	GetTrainingRun(ctx context.Context, id string) (model.TrainingRun, bool, error)
	ListTrainingRuns(ctx context.Context) ([]model.TrainingRun, error)
	SaveRewardHistory(ctx context.Context, runID string, history []float64) error
	GetRewardHistory(ctx context.Context, runID string) ([]float64, bool, error)
}
