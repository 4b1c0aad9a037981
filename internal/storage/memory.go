package storage

import (
	"context"
	"sort"
	"sync"

	"specforge/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	specs       map[string]model.Spec
	revisions   []model.RevisionRecord
	runs        map[string]model.TrainingRun
	rewards     map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.specs = make(map[string]model.Spec)
	s.revisions = nil
	s.runs = make(map[string]model.TrainingRun)
	s.rewards = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveSpec(_ context.Context, id string, spec model.Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.specs[id] = spec.Clone()
	return nil
}

func (s *MemoryStore) GetSpec(_ context.Context, id string) (model.Spec, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spec, ok := s.specs[id]
	if !ok {
		return nil, false, nil
	}
	return spec.Clone(), true, nil
}

func (s *MemoryStore) AppendRevision(_ context.Context, rec model.RevisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Snapshot = rec.Snapshot.Clone()
	s.revisions = append(s.revisions, rec)
	return nil
}

func (s *MemoryStore) ListRevisions(_ context.Context) ([]model.RevisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RevisionRecord, len(s.revisions))
	for i, rec := range s.revisions {
		rec.Snapshot = rec.Snapshot.Clone()
		out[i] = rec
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RatedAt.Before(out[j].RatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SaveTrainingRun(_ context.Context, run model.TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetTrainingRun(_ context.Context, id string) (model.TrainingRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListTrainingRuns(_ context.Context) ([]model.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TrainingRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (s *MemoryStore) SaveRewardHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rewards[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetRewardHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.rewards[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}
