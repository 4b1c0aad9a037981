// Package specedit models spec editing as a single-step-mutation MDP: the
// state is the encoded working spec, actions are a closed catalog of atomic
// edits, and the reward is the learned score of the resulting spec.
package specedit

import (
	"errors"
	"fmt"

	"specforge/internal/encoder"
	"specforge/internal/model"
)

var (
	// ErrRewardModelUnavailable marks an environment that cannot produce
	// valid rewards. Construction fails fast instead of silently scoring
	// zero.
	ErrRewardModelUnavailable = errors.New("reward model unavailable")

	ErrEmptyCatalog = errors.New("edit action catalog is empty")

	ErrNotReset = errors.New("environment requires Reset before Step")
)

// Scorer is the loaded, frozen reward model. Its parameters are read-only
// here, so concurrent environments may share one instance without locking.
type Scorer interface {
	Score(context string, spec model.Spec) (float64, error)
}

// Environment owns a deep-copied working spec per episode. The caller's base
// spec is never mutated; Reset discards all episode edits.
type Environment struct {
	base    model.Spec
	catalog []model.EditAction
	scorer  Scorer
	enc     encoder.Encoder

	working model.Spec
	started bool
}

func New(base model.Spec, catalog []model.EditAction, scorer Scorer, enc encoder.Encoder) (*Environment, error) {
	if base == nil {
		return nil, errors.New("base spec is required")
	}
	if scorer == nil {
		return nil, ErrRewardModelUnavailable
	}
	if len(catalog) == 0 {
		return nil, ErrEmptyCatalog
	}
	return &Environment{
		base:    base.Clone(),
		catalog: append([]model.EditAction(nil), catalog...),
		scorer:  scorer,
		enc:     enc,
	}, nil
}

// ActionCount reports the size of the closed action catalog.
func (e *Environment) ActionCount() int {
	return len(e.catalog)
}

// Reset starts a fresh episode from a new deep copy of the base spec and
// returns its observation.
func (e *Environment) Reset() ([]float64, error) {
	e.working = e.base.Clone()
	e.started = true
	return e.enc.Observation("", e.working)
}

type StepResult struct {
	Observation []float64
	Reward      float64
	// Applied is false when the action targeted an object id absent from
	// the working spec: a wasted action, not an error.
	Applied bool
	// Terminated is always false. The environment has no intrinsic done
	// condition; the training loop bounds episode length.
	Terminated bool
}

// Step applies one catalog action to the episode's working copy. Missing
// target objects make the step a no-op with state and reward computed from
// the unchanged spec. Stepping before Reset is a precondition error.
func (e *Environment) Step(action int) (StepResult, error) {
	if !e.started {
		return StepResult{}, ErrNotReset
	}
	if action < 0 || action >= len(e.catalog) {
		return StepResult{}, fmt.Errorf("action index %d outside catalog of %d", action, len(e.catalog))
	}

	edit := e.catalog[action]
	applied := false
	if obj, ok := e.working.FindObject(edit.ObjectID); ok {
		obj[edit.Field] = edit.Value
		applied = true
	}

	reward, err := e.scorer.Score("", e.working)
	if err != nil {
		return StepResult{}, fmt.Errorf("score working spec: %w", err)
	}
	obs, err := e.enc.Observation("", e.working)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Observation: obs, Reward: reward, Applied: applied}, nil
}
