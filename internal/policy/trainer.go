package policy

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"specforge/internal/encoder"
	"specforge/internal/model"
	"specforge/internal/specedit"
)

type Config struct {
	LearningRate   float64 `json:"learning_rate"`
	NSteps         int     `json:"n_steps"`
	BatchSize      int     `json:"batch_size"`
	NEpochs        int     `json:"n_epochs"`
	Gamma          float64 `json:"gamma"`
	GAELambda      float64 `json:"gae_lambda"`
	ClipRange      float64 `json:"clip_range"`
	ValueClipRange float64 `json:"value_clip_range"`
	EntropyCoef    float64 `json:"entropy_coef"`
	ValueCoef      float64 `json:"value_coef"`
	MaxGradNorm    float64 `json:"max_grad_norm"`
	TotalSteps     int     `json:"total_steps"`
	NParallelEnvs  int     `json:"n_parallel_envs"`
	EpisodeLength  int     `json:"episode_length"`
	HiddenDim      int     `json:"hidden_dim"`
	ObservationDim int     `json:"observation_dim"`
	Seed           int64   `json:"seed"`
}

func (c Config) normalized() Config {
	if c.LearningRate <= 0 {
		c.LearningRate = 3e-4
	}
	if c.NSteps <= 0 {
		c.NSteps = 128
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.NEpochs <= 0 {
		c.NEpochs = 4
	}
	if c.Gamma <= 0 {
		c.Gamma = 0.99
	}
	if c.GAELambda <= 0 {
		c.GAELambda = 0.95
	}
	if c.ClipRange <= 0 {
		c.ClipRange = 0.2
	}
	if c.ValueClipRange <= 0 {
		c.ValueClipRange = 0.2
	}
	if c.EntropyCoef < 0 {
		c.EntropyCoef = 0
	}
	if c.ValueCoef <= 0 {
		c.ValueCoef = 0.5
	}
	if c.MaxGradNorm < 0 {
		c.MaxGradNorm = 0
	}
	if c.TotalSteps <= 0 {
		c.TotalSteps = 2048
	}
	if c.NParallelEnvs <= 0 {
		c.NParallelEnvs = 1
	}
	if c.EpisodeLength <= 0 {
		c.EpisodeLength = 16
	}
	if c.HiddenDim <= 0 {
		c.HiddenDim = 64
	}
	if c.ObservationDim <= 0 {
		c.ObservationDim = encoder.DefaultObservationDim
	}
	return c
}

// Hooks surface soft training events to the caller. Nil hooks are skipped.
type Hooks struct {
	OnBatchClamp      func(requested, effective int)
	OnRolloutComplete func(iteration, stepsDone int, meanReward float64)
}

// Trainer runs clipped-surrogate policy optimization over parallel spec-edit
// environments that share one frozen reward model. Environments own their
// working specs, so rollout workers need no locking; the reward model must
// not be trained while rollouts are sampling from it.
type Trainer struct {
	cfg   Config
	hooks Hooks

	net  *Network
	envs []*specedit.Environment
	rngs []*rand.Rand
	rng  *rand.Rand

	// per-env episode bookkeeping carried across rollouts
	lastObs [][]float64
	epSteps []int
}

// NewTrainer builds NParallelEnvs independent environments over the same base
// spec and action catalog. A BatchSize above the per-environment rollout
// buffer (NSteps) is clamped down, surfaced through OnBatchClamp, never an
// error.
func NewTrainer(base model.Spec, catalog []model.EditAction, scorer specedit.Scorer, cfg Config, hooks Hooks) (*Trainer, error) {
	cfg = cfg.normalized()

	if cfg.BatchSize > cfg.NSteps {
		if hooks.OnBatchClamp != nil {
			hooks.OnBatchClamp(cfg.BatchSize, cfg.NSteps)
		}
		cfg.BatchSize = cfg.NSteps
	}

	envs := make([]*specedit.Environment, cfg.NParallelEnvs)
	rngs := make([]*rand.Rand, cfg.NParallelEnvs)
	enc := encoder.Encoder{ObservationDim: cfg.ObservationDim}
	for i := range envs {
		env, err := specedit.New(base, catalog, scorer, enc)
		if err != nil {
			return nil, fmt.Errorf("environment %d: %w", i, err)
		}
		envs[i] = env
		rngs[i] = rand.New(rand.NewSource(cfg.Seed + int64(i) + 1))
	}

	return &Trainer{
		cfg:     cfg,
		hooks:   hooks,
		net:     NewNetwork(cfg.ObservationDim, cfg.HiddenDim, len(catalog), cfg.Seed),
		envs:    envs,
		rngs:    rngs,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		lastObs: make([][]float64, cfg.NParallelEnvs),
		epSteps: make([]int, cfg.NParallelEnvs),
	}, nil
}

// Config returns the effective configuration after defaulting and clamping.
func (t *Trainer) Config() Config {
	return t.cfg
}

// Network exposes the trained policy for serving and checkpointing.
func (t *Trainer) Network() *Network {
	return t.net
}

type Report struct {
	Steps       int       `json:"steps"`
	Iterations  int       `json:"iterations"`
	StepRewards []float64 `json:"step_rewards"`
}

// Train collects rollouts and optimizes until at least TotalSteps environment
// steps have been consumed.
func (t *Trainer) Train(ctx context.Context) (Report, error) {
	var report Report

	for report.Steps < t.cfg.TotalSteps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		trajectories, err := t.collect(ctx)
		if err != nil {
			return report, err
		}

		samples := make([]sample, 0, t.cfg.NSteps*t.cfg.NParallelEnvs)
		rolloutReward := 0.0
		for _, tr := range trajectories {
			for _, r := range tr.rewards {
				rolloutReward += r
				report.StepRewards = append(report.StepRewards, r)
			}
			samples = append(samples, tr.samples(t.cfg.Gamma, t.cfg.GAELambda)...)
		}
		normalizeAdvantages(samples)

		t.optimize(samples)

		report.Steps += len(samples)
		report.Iterations++
		if t.hooks.OnRolloutComplete != nil {
			t.hooks.OnRolloutComplete(report.Iterations, report.Steps, rolloutReward/float64(len(samples)))
		}
	}
	return report, nil
}

// collect gathers NSteps transitions from every environment concurrently.
// The policy network is only read during collection, so sharing it across
// workers is safe.
func (t *Trainer) collect(ctx context.Context) ([]trajectory, error) {
	trajectories := make([]trajectory, t.cfg.NParallelEnvs)

	g, ctx := errgroup.WithContext(ctx)
	for i := range t.envs {
		i := i
		g.Go(func() error {
			tr, err := t.collectOne(ctx, i)
			if err != nil {
				return fmt.Errorf("rollout worker %d: %w", i, err)
			}
			trajectories[i] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trajectories, nil
}

func (t *Trainer) collectOne(ctx context.Context, worker int) (trajectory, error) {
	env := t.envs[worker]
	rng := t.rngs[worker]
	tr := newTrajectory(t.cfg.NSteps)

	obs := t.lastObs[worker]
	if obs == nil {
		reset, err := env.Reset()
		if err != nil {
			return trajectory{}, err
		}
		obs = reset
		t.epSteps[worker] = 0
	}

	for step := 0; step < t.cfg.NSteps; step++ {
		if err := ctx.Err(); err != nil {
			return trajectory{}, err
		}

		action, logProb, value := t.net.Sample(rng, obs)
		res, err := env.Step(action)
		if err != nil {
			return trajectory{}, err
		}

		t.epSteps[worker]++
		done := t.epSteps[worker] >= t.cfg.EpisodeLength

		tr.obs = append(tr.obs, obs)
		tr.actions = append(tr.actions, action)
		tr.logProbs = append(tr.logProbs, logProb)
		tr.values = append(tr.values, value)
		tr.rewards = append(tr.rewards, res.Reward)
		tr.dones = append(tr.dones, done)

		if done {
			reset, err := env.Reset()
			if err != nil {
				return trajectory{}, err
			}
			obs = reset
			t.epSteps[worker] = 0
		} else {
			obs = res.Observation
		}
	}

	tr.lastValue = t.net.Value(obs)
	t.lastObs[worker] = obs
	return tr, nil
}

func (t *Trainer) optimize(samples []sample) {
	for epoch := 0; epoch < t.cfg.NEpochs; epoch++ {
		order := t.rng.Perm(len(samples))
		for start := 0; start < len(order); start += t.cfg.BatchSize {
			end := start + t.cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			grads := newGradients(t.net)
			for _, idx := range order[start:end] {
				t.net.accumulate(grads, samples[idx],
					t.cfg.ClipRange, t.cfg.ValueClipRange,
					t.cfg.EntropyCoef, t.cfg.ValueCoef)
			}
			t.net.apply(grads, end-start, t.cfg.LearningRate, t.cfg.MaxGradNorm)
		}
	}
}

func normalizeAdvantages(samples []sample) {
	if len(samples) < 2 {
		return
	}
	advs := make([]float64, len(samples))
	for i, s := range samples {
		advs[i] = s.advantage
	}
	mean, std := stat.MeanStdDev(advs, nil)
	if std < 1e-8 {
		return
	}
	for i := range samples {
		samples[i].advantage = (samples[i].advantage - mean) / std
	}
}
