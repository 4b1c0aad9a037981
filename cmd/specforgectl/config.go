package main

import (
	"encoding/json"
	"fmt"
	"os"

	"specforge/internal/model"
	"specforge/internal/policy"
)

func loadSpecFile(path string) (model.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec model.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse spec file %s: %w", path, err)
	}
	return spec, nil
}

func loadCatalogFile(path string) ([]model.EditAction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var catalog []model.EditAction
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	for i, action := range catalog {
		if action.ObjectID == "" || action.Field == "" {
			return nil, fmt.Errorf("catalog entry %d missing object_id or field", i)
		}
	}
	return catalog, nil
}

// loadPolicyConfig reads optional training hyperparameters from a JSON file.
// Absent keys stay zero and pick up runtime defaults.
func loadPolicyConfig(path string) (policy.Config, error) {
	var cfg policy.Config
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Config{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return policy.Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if v, ok := asFloat64(raw["learning_rate"]); ok {
		cfg.LearningRate = v
	}
	if v, ok := asInt(raw["n_steps"]); ok {
		cfg.NSteps = v
	}
	if v, ok := asInt(raw["batch_size"]); ok {
		cfg.BatchSize = v
	}
	if v, ok := asInt(raw["n_epochs"]); ok {
		cfg.NEpochs = v
	}
	if v, ok := asFloat64(raw["gamma"]); ok {
		cfg.Gamma = v
	}
	if v, ok := asFloat64(raw["gae_lambda"]); ok {
		cfg.GAELambda = v
	}
	if v, ok := asFloat64(raw["clip_range"]); ok {
		cfg.ClipRange = v
	}
	if v, ok := asFloat64(raw["value_clip_range"]); ok {
		cfg.ValueClipRange = v
	}
	if v, ok := asFloat64(raw["entropy_coef"]); ok {
		cfg.EntropyCoef = v
	}
	if v, ok := asFloat64(raw["value_coef"]); ok {
		cfg.ValueCoef = v
	}
	if v, ok := asFloat64(raw["max_grad_norm"]); ok {
		cfg.MaxGradNorm = v
	}
	if v, ok := asInt(raw["total_steps"]); ok {
		cfg.TotalSteps = v
	}
	if v, ok := asInt(raw["n_parallel_envs"]); ok {
		cfg.NParallelEnvs = v
	}
	if v, ok := asInt(raw["episode_length"]); ok {
		cfg.EpisodeLength = v
	}
	if v, ok := asInt(raw["hidden_dim"]); ok {
		cfg.HiddenDim = v
	}
	if v, ok := asInt(raw["observation_dim"]); ok {
		cfg.ObservationDim = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		cfg.Seed = v
	}
	return cfg, nil
}

// overrideFromFlags applies only explicitly set flags on top of config-file
// values, so a flag default never clobbers a key from the file.
func overrideFromFlags(cfg *policy.Config, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "lr":
			cfg.LearningRate = v.(float64)
		case "n-steps":
			cfg.NSteps = v.(int)
		case "batch-size":
			cfg.BatchSize = v.(int)
		case "n-epochs":
			cfg.NEpochs = v.(int)
		case "total-steps":
			cfg.TotalSteps = v.(int)
		case "n-envs":
			cfg.NParallelEnvs = v.(int)
		case "episode-length":
			cfg.EpisodeLength = v.(int)
		case "seed":
			cfg.Seed = v.(int64)
		}
	}
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
