package policy

// sample is one flattened rollout step ready for surrogate optimization.
type sample struct {
	obs       []float64
	action    int
	logProb   float64
	valueOld  float64
	advantage float64
	ret       float64
}

// trajectory holds one environment's slice of the rollout buffer.
type trajectory struct {
	obs      [][]float64
	actions  []int
	logProbs []float64
	values   []float64
	rewards  []float64
	// dones[t] marks steps where the trainer-imposed episode length was
	// reached. The environment itself never terminates.
	dones []bool
	// lastValue bootstraps the advantage of the final step when the
	// rollout truncates an episode mid-flight.
	lastValue float64
}

func newTrajectory(steps int) trajectory {
	return trajectory{
		obs:      make([][]float64, 0, steps),
		actions:  make([]int, 0, steps),
		logProbs: make([]float64, 0, steps),
		values:   make([]float64, 0, steps),
		rewards:  make([]float64, 0, steps),
		dones:    make([]bool, 0, steps),
	}
}

// samples computes GAE(gamma, lambda) advantages over the trajectory and
// returns flattened optimization samples. Returns-to-go are reconstructed as
// advantage + value, the usual actor-critic bookkeeping.
func (tr trajectory) samples(gamma, lam float64) []sample {
	n := len(tr.rewards)
	out := make([]sample, n)

	gae := 0.0
	for t := n - 1; t >= 0; t-- {
		nextNonTerminal := 1.0
		if tr.dones[t] {
			nextNonTerminal = 0
		}
		nextValue := tr.lastValue
		if t < n-1 {
			nextValue = tr.values[t+1]
		}

		delta := tr.rewards[t] + gamma*nextValue*nextNonTerminal - tr.values[t]
		gae = delta + gamma*lam*nextNonTerminal*gae

		out[t] = sample{
			obs:       tr.obs[t],
			action:    tr.actions[t],
			logProb:   tr.logProbs[t],
			valueOld:  tr.values[t],
			advantage: gae,
			ret:       gae + tr.values[t],
		}
	}
	return out
}
