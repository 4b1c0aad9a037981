package reward

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"specforge/internal/model"
)

type TrainConfig struct {
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	Margin       float64 `json:"margin"`
}

const (
	DefaultEpochs       = 3
	DefaultLearningRate = 0.01
	DefaultMargin       = 0.1
)

func (c TrainConfig) normalized() TrainConfig {
	if c.Epochs <= 0 {
		c.Epochs = DefaultEpochs
	}
	if c.LearningRate <= 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.Margin <= 0 {
		c.Margin = DefaultMargin
	}
	return c
}

type TrainResult struct {
	Pairs       int       `json:"pairs"`
	EpochLosses []float64 `json:"epoch_losses"`
}

// Train runs margin ranking updates over the supplied pairs. Pairs are
// iterated in the order given, with no shuffling, so a fixed pair list and
// seed always reproduce the same parameters. Each pair contributes
// max(0, margin - (score_preferred - score_other)); a pair whose preferred
// spec already leads by at least margin contributes zero loss and therefore
// zero gradient, so converged pairs are never pushed further apart.
//
// An empty pair list is a no-op, not an error: the model is returned
// unchanged.
func (m *Model) Train(pairsList []model.PreferencePair, cfg TrainConfig) (TrainResult, error) {
	cfg = cfg.normalized()
	result := TrainResult{Pairs: len(pairsList)}
	if len(pairsList) == 0 {
		return result, nil
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		total := 0.0
		for i, pair := range pairsList {
			loss, err := m.rankingStep(pair, cfg.LearningRate, cfg.Margin)
			if err != nil {
				return result, fmt.Errorf("pair %d: %w", i, err)
			}
			total += loss
		}
		result.EpochLosses = append(result.EpochLosses, total/float64(len(pairsList)))
	}
	return result, nil
}

func (m *Model) rankingStep(pair model.PreferencePair, lr, margin float64) (float64, error) {
	passA, err := m.forward(pair.Context, pair.SpecA)
	if err != nil {
		return 0, err
	}
	passB, err := m.forward(pair.Context, pair.SpecB)
	if err != nil {
		return 0, err
	}

	var pref, other forwardPass
	switch pair.Preferred {
	case model.PreferredA:
		pref, other = passA, passB
	case model.PreferredB:
		pref, other = passB, passA
	default:
		return 0, errors.New("pair has no decidable preference label")
	}

	loss := margin - (pref.score - other.score)
	if loss <= 0 {
		return 0, nil
	}

	// One SGD step on the hinge. The score gradient is computed for both
	// passes against the pre-update parameters, then applied at once.
	dPrePref := m.preGrad(pref)
	dPreOther := m.preGrad(other)
	dPooledPref := pooledGrad(m.w1, dPrePref)
	dPooledOther := pooledGrad(m.w1, dPreOther)

	// Output head. The bias gradient cancels between the two passes.
	w2Data := m.w2.RawVector().Data
	prefHidden := pref.hidden.RawVector().Data
	otherHidden := other.hidden.RawVector().Data
	for j := range w2Data {
		w2Data[j] += lr * (prefHidden[j] - otherHidden[j])
	}

	// Hidden layer.
	b1Data := m.b1.RawVector().Data
	for j := range b1Data {
		b1Data[j] += lr * (dPrePref[j] - dPreOther[j])
	}
	prefPooled := pref.pooled.RawVector().Data
	otherPooled := other.pooled.RawVector().Data
	for j := 0; j < m.cfg.HiddenDim; j++ {
		row := m.w1.RawRowView(j)
		for k := range row {
			row[k] += lr * (dPrePref[j]*prefPooled[k] - dPreOther[j]*otherPooled[k])
		}
	}

	// Embedding rows, scaled by the mean pool.
	addEmbedGrad(m.embed, pref.ids, dPooledPref, lr)
	addEmbedGrad(m.embed, other.ids, dPooledOther, -lr)

	return loss, nil
}

// preGrad returns d(score)/d(pre-activation): the output weight gated by the
// ReLU mask of the cached pass.
func (m *Model) preGrad(pass forwardPass) []float64 {
	w2Data := m.w2.RawVector().Data
	preData := pass.pre.RawVector().Data
	out := make([]float64, m.cfg.HiddenDim)
	for j := range out {
		if preData[j] > 0 {
			out[j] = w2Data[j]
		}
	}
	return out
}

// pooledGrad returns d(score)/d(pooled) = W1^T * dPre.
func pooledGrad(w1 *mat.Dense, dPre []float64) []float64 {
	rows, cols := w1.Dims()
	out := make([]float64, cols)
	for j := 0; j < rows; j++ {
		if dPre[j] == 0 {
			continue
		}
		row := w1.RawRowView(j)
		for k := range row {
			out[k] += dPre[j] * row[k]
		}
	}
	return out
}

func addEmbedGrad(embed *mat.Dense, ids []int, dPooled []float64, scale float64) {
	perToken := scale / float64(len(ids))
	for _, id := range ids {
		row := embed.RawRowView(id)
		for k := range row {
			row[k] += perToken * dPooled[k]
		}
	}
}
