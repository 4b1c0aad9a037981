// Package policy trains an edit policy against spec-edit environments with a
// clipped-surrogate on-policy objective.
package policy

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const policyInitScale = 0.05

// Network is a small actor-critic: one shared ReLU hidden layer over the
// observation, a categorical action head and a scalar value head.
type Network struct {
	obsDim    int
	hiddenDim int
	actions   int

	w1 *mat.Dense    // hiddenDim x obsDim
	b1 *mat.VecDense // hiddenDim
	wp *mat.Dense    // actions x hiddenDim
	bp *mat.VecDense // actions
	wv *mat.VecDense // hiddenDim
	bv float64
}

func NewNetwork(obsDim, hiddenDim, actions int, seed int64) *Network {
	rng := rand.New(rand.NewSource(seed))
	n := &Network{
		obsDim:    obsDim,
		hiddenDim: hiddenDim,
		actions:   actions,
		w1:        mat.NewDense(hiddenDim, obsDim, nil),
		b1:        mat.NewVecDense(hiddenDim, nil),
		wp:        mat.NewDense(actions, hiddenDim, nil),
		bp:        mat.NewVecDense(actions, nil),
		wv:        mat.NewVecDense(hiddenDim, nil),
	}
	initUniform(n.w1.RawMatrix().Data, rng)
	initUniform(n.wp.RawMatrix().Data, rng)
	initUniform(n.wv.RawVector().Data, rng)
	return n
}

func initUniform(dst []float64, rng *rand.Rand) {
	for i := range dst {
		dst[i] = (rng.Float64()*2 - 1) * policyInitScale
	}
}

type netPass struct {
	obs    []float64
	pre    []float64 // hidden pre-activation
	hidden []float64
	logits []float64
	probs  []float64
	value  float64
}

func (n *Network) forward(obs []float64) netPass {
	obsVec := mat.NewVecDense(n.obsDim, obs)

	pre := mat.NewVecDense(n.hiddenDim, nil)
	pre.MulVec(n.w1, obsVec)
	pre.AddVec(pre, n.b1)
	preData := pre.RawVector().Data

	hidden := make([]float64, n.hiddenDim)
	for j, v := range preData {
		if v > 0 {
			hidden[j] = v
		}
	}
	hiddenVec := mat.NewVecDense(n.hiddenDim, hidden)

	logitsVec := mat.NewVecDense(n.actions, nil)
	logitsVec.MulVec(n.wp, hiddenVec)
	logitsVec.AddVec(logitsVec, n.bp)
	logits := logitsVec.RawVector().Data

	return netPass{
		obs:    obs,
		pre:    preData,
		hidden: hidden,
		logits: append([]float64(nil), logits...),
		probs:  softmax(logits),
		value:  mat.Dot(n.wv, hiddenVec) + n.bv,
	}
}

// Sample draws an action from the current categorical distribution and
// reports its log-probability and the state value.
func (n *Network) Sample(rng *rand.Rand, obs []float64) (action int, logProb, value float64) {
	pass := n.forward(obs)
	action = sampleCategorical(rng, pass.probs)
	return action, math.Log(pass.probs[action] + 1e-12), pass.value
}

// ObservationDim reports the input width the network was built for.
func (n *Network) ObservationDim() int {
	return n.obsDim
}

// Greedy returns the highest-probability action, used when serving a trained
// policy rather than exploring.
func (n *Network) Greedy(obs []float64) int {
	pass := n.forward(obs)
	best := 0
	for i, p := range pass.probs {
		if p > pass.probs[best] {
			best = i
		}
	}
	return best
}

// Value estimates the state value for bootstrap targets.
func (n *Network) Value(obs []float64) float64 {
	return n.forward(obs).value
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func sampleCategorical(rng *rand.Rand, probs []float64) int {
	r := rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if r < acc {
			return i
		}
	}
	return len(probs) - 1
}

// gradients accumulates parameter gradients across a minibatch.
type gradients struct {
	w1 []float64
	b1 []float64
	wp []float64
	bp []float64
	wv []float64
	bv float64
}

func newGradients(n *Network) *gradients {
	return &gradients{
		w1: make([]float64, n.hiddenDim*n.obsDim),
		b1: make([]float64, n.hiddenDim),
		wp: make([]float64, n.actions*n.hiddenDim),
		bp: make([]float64, n.actions),
		wv: make([]float64, n.hiddenDim),
	}
}

// accumulate adds the gradient of the per-sample loss
//
//	L = -min(ratio*A, clip(ratio)*A) + vfCoef*Lvalue - entCoef*entropy
//
// to g. Gradients flow through the surrogate only while the ratio is inside
// the clip region on the losing side, which is what keeps already-clipped
// samples from moving the policy further.
func (n *Network) accumulate(g *gradients, s sample, clipRange, valueClipRange, entCoef, vfCoef float64) float64 {
	pass := n.forward(s.obs)

	logProb := math.Log(pass.probs[s.action] + 1e-12)
	ratio := math.Exp(logProb - s.logProb)

	// Clipped surrogate.
	pgLoss := -math.Min(ratio*s.advantage, clippedRatio(ratio, clipRange)*s.advantage)
	dLogProb := 0.0
	if !ratioClipped(ratio, s.advantage, clipRange) {
		dLogProb = -s.advantage * ratio
	}

	// Entropy regularizer.
	entropy := 0.0
	for _, p := range pass.probs {
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}

	// d(-entCoef*H)/dlogit_k = entCoef * p_k * (log p_k + H)
	dLogits := make([]float64, n.actions)
	for k, p := range pass.probs {
		indicator := 0.0
		if k == s.action {
			indicator = 1
		}
		dLogits[k] = dLogProb * (indicator - p)
		if p > 0 {
			dLogits[k] += entCoef * p * (math.Log(p) + entropy)
		}
	}

	// Clipped value loss.
	vClipped := s.valueOld + clamp(pass.value-s.valueOld, valueClipRange)
	unclippedErr := pass.value - s.ret
	clippedErr := vClipped - s.ret
	var valueLoss, dValue float64
	if unclippedErr*unclippedErr >= clippedErr*clippedErr {
		valueLoss = unclippedErr * unclippedErr
		dValue = 2 * unclippedErr
	} else {
		valueLoss = clippedErr * clippedErr
		if math.Abs(pass.value-s.valueOld) < valueClipRange {
			dValue = 2 * clippedErr
		}
	}
	dValue *= vfCoef

	// Backprop into the heads.
	dHidden := make([]float64, n.hiddenDim)
	for k := 0; k < n.actions; k++ {
		if dLogits[k] == 0 {
			continue
		}
		row := n.wp.RawRowView(k)
		for j := 0; j < n.hiddenDim; j++ {
			g.wp[k*n.hiddenDim+j] += dLogits[k] * pass.hidden[j]
			dHidden[j] += dLogits[k] * row[j]
		}
		g.bp[k] += dLogits[k]
	}
	wvData := n.wv.RawVector().Data
	for j := 0; j < n.hiddenDim; j++ {
		g.wv[j] += dValue * pass.hidden[j]
		dHidden[j] += dValue * wvData[j]
	}
	g.bv += dValue

	// Shared hidden layer.
	for j := 0; j < n.hiddenDim; j++ {
		if pass.pre[j] <= 0 || dHidden[j] == 0 {
			continue
		}
		g.b1[j] += dHidden[j]
		base := j * n.obsDim
		for k := 0; k < n.obsDim; k++ {
			g.w1[base+k] += dHidden[j] * s.obs[k]
		}
	}

	return pgLoss + vfCoef*valueLoss - entCoef*entropy
}

func clippedRatio(ratio, clipRange float64) float64 {
	return 1 + clamp(ratio-1, clipRange)
}

func clamp(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

// ratioClipped reports whether the surrogate gradient is cut off: the ratio
// has left the trust region on the side the advantage is pushing toward.
func ratioClipped(ratio, advantage, clipRange float64) bool {
	if advantage > 0 {
		return ratio > 1+clipRange
	}
	if advantage < 0 {
		return ratio < 1-clipRange
	}
	return true
}

// apply performs one SGD step with global gradient-norm clipping, scaled by
// 1/batch so minibatch size does not change the effective learning rate.
func (n *Network) apply(g *gradients, batch int, learningRate, maxGradNorm float64) {
	scale := 1.0 / float64(batch)

	norm := 0.0
	for _, chunk := range [][]float64{g.w1, g.b1, g.wp, g.bp, g.wv} {
		for _, v := range chunk {
			norm += v * scale * v * scale
		}
	}
	norm += g.bv * scale * g.bv * scale
	norm = math.Sqrt(norm)
	if maxGradNorm > 0 && norm > maxGradNorm {
		scale *= maxGradNorm / norm
	}

	step := func(dst, grad []float64) {
		for i := range dst {
			dst[i] -= learningRate * scale * grad[i]
		}
	}
	step(n.w1.RawMatrix().Data, g.w1)
	step(n.b1.RawVector().Data, g.b1)
	step(n.wp.RawMatrix().Data, g.wp)
	step(n.bp.RawVector().Data, g.bp)
	step(n.wv.RawVector().Data, g.wv)
	n.bv -= learningRate * scale * g.bv
}
