// Package reward implements the learned desirability scorer over design
// specs, trained from preference pairs with a margin ranking loss.
package reward

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"specforge/internal/encoder"
	"specforge/internal/model"
)

const (
	DefaultEmbeddingDim = 64
	DefaultHiddenDim    = 768

	// initScale keeps fresh weights small so untrained scores stay near
	// zero. Cold-start scores are uninformative by design; only training
	// gives the ordering meaning.
	initScale = 0.05
)

type Config struct {
	VocabSize    int `json:"vocab_size"`
	MaxTokens    int `json:"max_tokens"`
	EmbeddingDim int `json:"embedding_dim"`
	HiddenDim    int `json:"hidden_dim"`
}

func (c Config) normalized() Config {
	if c.VocabSize <= 0 {
		c.VocabSize = encoder.DefaultVocabSize
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = encoder.DefaultMaxTokens
	}
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = DefaultEmbeddingDim
	}
	if c.HiddenDim <= 0 {
		c.HiddenDim = DefaultHiddenDim
	}
	return c
}

// Model scores a (context, spec) pair: token embeddings are mean-pooled,
// passed through one ReLU hidden layer, then projected to a scalar. The score
// is an unbounded real; only the ordering between two scores is meaningful.
type Model struct {
	cfg Config
	enc encoder.Encoder

	embed *mat.Dense    // VocabSize x EmbeddingDim
	w1    *mat.Dense    // HiddenDim x EmbeddingDim
	b1    *mat.VecDense // HiddenDim
	w2    *mat.VecDense // HiddenDim
	b2    float64
}

// New returns a freshly initialized model seeded by an explicit seed, so
// independent instances can be constructed deterministically. There is no
// shared or process-wide parameter state.
func New(cfg Config, seed int64) *Model {
	cfg = cfg.normalized()
	rng := rand.New(rand.NewSource(seed))

	m := &Model{
		cfg: cfg,
		enc: encoder.Encoder{VocabSize: cfg.VocabSize, MaxTokens: cfg.MaxTokens},

		embed: mat.NewDense(cfg.VocabSize, cfg.EmbeddingDim, nil),
		w1:    mat.NewDense(cfg.HiddenDim, cfg.EmbeddingDim, nil),
		b1:    mat.NewVecDense(cfg.HiddenDim, nil),
		w2:    mat.NewVecDense(cfg.HiddenDim, nil),
	}

	fillUniform(m.embed.RawMatrix().Data, rng)
	fillUniform(m.w1.RawMatrix().Data, rng)
	fillUniform(m.w2.RawVector().Data, rng)
	// Biases start at zero.
	return m
}

func fillUniform(dst []float64, rng *rand.Rand) {
	for i := range dst {
		dst[i] = (rng.Float64()*2 - 1) * initScale
	}
}

func (m *Model) Config() Config {
	return m.cfg
}

// Score computes the learned desirability of a spec under an optional context.
func (m *Model) Score(context string, spec model.Spec) (float64, error) {
	pass, err := m.forward(context, spec)
	if err != nil {
		return 0, err
	}
	return pass.score, nil
}

// forwardPass caches intermediates for one scoring so a training step can
// backpropagate without recomputing the network.
type forwardPass struct {
	ids    []int
	pooled *mat.VecDense // EmbeddingDim, mean of token embeddings
	pre    *mat.VecDense // HiddenDim, pre-activation
	hidden *mat.VecDense // HiddenDim, post-ReLU
	score  float64
}

func (m *Model) forward(context string, spec model.Spec) (forwardPass, error) {
	ids, err := m.enc.TokenIDs(context, spec)
	if err != nil {
		return forwardPass{}, fmt.Errorf("encode spec: %w", err)
	}

	pooled := mat.NewVecDense(m.cfg.EmbeddingDim, nil)
	data := pooled.RawVector().Data
	for _, id := range ids {
		row := m.embed.RawRowView(id)
		for k := range data {
			data[k] += row[k]
		}
	}
	inv := 1.0 / float64(len(ids))
	for k := range data {
		data[k] *= inv
	}

	pre := mat.NewVecDense(m.cfg.HiddenDim, nil)
	pre.MulVec(m.w1, pooled)
	pre.AddVec(pre, m.b1)

	hidden := mat.NewVecDense(m.cfg.HiddenDim, nil)
	preData := pre.RawVector().Data
	hiddenData := hidden.RawVector().Data
	for j, v := range preData {
		if v > 0 {
			hiddenData[j] = v
		}
	}

	return forwardPass{
		ids:    ids,
		pooled: pooled,
		pre:    pre,
		hidden: hidden,
		score:  mat.Dot(m.w2, hidden) + m.b2,
	}, nil
}
