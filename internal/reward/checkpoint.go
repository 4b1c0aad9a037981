package reward

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"specforge/internal/model"
)

const (
	checkpointSchemaVersion = 1
	checkpointCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("reward checkpoint version mismatch")

// checkpoint is the serialized parameter blob. The byte format is an
// implementation detail; only Save/Load round-trip fidelity is contractual.
type checkpoint struct {
	model.VersionedRecord
	Config    Config    `json:"config"`
	Embedding []float64 `json:"embedding"`
	W1        []float64 `json:"w1"`
	B1        []float64 `json:"b1"`
	W2        []float64 `json:"w2"`
	B2        float64   `json:"b2"`
}

// Save writes the full parameter set to path. A reloaded model scores any
// probe identically to the saved one.
func (m *Model) Save(path string) error {
	ckpt := checkpoint{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: checkpointSchemaVersion,
			CodecVersion:  checkpointCodecVersion,
		},
		Config:    m.cfg,
		Embedding: append([]float64(nil), m.embed.RawMatrix().Data...),
		W1:        append([]float64(nil), m.w1.RawMatrix().Data...),
		B1:        append([]float64(nil), m.b1.RawVector().Data...),
		W2:        append([]float64(nil), m.w2.RawVector().Data...),
		B2:        m.b2,
	}
	payload, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("encode reward checkpoint: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write reward checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint into a fresh model instance. Missing or corrupt
// files are reported as errors; callers that need a scoring model must treat
// that as fatal rather than scoring without one.
func Load(path string) (*Model, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reward checkpoint: %w", err)
	}
	var ckpt checkpoint
	if err := json.Unmarshal(payload, &ckpt); err != nil {
		return nil, fmt.Errorf("decode reward checkpoint: %w", err)
	}
	if ckpt.SchemaVersion != checkpointSchemaVersion || ckpt.CodecVersion != checkpointCodecVersion {
		return nil, ErrVersionMismatch
	}

	cfg := ckpt.Config.normalized()
	if len(ckpt.Embedding) != cfg.VocabSize*cfg.EmbeddingDim ||
		len(ckpt.W1) != cfg.HiddenDim*cfg.EmbeddingDim ||
		len(ckpt.B1) != cfg.HiddenDim ||
		len(ckpt.W2) != cfg.HiddenDim {
		return nil, fmt.Errorf("reward checkpoint %s has inconsistent parameter shapes", path)
	}

	m := New(cfg, 0)
	m.embed = mat.NewDense(cfg.VocabSize, cfg.EmbeddingDim, append([]float64(nil), ckpt.Embedding...))
	m.w1 = mat.NewDense(cfg.HiddenDim, cfg.EmbeddingDim, append([]float64(nil), ckpt.W1...))
	m.b1 = mat.NewVecDense(cfg.HiddenDim, append([]float64(nil), ckpt.B1...))
	m.w2 = mat.NewVecDense(cfg.HiddenDim, append([]float64(nil), ckpt.W2...))
	m.b2 = ckpt.B2
	return m, nil
}
