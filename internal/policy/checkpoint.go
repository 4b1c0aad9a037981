package policy

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

var ErrVersionMismatch = errors.New("policy checkpoint version mismatch")

type checkpoint struct {
	model.VersionedRecord
	ObsDim    int       `json:"obs_dim"`
	HiddenDim int       `json:"hidden_dim"`
	Actions   int       `json:"actions"`
	W1        []float64 `json:"w1"`
	B1        []float64 `json:"b1"`
	WP        []float64 `json:"wp"`
	BP        []float64 `json:"bp"`
	WV        []float64 `json:"wv"`
	BV        float64   `json:"bv"`
}

// Save writes the policy parameters to path. The file is the externally
// visible artifact of a policy training run.
func (n *Network) Save(path string) error {
	if n == nil {
		return errors.New("policy network is required")
	}
	ckpt := checkpoint{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: checkpointSchemaVersion,
			CodecVersion:  checkpointCodecVersion,
		},
		ObsDim:    n.obsDim,
		HiddenDim: n.hiddenDim,
		Actions:   n.actions,
		W1:        append([]float64(nil), n.w1.RawMatrix().Data...),
		B1:        append([]float64(nil), n.b1.RawVector().Data...),
		WP:        append([]float64(nil), n.wp.RawMatrix().Data...),
		BP:        append([]float64(nil), n.bp.RawVector().Data...),
		WV:        append([]float64(nil), n.wv.RawVector().Data...),
		BV:        n.bv,
	}
	payload, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("encode policy checkpoint: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write policy checkpoint: %w", err)
	}
	return nil
}

// Load reads a policy checkpoint into a fresh network.
func Load(path string) (*Network, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy checkpoint: %w", err)
	}
	var ckpt checkpoint
	if err := json.Unmarshal(payload, &ckpt); err != nil {
		return nil, fmt.Errorf("decode policy checkpoint: %w", err)
	}
	if ckpt.SchemaVersion != checkpointSchemaVersion || ckpt.CodecVersion != checkpointCodecVersion {
		return nil, ErrVersionMismatch
	}
	if ckpt.ObsDim <= 0 || ckpt.HiddenDim <= 0 || ckpt.Actions <= 0 ||
		len(ckpt.W1) != ckpt.HiddenDim*ckpt.ObsDim ||
		len(ckpt.B1) != ckpt.HiddenDim ||
		len(ckpt.WP) != ckpt.Actions*ckpt.HiddenDim ||
		len(ckpt.BP) != ckpt.Actions ||
		len(ckpt.WV) != ckpt.HiddenDim {
		return nil, fmt.Errorf("policy checkpoint %s has inconsistent parameter shapes", path)
	}

	return &Network{
		obsDim:    ckpt.ObsDim,
		hiddenDim: ckpt.HiddenDim,
		actions:   ckpt.Actions,
		w1:        mat.NewDense(ckpt.HiddenDim, ckpt.ObsDim, append([]float64(nil), ckpt.W1...)),
		b1:        mat.NewVecDense(ckpt.HiddenDim, append([]float64(nil), ckpt.B1...)),
		wp:        mat.NewDense(ckpt.Actions, ckpt.HiddenDim, append([]float64(nil), ckpt.WP...)),
		bp:        mat.NewVecDense(ckpt.Actions, append([]float64(nil), ckpt.BP...)),
		wv:        mat.NewVecDense(ckpt.HiddenDim, append([]float64(nil), ckpt.WV...)),
		bv:        ckpt.BV,
	}, nil
}
