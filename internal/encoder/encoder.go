package encoder

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"specforge/internal/model"
)

const (
	DefaultVocabSize      = 8192
	DefaultMaxTokens      = 512
	DefaultObservationDim = 512

	// sentinelToken stands in when context+spec tokenize to nothing, so an
	// encoding is never empty.
	sentinelToken = "<empty>"

	// obsModulus folds token ids into [0, 1) observation components.
	obsModulus = 997
)

// Encoder maps (context, spec) to token ids and to fixed-length observation
// vectors. It is a pure value: the same input always yields the same output,
// and both output forms derive from the same token-id sequence.
type Encoder struct {
	VocabSize      int
	MaxTokens      int
	ObservationDim int
}

func (e Encoder) normalized() Encoder {
	if e.VocabSize <= 0 {
		e.VocabSize = DefaultVocabSize
	}
	if e.MaxTokens <= 0 {
		e.MaxTokens = DefaultMaxTokens
	}
	if e.ObservationDim <= 0 {
		e.ObservationDim = DefaultObservationDim
	}
	return e
}

// Canonical renders a spec as deterministic key-sorted JSON, so structurally
// identical specs produce identical text regardless of key insertion order.
func Canonical(spec model.Spec) (string, error) {
	data, err := json.Marshal(map[string]any(spec))
	if err != nil {
		return "", fmt.Errorf("canonicalize spec: %w", err)
	}
	return string(data), nil
}

// TokenIDs tokenizes context plus the canonical spec text by whitespace,
// truncates to MaxTokens, and hashes each token into [0, VocabSize) with
// FNV-1a. Truncation is silent: overlong inputs lose their tail. Hash
// collisions across distinct tokens are an accepted approximation.
func (e Encoder) TokenIDs(context string, spec model.Spec) ([]int, error) {
	e = e.normalized()

	canonical, err := Canonical(spec)
	if err != nil {
		return nil, err
	}
	text := canonical
	if context != "" {
		text = context + " " + canonical
	}

	tokens := strings.Fields(text)
	if len(tokens) > e.MaxTokens {
		tokens = tokens[:e.MaxTokens]
	}
	if len(tokens) == 0 {
		tokens = []string{sentinelToken}
	}

	ids := make([]int, len(tokens))
	for i, token := range tokens {
		ids[i] = hashToken(token, e.VocabSize)
	}
	return ids, nil
}

// Observation produces the fixed-length float vector consumed as environment
// state: position i carries (id_i mod 997)/997, the remainder is zero-padded.
func (e Encoder) Observation(context string, spec model.Spec) ([]float64, error) {
	e = e.normalized()

	ids, err := e.TokenIDs(context, spec)
	if err != nil {
		return nil, err
	}

	obs := make([]float64, e.ObservationDim)
	for i := 0; i < len(ids) && i < e.ObservationDim; i++ {
		obs[i] = float64(ids[i]%obsModulus) / obsModulus
	}
	return obs, nil
}

func hashToken(token string, vocabSize int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum64() % uint64(vocabSize))
}
