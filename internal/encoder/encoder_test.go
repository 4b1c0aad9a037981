package encoder

import (
	"strings"
	"testing"

	"specforge/internal/model"
)

func sampleSpec() model.Spec {
	return model.Spec{
		"title": "studio refit",
		"objects": []any{
			map[string]any{"id": "floor_1", "type": "floor", "material": "oak", "color": "natural"},
			map[string]any{"id": "wall_1", "type": "wall", "material": "plaster", "color": "white"},
		},
		"budget": 12000.0,
	}
}

func TestObservationIsDeterministic(t *testing.T) {
	enc := Encoder{}
	spec := sampleSpec()

	first, err := enc.Observation("warm tones", spec)
	if err != nil {
		t.Fatalf("observation: %v", err)
	}
	second, err := enc.Observation("warm tones", spec)
	if err != nil {
		t.Fatalf("observation: %v", err)
	}
	if len(first) != DefaultObservationDim {
		t.Fatalf("expected %d components, got %d", DefaultObservationDim, len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("component %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestObservationIgnoresKeyInsertionOrder(t *testing.T) {
	enc := Encoder{}
	a := model.Spec{
		"objects": []any{map[string]any{"id": "floor_1", "material": "oak", "type": "floor"}},
		"budget":  100.0,
	}
	b := model.Spec{
		"budget":  100.0,
		"objects": []any{map[string]any{"type": "floor", "id": "floor_1", "material": "oak"}},
	}

	obsA, err := enc.Observation("", a)
	if err != nil {
		t.Fatalf("observation a: %v", err)
	}
	obsB, err := enc.Observation("", b)
	if err != nil {
		t.Fatalf("observation b: %v", err)
	}
	for i := range obsA {
		if obsA[i] != obsB[i] {
			t.Fatalf("key order changed component %d", i)
		}
	}
}

func TestTokenIDsStayInVocabRange(t *testing.T) {
	enc := Encoder{VocabSize: 64}
	ids, err := enc.TokenIDs("brighter lighting in the kitchen area", sampleSpec())
	if err != nil {
		t.Fatalf("token ids: %v", err)
	}
	for _, id := range ids {
		if id < 0 || id >= 64 {
			t.Fatalf("token id %d outside [0, 64)", id)
		}
	}
	// A 64-entry vocabulary guarantees collisions on realistic input. That is
	// tolerated, not fixed: collided tokens share an embedding row.
}

func TestTokenIDsTruncateSilently(t *testing.T) {
	enc := Encoder{MaxTokens: 8}
	long := strings.Repeat("token ", 100)
	ids, err := enc.TokenIDs(long, sampleSpec())
	if err != nil {
		t.Fatalf("token ids: %v", err)
	}
	if len(ids) != 8 {
		t.Fatalf("expected truncation to 8 tokens, got %d", len(ids))
	}
}

func TestNilSpecStillEncodes(t *testing.T) {
	enc := Encoder{}
	ids, err := enc.TokenIDs("", nil)
	if err != nil {
		t.Fatalf("token ids: %v", err)
	}
	if len(ids) == 0 {
		t.Fatal("expected at least one token id for empty input")
	}
}

func TestCanonicalSortsKeys(t *testing.T) {
	text, err := Canonical(model.Spec{"zeta": 1.0, "alpha": 2.0})
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if strings.Index(text, "alpha") > strings.Index(text, "zeta") {
		t.Fatalf("expected sorted keys, got %s", text)
	}
}
