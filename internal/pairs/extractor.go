// Package pairs mines rated spec-revision history into labeled preference
// pairs for reward-model training.
package pairs

import (
	"math"

	"specforge/internal/model"
)

// Extract walks a chronologically ordered revision history and emits one pair
// per rated snapshot that has a strictly earlier rating for the same spec
// lineage and a rating delta of at least minDelta. SpecA is always the earlier
// snapshot, SpecB the later one, so an improvement labels B and a regression
// labels A. Deltas inside minDelta carry no confident ordering and are
// filtered out rather than labeled arbitrarily.
//
// Malformed rows (missing id, snapshot, rating, or timestamp) are skipped
// individually; extraction never fails on a single bad record.
func Extract(history []model.RevisionRecord, minDelta float64) []model.PreferencePair {
	if minDelta < 0 {
		minDelta = 0
	}

	out := make([]model.PreferencePair, 0, len(history))
	latest := make(map[string]model.RevisionRecord)

	for _, rec := range history {
		if !wellFormed(rec) {
			continue
		}

		prior, seen := latest[rec.SpecID]
		if seen && rec.RatedAt.After(prior.RatedAt) {
			delta := rec.Rating - prior.Rating
			if math.Abs(delta) >= minDelta && delta != 0 {
				preferred := model.PreferredB
				if delta < 0 {
					preferred = model.PreferredA
				}
				out = append(out, model.PreferencePair{
					SpecA:     prior.Snapshot,
					SpecB:     rec.Snapshot,
					Preferred: preferred,
				})
			}
		}

		if !seen || !rec.RatedAt.Before(prior.RatedAt) {
			latest[rec.SpecID] = rec
		}
	}

	return out
}

func wellFormed(rec model.RevisionRecord) bool {
	if rec.SpecID == "" || rec.Snapshot == nil {
		return false
	}
	if math.IsNaN(rec.Rating) {
		return false
	}
	return !rec.RatedAt.IsZero()
}
