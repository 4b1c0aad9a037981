package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Spec is an externally-defined nested design record. The core never assigns
// meaning to its keys beyond the object list used by edit actions.
type Spec map[string]any

// RevisionRecord is one rated snapshot in a spec's revision history.
// Rating is NaN when the upstream system recorded no rating for the revision.
type RevisionRecord struct {
	VersionedRecord
	SpecID   string    `json:"spec_id"`
	Snapshot Spec      `json:"snapshot"`
	Rating   float64   `json:"rating"`
	RatedAt  time.Time `json:"rated_at"`
}

type Preferred string

const (
	PreferredA Preferred = "A"
	PreferredB Preferred = "B"
)

// PreferencePair labels which of two spec snapshots a rater preferred.
// Preferred is always decidable; undecidable comparisons are filtered
// upstream and never reach this type.
type PreferencePair struct {
	Context   string    `json:"context"`
	SpecA     Spec      `json:"spec_a"`
	SpecB     Spec      `json:"spec_b"`
	Preferred Preferred `json:"preferred"`
}

// EditAction is one pre-declared atomic mutation: set Field to Value on the
// object identified by ObjectID. The catalog of actions is closed for the
// lifetime of an environment.
type EditAction struct {
	ObjectID string `json:"object_id"`
	Field    string `json:"field"`
	Value    any    `json:"value"`
}

type TrainingRun struct {
	VersionedRecord
	ID             string     `json:"id"`
	Kind           RunKind    `json:"kind"`
	CheckpointPath string     `json:"checkpoint_path"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     time.Time  `json:"finished_at"`
	Summary        RunSummary `json:"summary"`
}

// RunKind distinguishes reward-model fits from policy optimizations.
type RunKind string

const (
	RunKindReward RunKind = "reward"
	RunKindPolicy RunKind = "policy"
)

// RunSummary aggregates the per-step reward (policy runs) or per-pair loss
// (reward runs) history of a training run.
type RunSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P10    float64 `json:"p10"`
	P90    float64 `json:"p90"`
	Std    float64 `json:"std"`
}
