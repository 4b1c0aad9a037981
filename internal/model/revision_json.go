package model

import (
	"encoding/json"
	"math"
	"time"
)

// revisionJSON maps the in-memory NaN-means-unrated convention onto an
// optional JSON field, since JSON has no NaN literal.
type revisionJSON struct {
	SchemaVersion int       `json:"schema_version"`
	CodecVersion  int       `json:"codec_version"`
	SpecID        string    `json:"spec_id"`
	Snapshot      Spec      `json:"snapshot"`
	Rating        *float64  `json:"rating,omitempty"`
	RatedAt       time.Time `json:"rated_at"`
}

func (r RevisionRecord) MarshalJSON() ([]byte, error) {
	out := revisionJSON{
		SchemaVersion: r.SchemaVersion,
		CodecVersion:  r.CodecVersion,
		SpecID:        r.SpecID,
		Snapshot:      r.Snapshot,
		RatedAt:       r.RatedAt,
	}
	if !math.IsNaN(r.Rating) {
		rating := r.Rating
		out.Rating = &rating
	}
	return json.Marshal(out)
}

func (r *RevisionRecord) UnmarshalJSON(data []byte) error {
	var in revisionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.SchemaVersion = in.SchemaVersion
	r.CodecVersion = in.CodecVersion
	r.SpecID = in.SpecID
	r.Snapshot = in.Snapshot
	r.RatedAt = in.RatedAt
	if in.Rating != nil {
		r.Rating = *in.Rating
	} else {
		r.Rating = math.NaN()
	}
	return nil
}
