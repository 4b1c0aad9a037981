package storage

import (
	"encoding/json"
	"errors"

	"specforge/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeSpec(s model.Spec) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSpec(data []byte) (model.Spec, error) {
	var spec model.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func EncodeRevision(rec model.RevisionRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func DecodeRevision(data []byte) (model.RevisionRecord, error) {
	var rec model.RevisionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.RevisionRecord{}, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return model.RevisionRecord{}, err
	}
	return rec, nil
}

func EncodeTrainingRun(run model.TrainingRun) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeTrainingRun(data []byte) (model.TrainingRun, error) {
	var run model.TrainingRun
	if err := json.Unmarshal(data, &run); err != nil {
		return model.TrainingRun{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.TrainingRun{}, err
	}
	return run, nil
}

func EncodeRewardHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeRewardHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// Stamp fills in the current schema and codec versions on a record about to
// be persisted.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
