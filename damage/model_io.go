package damage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// The three model artifacts written under the model directory.
const (
	classifierFile = "classifier.json"
	scalerFile     = "scaler.json"
	metadataFile   = "metadata.json"
)

// ErrModelMissing is returned by LoadModel when no persisted model exists
// at the given directory. Callers treat it as "run without the classifier",
// not as a failure.
var ErrModelMissing = errors.New("damage model not found")

type classifierArtifact struct {
	K          int         `json:"k"`
	Prototypes []Prototype `json:"prototypes"`
}

// SaveModel persists the classifier, scaler and metadata as three artifacts
// under dir. Each file is written to a temporary path and renamed so a
// crash never leaves a half-written artifact.
func SaveModel(dir string, model *Model) error {
	if model == nil || model.Classifier == nil {
		return errors.New("no model to save")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	artifact := classifierArtifact{
		K:          model.Classifier.k,
		Prototypes: model.Classifier.Prototypes(),
	}
	if err := writeJSONAtomic(filepath.Join(dir, classifierFile), artifact); err != nil {
		return fmt.Errorf("write classifier: %w", err)
	}
	if err := writeJSONAtomic(filepath.Join(dir, scalerFile), model.Classifier.Scaler()); err != nil {
		return fmt.Errorf("write scaler: %w", err)
	}
	if err := writeJSONAtomic(filepath.Join(dir, metadataFile), model.Metadata); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// LoadModel reads the three artifacts back into a usable model. A missing
// classifier artifact yields ErrModelMissing; malformed artifacts are hard
// errors.
func LoadModel(dir string) (*Model, error) {
	data, err := os.ReadFile(filepath.Join(dir, classifierFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelMissing, dir)
		}
		return nil, fmt.Errorf("read classifier: %w", err)
	}
	var artifact classifierArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse classifier: %w", err)
	}

	data, err = os.ReadFile(filepath.Join(dir, scalerFile))
	if err != nil {
		return nil, fmt.Errorf("read scaler: %w", err)
	}
	var scaler FeatureScaler
	if err := json.Unmarshal(data, &scaler); err != nil {
		return nil, fmt.Errorf("parse scaler: %w", err)
	}

	var meta Metadata
	data, err = os.ReadFile(filepath.Join(dir, metadataFile))
	if err == nil {
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	if meta.FeatureCount != 0 && meta.FeatureCount != FeatureCount {
		return nil, fmt.Errorf("model was trained with %d features, this build extracts %d", meta.FeatureCount, FeatureCount)
	}

	classifier, err := NewClassifier(artifact.Prototypes, &scaler, artifact.K)
	if err != nil {
		return nil, fmt.Errorf("rebuild classifier: %w", err)
	}
	return &Model{Classifier: classifier, Metadata: meta}, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
