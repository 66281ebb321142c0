package damage

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/rand"
	"time"

	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
)

// Sample is one training input: an image plus its damage label. An empty
// label asks the trainer to derive one heuristically, so training never
// blocks on missing ground truth.
type Sample struct {
	ID    string
	Image image.Image
	Label string
}

// ClassReport carries per-class validation results.
type ClassReport struct {
	Support int     `json:"support"`
	Correct int     `json:"correct"`
	Recall  float64 `json:"recall"`
}

// Metadata describes a trained model: overall and per-class validation
// accuracy, the class distribution of the training set and the training
// timestamp. Persisted alongside the classifier and scaler artifacts.
type Metadata struct {
	FeatureCount      int                    `json:"featureCount"`
	Classes           []string               `json:"classes"`
	Samples           int                    `json:"samples"`
	HeuristicLabels   int                    `json:"heuristicLabels"`
	ClassDistribution map[string]int         `json:"classDistribution"`
	Accuracy          float64                `json:"accuracy"`
	PerClass          map[string]ClassReport `json:"perClass"`
	TrainedAt         time.Time              `json:"trainedAt"`
}

// Model bundles the trained classifier with its metadata.
type Model struct {
	Classifier *Classifier
	Metadata   Metadata
}

type trainConfig struct {
	neighbors     int
	validationFrc float64
	seed          int64
}

// TrainOption customizes a training run.
type TrainOption func(*trainConfig)

// WithNeighbors overrides the classifier's k.
func WithNeighbors(k int) TrainOption {
	return func(c *trainConfig) { c.neighbors = k }
}

// WithValidationFraction sets the held-out share used for evaluation.
func WithValidationFraction(f float64) TrainOption {
	return func(c *trainConfig) { c.validationFrc = f }
}

// WithSeed fixes the shuffle seed for reproducible splits.
func WithSeed(seed int64) TrainOption {
	return func(c *trainConfig) { c.seed = seed }
}

// HeuristicLabel derives a damage label from a raw feature vector when no
// ground truth is available. Dark, low-variance frames with few edges read
// as destroyed; busy high-frequency texture as major damage; moderate
// texture as minor.
func HeuristicLabel(features []float64) string {
	intensity := features[idxIntensityMean]
	variance := features[idxIntensityStd]
	edges := features[idxEdgeDensity]
	lapVar := features[idxLapVariance]

	switch {
	case intensity < 70 && variance < 35 && edges < 0.08:
		return ClassDestroyed
	case edges > 0.20 && lapVar > 800:
		return ClassMajor
	case edges > 0.12 || lapVar > 400:
		return ClassMinor
	default:
		return ClassNoDamage
	}
}

// Train extracts features from every sample, splits into train and
// validation sets, fits the scaler on the training half and evaluates the
// resulting classifier on the held-out half.
func Train(samples []Sample, opts ...TrainOption) (*Model, error) {
	cfg := trainConfig{neighbors: DefaultNeighbors, validationFrc: 0.2, seed: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(samples) < 2 {
		return nil, errors.New("need at least two samples to train")
	}

	logger := utils.GetLogger()

	prototypes := make([]Prototype, 0, len(samples))
	distribution := make(map[string]int)
	heuristic := 0
	for i, sample := range samples {
		if sample.Image == nil {
			return nil, fmt.Errorf("sample %d has no image", i)
		}
		features := ExtractFeatures(sample.Image)

		label := sample.Label
		if label == "" {
			label = HeuristicLabel(features)
			heuristic++
		}
		if _, ok := classIndex[label]; !ok {
			return nil, fmt.Errorf("sample %d has unknown label %q", i, label)
		}

		id := sample.ID
		if id == "" {
			id = fmt.Sprintf("sample-%d", i)
		}
		prototypes = append(prototypes, Prototype{ID: id, Label: label, Features: features})
		distribution[label]++
	}

	rng := rand.New(rand.NewSource(cfg.seed))
	rng.Shuffle(len(prototypes), func(i, j int) {
		prototypes[i], prototypes[j] = prototypes[j], prototypes[i]
	})

	valCount := int(float64(len(prototypes)) * cfg.validationFrc)
	if valCount >= len(prototypes) {
		valCount = len(prototypes) - 1
	}
	trainSet := prototypes[valCount:]
	valSet := prototypes[:valCount]

	trainFeatures := make([][]float64, len(trainSet))
	for i := range trainSet {
		trainFeatures[i] = trainSet[i].Features
	}
	scaler, err := NewFeatureScalerFromSamples(trainFeatures)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}

	classifier, err := NewClassifier(trainSet, scaler, cfg.neighbors)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	accuracy, perClass := evaluate(classifier, valSet)

	meta := Metadata{
		FeatureCount:      FeatureCount,
		Classes:           append([]string(nil), Classes...),
		Samples:           len(samples),
		HeuristicLabels:   heuristic,
		ClassDistribution: distribution,
		Accuracy:          accuracy,
		PerClass:          perClass,
		TrainedAt:         time.Now().UTC(),
	}

	logger.Info("damage model trained",
		slog.Int("samples", len(samples)),
		slog.Int("prototypes", len(trainSet)),
		slog.Int("validation", len(valSet)),
		slog.Int("heuristic_labels", heuristic),
		slog.Float64("accuracy", accuracy))

	return &Model{Classifier: classifier, Metadata: meta}, nil
}

// evaluate scores the classifier over a held-out set. An empty validation
// set yields accuracy 0 with an empty report rather than an error.
func evaluate(classifier *Classifier, valSet []Prototype) (float64, map[string]ClassReport) {
	perClass := make(map[string]ClassReport)
	if len(valSet) == 0 {
		return 0, perClass
	}

	correct := 0
	for _, proto := range valSet {
		report := perClass[proto.Label]
		report.Support++

		pred, err := classifier.Predict(proto.Features)
		if err == nil && pred.Label == proto.Label {
			correct++
			report.Correct++
		}
		perClass[proto.Label] = report
	}

	for label, report := range perClass {
		if report.Support > 0 {
			report.Recall = float64(report.Correct) / float64(report.Support)
		}
		perClass[label] = report
	}
	return float64(correct) / float64(len(valSet)), perClass
}
