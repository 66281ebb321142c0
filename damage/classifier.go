package damage

// K-Nearest Prototype Classifier for Damage Assessment
//
// Each prototype is one labeled training image reduced to its feature
// vector. Prediction standardizes the incoming vector with the persisted
// scaler, ranks all prototypes by Euclidean distance, keeps the k nearest
// and aggregates inverse-distance weights per class. The probability of a
// class is its share of the total neighbor weight, so the probability
// vector sums to 1 by construction and the confidence is simply the
// winning class's probability.

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
)

// DefaultNeighbors is the k used when the caller does not override it.
const DefaultNeighbors = 5

// Damage class labels in canonical order. The probability vector of a
// Prediction is indexed by this order.
const (
	ClassNoDamage  = "no_damage"
	ClassMinor     = "minor_damage"
	ClassMajor     = "major_damage"
	ClassDestroyed = "destroyed"
)

// Classes lists the damage classes in canonical order.
var Classes = []string{ClassNoDamage, ClassMinor, ClassMajor, ClassDestroyed}

var classIndex = map[string]int{
	ClassNoDamage:  0,
	ClassMinor:     1,
	ClassMajor:     2,
	ClassDestroyed: 3,
}

// RiskForClass maps a damage class to its risk level.
func RiskForClass(label string) models.RiskLevel {
	switch label {
	case ClassDestroyed:
		return models.RiskCritical
	case ClassMajor:
		return models.RiskHigh
	case ClassMinor:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// classRiskScore is the numeric anchor used when blending the classifier
// verdict with the basic intensity score.
func classRiskScore(label string) float64 {
	switch label {
	case ClassDestroyed:
		return 9.5
	case ClassMajor:
		return 7.0
	case ClassMinor:
		return 4.0
	default:
		return 1.0
	}
}

// Prototype is one labeled training sample in feature space. Features are
// stored raw; scaling happens at prediction time.
type Prototype struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Features []float64 `json:"features"`
}

// Prediction is the classifier output for one feature vector.
type Prediction struct {
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
	AverageDist   float64   `json:"averageDistance"`
}

// Classifier performs k-nearest prototype lookups in the standardized
// feature space. Safe for concurrent use; the prototype set is immutable
// after construction.
type Classifier struct {
	mu         sync.RWMutex
	prototypes []Prototype
	scaled     [][]float64 // prototype features after standardization
	scaler     *FeatureScaler
	k          int
}

type distancePair struct {
	index    int
	distance float64
}

// NewClassifier builds a classifier over a prototype set. Every prototype
// must carry a known label and the full feature vector.
func NewClassifier(prototypes []Prototype, scaler *FeatureScaler, k int) (*Classifier, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid neighbour count: %d", k)
	}
	if len(prototypes) == 0 {
		return nil, errors.New("no prototypes provided")
	}
	if scaler == nil {
		return nil, errors.New("no feature scaler provided")
	}
	for _, proto := range prototypes {
		if len(proto.Features) != FeatureCount {
			return nil, fmt.Errorf("prototype %s has %d features, expected %d", proto.ID, len(proto.Features), FeatureCount)
		}
		if _, ok := classIndex[proto.Label]; !ok {
			return nil, fmt.Errorf("prototype %s has unknown label %q", proto.ID, proto.Label)
		}
	}
	if k > len(prototypes) {
		k = len(prototypes)
	}

	// Standardize the prototype set once up front so prediction only has
	// to transform the incoming vector.
	scaled := make([][]float64, len(prototypes))
	for i := range prototypes {
		scaled[i] = scaler.Transform(prototypes[i].Features)
	}
	return &Classifier{prototypes: prototypes, scaled: scaled, scaler: scaler, k: k}, nil
}

func (c *Classifier) snapshot() (int, []Prototype, [][]float64, *FeatureScaler) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	prototypes := make([]Prototype, len(c.prototypes))
	copy(prototypes, c.prototypes)
	return c.k, prototypes, c.scaled, c.scaler
}

// Prototypes returns a copy of the raw prototype set for persistence.
func (c *Classifier) Prototypes() []Prototype {
	_, prototypes, _, _ := c.snapshot()
	return prototypes
}

// Scaler returns the feature scaler the classifier was built with.
func (c *Classifier) Scaler() *FeatureScaler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scaler
}

// PrototypeCount reports the size of the prototype set.
func (c *Classifier) PrototypeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prototypes)
}

// Predict classifies one raw feature vector. The returned probability
// vector is indexed by Classes and sums to 1.
func (c *Classifier) Predict(features []float64) (Prediction, error) {
	if len(features) != FeatureCount {
		return Prediction{}, fmt.Errorf("feature vector has %d entries, expected %d", len(features), FeatureCount)
	}

	k, prototypes, protoScaled, scaler := c.snapshot()
	scaled := scaler.Transform(features)

	distances := make([]distancePair, len(prototypes))
	for i := range prototypes {
		distances[i] = distancePair{index: i, distance: euclidean(scaled, protoScaled[i])}
	}
	sort.Slice(distances, func(i, j int) bool {
		return distances[i].distance < distances[j].distance
	})

	weights := make([]float64, len(Classes))
	var totalWeight, distSum float64
	for idx := 0; idx < len(distances) && idx < k; idx++ {
		neighbor := distances[idx]
		weight := 1.0 / (neighbor.distance + 1e-9)
		weights[classIndex[prototypes[neighbor.index].Label]] += weight
		totalWeight += weight
		distSum += neighbor.distance
	}
	if totalWeight == 0 {
		return Prediction{}, errors.New("no usable neighbors")
	}

	probs := make([]float64, len(Classes))
	best := 0
	for i, w := range weights {
		probs[i] = w / totalWeight
		if probs[i] > probs[best] {
			best = i
		}
	}

	return Prediction{
		Label:         Classes[best],
		Confidence:    probs[best],
		Probabilities: probs,
		AverageDist:   distSum / float64(min(k, len(distances))),
	}, nil
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
