package damage

import (
	"errors"
	"math"
)

// FeatureScaler standardizes features using z-score normalization so every
// dimension contributes comparably to the distance metric. Without it the
// large-magnitude dimensions (intensity means around 100) drown out the
// small ones (edge density around 0.1).
type FeatureScaler struct {
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

// NewFeatureScalerFromSamples computes scaling parameters over a training
// set of raw feature vectors.
func NewFeatureScalerFromSamples(samples [][]float64) (*FeatureScaler, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples provided")
	}
	featureCount := len(samples[0])
	if featureCount == 0 {
		return nil, errors.New("samples have no features")
	}

	mean := make([]float64, featureCount)
	for _, sample := range samples {
		if len(sample) != featureCount {
			return nil, errors.New("inconsistent feature dimensions")
		}
		for i, val := range sample {
			mean[i] += val
		}
	}
	for i := range mean {
		mean[i] /= float64(len(samples))
	}

	stddev := make([]float64, featureCount)
	for _, sample := range samples {
		for i, val := range sample {
			diff := val - mean[i]
			stddev[i] += diff * diff
		}
	}
	for i := range stddev {
		stddev[i] = math.Sqrt(stddev[i] / float64(len(samples)))
		// Constant features would divide by zero otherwise.
		if stddev[i] < 1e-10 {
			stddev[i] = 1.0
		}
	}

	return &FeatureScaler{Mean: mean, Stddev: stddev}, nil
}

// Transform applies z-score standardization to one feature vector.
func (fs *FeatureScaler) Transform(features []float64) []float64 {
	if len(features) != len(fs.Mean) {
		return features
	}
	scaled := make([]float64, len(features))
	for i, val := range features {
		scaled[i] = (val - fs.Mean[i]) / fs.Stddev[i]
	}
	return scaled
}
