package damage

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
)

func flatFrame(w, h int, level uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: level, G: level, B: level, A: 255})
		}
	}
	return img
}

func noiseFrame(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(rng.Intn(256))
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func dottedFrame(w, h, spacing int) *image.RGBA {
	img := flatFrame(w, h, 140)
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for y := spacing / 2; y < h; y += spacing {
		for x := spacing / 2; x < w; x += spacing {
			img.SetRGBA(x, y, white)
			img.SetRGBA(x+1, y, white)
		}
	}
	return img
}

// trainingSet builds a labeled set with clearly separated classes.
func trainingSet() []Sample {
	var samples []Sample
	for i := 0; i < 10; i++ {
		samples = append(samples,
			Sample{Image: flatFrame(64, 64, uint8(180+4*i)), Label: ClassNoDamage},
			Sample{Image: flatFrame(64, 64, uint8(20+3*i)), Label: ClassDestroyed},
			Sample{Image: noiseFrame(64, 64, int64(i+1)), Label: ClassMajor},
			Sample{Image: dottedFrame(64, 64, 6+i%3), Label: ClassMinor},
		)
	}
	return samples
}

func TestExtractFeatures(t *testing.T) {
	t.Parallel()

	t.Run("constant length across input sizes", func(t *testing.T) {
		t.Parallel()
		for _, size := range []int{16, 100, 333, 1024} {
			features := ExtractFeatures(noiseFrame(size, size/2+1, 1))
			assert.Len(t, features, FeatureCount, "size %d", size)
		}
	})

	t.Run("histogram bins sum to one", func(t *testing.T) {
		t.Parallel()
		features := ExtractFeatures(noiseFrame(64, 64, 2))
		sum := 0.0
		for i := 0; i < 8; i++ {
			sum += features[idxHistogram+i]
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	})

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		a := ExtractFeatures(noiseFrame(80, 60, 5))
		b := ExtractFeatures(noiseFrame(80, 60, 5))
		assert.Equal(t, a, b)
	})
}

func TestFeatureScaler(t *testing.T) {
	t.Parallel()

	t.Run("standardizes training dimensions", func(t *testing.T) {
		t.Parallel()
		samples := [][]float64{{1, 10}, {2, 20}, {3, 30}}
		scaler, err := NewFeatureScalerFromSamples(samples)
		require.NoError(t, err)

		scaled := scaler.Transform([]float64{2, 20})
		assert.InDelta(t, 0, scaled[0], 1e-9)
		assert.InDelta(t, 0, scaled[1], 1e-9)
	})

	t.Run("constant dimension does not divide by zero", func(t *testing.T) {
		t.Parallel()
		scaler, err := NewFeatureScalerFromSamples([][]float64{{5, 1}, {5, 2}})
		require.NoError(t, err)
		scaled := scaler.Transform([]float64{7, 1.5})
		assert.False(t, math.IsNaN(scaled[0]))
		assert.False(t, math.IsInf(scaled[0], 0))
	})

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()
		_, err := NewFeatureScalerFromSamples(nil)
		assert.Error(t, err)
	})
}

func TestHeuristicLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		image image.Image
		want  string
	}{
		{"dark flat frame reads destroyed", flatFrame(64, 64, 30), ClassDestroyed},
		{"noise frame reads major damage", noiseFrame(64, 64, 3), ClassMajor},
		{"bright flat frame reads no damage", flatFrame(64, 64, 200), ClassNoDamage},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, HeuristicLabel(ExtractFeatures(tc.image)))
		})
	}
}

func TestTrainAndPredict(t *testing.T) {
	t.Parallel()

	model, err := Train(trainingSet(), WithSeed(42))
	require.NoError(t, err)
	require.NotNil(t, model.Classifier)

	t.Run("metadata describes the run", func(t *testing.T) {
		assert.Equal(t, FeatureCount, model.Metadata.FeatureCount)
		assert.Equal(t, 40, model.Metadata.Samples)
		assert.Equal(t, Classes, model.Metadata.Classes)
		assert.Zero(t, model.Metadata.HeuristicLabels)
		assert.False(t, model.Metadata.TrainedAt.IsZero())
		for _, label := range Classes {
			assert.Equal(t, 10, model.Metadata.ClassDistribution[label])
		}
	})

	t.Run("probability vector sums to one and confidence is its max", func(t *testing.T) {
		pred, err := model.Classifier.Predict(ExtractFeatures(flatFrame(64, 64, 35)))
		require.NoError(t, err)
		require.Len(t, pred.Probabilities, len(Classes))

		sum, maxProb := 0.0, 0.0
		for _, p := range pred.Probabilities {
			sum += p
			maxProb = math.Max(maxProb, p)
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
		assert.InDelta(t, maxProb, pred.Confidence, 1e-9)
	})

	t.Run("predicts the matching class for unseen frames", func(t *testing.T) {
		dark, err := model.Classifier.Predict(ExtractFeatures(flatFrame(64, 64, 27)))
		require.NoError(t, err)
		assert.Equal(t, ClassDestroyed, dark.Label)

		bright, err := model.Classifier.Predict(ExtractFeatures(flatFrame(64, 64, 205)))
		require.NoError(t, err)
		assert.Equal(t, ClassNoDamage, bright.Label)
	})

	t.Run("wrong vector length rejected", func(t *testing.T) {
		_, err := model.Classifier.Predict(make([]float64, 3))
		assert.Error(t, err)
	})

	t.Run("heuristic labels fill in when missing", func(t *testing.T) {
		unlabeled := []Sample{}
		for i := 0; i < 6; i++ {
			unlabeled = append(unlabeled,
				Sample{Image: flatFrame(64, 64, uint8(25+2*i))},
				Sample{Image: flatFrame(64, 64, uint8(190+2*i))},
			)
		}
		m, err := Train(unlabeled, WithSeed(7))
		require.NoError(t, err)
		assert.Equal(t, 12, m.Metadata.HeuristicLabels)
	})
}

func TestModelPersistence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	model, err := Train(trainingSet(), WithSeed(42))
	require.NoError(t, err)
	require.NoError(t, SaveModel(dir, model))

	t.Run("loaded model predicts like the original", func(t *testing.T) {
		loaded, err := LoadModel(dir)
		require.NoError(t, err)
		assert.Equal(t, model.Classifier.PrototypeCount(), loaded.Classifier.PrototypeCount())
		assert.Equal(t, model.Metadata.Samples, loaded.Metadata.Samples)

		features := ExtractFeatures(noiseFrame(64, 64, 99))
		orig, err := model.Classifier.Predict(features)
		require.NoError(t, err)
		reloaded, err := loaded.Classifier.Predict(features)
		require.NoError(t, err)
		assert.Equal(t, orig.Label, reloaded.Label)
		assert.InDelta(t, orig.Confidence, reloaded.Confidence, 1e-9)
	})

	t.Run("missing directory yields ErrModelMissing", func(t *testing.T) {
		_, err := LoadModel(t.TempDir())
		assert.ErrorIs(t, err, ErrModelMissing)
	})
}

func TestAssessor(t *testing.T) {
	t.Parallel()

	t.Run("degrades to basic score without a model", func(t *testing.T) {
		t.Parallel()
		assessor := NewAssessor(nil)
		assert.False(t, assessor.ModelAvailable())

		summary := assessor.Assess(flatFrame(64, 64, 30))
		assert.False(t, summary.ModelAvailable)
		assert.Empty(t, summary.Class)
		assert.Equal(t, summary.BasicScore, summary.CombinedScore)
		assert.Equal(t, models.LevelForScore(summary.BasicScore), summary.CombinedLevel)
	})

	t.Run("blends classifier verdict with basic score", func(t *testing.T) {
		t.Parallel()
		model, err := Train(trainingSet(), WithSeed(42))
		require.NoError(t, err)
		assessor := NewAssessor(model)

		summary := assessor.Assess(flatFrame(64, 64, 28))
		require.True(t, summary.ModelAvailable)
		assert.Equal(t, ClassDestroyed, summary.Class)

		expected := basicWeight*summary.BasicScore + damageWeight*classRiskScore(summary.Class)*summary.Confidence
		assert.InDelta(t, expected, summary.CombinedScore, 1e-9)
		assert.GreaterOrEqual(t, summary.CombinedScore, 0.0)
		assert.LessOrEqual(t, summary.CombinedScore, 10.0)
	})
}

func TestRiskForClass(t *testing.T) {
	t.Parallel()
	assert.Equal(t, models.RiskLow, RiskForClass(ClassNoDamage))
	assert.Equal(t, models.RiskMedium, RiskForClass(ClassMinor))
	assert.Equal(t, models.RiskHigh, RiskForClass(ClassMajor))
	assert.Equal(t, models.RiskCritical, RiskForClass(ClassDestroyed))
}
