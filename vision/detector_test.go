package vision

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
)

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 32, 32))
}

func TestClassTableLoad(t *testing.T) {
	t.Parallel()

	t.Run("missing file falls back to default", func(t *testing.T) {
		t.Parallel()
		table, err := LoadClassTable(filepath.Join(t.TempDir(), "absent.json"))
		require.NoError(t, err)
		assert.Equal(t, "builtin-1", table.Version)
		assert.Equal(t, "tank", table.Name(29))
	})

	t.Run("custom table wins over default", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "classes.json")
		payload := `{"version":"v7","classes":{"1":"dog sled","29":"snow tank"}}`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

		table, err := LoadClassTable(path)
		require.NoError(t, err)
		assert.Equal(t, "v7", table.Version)
		assert.Equal(t, "snow tank", table.Name(29))
		assert.Equal(t, 2, table.Len())
	})

	t.Run("malformed table is an error", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "classes.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"classes":{"nope":"x"}}`), 0o644))

		_, err := LoadClassTable(path)
		assert.Error(t, err)
	})

	t.Run("unknown id resolves to generated name", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "class-999", DefaultClassTable().Name(999))
	})
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		class    string
		military bool
		civilian bool
		infra    bool
	}{
		{"tank is military", "tank", true, false, false},
		{"case insensitive", "Armored Vehicle", true, false, false},
		{"bus is civilian", "bus", false, true, false},
		{"bridge is infrastructure", "bridge", false, false, true},
		{"hangar is both aircraft and infra", "aircraft hangar", true, false, true},
		{"unmapped name carries no flags", "kiosk", false, false, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mil, civ, infra := Classify(tc.class)
			assert.Equal(t, tc.military, mil, "military")
			assert.Equal(t, tc.civilian, civ, "civilian")
			assert.Equal(t, tc.infra, infra, "infrastructure")
		})
	}
}

func TestThreatRulesSummarize(t *testing.T) {
	t.Parallel()

	mil := func(class string, conf float64) models.Detection {
		return models.Detection{Class: class, Confidence: conf, IsMilitary: true}
	}

	tests := []struct {
		name       string
		detections []models.Detection
		want       models.RiskLevel
		military   int
	}{
		{
			name:       "empty scene is low",
			detections: nil,
			want:       models.RiskLow,
		},
		{
			name:       "one military object is medium",
			detections: []models.Detection{mil("military truck", 0.6)},
			want:       models.RiskMedium,
			military:   1,
		},
		{
			name: "three military objects are high",
			detections: []models.Detection{
				mil("military truck", 0.6), mil("tank", 0.5), mil("armored vehicle", 0.4),
			},
			want:     models.RiskHigh,
			military: 3,
		},
		{
			name: "five military objects are critical",
			detections: []models.Detection{
				mil("tank", 0.6), mil("tank", 0.6), mil("tank", 0.6),
				mil("tank", 0.6), mil("tank", 0.6),
			},
			want:     models.RiskCritical,
			military: 5,
		},
		{
			name: "high signature class escalates immediately",
			detections: []models.Detection{
				mil("helicopter", 0.3),
				mil("helicopter", 0.3),
				mil("helicopter", 0.3),
			},
			want:     models.RiskCritical,
			military: 3,
		},
		{
			name: "civilians alone stay low",
			detections: []models.Detection{
				{Class: "bus", Confidence: 0.9, IsCivilian: true},
				{Class: "small car", Confidence: 0.8, IsCivilian: true},
			},
			want: models.RiskLow,
		},
	}

	rules := DefaultThreatRules()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			summary := rules.Summarize(tc.detections)
			assert.Equal(t, tc.want, summary.ThreatLevel)
			assert.Equal(t, tc.military, summary.MilitaryObjects)
		})
	}
}

func TestDetectorDetect(t *testing.T) {
	t.Parallel()

	t.Run("nil backend reports model unavailable", func(t *testing.T) {
		t.Parallel()
		d := NewDetector(nil, nil)
		assert.False(t, d.Available())
		assert.Equal(t, "none", d.BackendName())

		_, err := d.Detect(testImage())
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("backend error is wrapped", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("session crashed")
		d := NewDetector(&StubBackend{Err: boom}, nil)

		_, err := d.Detect(testImage())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("filters by confidence and sorts descending", func(t *testing.T) {
		t.Parallel()
		stub := &StubBackend{Detections: []RawDetection{
			{ClassID: 29, Confidence: 0.40, X: 0.1, Y: 0.1, W: 0.2, H: 0.2},
			{ClassID: 18, Confidence: 0.10},
			{ClassID: 15, Confidence: 0.95, X: 0.5, Y: 0.5, W: 0.1, H: 0.1},
		}}
		d := NewDetector(stub, nil)

		dets, err := d.Detect(testImage())
		require.NoError(t, err)
		require.Len(t, dets, 2)
		assert.Equal(t, "helicopter", dets[0].Class)
		assert.Equal(t, "tank", dets[1].Class)
		assert.True(t, dets[0].IsMilitary)
		assert.Equal(t, 1, stub.Calls())
	})

	t.Run("min confidence option", func(t *testing.T) {
		t.Parallel()
		stub := &StubBackend{Detections: []RawDetection{
			{ClassID: 29, Confidence: 0.40},
		}}
		d := NewDetector(stub, nil, WithMinConfidence(0.5))

		dets, err := d.Detect(testImage())
		require.NoError(t, err)
		assert.Empty(t, dets)
	})

	t.Run("summarize delegates to rules", func(t *testing.T) {
		t.Parallel()
		stub := &StubBackend{Detections: []RawDetection{
			{ClassID: 15, Confidence: 0.9},
		}}
		d := NewDetector(stub, nil)

		dets, err := d.Detect(testImage())
		require.NoError(t, err)
		summary := d.Summarize(dets)
		assert.Equal(t, models.RiskCritical, summary.ThreatLevel)
	})
}
