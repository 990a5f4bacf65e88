package severity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setback/internal/domain"
)

func TestClassifyDefaultBands(t *testing.T) {
	c, err := NewClassifier(DefaultThresholds())
	require.NoError(t, err)
	cases := []struct {
		score float64
		want  domain.SeverityBand
	}{
		{0, domain.SeverityMinor},
		{15, domain.SeverityMinor},
		{19.999, domain.SeverityMinor},
		{20, domain.SeverityModerate},
		{39, domain.SeverityModerate},
		{40, domain.SeveritySignificant},
		{59.5, domain.SeveritySignificant},
		{60, domain.SeverityCritical},
		{75, domain.SeverityCritical},
		{100, domain.SeverityCritical},
		{-20, domain.SeverityMinor},
		{250, domain.SeverityCritical},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.score); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestClassifyMonotonic(t *testing.T) {
	c, err := NewClassifier(Thresholds{Moderate: 10, Significant: 55, Critical: 90})
	require.NoError(t, err)
	prev := c.Classify(0)
	for s := 0.0; s <= 100; s += 0.25 {
		got := c.Classify(s)
		if got < prev {
			t.Fatalf("band decreased at %v: %s after %s", s, got, prev)
		}
		prev = got
	}
	assert.Equal(t, domain.SeverityCritical, prev)
}

func TestZeroClassifierUsesDefaults(t *testing.T) {
	var c Classifier
	assert.Equal(t, domain.SeverityModerate, c.Classify(25))
}

func TestThresholdValidation(t *testing.T) {
	bad := []Thresholds{
		{Moderate: 40, Significant: 20, Critical: 60},
		{Moderate: 20, Significant: 20, Critical: 60},
		{Moderate: 20, Significant: 40, Critical: 140},
		{Moderate: -5, Significant: 40, Critical: 60},
		{Moderate: 0, Significant: 40, Critical: 60},
	}
	for _, th := range bad {
		_, err := NewClassifier(th)
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("NewClassifier(%+v) err = %v, want configuration error", th, err)
		}
	}
}
