// Package severity maps a raw failure impact score onto a SeverityBand.
package severity

import (
	"math"

	"setback/internal/domain"
)

// Thresholds are the lower bounds of each band. Minor always starts at 0.
type Thresholds struct {
	Moderate    float64 `yaml:"moderate" json:"moderate"`
	Significant float64 `yaml:"significant" json:"significant"`
	Critical    float64 `yaml:"critical" json:"critical"`
}

// DefaultThresholds: [0,20) minor, [20,40) moderate, [40,60) significant, [60,100] critical.
func DefaultThresholds() Thresholds {
	return Thresholds{Moderate: 20, Significant: 40, Critical: 60}
}

// Validate rejects out-of-range and non-monotonic boundaries.
func (t Thresholds) Validate() error {
	var problems []string
	for _, b := range []struct {
		name string
		v    float64
	}{{"moderate", t.Moderate}, {"significant", t.Significant}, {"critical", t.Critical}} {
		if math.IsNaN(b.v) || b.v <= 0 || b.v > 100 {
			problems = append(problems, "severity."+b.name+" must be in (0,100]")
		}
	}
	if !(t.Moderate < t.Significant && t.Significant < t.Critical) {
		problems = append(problems, "severity thresholds must be strictly increasing (moderate < significant < critical)")
	}
	if len(problems) > 0 {
		return &domain.ConfigurationError{Problems: problems}
	}
	return nil
}

// Classifier is a pure score -> band function over configured thresholds.
type Classifier struct {
	t Thresholds
}

// NewClassifier validates thresholds before use.
func NewClassifier(t Thresholds) (Classifier, error) {
	if err := t.Validate(); err != nil {
		return Classifier{}, err
	}
	return Classifier{t: t}, nil
}

// Thresholds returns the configured boundaries.
func (c Classifier) Thresholds() Thresholds { return c.t }

// Classify is total: scores outside [0,100] are clamped first.
func (c Classifier) Classify(score float64) domain.SeverityBand {
	if c.t == (Thresholds{}) {
		c.t = DefaultThresholds()
	}
	if math.IsNaN(score) {
		score = 0
	}
	score = math.Max(0, math.Min(100, score))
	switch {
	case score >= c.t.Critical:
		return domain.SeverityCritical
	case score >= c.t.Significant:
		return domain.SeveritySignificant
	case score >= c.t.Moderate:
		return domain.SeverityModerate
	default:
		return domain.SeverityMinor
	}
}
