package generator

import "setback/internal/domain"

// Affinity scores one archetype tag against a profile. Weights apply to
// centred trait values in [-1,1], so a positive weight favours high values
// and a negative weight favours low ones.
type Affinity struct {
	Tag     string                   `yaml:"tag" json:"tag"`
	Weights map[domain.Trait]float64 `yaml:"weights" json:"weights"`
}

// Score is the weighted sum of centred traits.
func (a Affinity) Score(p domain.Profile) float64 {
	var s float64
	for _, trait := range domain.Traits {
		if w, ok := a.Weights[trait]; ok {
			s += w * centred(p.Value(trait))
		}
	}
	return s
}

// DeriveArchetype returns the tag of the best-scoring affinity. Ties keep the
// earlier entry. When no score exceeds minScore the fallback tag is returned.
func DeriveArchetype(p domain.Profile, affinities []Affinity, minScore float64, fallback string) string {
	best, bestScore := "", minScore
	for _, a := range affinities {
		if s := a.Score(p); s > bestScore {
			best, bestScore = a.Tag, s
		}
	}
	if best == "" {
		return fallback
	}
	return best
}

func centred(v int) float64 {
	return (float64(v) - 50) / 50
}
