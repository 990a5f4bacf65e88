package domain

import (
	"fmt"
	"math"
)

// Trait names a field of a Profile. Used by config (affinity weights) and the API.
type Trait string

const (
	TraitOpenness          Trait = "openness"
	TraitConscientiousness Trait = "conscientiousness"
	TraitExtraversion      Trait = "extraversion"
	TraitAgreeableness     Trait = "agreeableness"
	TraitNeuroticism       Trait = "neuroticism"
	TraitFormality         Trait = "formality"
	TraitHumor             Trait = "humor"
	TraitEncouragement     Trait = "encouragement"
)

// Traits lists every profile field in declaration order.
var Traits = []Trait{
	TraitOpenness,
	TraitConscientiousness,
	TraitExtraversion,
	TraitAgreeableness,
	TraitNeuroticism,
	TraitFormality,
	TraitHumor,
	TraitEncouragement,
}

// Valid reports whether t names a profile field.
func (t Trait) Valid() bool {
	for _, known := range Traits {
		if t == known {
			return true
		}
	}
	return false
}

// Profile is a worker's personality: five OCEAN traits plus three
// communication scalars. Every value lies in [0,100].
type Profile struct {
	Openness          int `json:"openness" yaml:"openness" minimum:"0" maximum:"100"`
	Conscientiousness int `json:"conscientiousness" yaml:"conscientiousness" minimum:"0" maximum:"100"`
	Extraversion      int `json:"extraversion" yaml:"extraversion" minimum:"0" maximum:"100"`
	Agreeableness     int `json:"agreeableness" yaml:"agreeableness" minimum:"0" maximum:"100"`
	Neuroticism       int `json:"neuroticism" yaml:"neuroticism" minimum:"0" maximum:"100"`
	Formality         int `json:"formality" yaml:"formality" minimum:"0" maximum:"100"`
	Humor             int `json:"humor" yaml:"humor" minimum:"0" maximum:"100"`
	Encouragement     int `json:"encouragement" yaml:"encouragement" minimum:"0" maximum:"100"`
}

// DefaultProfile is the profile a worker gets when spawned without a preset.
func DefaultProfile() Profile {
	return Profile{
		Openness:          50,
		Conscientiousness: 50,
		Extraversion:      50,
		Agreeableness:     50,
		Neuroticism:       50,
		Formality:         50,
		Humor:             50,
		Encouragement:     50,
	}
}

// NewProfile builds a clamped profile from raw OCEAN values and communication scalars.
func NewProfile(openness, conscientiousness, extraversion, agreeableness, neuroticism, formality, humor, encouragement int) Profile {
	return Profile{
		Openness:          openness,
		Conscientiousness: conscientiousness,
		Extraversion:      extraversion,
		Agreeableness:     agreeableness,
		Neuroticism:       neuroticism,
		Formality:         formality,
		Humor:             humor,
		Encouragement:     encouragement,
	}.Clamp()
}

// Clamp returns a copy with every field forced into [0,100].
func (p Profile) Clamp() Profile {
	p.Openness = clampTrait(p.Openness)
	p.Conscientiousness = clampTrait(p.Conscientiousness)
	p.Extraversion = clampTrait(p.Extraversion)
	p.Agreeableness = clampTrait(p.Agreeableness)
	p.Neuroticism = clampTrait(p.Neuroticism)
	p.Formality = clampTrait(p.Formality)
	p.Humor = clampTrait(p.Humor)
	p.Encouragement = clampTrait(p.Encouragement)
	return p
}

// Value returns the field named by t, or 0 for an unknown trait.
func (p Profile) Value(t Trait) int {
	switch t {
	case TraitOpenness:
		return p.Openness
	case TraitConscientiousness:
		return p.Conscientiousness
	case TraitExtraversion:
		return p.Extraversion
	case TraitAgreeableness:
		return p.Agreeableness
	case TraitNeuroticism:
		return p.Neuroticism
	case TraitFormality:
		return p.Formality
	case TraitHumor:
		return p.Humor
	case TraitEncouragement:
		return p.Encouragement
	}
	return 0
}

// With returns a copy with the named field set (clamped).
func (p Profile) With(t Trait, v int) (Profile, error) {
	switch t {
	case TraitOpenness:
		p.Openness = v
	case TraitConscientiousness:
		p.Conscientiousness = v
	case TraitExtraversion:
		p.Extraversion = v
	case TraitAgreeableness:
		p.Agreeableness = v
	case TraitNeuroticism:
		p.Neuroticism = v
	case TraitFormality:
		p.Formality = v
	case TraitHumor:
		p.Humor = v
	case TraitEncouragement:
		p.Encouragement = v
	default:
		return p, fmt.Errorf("unknown trait %q", t)
	}
	return p.Clamp(), nil
}

// Blend mixes p with other; weight is the share of other, clamped to [0,1].
func (p Profile) Blend(other Profile, weight float64) Profile {
	weight = math.Max(0, math.Min(1, weight))
	mix := func(a, b int) int {
		return int(math.Round(float64(a)*(1-weight) + float64(b)*weight))
	}
	return Profile{
		Openness:          mix(p.Openness, other.Openness),
		Conscientiousness: mix(p.Conscientiousness, other.Conscientiousness),
		Extraversion:      mix(p.Extraversion, other.Extraversion),
		Agreeableness:     mix(p.Agreeableness, other.Agreeableness),
		Neuroticism:       mix(p.Neuroticism, other.Neuroticism),
		Formality:         mix(p.Formality, other.Formality),
		Humor:             mix(p.Humor, other.Humor),
		Encouragement:     mix(p.Encouragement, other.Encouragement),
	}.Clamp()
}

func (p Profile) String() string {
	return fmt.Sprintf("O:%d C:%d E:%d A:%d N:%d F:%d H:%d Enc:%d",
		p.Openness, p.Conscientiousness, p.Extraversion, p.Agreeableness, p.Neuroticism,
		p.Formality, p.Humor, p.Encouragement)
}

// TraitLevel describes a trait value in words.
func TraitLevel(v int) string {
	switch {
	case v <= 20:
		return "Very Low"
	case v <= 40:
		return "Low"
	case v <= 60:
		return "Average"
	case v <= 80:
		return "High"
	default:
		return "Very High"
	}
}

func clampTrait(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
