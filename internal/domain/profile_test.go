package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfileClampsEveryField(t *testing.T) {
	cases := []struct {
		name string
		in   [8]int
	}{
		{"all low", [8]int{-1, -50, -100, -1000, -7, -3, -99, -2}},
		{"all high", [8]int{101, 150, 200, 1000, 999, 101, 300, 500}},
		{"mixed", [8]int{-10, 50, 120, 0, 100, -1, 101, 42}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := tc.in
			p := NewProfile(v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7])
			for _, trait := range Traits {
				got := p.Value(trait)
				assert.GreaterOrEqual(t, got, 0, trait)
				assert.LessOrEqual(t, got, 100, trait)
			}
		})
	}
	p := NewProfile(-10, 50, 120, 0, 100, -1, 101, 42)
	assert.Equal(t, Profile{0, 50, 100, 0, 100, 0, 100, 42}, p)
}

func TestProfileWith(t *testing.T) {
	p, err := DefaultProfile().With(TraitNeuroticism, 250)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Neuroticism)

	_, err = p.With(Trait("grumpiness"), 10)
	assert.Error(t, err)
}

func TestProfileBlend(t *testing.T) {
	a := NewProfile(0, 0, 0, 0, 0, 0, 0, 0)
	b := NewProfile(100, 100, 100, 100, 100, 100, 100, 100)
	mid := a.Blend(b, 0.5)
	assert.Equal(t, 50, mid.Openness)
	assert.Equal(t, 50, mid.Encouragement)
	assert.Equal(t, b, a.Blend(b, 7))
	assert.Equal(t, a, a.Blend(b, -1))
}

func TestTraitLevel(t *testing.T) {
	assert.Equal(t, "Very Low", TraitLevel(20))
	assert.Equal(t, "Low", TraitLevel(21))
	assert.Equal(t, "Average", TraitLevel(60))
	assert.Equal(t, "High", TraitLevel(80))
	assert.Equal(t, "Very High", TraitLevel(81))
}

func TestNewFailureContextClamps(t *testing.T) {
	fc := NewFailureContext("w1", FailureToolBreakage, 180, NewProfile(200, 0, 0, 0, 0, 0, 0, 0), -4, EmotionNone)
	assert.Equal(t, 100.0, fc.RawSeverityScore)
	assert.Equal(t, 0, fc.PreviousFailureCount)
	assert.Equal(t, 100, fc.Personality.Openness)

	fc = NewFailureContext("w1", FailureToolBreakage, -3, DefaultProfile(), 2, EmotionAnxious)
	assert.Equal(t, 0.0, fc.RawSeverityScore)
	assert.Equal(t, "a bit rattled", fc.EmotionalState.Phrase())
}

func TestParseEnums(t *testing.T) {
	ft, err := ParseFailureType("structural-collapse")
	require.NoError(t, err)
	assert.Equal(t, FailureStructuralCollapse, ft)
	_, err = ParseFailureType("meteor-strike")
	assert.Error(t, err)

	mood, err := ParseEmotionalState("")
	require.NoError(t, err)
	assert.Equal(t, EmotionNone, mood)
	_, err = ParseEmotionalState("giddy")
	assert.Error(t, err)

	var band SeverityBand
	require.NoError(t, band.UnmarshalText([]byte("significant")))
	assert.Equal(t, SeveritySignificant, band)
	assert.Error(t, band.UnmarshalText([]byte("apocalyptic")))
}

func TestErrorsMatchSentinels(t *testing.T) {
	var err error = &MissingVariableError{Name: "count", TemplateID: "err-1"}
	assert.True(t, errors.Is(err, ErrMissingVariable))
	assert.True(t, IsContentDefect(err))
	assert.Contains(t, err.Error(), "{count}")

	err = &EmptyCategoryError{Category: CategoryError}
	assert.True(t, errors.Is(err, ErrEmptyCategory))

	err = NewConfigurationError("duplicate template %s", "x")
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.False(t, IsContentDefect(err))
}
