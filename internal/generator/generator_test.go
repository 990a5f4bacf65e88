package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setback/internal/domain"
	"setback/internal/library"
	"setback/internal/severity"
)

func testSettings() Settings {
	return Settings{
		Archetypes: []Affinity{
			{Tag: "worrier", Weights: map[domain.Trait]float64{domain.TraitNeuroticism: 1, domain.TraitExtraversion: -0.3}},
			{Tag: "enthusiast", Weights: map[domain.Trait]float64{domain.TraitExtraversion: 0.6, domain.TraitHumor: 0.6}},
			{Tag: "perfectionist", Weights: map[domain.Trait]float64{domain.TraitConscientiousness: 0.8, domain.TraitFormality: 0.4}},
		},
		MinArchetypeScore: 0.15,
		FallbackArchetype: "balanced",
		RecoveryPlans: map[domain.FailureType][]domain.RecoveryStep{
			domain.FailureToolBreakage:       {"craft-replacement", "resume-task"},
			domain.FailureStructuralCollapse: {"clear-debris", "rebuild-structure", "resume-task"},
			domain.FailureCombatLoss:         {},
		},
		ResponseCategory: map[domain.FailureType]domain.Category{
			domain.FailureCombatLoss: domain.CategoryDanger,
		},
	}
}

func register(t *testing.T, lib *library.Library, c domain.Category, texts ...string) {
	t.Helper()
	ts := make([]domain.ResponseTemplate, 0, len(texts))
	for i, text := range texts {
		ts = append(ts, domain.ResponseTemplate{ID: string(c) + "-" + string(rune('a'+i)), Category: c, Text: text})
	}
	require.NoError(t, lib.Register(c, ts))
}

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	lib := library.New(library.WithSeed(42))
	register(t, lib, domain.CategoryError,
		"Oops, I {failure_label}.",
		"That {failure_type} is on me.",
		"{worker} here. That was a {severity} one.",
	)
	register(t, lib, domain.CategoryDanger, "I {failure_label}. Falling back.")
	register(t, lib, domain.CategoryLearning,
		"Lesson noted: {count} times now with {failure_type}.",
		"After {count} rounds of {failure_type}, I'm changing my approach.",
	)
	register(t, lib, domain.CategoryReassurance, "Don't worry, I'll make this right.")
	register(t, lib, domain.CategoryHelpRequest, "Could you help me? I {failure_label}.")
	register(t, lib, domain.CategoryEmbarrassment, "Well, that was awkward.")
	return New(lib, severity.Classifier{}, testSettings())
}

func TestMinorFirstFailure(t *testing.T) {
	g := newTestGenerator(t)
	fc := domain.NewFailureContext("w1", domain.FailureToolBreakage, 15, domain.DefaultProfile(), 0, domain.EmotionNone)
	resp, err := g.GenerateResponse(context.Background(), fc)
	require.NoError(t, err)

	assert.Equal(t, domain.SeverityMinor, resp.Severity)
	assert.False(t, resp.NeedsPlayerReassurance)
	assert.Empty(t, resp.Reassurance)
	assert.Empty(t, resp.LearningStatement)
	assert.NotEmpty(t, resp.Dialogue)
	assert.NotContains(t, resp.Dialogue, "{")
	if diff := cmp.Diff([]domain.RecoveryStep{"craft-replacement", "resume-task"}, resp.RecoveryPlan); diff != "" {
		t.Fatalf("recovery plan mismatch (-want +got):\n%s", diff)
	}
}

func TestCriticalRepeatFailure(t *testing.T) {
	g := newTestGenerator(t)
	fc := domain.NewFailureContext("w1", domain.FailureStructuralCollapse, 75, domain.DefaultProfile(), 2, domain.EmotionAnxious)
	resp, err := g.GenerateResponse(context.Background(), fc)
	require.NoError(t, err)

	assert.Equal(t, domain.SeverityCritical, resp.Severity)
	assert.True(t, resp.NeedsPlayerReassurance)
	assert.Equal(t, "Don't worry, I'll make this right.", resp.Reassurance)
	assert.Contains(t, resp.LearningStatement, "structural-collapse")
	assert.Contains(t, resp.LearningStatement, "2")
	if diff := cmp.Diff([]domain.RecoveryStep{"clear-debris", "rebuild-structure", "resume-task"}, resp.RecoveryPlan); diff != "" {
		t.Fatalf("recovery plan mismatch (-want +got):\n%s", diff)
	}
}

func TestReassuranceRules(t *testing.T) {
	g := newTestGenerator(t)
	ctx := context.Background()
	cases := []struct {
		score float64
		count int
		want  bool
	}{
		{10, 0, false},
		{39.9, 2, false},
		{40, 0, true},
		{5, 3, true},
		{99, 10, true},
	}
	for _, tc := range cases {
		fc := domain.NewFailureContext("w1", domain.FailureTaskTimeout, tc.score, domain.DefaultProfile(), tc.count, domain.EmotionNone)
		resp, err := g.GenerateResponse(ctx, fc)
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.NeedsPlayerReassurance, "score=%v count=%d", tc.score, tc.count)
		assert.Equal(t, tc.count >= 1, resp.LearningStatement != "")
	}
}

func TestRecoveryPlanIsACopy(t *testing.T) {
	g := newTestGenerator(t)
	plan := g.RecoveryPlan(domain.FailureToolBreakage)
	plan[0] = "panic"
	assert.Equal(t, domain.RecoveryStep("craft-replacement"), g.RecoveryPlan(domain.FailureToolBreakage)[0])

	plan = g.RecoveryPlan(domain.FailureCombatLoss)
	assert.NotNil(t, plan)
	assert.Empty(t, plan)
}

func TestResponseCategoryOverride(t *testing.T) {
	g := newTestGenerator(t)
	fc := domain.NewFailureContext("w1", domain.FailureCombatLoss, 30, domain.DefaultProfile(), 0, domain.EmotionNone)
	resp, err := g.GenerateResponse(context.Background(), fc)
	require.NoError(t, err)
	assert.Equal(t, "I lost a fight. Falling back.", resp.Dialogue)
	assert.Equal(t, "danger-a", resp.TemplateID)
}

func TestClampsOutOfRangeInputs(t *testing.T) {
	g := newTestGenerator(t)
	fc := domain.FailureContext{WorkerID: "w1", FailureType: domain.FailureItemLoss, RawSeverityScore: 400, PreviousFailureCount: -5}
	resp, err := g.GenerateResponse(context.Background(), fc)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, resp.Severity)
	assert.Empty(t, resp.LearningStatement)
}

func TestWorkerNameBinding(t *testing.T) {
	lib := library.New(library.WithSeed(1))
	register(t, lib, domain.CategoryError, "{worker}: {emotion}")
	g := New(lib, severity.Classifier{}, testSettings())

	fc := domain.NewFailureContext("w-17", domain.FailureItemLoss, 5, domain.DefaultProfile(), 0, domain.EmotionFrustrated)
	resp, err := g.GenerateResponse(context.Background(), fc)
	require.NoError(t, err)
	assert.Equal(t, "w-17: pretty frustrated", resp.Dialogue)

	fc.WorkerName = "Bram"
	resp, err = g.GenerateResponse(context.Background(), fc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Dialogue, "Bram:"))
}

func TestContentDefectsSurface(t *testing.T) {
	ctx := context.Background()
	fc := domain.NewFailureContext("w1", domain.FailureToolBreakage, 50, domain.DefaultProfile(), 0, domain.EmotionNone)

	g := New(library.New(), severity.Classifier{}, testSettings())
	resp, err := g.GenerateResponse(ctx, fc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmptyCategory))
	assert.Equal(t, domain.SeveritySignificant, resp.Severity)

	lib := library.New()
	register(t, lib, domain.CategoryError, "I tried {attempts} times.")
	g = New(lib, severity.Classifier{}, testSettings())
	_, err = g.GenerateResponse(ctx, fc)
	var missing *domain.MissingVariableError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "attempts", missing.Name)
	assert.True(t, domain.IsContentDefect(err))
}

func TestContentDefectKeepsDecisions(t *testing.T) {
	lib := library.New(library.WithSeed(3))
	register(t, lib, domain.CategoryError, "Oops, I {failure_label}.")
	g := New(lib, severity.Classifier{}, testSettings())

	fc := domain.NewFailureContext("w1", domain.FailureStructuralCollapse, 90, domain.DefaultProfile(), 4, domain.EmotionNone)
	resp, err := g.GenerateResponse(context.Background(), fc)
	require.True(t, errors.Is(err, domain.ErrEmptyCategory))
	assert.Equal(t, domain.SeverityCritical, resp.Severity)
	assert.True(t, resp.NeedsPlayerReassurance)
	assert.Equal(t, "Oops, I let a build collapse.", resp.Dialogue)
	if diff := cmp.Diff([]domain.RecoveryStep{"clear-debris", "rebuild-structure", "resume-task"}, resp.RecoveryPlan); diff != "" {
		t.Fatalf("recovery plan mismatch (-want +got):\n%s", diff)
	}

	minor := domain.NewFailureContext("w1", domain.FailureToolBreakage, 10, domain.DefaultProfile(), 3, domain.EmotionNone)
	resp, err = g.GenerateResponse(context.Background(), minor)
	require.True(t, errors.Is(err, domain.ErrEmptyCategory))
	assert.True(t, resp.NeedsPlayerReassurance)
}

func TestNeedsReassurance(t *testing.T) {
	assert.True(t, NeedsReassurance(domain.SeverityCritical, 0))
	assert.True(t, NeedsReassurance(domain.SeveritySignificant, 0))
	assert.True(t, NeedsReassurance(domain.SeverityMinor, 3))
	assert.False(t, NeedsReassurance(domain.SeverityMinor, 0))
	assert.False(t, NeedsReassurance(domain.SeverityModerate, 2))
}

func TestUnknownFailureType(t *testing.T) {
	g := newTestGenerator(t)
	_, err := g.GenerateResponse(context.Background(), domain.FailureContext{WorkerID: "w1", FailureType: "meteor"})
	assert.Error(t, err)
}

func TestHelpRequestAndEmbarrassment(t *testing.T) {
	g := newTestGenerator(t)
	ctx := context.Background()
	fc := domain.NewFailureContext("w1", domain.FailureNavigationBlocked, 30, domain.DefaultProfile(), 1, domain.EmotionNone)

	help, err := g.HelpRequest(ctx, fc)
	require.NoError(t, err)
	assert.Equal(t, "Could you help me? I got stuck finding a path.", help)

	line, err := g.Embarrassment(ctx, fc)
	require.NoError(t, err)
	assert.Equal(t, "Well, that was awkward.", line)
}

func TestDeriveArchetype(t *testing.T) {
	s := testSettings()
	derive := func(p domain.Profile) string {
		return DeriveArchetype(p, s.Archetypes, s.MinArchetypeScore, s.FallbackArchetype)
	}
	assert.Equal(t, "balanced", derive(domain.DefaultProfile()))
	assert.Equal(t, "worrier", derive(domain.NewProfile(50, 50, 30, 50, 90, 50, 50, 50)))
	assert.Equal(t, "enthusiast", derive(domain.NewProfile(50, 50, 90, 50, 20, 50, 85, 50)))
	assert.Equal(t, "perfectionist", derive(domain.NewProfile(40, 95, 40, 55, 45, 70, 30, 65)))
	assert.Equal(t, "", DeriveArchetype(domain.DefaultProfile(), nil, 0, ""))
}

func TestValidate(t *testing.T) {
	g := newTestGenerator(t)
	require.NoError(t, g.Validate())

	lib := library.New()
	register(t, lib, domain.CategoryError, "Oops {mood}.")
	register(t, lib, domain.CategoryLearning, "I learned about {failure_type}.")
	g = New(lib, severity.Classifier{}, testSettings())
	err := g.Validate()
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	joined := strings.Join(cfgErr.Problems, "\n")
	assert.Contains(t, joined, "{mood}")
	assert.Contains(t, joined, "must mention {count}")
	assert.Contains(t, joined, "category reassurance has no templates")
	assert.Contains(t, joined, "category danger has no templates")
}
