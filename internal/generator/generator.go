// Package generator turns a failure context into an in-character response:
// dialogue, optional learning statement, recovery plan and reassurance.
package generator

import (
	"context"
	"fmt"

	"setback/internal/domain"
	"setback/internal/library"
	"setback/internal/severity"
)

// ReassuranceFailureCount is the previous-failure count from which the player
// is reassured regardless of band.
const ReassuranceFailureCount = 3

// Variables are the placeholder names bound on every render.
var Variables = []string{"failure_type", "failure_label", "severity", "count", "emotion", "worker"}

// Settings carries the per-deployment tables the generator consults.
type Settings struct {
	Archetypes        []Affinity
	MinArchetypeScore float64
	FallbackArchetype string
	RecoveryPlans     map[domain.FailureType][]domain.RecoveryStep
	// ResponseCategory overrides the dialogue category per failure type; unset types use error.
	ResponseCategory map[domain.FailureType]domain.Category
}

// Generator owns no state of its own; recency lives in the library.
type Generator struct {
	lib        *library.Library
	classifier severity.Classifier
	settings   Settings
}

// New wires a generator to an explicitly owned library.
func New(lib *library.Library, classifier severity.Classifier, settings Settings) *Generator {
	return &Generator{lib: lib, classifier: classifier, settings: settings}
}

// Library exposes the template library the generator draws from.
func (g *Generator) Library() *library.Library { return g.lib }

// Classifier exposes the severity classifier.
func (g *Generator) Classifier() severity.Classifier { return g.classifier }

// Archetype derives the archetype hint for p.
func (g *Generator) Archetype(p domain.Profile) string {
	return DeriveArchetype(p, g.settings.Archetypes, g.settings.MinArchetypeScore, g.settings.FallbackArchetype)
}

// GenerateResponse classifies the failure, renders the dialogue and decides
// the follow-ups. On a content defect the returned response still carries
// Severity, Archetype, RecoveryPlan and NeedsPlayerReassurance so callers can
// substitute a fallback line without losing the decisions.
func (g *Generator) GenerateResponse(ctx context.Context, fc domain.FailureContext) (domain.FailureResponse, error) {
	if !fc.FailureType.Valid() {
		return domain.FailureResponse{}, fmt.Errorf("unknown failure type %q", fc.FailureType)
	}
	name := fc.WorkerName
	fc = domain.NewFailureContext(fc.WorkerID, fc.FailureType, fc.RawSeverityScore, fc.Personality, fc.PreviousFailureCount, fc.EmotionalState)
	fc.WorkerName = name

	band := g.classifier.Classify(fc.RawSeverityScore)
	resp := domain.FailureResponse{
		Severity:               band,
		Archetype:              g.Archetype(fc.Personality),
		RecoveryPlan:           g.RecoveryPlan(fc.FailureType),
		NeedsPlayerReassurance: NeedsReassurance(band, fc.PreviousFailureCount),
	}
	vars := Bindings(fc, band)

	tmpl, dialogue, err := g.render(ctx, g.category(fc.FailureType), resp.Archetype, fc.WorkerID, vars)
	if err != nil {
		return resp, err
	}
	resp.Dialogue = dialogue
	resp.TemplateID = tmpl.ID

	if fc.PreviousFailureCount >= 1 {
		_, statement, err := g.render(ctx, domain.CategoryLearning, resp.Archetype, fc.WorkerID, vars)
		if err != nil {
			return resp, err
		}
		resp.LearningStatement = statement
	}

	if resp.NeedsPlayerReassurance {
		_, line, err := g.render(ctx, domain.CategoryReassurance, resp.Archetype, fc.WorkerID, vars)
		if err != nil {
			return resp, err
		}
		resp.Reassurance = line
	}
	return resp, nil
}

// NeedsReassurance is true for Significant and Critical failures, and for any
// failure type that has already failed ReassuranceFailureCount times.
func NeedsReassurance(band domain.SeverityBand, previous int) bool {
	return band >= domain.SeveritySignificant || previous >= ReassuranceFailureCount
}

// HelpRequest renders a line asking the player for help with the failure.
func (g *Generator) HelpRequest(ctx context.Context, fc domain.FailureContext) (string, error) {
	return g.line(ctx, domain.CategoryHelpRequest, fc)
}

// Embarrassment renders a line reacting to a public failure.
func (g *Generator) Embarrassment(ctx context.Context, fc domain.FailureContext) (string, error) {
	return g.line(ctx, domain.CategoryEmbarrassment, fc)
}

func (g *Generator) line(ctx context.Context, category domain.Category, fc domain.FailureContext) (string, error) {
	if !fc.FailureType.Valid() {
		return "", fmt.Errorf("unknown failure type %q", fc.FailureType)
	}
	band := g.classifier.Classify(fc.RawSeverityScore)
	_, out, err := g.render(ctx, category, g.Archetype(fc.Personality), fc.WorkerID, Bindings(fc, band))
	return out, err
}

// RecoveryPlan returns a copy of the configured steps for ft.
func (g *Generator) RecoveryPlan(ft domain.FailureType) []domain.RecoveryStep {
	steps := g.settings.RecoveryPlans[ft]
	out := make([]domain.RecoveryStep, len(steps))
	copy(out, steps)
	return out
}

func (g *Generator) category(ft domain.FailureType) domain.Category {
	if c, ok := g.settings.ResponseCategory[ft]; ok && c != "" {
		return c
	}
	return domain.CategoryError
}

func (g *Generator) render(ctx context.Context, category domain.Category, archetype, workerID string, vars map[string]any) (domain.ResponseTemplate, string, error) {
	tmpl, err := g.lib.Select(ctx, category, archetype, workerID, true)
	if err != nil {
		return tmpl, "", fmt.Errorf("select %s template: %w", category, err)
	}
	out, err := g.lib.Render(tmpl, vars)
	if err != nil {
		return tmpl, "", fmt.Errorf("render %s template: %w", category, err)
	}
	if err := g.lib.RecordUsage(ctx, workerID, category, tmpl.ID); err != nil {
		return tmpl, "", fmt.Errorf("record %s usage: %w", category, err)
	}
	return tmpl, out, nil
}

// Bindings builds the placeholder values for fc.
func Bindings(fc domain.FailureContext, band domain.SeverityBand) map[string]any {
	worker := fc.WorkerName
	if worker == "" {
		worker = fc.WorkerID
	}
	return map[string]any{
		"failure_type":  string(fc.FailureType),
		"failure_label": fc.FailureType.Label(),
		"severity":      band.String(),
		"count":         fc.PreviousFailureCount,
		"emotion":       fc.EmotionalState.Phrase(),
		"worker":        worker,
	}
}
