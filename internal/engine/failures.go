package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"setback/internal/domain"
	"setback/internal/events"
	"setback/internal/generator"
	"setback/internal/library"
)

// DefaultFallbackDialogue is spoken when content is broken and config has no fallback line.
const DefaultFallbackDialogue = "Well, that didn't go to plan."

// FailureEvent is one failure raised by the action framework.
type FailureEvent struct {
	WorkerID    string
	FailureType domain.FailureType
	Score       float64
	Emotion     domain.EmotionalState
	ActorID     string
}

// FailureOutcome is the generated response plus what was recorded for it.
type FailureOutcome struct {
	domain.FailureResponse
	WorkerID             string             `json:"worker_id"`
	FailureType          domain.FailureType `json:"failure_type"`
	PreviousFailureCount int                `json:"previous_failure_count"`
	FailureID            int64              `json:"failure_id"`
	LearningID           string             `json:"learning_id,omitempty"`
	Fallback             bool               `json:"fallback"`
}

// HandleFailure generates the worker's response and records the failure.
// The previous-failure count is read in the same transaction as the insert.
//
// A content defect (empty category or unbound placeholder) does not lose the
// event: the failure is still recorded, Dialogue falls back to the configured
// line, and the outcome is returned together with the error.
func (e Engine) HandleFailure(ctx context.Context, ev FailureEvent) (FailureOutcome, error) {
	start := time.Now()
	defer func() { metricHandleDuration.Observe(time.Since(start).Seconds()) }()

	if !ev.FailureType.Valid() {
		return FailureOutcome{}, invalid("unknown failure type %q", ev.FailureType)
	}
	if _, err := domain.ParseEmotionalState(string(ev.Emotion)); err != nil {
		return FailureOutcome{}, invalid("%v", err)
	}
	if e.Generator == nil {
		return FailureOutcome{}, errors.New("generator not configured")
	}

	unlock := e.lockWorker(ev.WorkerID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return FailureOutcome{}, err
	}
	defer tx.Rollback()

	w, err := e.Repo.GetWorkerTx(ctx, tx, ev.WorkerID)
	if err != nil {
		return FailureOutcome{}, err
	}
	prev, err := e.Repo.PreviousFailureCountTx(ctx, tx, w.ID, ev.FailureType)
	if err != nil {
		return FailureOutcome{}, fmt.Errorf("count previous failures: %w", err)
	}
	fc := domain.NewFailureContext(w.ID, ev.FailureType, ev.Score, w.Profile, prev, ev.Emotion)
	fc.WorkerName = w.Name

	resp, genErr := e.Generator.GenerateResponse(ctx, fc)
	if genErr != nil && !domain.IsContentDefect(genErr) {
		metricGenerationErrors.WithLabelValues(errorKindStorage).Inc()
		return FailureOutcome{}, genErr
	}

	out := FailureOutcome{
		FailureResponse:      resp,
		WorkerID:             w.ID,
		FailureType:          ev.FailureType,
		PreviousFailureCount: prev,
	}
	evtType := events.FailureResponded
	if genErr != nil {
		metricGenerationErrors.WithLabelValues(errorKindContent).Inc()
		e.logger().Error("content defect while generating failure response",
			zap.String("worker_id", w.ID),
			zap.String("failure_type", string(ev.FailureType)),
			zap.Error(genErr))
		if out.Dialogue == "" {
			out.Dialogue = e.fallbackDialogue(fc, resp.Severity)
			out.TemplateID = ""
		}
		out.Fallback = true
		evtType = events.FailureContentDefect
	}

	now := e.now().UTC().Format(time.RFC3339)
	out.FailureID, err = e.Repo.InsertFailure(ctx, tx, domain.FailureRecord{
		WorkerID:    w.ID,
		FailureType: string(ev.FailureType),
		Score:       fc.RawSeverityScore,
		Severity:    resp.Severity.String(),
		TS:          now,
	})
	if err != nil {
		return FailureOutcome{}, fmt.Errorf("insert failure: %w", err)
	}
	if out.LearningStatement != "" {
		out.LearningID = uuid.New().String()
		if err := e.Repo.InsertLearning(ctx, tx, domain.Learning{
			ID:          out.LearningID,
			WorkerID:    w.ID,
			FailureType: string(ev.FailureType),
			Statement:   out.LearningStatement,
			CreatedAt:   now,
		}); err != nil {
			return FailureOutcome{}, fmt.Errorf("insert learning: %w", err)
		}
	}
	payload := events.EventPayload{
		"failure_id":               out.FailureID,
		"failure_type":             string(ev.FailureType),
		"score":                    fc.RawSeverityScore,
		"severity":                 out.Severity.String(),
		"archetype":                out.Archetype,
		"template_id":              out.TemplateID,
		"dialogue":                 out.Dialogue,
		"learning_statement":       out.LearningStatement,
		"recovery_plan":            out.RecoveryPlan,
		"needs_player_reassurance": out.NeedsPlayerReassurance,
		"previous_failure_count":   prev,
	}
	if genErr != nil {
		payload["error"] = genErr.Error()
	}
	if err := e.Events.Append(ctx, tx, evtType, "worker", w.ID, ev.ActorID, payload); err != nil {
		return FailureOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return FailureOutcome{}, err
	}

	metricResponses.WithLabelValues(out.Severity.String(), out.Archetype).Inc()
	if out.NeedsPlayerReassurance {
		metricReassurance.Inc()
	}
	e.logger().Debug("failure handled",
		zap.String("worker_id", w.ID),
		zap.String("failure_type", string(ev.FailureType)),
		zap.Stringer("severity", out.Severity),
		zap.String("archetype", out.Archetype),
		zap.Int("previous_failures", prev),
		zap.Bool("fallback", out.Fallback))
	return out, genErr
}

func (e Engine) fallbackDialogue(fc domain.FailureContext, band domain.SeverityBand) string {
	text := DefaultFallbackDialogue
	if e.Config != nil && e.Config.Fallback.Dialogue != "" {
		text = e.Config.Fallback.Dialogue
	}
	out, err := library.Render(domain.ResponseTemplate{ID: "fallback", Text: text}, generator.Bindings(fc, band))
	if err != nil {
		return text
	}
	return out
}

// HelpRequest renders a line in which the worker asks the player for help
// with a failure. Nothing is recorded.
func (e Engine) HelpRequest(ctx context.Context, ev FailureEvent) (string, error) {
	return e.speak(ctx, ev, func(fc domain.FailureContext) (string, error) {
		return e.Generator.HelpRequest(ctx, fc)
	})
}

// Embarrassment renders the worker's reaction to a failure others witnessed.
func (e Engine) Embarrassment(ctx context.Context, ev FailureEvent) (string, error) {
	return e.speak(ctx, ev, func(fc domain.FailureContext) (string, error) {
		return e.Generator.Embarrassment(ctx, fc)
	})
}

func (e Engine) speak(ctx context.Context, ev FailureEvent, say func(domain.FailureContext) (string, error)) (string, error) {
	if !ev.FailureType.Valid() {
		return "", invalid("unknown failure type %q", ev.FailureType)
	}
	if _, err := domain.ParseEmotionalState(string(ev.Emotion)); err != nil {
		return "", invalid("%v", err)
	}
	if e.Generator == nil {
		return "", errors.New("generator not configured")
	}
	unlock := e.lockWorker(ev.WorkerID)
	defer unlock()
	w, err := e.Repo.GetWorker(ctx, ev.WorkerID)
	if err != nil {
		return "", err
	}
	prev, err := e.Repo.PreviousFailureCount(ctx, w.ID, ev.FailureType)
	if err != nil {
		return "", err
	}
	fc := domain.NewFailureContext(w.ID, ev.FailureType, ev.Score, w.Profile, prev, ev.Emotion)
	fc.WorkerName = w.Name
	line, err := say(fc)
	if err != nil && domain.IsContentDefect(err) {
		metricGenerationErrors.WithLabelValues(errorKindContent).Inc()
	}
	return line, err
}
