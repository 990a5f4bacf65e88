package server

import (
	"encoding/json"

	"setback/internal/domain"
	"setback/internal/engine"
)

// Request payloads

type SpawnWorkerRequest struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Preset    string          `json:"preset,omitempty"`
	Profile   *domain.Profile `json:"profile,omitempty"`
	Overrides map[string]int  `json:"overrides,omitempty" doc:"Trait values applied after the preset or profile; clamped to 0..100"`
}

type SetPersonalityRequest struct {
	Preset    string          `json:"preset,omitempty"`
	Profile   *domain.Profile `json:"profile,omitempty"`
	Overrides map[string]int  `json:"overrides,omitempty"`
}

type FailureRequest struct {
	FailureType string  `json:"failure_type" enum:"tool-breakage,navigation-blocked,resource-depleted,structural-collapse,combat-loss,task-timeout,item-loss,communication-error"`
	Score       float64 `json:"score" doc:"Raw severity score; clamped to 0..100"`
	Emotion     string  `json:"emotion,omitempty" enum:"calm,anxious,frustrated,determined,ashamed,confident,hopeful"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// Responses

type WorkerResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Preset        string         `json:"preset,omitempty"`
	Profile       domain.Profile `json:"profile"`
	Archetype     string         `json:"archetype"`
	FailureCounts map[string]int `json:"failure_counts,omitempty"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
	UpdatedAt     string         `json:"updated_at" format:"date-time"`
}

type FailureResponse struct {
	WorkerID               string   `json:"worker_id"`
	FailureType            string   `json:"failure_type"`
	FailureID              int64    `json:"failure_id"`
	PreviousFailureCount   int      `json:"previous_failure_count"`
	Dialogue               string   `json:"dialogue"`
	LearningStatement      string   `json:"learning_statement,omitempty"`
	LearningID             string   `json:"learning_id,omitempty"`
	RecoveryPlan           []string `json:"recovery_plan"`
	NeedsPlayerReassurance bool     `json:"needs_player_reassurance"`
	Reassurance            string   `json:"reassurance,omitempty"`
	Severity               string   `json:"severity" enum:"minor,moderate,significant,critical"`
	Archetype              string   `json:"archetype"`
	TemplateID             string   `json:"template_id,omitempty"`
	Fallback               bool     `json:"fallback"`
	Error                  string   `json:"error,omitempty"`
}

type LineResponse struct {
	WorkerID string `json:"worker_id"`
	Text     string `json:"text"`
}

type FailureRecordResponse struct {
	ID          int64   `json:"id"`
	FailureType string  `json:"failure_type"`
	Score       float64 `json:"score"`
	Severity    string  `json:"severity"`
	TS          string  `json:"ts" format:"date-time"`
}

type LearningResponse struct {
	ID          string `json:"id"`
	FailureType string `json:"failure_type"`
	Statement   string `json:"statement"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type TemplateResponse struct {
	ID        string   `json:"id"`
	Category  string   `json:"category"`
	Archetype string   `json:"archetype,omitempty"`
	Text      string   `json:"text"`
	Variables []string `json:"variables"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type MeResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty" doc:"Only returned on creation"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type workerList struct {
	Items []WorkerResponse `json:"items"`
}

type failureList struct {
	Items []FailureRecordResponse `json:"items"`
}

type learningList struct {
	Items []LearningResponse `json:"items"`
}

type templateList struct {
	Items []TemplateResponse `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func workerResponse(w domain.Worker, archetype string) WorkerResponse {
	return WorkerResponse{
		ID:        w.ID,
		Name:      w.Name,
		Preset:    w.Preset,
		Profile:   w.Profile,
		Archetype: archetype,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func failureResponse(out engine.FailureOutcome) FailureResponse {
	plan := make([]string, 0, len(out.RecoveryPlan))
	for _, step := range out.RecoveryPlan {
		plan = append(plan, string(step))
	}
	return FailureResponse{
		WorkerID:               out.WorkerID,
		FailureType:            string(out.FailureType),
		FailureID:              out.FailureID,
		PreviousFailureCount:   out.PreviousFailureCount,
		Dialogue:               out.Dialogue,
		LearningStatement:      out.LearningStatement,
		LearningID:             out.LearningID,
		RecoveryPlan:           plan,
		NeedsPlayerReassurance: out.NeedsPlayerReassurance,
		Reassurance:            out.Reassurance,
		Severity:               out.Severity.String(),
		Archetype:              out.Archetype,
		TemplateID:             out.TemplateID,
		Fallback:               out.Fallback,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func traitOverrides(in map[string]int) map[domain.Trait]int {
	if len(in) == 0 {
		return nil
	}
	out := make(map[domain.Trait]int, len(in))
	for k, v := range in {
		out[domain.Trait(k)] = v
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
