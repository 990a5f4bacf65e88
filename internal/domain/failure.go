package domain

import (
	"fmt"
	"math"
)

// FailureType is the closed set of failure categories raised by the action framework.
type FailureType string

const (
	FailureToolBreakage       FailureType = "tool-breakage"
	FailureNavigationBlocked  FailureType = "navigation-blocked"
	FailureResourceDepleted   FailureType = "resource-depleted"
	FailureStructuralCollapse FailureType = "structural-collapse"
	FailureCombatLoss         FailureType = "combat-loss"
	FailureTaskTimeout        FailureType = "task-timeout"
	FailureItemLoss           FailureType = "item-loss"
	FailureCommunicationError FailureType = "communication-error"
)

// FailureTypes lists every known failure type.
var FailureTypes = []FailureType{
	FailureToolBreakage,
	FailureNavigationBlocked,
	FailureResourceDepleted,
	FailureStructuralCollapse,
	FailureCombatLoss,
	FailureTaskTimeout,
	FailureItemLoss,
	FailureCommunicationError,
}

var failureLabels = map[FailureType]string{
	FailureToolBreakage:       "broke a tool",
	FailureNavigationBlocked:  "got stuck finding a path",
	FailureResourceDepleted:   "ran out of materials",
	FailureStructuralCollapse: "let a build collapse",
	FailureCombatLoss:         "lost a fight",
	FailureTaskTimeout:        "ran out of time on a task",
	FailureItemLoss:           "lost important items",
	FailureCommunicationError: "misunderstood instructions",
}

// Valid reports whether f is a known failure type.
func (f FailureType) Valid() bool {
	_, ok := failureLabels[f]
	return ok
}

// Label is the human phrase bound to {failure_label}.
func (f FailureType) Label() string {
	if l, ok := failureLabels[f]; ok {
		return l
	}
	return string(f)
}

// ParseFailureType validates s against the closed set.
func ParseFailureType(s string) (FailureType, error) {
	f := FailureType(s)
	if !f.Valid() {
		return "", fmt.Errorf("unknown failure type %q", s)
	}
	return f, nil
}

// Category groups response templates.
type Category string

const (
	CategoryTaskAssignment       Category = "task-assignment"
	CategoryWorkingComment       Category = "working-comment"
	CategoryCompletion           Category = "completion"
	CategoryError                Category = "error"
	CategoryDanger               Category = "danger"
	CategoryBureaucraticObstacle Category = "bureaucratic-obstacle"
	CategoryLearning             Category = "learning"
	CategoryReassurance          Category = "reassurance"
	CategoryHelpRequest          Category = "help-request"
	CategoryEmbarrassment        Category = "embarrassment"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryTaskAssignment,
	CategoryWorkingComment,
	CategoryCompletion,
	CategoryError,
	CategoryDanger,
	CategoryBureaucraticObstacle,
	CategoryLearning,
	CategoryReassurance,
	CategoryHelpRequest,
	CategoryEmbarrassment,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// SeverityBand is the coarse classification of a failure's impact.
type SeverityBand int

const (
	SeverityMinor SeverityBand = iota
	SeverityModerate
	SeveritySignificant
	SeverityCritical
)

func (b SeverityBand) String() string {
	switch b {
	case SeverityMinor:
		return "minor"
	case SeverityModerate:
		return "moderate"
	case SeveritySignificant:
		return "significant"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", int(b))
}

// MarshalText renders the band label in JSON and YAML.
func (b SeverityBand) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText parses a band label.
func (b *SeverityBand) UnmarshalText(text []byte) error {
	switch string(text) {
	case "minor":
		*b = SeverityMinor
	case "moderate":
		*b = SeverityModerate
	case "significant":
		*b = SeveritySignificant
	case "critical":
		*b = SeverityCritical
	default:
		return fmt.Errorf("unknown severity band %q", string(text))
	}
	return nil
}

// EmotionalState is an optional mood hint. The zero value means absent.
type EmotionalState string

const (
	EmotionNone       EmotionalState = ""
	EmotionCalm       EmotionalState = "calm"
	EmotionAnxious    EmotionalState = "anxious"
	EmotionFrustrated EmotionalState = "frustrated"
	EmotionDetermined EmotionalState = "determined"
	EmotionAshamed    EmotionalState = "ashamed"
	EmotionConfident  EmotionalState = "confident"
	EmotionHopeful    EmotionalState = "hopeful"
)

var emotionPhrases = map[EmotionalState]string{
	EmotionCalm:       "staying calm",
	EmotionAnxious:    "a bit rattled",
	EmotionFrustrated: "pretty frustrated",
	EmotionDetermined: "determined",
	EmotionAshamed:    "embarrassed",
	EmotionConfident:  "still confident",
	EmotionHopeful:    "hopeful",
}

// ParseEmotionalState accepts "" as absent.
func ParseEmotionalState(s string) (EmotionalState, error) {
	e := EmotionalState(s)
	if e == EmotionNone {
		return e, nil
	}
	if _, ok := emotionPhrases[e]; !ok {
		return "", fmt.Errorf("unknown emotional state %q", s)
	}
	return e, nil
}

// Phrase is the text bound to {emotion}; empty when absent.
func (e EmotionalState) Phrase() string {
	return emotionPhrases[e]
}

// RecoveryStep is an abstract corrective action the caller may execute.
type RecoveryStep string

// ResponseTemplate is one parameterised line of dialogue.
type ResponseTemplate struct {
	ID           string   `json:"id" yaml:"id"`
	Category     Category `json:"category" yaml:"category"`
	ArchetypeTag string   `json:"archetype,omitempty" yaml:"archetype"`
	Text         string   `json:"text" yaml:"text"`
}

// FailureContext describes one failure event for one worker. Build it with
// NewFailureContext so numeric inputs are clamped.
type FailureContext struct {
	WorkerID             string
	WorkerName           string // bound to {worker}; WorkerID when empty
	FailureType          FailureType
	RawSeverityScore     float64
	Personality          Profile
	PreviousFailureCount int
	EmotionalState       EmotionalState
}

// NewFailureContext clamps the score into [0,100], the count to >= 0 and the profile.
func NewFailureContext(workerID string, ft FailureType, score float64, p Profile, previous int, mood EmotionalState) FailureContext {
	if math.IsNaN(score) {
		score = 0
	}
	if previous < 0 {
		previous = 0
	}
	return FailureContext{
		WorkerID:             workerID,
		FailureType:          ft,
		RawSeverityScore:     math.Max(0, math.Min(100, score)),
		Personality:          p.Clamp(),
		PreviousFailureCount: previous,
		EmotionalState:       mood,
	}
}

// FailureResponse is the rendered outcome of one failure event.
type FailureResponse struct {
	Dialogue               string         `json:"dialogue"`
	LearningStatement      string         `json:"learning_statement"`
	RecoveryPlan           []RecoveryStep `json:"recovery_plan"`
	NeedsPlayerReassurance bool           `json:"needs_player_reassurance"`
	Reassurance            string         `json:"reassurance,omitempty"`
	Severity               SeverityBand   `json:"severity"`
	Archetype              string         `json:"archetype"`
	TemplateID             string         `json:"template_id"`
}
