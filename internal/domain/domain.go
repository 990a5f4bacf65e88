package domain

// Worker is a spawned AI worker and the personality it owns.
type Worker struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Preset    string  `json:"preset,omitempty"`
	Profile   Profile `json:"profile"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type FailureRecord struct {
	ID          int64   `json:"id"`
	WorkerID    string  `json:"worker_id"`
	FailureType string  `json:"failure_type"`
	Score       float64 `json:"score"`
	Severity    string  `json:"severity"`
	TS          string  `json:"ts" format:"date-time"`
}

type Learning struct {
	ID          string `json:"id"`
	WorkerID    string `json:"worker_id"`
	FailureType string `json:"failure_type"`
	Statement   string `json:"statement"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates an API client. Only the hash is stored.
type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
