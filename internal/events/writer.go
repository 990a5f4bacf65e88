package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	WorkerSpawned        = "worker.spawned"
	PersonalityUpdated   = "worker.personality_updated"
	WorkerDespawned      = "worker.despawned"
	FailureResponded     = "failure.responded"
	FailureContentDefect = "failure.content_defect"
)

// Types lists every event type the engine writes.
var Types = []string{WorkerSpawned, PersonalityUpdated, WorkerDespawned, FailureResponded, FailureContentDefect}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append inserts one event row inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
