package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"juzgado/internal/db"
)

// Writer appends to the audit log inside the caller's transaction.
type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

const (
	CaseCreated      = "case.created"
	CaseUpdated      = "case.updated"
	CaseDeleted      = "case.deleted"
	CaseStateChanged = "case.state.changed"
	IntakeAdded      = "intake.added"
	IntakeUpdated    = "intake.updated"
	IntakeDeleted    = "intake.deleted"
	StatusAdded      = "status.added"
	StatusUpdated    = "status.updated"
	StatusDeleted    = "status.deleted"
	ActionAdded      = "action.added"
	ActionDeleted    = "action.deleted"
	QueueRecomputed  = "queue.recomputed"
	StatesRefreshed  = "states.refreshed"
	ImportCompleted  = "import.completed"
	UserCreated      = "user.created"
	APIKeyCreated    = "apikey.created"
	APIKeyRevoked    = "apikey.revoked"
	ConfigUpdated    = "config.updated"
)

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
	_, err = tx.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`),
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
