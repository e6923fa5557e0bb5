package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
)

// TurnRecord is one persisted dialogue turn. The turn log is append-only and
// feeds offline review of what the assistant said and why.
type TurnRecord struct {
	ID             uuid.UUID                         `db:"id" json:"id"`
	ConversationID string                            `db:"conversation_id" json:"conversation_id"`
	CustomerID     *int64                            `db:"customer_id" json:"customer_id,omitempty"`
	Intent         string                            `db:"intent" json:"intent"`
	Confidence     float64                           `db:"confidence" json:"confidence"`
	UserText       string                            `db:"user_text" json:"user_text"`
	Action         string                            `db:"action" json:"action"`
	Outcome        string                            `db:"outcome" json:"outcome"`
	ReplyText      string                            `db:"reply_text" json:"reply_text"`
	Entities       database.JSONB[map[string]string] `db:"entities" json:"entities"`
	DurationMs     int64                             `db:"duration_ms" json:"duration_ms"`
	TraceID        string                            `db:"trace_id" json:"trace_id,omitempty"`
	CreatedAt      time.Time                         `db:"created_at" json:"created_at"`
}
