package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ActorSystem is recorded for actions taken by scheduled jobs.
const ActorSystem = "system"

// EventLog rows are append-only.
type EventLog struct {
	bun.BaseModel `bun:"table:event_logs"`

	ID         string         `bun:"id,pk" json:"id"`
	ActorID    string         `bun:"actor_id,notnull" json:"actor_id"`
	Action     string         `bun:"action,notnull" json:"action"`
	EntityType string         `bun:"entity_type,notnull" json:"entity_type"`
	EntityID   string         `bun:"entity_id,notnull" json:"entity_id"`
	Reason     string         `bun:"reason,nullzero" json:"reason,omitempty"`
	Metadata   map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time      `bun:"created_at,notnull" json:"created_at"`
}
