package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Job struct {
	bun.BaseModel `bun:"table:qhook.jobs,alias:j"`

	ID         uuid.UUID `bun:"type:uuid,pk"`
	State      string    `bun:",notnull"`
	Script     string    `bun:",notnull"`
	Parameters string    `bun:",nullzero"`
	AccessKey  string    `bun:",nullzero"`
	Source     string    `bun:",notnull"`

	Result    json.RawMessage `bun:"type:jsonb,nullzero"`
	Reasons   []string        `bun:",array"`
	Artifacts []string        `bun:",array"`

	CreatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	ScheduledAt time.Time `bun:",nullzero"`
	StartedAt   time.Time `bun:",nullzero"`
	FinishedAt  time.Time `bun:",nullzero"`
}
