package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// AnalysisRunRecord is the persisted form of one outreach run. The live
// aggregate is outreach.Run; this row is written at start and finish.
type AnalysisRunRecord struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	SessionID    uuid.UUID       `db:"session_id"    json:"session_id"`
	AccountID    uuid.UUID       `db:"account_id"    json:"account_id"`
	Status       string          `db:"status"        json:"status"`
	TotalTasks   int             `db:"total_tasks"   json:"total_tasks"`
	TopN         []RankedVehicle `db:"top_n"         json:"top_n,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	StartedAt    time.Time       `db:"started_at"    json:"started_at"`
	CompletedAt  *time.Time      `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"    json:"updated_at"`
}
