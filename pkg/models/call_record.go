package models

import (
	"time"

	"github.com/google/uuid"
)

// CallRecord is the persisted outcome of one CallTask.
type CallRecord struct {
	ID              uuid.UUID    `db:"id"               json:"id"`
	RunID           uuid.UUID    `db:"run_id"           json:"run_id"`
	SessionID       uuid.UUID    `db:"session_id"       json:"session_id"`
	VehicleID       string       `db:"vehicle_id"       json:"vehicle_id"`
	CallID          string       `db:"call_id"          json:"call_id,omitempty"`
	DealerPhone     string       `db:"dealer_phone"     json:"dealer_phone"`
	Status          string       `db:"status"           json:"status"`
	FailureReason   *string      `db:"failure_reason"   json:"failure_reason,omitempty"`
	Transcript      string       `db:"transcript"       json:"transcript"`
	TranscriptKey   *string      `db:"transcript_key"   json:"transcript_key,omitempty"`
	DurationSeconds int          `db:"duration_seconds" json:"duration_seconds"`
	Summary         *CallSummary `db:"summary"          json:"summary,omitempty"`
	CreatedAt       time.Time    `db:"created_at"       json:"created_at"`
}
