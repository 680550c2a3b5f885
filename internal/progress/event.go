// Package progress implements the ordered event log that carries outreach
// progress from dispatcher workers to the one client watching the run.
package progress

import "github.com/kiranshivaraju/dealerdial/pkg/models"

// EventType is the SSE event name.
type EventType string

const (
	EventStart         EventType = "start"
	EventCalling       EventType = "calling"
	EventCallConnected EventType = "call_connected"
	EventCallComplete  EventType = "call_complete"
	EventCallFailed    EventType = "call_failed"
	EventSummaryReady  EventType = "summary_ready"
	EventRanking       EventType = "ranking"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
)

// Event is one entry of the stream. Seq is assigned by the stream at publish
// time and is strictly increasing.
type Event struct {
	Seq  uint64
	Type EventType
	Data any
}

// Start is the payload of EventStart.
type Start struct {
	TotalVehicles int              `json:"total_vehicles"`
	AllVehicles   []models.Vehicle `json:"all_vehicles"`
	Message       string           `json:"message"`
}

// Calling is the payload of EventCalling.
type Calling struct {
	VehicleID  string   `json:"vehicle_id"`
	DealerName string   `json:"dealer_name"`
	Title      string   `json:"title"`
	ImageURLs  []string `json:"image_urls"`
	Index      int      `json:"index"`
	Total      int      `json:"total"`
	Message    string   `json:"message"`
}

type CallConnected struct {
	VehicleID string `json:"vehicle_id"`
	CallID    string `json:"call_id"`
	Message   string `json:"message"`
}

type CallComplete struct {
	VehicleID       string `json:"vehicle_id"`
	DealerName      string `json:"dealer_name"`
	TranscriptText  string `json:"transcript_text"`
	DurationSeconds int    `json:"duration_seconds"`
	Message         string `json:"message"`
}

// CallFailed carries the machine-readable reason plus the underlying error text.
type CallFailed struct {
	VehicleID string `json:"vehicle_id"`
	Reason    string `json:"reason"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message"`
}

type SummaryReady struct {
	VehicleID  string              `json:"vehicle_id"`
	DealerName string              `json:"dealer_name"`
	Summary    *models.CallSummary `json:"summary"`
	Message    string              `json:"message"`
}

type Ranking struct {
	Message string `json:"message"`
}

// Complete is the terminal payload. The JSON name is kept as top3 for
// existing clients even when TopN is configured differently. AllSummaries
// holds every summary by vehicle id, ranked or not.
type Complete struct {
	Top          []models.RankedVehicle         `json:"top3"`
	AllSummaries map[string]*models.CallSummary `json:"all_summaries"`
	Message      string                         `json:"message"`
}

type Error struct {
	Message string `json:"message"`
}
