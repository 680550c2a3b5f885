package outreach

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// Status is the lifecycle state of one dealer call.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDialing   Status = "dialing"
	StatusConnected Status = "connected"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Failure reasons carried by call_failed events.
const (
	ReasonNoAnswer      = "no-answer"
	ReasonBusy          = "busy"
	ReasonProviderError = "provider-error"
	ReasonTimeout       = "timeout"
	ReasonCancelled     = "cancelled"
	ReasonInvalidNumber = "invalid-number"
)

// ErrInvalidTransition is returned when a status change breaks the lifecycle.
var ErrInvalidTransition = errors.New("invalid call status transition")

// ErrTaskSealed is returned when a late result arrives after ranking began.
var ErrTaskSealed = errors.New("call task sealed")

var validTransitions = map[Status][]Status{
	StatusPending:   {StatusDialing, StatusFailed},
	StatusDialing:   {StatusConnected, StatusFailed},
	StatusConnected: {StatusCompleted, StatusFailed},
}

// CallTask tracks one vehicle's call. The listing fields are fixed at
// creation; everything else changes under mu. Callers that publish progress
// do so from the emit callbacks so a transition and its event are observed
// in the same order on every task.
type CallTask struct {
	Vehicle models.Vehicle
	Script  Script
	Index   int

	mu            sync.Mutex
	status        Status
	dialed        string
	callID        string
	transcript    string
	duration      int
	summary       *models.CallSummary
	failureReason string
	failureError  string
	sealed        bool
	updatedAt     time.Time
}

// NewCallTask creates a pending task. index is the 1-based dispatch position.
func NewCallTask(v models.Vehicle, script Script, index int) *CallTask {
	return &CallTask{
		Vehicle:   v,
		Script:    script,
		Index:     index,
		status:    StatusPending,
		updatedAt: time.Now().UTC(),
	}
}

// TaskSnapshot is a consistent copy of a task's mutable state.
type TaskSnapshot struct {
	VehicleID       string              `json:"vehicle_id"`
	DealerName      string              `json:"dealer_name"`
	DealerPhone     string              `json:"dealer_phone"`
	Status          Status              `json:"status"`
	CallID          string              `json:"call_id,omitempty"`
	Transcript      string              `json:"transcript_text,omitempty"`
	DurationSeconds int                 `json:"duration_seconds,omitempty"`
	Summary         *models.CallSummary `json:"summary,omitempty"`
	FailureReason   string              `json:"failure_reason,omitempty"`
	Error           string              `json:"error,omitempty"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Snapshot returns the task's current state.
func (t *CallTask) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	phone := t.dialed
	if phone == "" {
		phone = t.Vehicle.DealerPhone
	}
	return TaskSnapshot{
		VehicleID:       t.Vehicle.VehicleID,
		DealerName:      t.Vehicle.DealerName,
		DealerPhone:     phone,
		Status:          t.status,
		CallID:          t.callID,
		Transcript:      t.transcript,
		DurationSeconds: t.duration,
		Summary:         t.summary,
		FailureReason:   t.failureReason,
		Error:           t.failureError,
		UpdatedAt:       t.updatedAt,
	}
}

// Status returns the current status.
func (t *CallTask) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Dial moves pending to dialing, recording the number as listed and the
// call id the provider will report back with.
func (t *CallTask) Dial(phone, callID string, emit func()) error {
	return t.transition(StatusDialing, emit, func() {
		t.dialed = phone
		t.callID = callID
	})
}

// SetDialedNumber records the normalized number actually dialed.
func (t *CallTask) SetDialedNumber(number string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialed = number
	t.updatedAt = time.Now().UTC()
}

// Connect moves dialing to connected.
func (t *CallTask) Connect(emit func()) error {
	return t.transition(StatusConnected, emit, nil)
}

// Complete moves connected to completed and stores the transcript.
func (t *CallTask) Complete(transcript string, duration int, emit func()) error {
	return t.transition(StatusCompleted, emit, func() {
		t.transcript = transcript
		t.duration = duration
	})
}

// Fail moves any non-terminal task to failed.
func (t *CallTask) Fail(reason string, cause error, emit func()) error {
	return t.transition(StatusFailed, emit, func() {
		t.failureReason = reason
		if cause != nil {
			t.failureError = cause.Error()
		}
	})
}

// AttachSummary stores the summary of a completed call. It is refused once
// the task is sealed for ranking.
func (t *CallTask) AttachSummary(s *models.CallSummary, emit func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return ErrTaskSealed
	}
	if t.status != StatusCompleted {
		return fmt.Errorf("%w: summary on %s task", ErrInvalidTransition, t.status)
	}
	t.summary = s
	t.updatedAt = time.Now().UTC()
	if emit != nil {
		emit()
	}
	return nil
}

// Seal freezes the task. A non-terminal task is failed with reason, without
// an event, so the ranking sees a terminal state.
func (t *CallTask) Seal(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.status.Terminal() {
		t.status = StatusFailed
		t.failureReason = reason
		t.updatedAt = time.Now().UTC()
	}
	t.sealed = true
}

func (t *CallTask) transition(to Status, emit func(), apply func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return ErrTaskSealed
	}
	allowed := validTransitions[t.status]
	valid := false
	for _, a := range allowed {
		if a == to {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.status, to)
	}

	t.status = to
	t.updatedAt = time.Now().UTC()
	if apply != nil {
		apply()
	}
	if emit != nil {
		emit()
	}
	return nil
}
