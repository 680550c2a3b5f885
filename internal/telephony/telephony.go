// Package telephony is the boundary to the voice provider that places dealer
// calls. Call placement is synchronous; pickup and completion arrive later as
// Notifications routed to the worker that owns the call.
package telephony

import (
	"context"
	"errors"
)

// Sentinel errors for provider failures.
var (
	ErrProviderUnreachable = errors.New("telephony provider unreachable")
	ErrProviderRejected    = errors.New("telephony provider rejected call")
	ErrProviderTimeout     = errors.New("telephony provider timeout")
)

// Client places and hangs up calls.
type Client interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (Handle, error)
	// Hangup is best-effort; callers ignore everything but logging.
	Hangup(ctx context.Context, callID string) error
	Ready(ctx context.Context) error
	Name() string
}

// PlaceCallRequest describes one outbound call. CallID is generated by the
// caller so its mailbox can be registered before the provider sees the call.
type PlaceCallRequest struct {
	CallID      string
	VehicleID   string
	To          string
	Prompt      string
	Greeting    string
	CallbackURL string

	// Listing details, used by providers that script or log calls.
	Title       string
	DealerName  string
	ListedPrice float64
}

// Handle identifies a placed call.
type Handle struct {
	CallID         string
	ProviderCallID string
}

// NotificationKind is the type of an asynchronous provider event.
type NotificationKind string

const (
	NotificationAnswered  NotificationKind = "answered"
	NotificationCompleted NotificationKind = "completed"
	NotificationFailed    NotificationKind = "failed"
)

// Failure reasons reported by providers that map directly onto task reasons.
const (
	FailureNoAnswer = "no-answer"
	FailureBusy     = "busy"
)

// Notification is a pickup or completion event for one call.
type Notification struct {
	CallID          string           `json:"call_id"`
	Kind            NotificationKind `json:"event"`
	Transcript      string           `json:"transcript,omitempty"`
	DurationSeconds int              `json:"duration_seconds,omitempty"`
	FailureReason   string           `json:"failure_reason,omitempty"`
}
