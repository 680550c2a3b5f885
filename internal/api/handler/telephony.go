package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/dealerdial/internal/api/response"
	"github.com/kiranshivaraju/dealerdial/internal/telephony"
)

// SecretHeader carries the shared secret on provider notifications.
const SecretHeader = "X-Telephony-Secret"

const maxNotificationBytes = 1 << 20

// Deliverer routes a provider notification to the worker waiting on it.
type Deliverer interface {
	Deliver(n telephony.Notification) error
}

type telephonyEvent struct {
	CallID          string `json:"call_id" validate:"required,max=128"`
	Event           string `json:"event" validate:"required,oneof=answered completed failed"`
	Transcript      string `json:"transcript"`
	DurationSeconds int    `json:"duration_seconds" validate:"gte=0"`
	FailureReason   string `json:"failure_reason" validate:"max=256"`
}

// NewTelephonyEventsHandler returns the handler for POST /api/v1/telephony/events.
// With an empty secret the endpoint refuses every notification.
func NewTelephonyEventsHandler(router Deliverer, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			response.Error(w, http.StatusServiceUnavailable, "WEBHOOK_DISABLED",
				"Telephony notifications are not enabled", nil)
			return
		}
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.Error(w, http.StatusUnauthorized, "INVALID_SECRET", "Invalid telephony secret", nil)
			return
		}

		var req telephonyEvent
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
		if err := dec.Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if err := validate.Struct(req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"Invalid telephony notification", validationDetails(err))
			return
		}

		err := router.Deliver(telephony.Notification{
			CallID:          req.CallID,
			Kind:            telephony.NotificationKind(req.Event),
			Transcript:      req.Transcript,
			DurationSeconds: req.DurationSeconds,
			FailureReason:   req.FailureReason,
		})
		switch {
		case err == nil:
			response.NoContent(w)
		case errors.Is(err, telephony.ErrUnknownCall):
			// Late notifications for calls that already timed out land here.
			slog.Info("notification for unknown call", "call_id", req.CallID, "event", req.Event)
			response.Error(w, http.StatusNotFound, "UNKNOWN_CALL", "No call is waiting on this id", nil)
		case errors.Is(err, telephony.ErrMailboxFull):
			slog.Warn("call mailbox full", "call_id", req.CallID, "event", req.Event)
			response.Error(w, http.StatusServiceUnavailable, "MAILBOX_FULL", "Call is not accepting notifications", nil)
		default:
			slog.Error("deliver notification", "call_id", req.CallID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		}
	}
}
