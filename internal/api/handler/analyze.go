package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/kiranshivaraju/dealerdial/internal/api/middleware"
	"github.com/kiranshivaraju/dealerdial/internal/api/response"
	"github.com/kiranshivaraju/dealerdial/internal/outreach"
	"github.com/kiranshivaraju/dealerdial/internal/progress"
)

// DefaultKeepalive is how often an idle event stream gets a comment frame.
const DefaultKeepalive = 15 * time.Second

// Analyzer is the outreach service surface used by the analyze endpoints.
type Analyzer interface {
	Start(ctx context.Context, sessionID, accountID uuid.UUID) (*outreach.Run, *progress.Subscription, error)
	Attach(sessionID, accountID uuid.UUID) (*outreach.Run, *progress.Subscription, error)
	Cancel(sessionID, accountID uuid.UUID) (*outreach.Run, error)
	Latest(ctx context.Context, sessionID, accountID uuid.UUID) (*outreach.RunView, error)
}

// AnalyzeHandler serves /api/v1/sessions/{sessionID}/analyze.
type AnalyzeHandler struct {
	svc       Analyzer
	keepalive time.Duration
}

// NewAnalyzeHandler returns the analyze endpoints. A non-positive keepalive
// uses DefaultKeepalive.
func NewAnalyzeHandler(svc Analyzer, keepalive time.Duration) *AnalyzeHandler {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &AnalyzeHandler{svc: svc, keepalive: keepalive}
}

// Trigger handles POST: starts a run and streams its progress as SSE.
// Rejections happen before the stream opens so they keep a JSON body.
func (h *AnalyzeHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	accountID, sessionID, ok := runTarget(w, r)
	if !ok {
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		response.Error(w, http.StatusInternalServerError,
			"STREAMING_UNSUPPORTED", "Streaming is not supported by this connection", nil)
		return
	}

	run, sub, err := h.svc.Start(r.Context(), sessionID, accountID)
	if err != nil {
		writeRunError(w, err)
		return
	}

	h.stream(w, r, run, sub)
}

// Status handles GET. Clients asking for text/event-stream are re-attached
// to the active run; everyone else gets a JSON snapshot.
func (h *AnalyzeHandler) Status(w http.ResponseWriter, r *http.Request) {
	accountID, sessionID, ok := runTarget(w, r)
	if !ok {
		return
	}

	if wantsEventStream(r) {
		run, sub, err := h.svc.Attach(sessionID, accountID)
		if err != nil {
			writeRunError(w, err)
			return
		}
		h.stream(w, r, run, sub)
		return
	}

	view, err := h.svc.Latest(r.Context(), sessionID, accountID)
	if err != nil {
		writeRunError(w, err)
		return
	}
	response.JSON(w, view)
}

// Cancel handles DELETE. Workers stop asynchronously; the run is persisted
// as cancelled once they have.
func (h *AnalyzeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	accountID, sessionID, ok := runTarget(w, r)
	if !ok {
		return
	}

	run, err := h.svc.Cancel(sessionID, accountID)
	if err != nil {
		writeRunError(w, err)
		return
	}
	response.Accepted(w, map[string]any{
		"run_id":     run.ID,
		"session_id": run.SessionID,
		"status":     "cancelling",
	})
}

func (h *AnalyzeHandler) stream(w http.ResponseWriter, r *http.Request, run *outreach.Run, sub *progress.Subscription) {
	defer sub.Unsubscribe()

	ew, err := response.NewEventWriter(w)
	if err != nil {
		slog.Error("open event stream", "run_id", run.ID, "error", err)
		sub.Unsubscribe()
		run.Cancel()
		return
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					slog.Info("event stream detached", "run_id", run.ID, "reason", err)
				}
				return
			}
			if err := ew.Event(string(e.Type), e.Data); err != nil {
				h.disconnected(run, sub, err)
				return
			}
		case <-ticker.C:
			if err := ew.Comment("ping"); err != nil {
				h.disconnected(run, sub, err)
				return
			}
		case <-r.Context().Done():
			h.disconnected(run, sub, r.Context().Err())
			return
		}
	}
}

// disconnected cancels the run when its watching client goes away, unless a
// newer client has already taken over the stream. The subscription is
// released first so a publisher blocked on it does not hold up the cancel.
func (h *AnalyzeHandler) disconnected(run *outreach.Run, sub *progress.Subscription, cause error) {
	sub.Unsubscribe()
	if errors.Is(sub.Err(), progress.ErrReplaced) {
		return
	}
	slog.Info("client disconnected, cancelling run",
		"run_id", run.ID,
		"session_id", run.SessionID,
		"error", cause,
	)
	run.Cancel()
}

func runTarget(w http.ResponseWriter, r *http.Request) (accountID, sessionID uuid.UUID, ok bool) {
	accountID, ok = mw.GetAccountID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "sessionID must be a valid UUID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return accountID, sessionID, true
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, outreach.ErrSessionNotFound):
		response.Error(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	case errors.Is(err, outreach.ErrEmptyShortlist):
		response.Error(w, http.StatusUnprocessableEntity, "EMPTY_SHORTLIST",
			"Session has no shortlisted vehicles to call", nil)
	case errors.Is(err, outreach.ErrRunActive):
		response.Error(w, http.StatusConflict, "RUN_ACTIVE",
			"An analysis is already running for this session", nil)
	case errors.Is(err, outreach.ErrNoActiveRun):
		response.Error(w, http.StatusNotFound, "NO_ACTIVE_RUN", "No analysis is running for this session", nil)
	case errors.Is(err, outreach.ErrNoRun):
		response.Error(w, http.StatusNotFound, "NO_RUN", "No analysis has been run for this session", nil)
	default:
		slog.Error("analyze request failed", "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
