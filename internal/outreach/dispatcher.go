package outreach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/dealerdial/internal/progress"
	"github.com/kiranshivaraju/dealerdial/internal/telephony"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
	"github.com/kiranshivaraju/dealerdial/pkg/phone"
)

const hangupTimeout = 5 * time.Second

// Summarizer turns a completed call's transcript into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string, vehicle models.Vehicle) (*models.CallSummary, error)
}

// DispatcherConfig bounds how calls are placed.
type DispatcherConfig struct {
	Concurrency int
	TaskTimeout time.Duration
	CancelGrace time.Duration
	Region      string
	CallbackURL string
}

// Dispatcher drives every CallTask of a run through its lifecycle with at
// most Concurrency calls in flight.
type Dispatcher struct {
	phone      telephony.Client
	router     *telephony.Router
	summarizer Summarizer
	limiter    *rate.Limiter
	cfg        DispatcherConfig
}

// NewDispatcher creates a Dispatcher. limiter paces call placement across
// all runs sharing it; nil disables pacing.
func NewDispatcher(client telephony.Client, router *telephony.Router, summarizer Summarizer, limiter *rate.Limiter, cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Dispatcher{
		phone:      client,
		router:     router,
		summarizer: summarizer,
		limiter:    limiter,
		cfg:        cfg,
	}
}

// Run blocks until every task is terminal, or until ctx ends and the cancel
// grace has elapsed. Tasks still in flight after the grace are failed here
// with the reason matching why ctx ended.
func (d *Dispatcher) Run(ctx context.Context, tasks []*CallTask, stream *progress.Stream) {
	done := make(chan struct{})

	go func() {
		defer close(done)

		var g errgroup.Group
		g.SetLimit(d.cfg.Concurrency)
		for _, t := range tasks {
			g.Go(func() error {
				d.work(ctx, t, len(tasks), stream)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	grace := time.NewTimer(d.cfg.CancelGrace)
	defer grace.Stop()

	select {
	case <-done:
	case <-grace.C:
		reason := abortReason(ctx)
		for _, t := range tasks {
			if t.Status().Terminal() {
				continue
			}
			slog.Warn("force-failing call task after grace period",
				"vehicle_id", t.Vehicle.VehicleID,
				"reason", reason,
			)
			d.fail(t, stream, reason, ctx.Err())
		}
	}
}

func (d *Dispatcher) work(ctx context.Context, t *CallTask, total int, stream *progress.Stream) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in call worker",
				"error", r,
				"vehicle_id", t.Vehicle.VehicleID,
				"stack", string(debug.Stack()),
			)
			d.fail(t, stream, ReasonProviderError, fmt.Errorf("internal error: %v", r))
		}
	}()

	if ctx.Err() != nil {
		d.fail(t, stream, abortReason(ctx), ctx.Err())
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
	defer cancel()

	// Every task that starts emits calling; pacing and number checks fail
	// it from dialing.
	callID := uuid.NewString()
	err := t.Dial(t.Vehicle.DealerPhone, callID, func() {
		d.publish(stream, progress.EventCalling, progress.Calling{
			VehicleID:  t.Vehicle.VehicleID,
			DealerName: t.Vehicle.DealerName,
			Title:      t.Vehicle.Title,
			ImageURLs:  t.Vehicle.ImageURLs,
			Index:      t.Index,
			Total:      total,
			Message:    fmt.Sprintf("Calling %s about the %s (%d/%d)...", dealerLabel(t), titleOf(t.Vehicle), t.Index, total),
		})
	})
	if err != nil {
		return
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(taskCtx); err != nil {
			d.fail(t, stream, abortReason(ctx), err)
			return
		}
	}

	number, err := phone.NormalizeE164(t.Vehicle.DealerPhone, d.cfg.Region)
	if err != nil {
		d.fail(t, stream, ReasonInvalidNumber, fmt.Errorf("%w: %q", err, t.Vehicle.DealerPhone))
		return
	}
	t.SetDialedNumber(number)

	inbox, unregister := d.router.Register(callID)
	defer unregister()

	slog.Info("placing dealer call",
		"vehicle_id", t.Vehicle.VehicleID,
		"call_id", callID,
		"to", phone.Mask(number),
	)
	_, err = d.phone.PlaceCall(taskCtx, telephony.PlaceCallRequest{
		CallID:      callID,
		VehicleID:   t.Vehicle.VehicleID,
		To:          number,
		Prompt:      t.Script.Prompt,
		Greeting:    t.Script.Greeting,
		CallbackURL: d.cfg.CallbackURL,
		Title:       t.Vehicle.Title,
		DealerName:  t.Vehicle.DealerName,
		ListedPrice: t.Vehicle.Price,
	})
	if err != nil {
		if taskCtx.Err() != nil {
			d.abort(ctx, t, stream, callID, taskCtx.Err())
			return
		}
		d.fail(t, stream, ReasonProviderError, err)
		return
	}

	for done := false; !done; {
		select {
		case n := <-inbox:
			done = d.handle(t, n, stream)
		case <-taskCtx.Done():
			d.abort(ctx, t, stream, callID, taskCtx.Err())
			return
		}
	}

	if t.Status() == StatusCompleted {
		d.summarize(ctx, t, stream)
	}
}

// handle applies one provider notification and reports whether the call
// reached a terminal state.
func (d *Dispatcher) handle(t *CallTask, n telephony.Notification, stream *progress.Stream) bool {
	switch n.Kind {
	case telephony.NotificationAnswered:
		_ = d.connect(t, n.CallID, stream)
		return false

	case telephony.NotificationCompleted:
		// A completion without a prior pickup implies the pickup.
		if t.Status() == StatusDialing {
			_ = d.connect(t, n.CallID, stream)
		}
		err := t.Complete(n.Transcript, n.DurationSeconds, func() {
			d.publish(stream, progress.EventCallComplete, progress.CallComplete{
				VehicleID:       t.Vehicle.VehicleID,
				DealerName:      t.Vehicle.DealerName,
				TranscriptText:  n.Transcript,
				DurationSeconds: n.DurationSeconds,
				Message:         fmt.Sprintf("Call with %s finished (%ds).", dealerLabel(t), n.DurationSeconds),
			})
		})
		if err != nil {
			slog.Warn("dropping completion", "vehicle_id", t.Vehicle.VehicleID, "call_id", n.CallID, "error", err)
		}
		return true

	case telephony.NotificationFailed:
		d.fail(t, stream, providerReason(n.FailureReason), errors.New(n.FailureReason))
		return true

	default:
		slog.Warn("ignoring unknown call notification", "call_id", n.CallID, "event", n.Kind)
		return false
	}
}

func (d *Dispatcher) connect(t *CallTask, callID string, stream *progress.Stream) error {
	return t.Connect(func() {
		d.publish(stream, progress.EventCallConnected, progress.CallConnected{
			VehicleID: t.Vehicle.VehicleID,
			CallID:    callID,
			Message:   fmt.Sprintf("Connected to %s.", dealerLabel(t)),
		})
	})
}

func (d *Dispatcher) summarize(ctx context.Context, t *CallTask, stream *progress.Stream) {
	snap := t.Snapshot()
	summary, err := d.summarizer.Summarize(ctx, snap.Transcript, t.Vehicle)
	if err != nil {
		slog.Warn("call summary failed",
			"vehicle_id", t.Vehicle.VehicleID,
			"call_id", snap.CallID,
			"error", err,
		)
		return
	}

	err = t.AttachSummary(summary, func() {
		d.publish(stream, progress.EventSummaryReady, progress.SummaryReady{
			VehicleID:  t.Vehicle.VehicleID,
			DealerName: t.Vehicle.DealerName,
			Summary:    summary,
			Message:    fmt.Sprintf("Summary ready for %s.", dealerLabel(t)),
		})
	})
	if err != nil {
		slog.Info("discarding late summary", "vehicle_id", t.Vehicle.VehicleID, "error", err)
	}
}

// abort ends a call whose context finished: hang up, then fail the task.
// ctx is the run context; a live run context means the task itself timed out.
func (d *Dispatcher) abort(ctx context.Context, t *CallTask, stream *progress.Stream, callID string, cause error) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hangupTimeout)
	defer cancel()
	if err := d.phone.Hangup(hctx, callID); err != nil {
		slog.Warn("hangup failed", "vehicle_id", t.Vehicle.VehicleID, "call_id", callID, "error", err)
	}

	d.fail(t, stream, abortReason(ctx), cause)
}

func (d *Dispatcher) fail(t *CallTask, stream *progress.Stream, reason string, cause error) {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	err := t.Fail(reason, cause, func() {
		d.publish(stream, progress.EventCallFailed, progress.CallFailed{
			VehicleID: t.Vehicle.VehicleID,
			Reason:    reason,
			Error:     errText,
			Message:   fmt.Sprintf("Could not reach %s (%s).", dealerLabel(t), reason),
		})
	})
	if err == nil {
		slog.Info("dealer call failed", "vehicle_id", t.Vehicle.VehicleID, "reason", reason, "error", errText)
	}
}

func (d *Dispatcher) publish(stream *progress.Stream, typ progress.EventType, data any) {
	err := stream.Publish(progress.Event{Type: typ, Data: data})
	switch {
	case err == nil, errors.Is(err, progress.ErrClosed):
	default:
		slog.Warn("progress publish failed", "event", typ, "error", err)
	}
}

// abortReason maps why a run context ended onto a task failure reason.
func abortReason(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ReasonCancelled
	}
	return ReasonTimeout
}

func providerReason(r string) string {
	switch r {
	case telephony.FailureNoAnswer:
		return ReasonNoAnswer
	case telephony.FailureBusy:
		return ReasonBusy
	default:
		return ReasonProviderError
	}
}

func dealerLabel(t *CallTask) string {
	if t.Vehicle.DealerName != "" {
		return t.Vehicle.DealerName
	}
	return "the dealer"
}
