package outreach_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/dealerdial/internal/outreach"
	"github.com/kiranshivaraju/dealerdial/internal/progress"
	"github.com/kiranshivaraju/dealerdial/internal/telephony"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

func ptr[T any](v T) *T { return &v }

// vehicles builds n shortlisted listings with valid US dealer numbers.
func vehicles(n int) []models.Vehicle {
	out := make([]models.Vehicle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Vehicle{
			VehicleID:    fmt.Sprintf("v%d", i+1),
			Title:        fmt.Sprintf("2020 Toyota Camry #%d", i+1),
			Price:        20000 + float64(i)*1000,
			DealerName:   fmt.Sprintf("Dealer %d", i+1),
			DealerPhone:  fmt.Sprintf("(650) 253-%04d", i),
			PreCallScore: 80 - float64(i),
			Shortlisted:  true,
		})
	}
	return out
}

func tasksFor(vs []models.Vehicle) []*outreach.CallTask {
	tasks := make([]*outreach.CallTask, 0, len(vs))
	for i, v := range vs {
		tasks = append(tasks, outreach.NewCallTask(v, outreach.BuildScript(v, models.Preferences{}), i+1))
	}
	return tasks
}

// quickCall answers and completes immediately.
func quickCall(req telephony.PlaceCallRequest) telephony.Outcome {
	return telephony.Outcome{
		Transcript: "Dealer: Yes, the " + req.Title + " is still here.",
		Duration:   60,
	}
}

// fakeSummarizer returns a fixed summary unless fn is set.
type fakeSummarizer struct {
	fn    func(transcript string, v models.Vehicle) (*models.CallSummary, error)
	calls atomic.Int64
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript string, v models.Vehicle) (*models.CallSummary, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(transcript, v)
	}
	best := v.Price * 0.9
	return &models.CallSummary{
		IsAvailable:    ptr(true),
		Pricing:        models.Pricing{ListedPrice: v.Price, BestQuotedPrice: &best},
		RedFlags:       []string{},
		KeyTakeaways:   transcript,
		Recommendation: models.RecommendationWorthVisiting,
	}, nil
}

// countingClient completes every call after delay without a separate pickup
// notification and records the peak number of calls in flight.
type countingClient struct {
	router   *telephony.Router
	delay    time.Duration
	mu       sync.Mutex
	inflight int
	peak     int
}

func (c *countingClient) Name() string { return "counting" }

func (c *countingClient) Ready(context.Context) error { return nil }

func (c *countingClient) Hangup(context.Context, string) error { return nil }

func (c *countingClient) PlaceCall(_ context.Context, req telephony.PlaceCallRequest) (telephony.Handle, error) {
	c.mu.Lock()
	c.inflight++
	if c.inflight > c.peak {
		c.peak = c.inflight
	}
	c.mu.Unlock()

	go func() {
		time.Sleep(c.delay)
		c.mu.Lock()
		c.inflight--
		c.mu.Unlock()
		_ = c.router.Deliver(telephony.Notification{
			CallID:          req.CallID,
			Kind:            telephony.NotificationCompleted,
			Transcript:      "Dealer: still available.",
			DurationSeconds: 30,
		})
	}()
	return telephony.Handle{CallID: req.CallID}, nil
}

func (c *countingClient) Peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// drain reads sub until it closes.
func drain(t *testing.T, sub *progress.Subscription) []progress.Event {
	t.Helper()
	var events []progress.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			require.FailNow(t, "timed out waiting for stream to close")
		}
	}
}

func eventsFor(events []progress.Event, vehicleID string) []progress.EventType {
	var types []progress.EventType
	for _, e := range events {
		if vehicleOf(e) == vehicleID {
			types = append(types, e.Type)
		}
	}
	return types
}

func vehicleOf(e progress.Event) string {
	switch d := e.Data.(type) {
	case progress.Calling:
		return d.VehicleID
	case progress.CallConnected:
		return d.VehicleID
	case progress.CallComplete:
		return d.VehicleID
	case progress.CallFailed:
		return d.VehicleID
	case progress.SummaryReady:
		return d.VehicleID
	}
	return ""
}

func types(events []progress.Event) []progress.EventType {
	out := make([]progress.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}
