package outreach_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/dealerdial/internal/outreach"
	"github.com/kiranshivaraju/dealerdial/internal/progress"
	"github.com/kiranshivaraju/dealerdial/internal/telephony"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

func dispatcherConfig() outreach.DispatcherConfig {
	return outreach.DispatcherConfig{
		Concurrency: 3,
		TaskTimeout: 5 * time.Second,
		CancelGrace: time.Second,
		Region:      "US",
	}
}

// runDispatch runs tasks to completion and returns every event published.
func runDispatch(t *testing.T, ctx context.Context, d *outreach.Dispatcher, tasks []*outreach.CallTask) []progress.Event {
	t.Helper()
	stream := progress.NewStream()
	sub, err := stream.Subscribe()
	require.NoError(t, err)

	d.Run(ctx, tasks, stream)
	stream.Close()
	return drain(t, sub)
}

func TestDispatcher_AllCallsComplete(t *testing.T) {
	router := telephony.NewRouter()
	client := telephony.NewSimulatedClient(router, telephony.WithScript(quickCall))
	summ := &fakeSummarizer{}
	d := outreach.NewDispatcher(client, router, summ, nil, dispatcherConfig())

	tasks := tasksFor(vehicles(4))
	events := runDispatch(t, context.Background(), d, tasks)

	for _, task := range tasks {
		snap := task.Snapshot()
		assert.Equal(t, outreach.StatusCompleted, snap.Status, snap.VehicleID)
		assert.NotNil(t, snap.Summary, snap.VehicleID)
		assert.Contains(t, snap.Transcript, "is still here")

		assert.Equal(t, []progress.EventType{
			progress.EventCalling,
			progress.EventCallConnected,
			progress.EventCallComplete,
			progress.EventSummaryReady,
		}, eventsFor(events, snap.VehicleID))
	}
	assert.Equal(t, int64(4), summ.calls.Load())
	assert.Equal(t, 0, router.Pending())
}

func TestDispatcher_SequenceNumbersIncrease(t *testing.T) {
	router := telephony.NewRouter()
	client := telephony.NewSimulatedClient(router, telephony.WithScript(quickCall))
	d := outreach.NewDispatcher(client, router, &fakeSummarizer{}, nil, dispatcherConfig())

	events := runDispatch(t, context.Background(), d, tasksFor(vehicles(5)))
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestDispatcher_CallingEventCarriesPosition(t *testing.T) {
	router := telephony.NewRouter()
	client := telephony.NewSimulatedClient(router, telephony.WithScript(quickCall))
	cfg := dispatcherConfig()
	cfg.Concurrency = 1
	d := outreach.NewDispatcher(client, router, &fakeSummarizer{}, nil, cfg)

	vs := vehicles(2)
	vs[0].ImageURLs = []string{"https://img.example.com/v1.jpg"}
	events := runDispatch(t, context.Background(), d, tasksFor(vs))

	var calling []progress.Calling
	for _, e := range events {
		if c, ok := e.Data.(progress.Calling); ok {
			calling = append(calling, c)
		}
	}
	require.Len(t, calling, 2)
	assert.Equal(t, 1, calling[0].Index)
	assert.Equal(t, 2, calling[0].Total)
	assert.Equal(t, "Calling Dealer 1 about the 2020 Toyota Camry #1 (1/2)...", calling[0].Message)
	assert.Equal(t, []string{"https://img.example.com/v1.jpg"}, calling[0].ImageURLs)
}

func TestDispatcher_ConcurrencyIsBounded(t *testing.T) {
	router := telephony.NewRouter()
	client := &countingClient{router: router, delay: 30 * time.Millisecond}
	cfg := dispatcherConfig()
	cfg.Concurrency = 2
	d := outreach.NewDispatcher(client, router, &fakeSummarizer{}, nil, cfg)

	tasks := tasksFor(vehicles(6))
	events := runDispatch(t, context.Background(), d, tasks)

	assert.LessOrEqual(t, client.Peak(), 2)
	for _, task := range tasks {
		assert.Equal(t, outreach.StatusCompleted, task.Status())
	}
	// completion without a pickup notification still reports the connection
	assert.Equal(t, []progress.EventType{
		progress.EventCalling,
		progress.EventCallConnected,
		progress.EventCallComplete,
		progress.EventSummaryReady,
	}, eventsFor(events, "v1"))
}

func TestDispatcher_FailureReasons(t *testing.T) {
	router := telephony.NewRouter()
	script := func(req telephony.PlaceCallRequest) telephony.Outcome {
		switch req.VehicleID {
		case "v1":
			return telephony.Outcome{FailureReason: telephony.FailureBusy}
		case "v2":
			return telephony.Outcome{FailureReason: telephony.FailureNoAnswer}
		case "v3":
			return telephony.Outcome{PlaceErr: telephony.ErrProviderRejected}
		}
		return quickCall(req)
	}
	client := telephony.NewSimulatedClient(router, telephony.WithScript(script))
	d := outreach.NewDispatcher(client, router, &fakeSummarizer{}, nil, dispatcherConfig())

	vs := vehicles(5)
	vs[3].DealerPhone = "call us!"
	tasks := tasksFor(vs)
	events := runDispatch(t, context.Background(), d, tasks)

	want := map[string]string{
		"v1": outreach.ReasonBusy,
		"v2": outreach.ReasonNoAnswer,
		"v3": outreach.ReasonProviderError,
		"v4": outreach.ReasonInvalidNumber,
	}
	for _, task := range tasks {
		snap := task.Snapshot()
		reason, shouldFail := want[snap.VehicleID]
		if !shouldFail {
			assert.Equal(t, outreach.StatusCompleted, snap.Status)
			continue
		}
		assert.Equal(t, outreach.StatusFailed, snap.Status, snap.VehicleID)
		assert.Equal(t, reason, snap.FailureReason, snap.VehicleID)
	}

	// an invalid number is announced, then failed without reaching the provider
	assert.Equal(t, []progress.EventType{progress.EventCalling, progress.EventCallFailed}, eventsFor(events, "v4"))
	assert.Equal(t, "call us!", tasks[3].Snapshot().DealerPhone)
	assert.Equal(t, []progress.EventType{progress.EventCalling, progress.EventCallFailed}, eventsFor(events, "v3"))
}

func TestDispatcher_OneCallingEventPerVehicle(t *testing.T) {
	router := telephony.NewRouter()
	client := telephony.NewSimulatedClient(router, telephony.WithScript(quickCall))
	d := outreach.NewDispatcher(client, router, &fakeSummarizer{}, nil, dispatcherConfig())

	vs := vehicles(3)
	vs[1].DealerPhone = "call us!"
	events := runDispatch(t, context.Background(), d, tasksFor(vs))

	calling := 0
	for _, e := range events {
		if e.Type == progress.EventCalling {
			calling++
		}
	}
	assert.Equal(t, 3, calling)
	assert.Equal(t, []progress.EventType{progress.EventCalling, progress.EventCallFailed}, eventsFor(events, "v2"))
}

func TestDispatcher_TimeoutWhilePacedStillAnnouncesCall(t *testing.T) {
	router := telephony.NewRouter()
	client := telephony.NewSimulatedClient(router, telephony.WithScript(quickCall))
	cfg := dispatcherConfig()
	cfg.Concurrency = 1
	cfg.TaskTimeout = 50 * time.Millisecond
	// one token per minute: only the first call is placed before its deadline
	limiter := rate.NewLimiter(rate.Every(time.Minute), 1)
	d := outreach.NewDispatcher(client, router, &fakeSummarizer{}, limiter, cfg)

	tasks := tasksFor(vehicles(2))
	events := runDispatch(t, context.Background(), d, tasks)

	snap := tasks[1].Snapshot()
	assert.Equal(t, outreach.StatusFailed, snap.Status)
	assert.Equal(t, outreach.ReasonTimeout, snap.FailureReason)
	assert.Equal(t, []progress.EventType{progress.EventCalling, progress.EventCallFailed}, eventsFor(events, "v2"))
}

func TestDispatcher_TaskTimeoutHangsUp(t *testing.T) {
	router := telephony.NewRouter()
	client := telephony.NewSimulatedClient(router, telephony.WithScript(func(telephony.PlaceCallRequest) telephony.Outcome {
		return telephony.Outcome{Silent: true}
	}))
	cfg := dispatcherConfig()
	cfg.TaskTimeout = 50 * time.Millisecond
	d := outreach.NewDispatcher(client, router, &fakeSummarizer{}, nil, cfg)

	tasks := tasksFor(vehicles(1))
	runDispatch(t, context.Background(), d, tasks)

	snap := tasks[0].Snapshot()
	assert.Equal(t, outreach.StatusFailed, snap.Status)
	assert.Equal(t, outreach.ReasonTimeout, snap.FailureReason)

	select {
	case id := <-client.HungUp():
		assert.Equal(t, snap.CallID, id)
	case <-time.After(time.Second):
		t.Fatal("expected hangup")
	}
}

func TestDispatcher_CancelFailsInFlightCalls(t *testing.T) {
	router := telephony.NewRouter()
	client := telephony.NewSimulatedClient(router, telephony.WithScript(func(telephony.PlaceCallRequest) telephony.Outcome {
		return telephony.Outcome{Silent: true}
	}))
	d := outreach.NewDispatcher(client, router, &fakeSummarizer{}, nil, dispatcherConfig())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	tasks := tasksFor(vehicles(4))
	start := time.Now()
	runDispatch(t, ctx, d, tasks)
	assert.Less(t, time.Since(start), 3*time.Second)

	for _, task := range tasks {
		snap := task.Snapshot()
		assert.Equal(t, outreach.StatusFailed, snap.Status)
		assert.Equal(t, outreach.ReasonCancelled, snap.FailureReason)
	}
}

func TestDispatcher_SummaryFailureLeavesCallCompleted(t *testing.T) {
	router := telephony.NewRouter()
	client := telephony.NewSimulatedClient(router, telephony.WithScript(quickCall))
	summ := &fakeSummarizer{fn: func(string, models.Vehicle) (*models.CallSummary, error) {
		return nil, errors.New("model overloaded")
	}}
	d := outreach.NewDispatcher(client, router, summ, nil, dispatcherConfig())

	tasks := tasksFor(vehicles(1))
	events := runDispatch(t, context.Background(), d, tasks)

	snap := tasks[0].Snapshot()
	assert.Equal(t, outreach.StatusCompleted, snap.Status)
	assert.Nil(t, snap.Summary)
	assert.NotContains(t, types(events), progress.EventSummaryReady)
}

func TestDispatcher_PacedByLimiter(t *testing.T) {
	router := telephony.NewRouter()
	client := telephony.NewSimulatedClient(router, telephony.WithScript(quickCall))
	limiter := rate.NewLimiter(rate.Every(20*time.Millisecond), 1)
	d := outreach.NewDispatcher(client, router, &fakeSummarizer{}, limiter, dispatcherConfig())

	tasks := tasksFor(vehicles(3))
	start := time.Now()
	runDispatch(t, context.Background(), d, tasks)

	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	for _, task := range tasks {
		assert.Equal(t, outreach.StatusCompleted, task.Status())
	}
}
