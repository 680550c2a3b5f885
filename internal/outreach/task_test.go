package outreach_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/dealerdial/internal/outreach"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

func newTask() *outreach.CallTask {
	v := models.Vehicle{VehicleID: "v1", DealerName: "Bay Motors", DealerPhone: "(650) 253-0000", Price: 21000}
	return outreach.NewCallTask(v, outreach.Script{Prompt: "p", Greeting: "g"}, 1)
}

func TestCallTask_HappyPath(t *testing.T) {
	task := newTask()
	emitted := 0
	emit := func() { emitted++ }

	require.NoError(t, task.Dial("+16502530000", "call-1", emit))
	require.NoError(t, task.Connect(emit))
	require.NoError(t, task.Complete("Dealer: yes", 95, emit))
	require.NoError(t, task.AttachSummary(&models.CallSummary{Recommendation: models.RecommendationSkip}, emit))

	assert.Equal(t, 4, emitted)
	snap := task.Snapshot()
	assert.Equal(t, outreach.StatusCompleted, snap.Status)
	assert.Equal(t, "+16502530000", snap.DealerPhone)
	assert.Equal(t, "call-1", snap.CallID)
	assert.Equal(t, "Dealer: yes", snap.Transcript)
	assert.Equal(t, 95, snap.DurationSeconds)
	require.NotNil(t, snap.Summary)
	assert.Empty(t, snap.FailureReason)
}

func TestCallTask_SnapshotShowsListedPhoneBeforeDial(t *testing.T) {
	task := newTask()
	assert.Equal(t, "(650) 253-0000", task.Snapshot().DealerPhone)
	assert.Equal(t, outreach.StatusPending, task.Status())
}

func TestCallTask_SetDialedNumberReplacesListedPhone(t *testing.T) {
	task := newTask()
	require.NoError(t, task.Dial(task.Vehicle.DealerPhone, "c", nil))
	assert.Equal(t, "(650) 253-0000", task.Snapshot().DealerPhone)

	task.SetDialedNumber("+16502530000")
	snap := task.Snapshot()
	assert.Equal(t, "+16502530000", snap.DealerPhone)
	assert.Equal(t, outreach.StatusDialing, snap.Status)
}

func TestCallTask_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		run  func(*outreach.CallTask) error
	}{
		{"pending to connected", func(c *outreach.CallTask) error { return c.Connect(nil) }},
		{"pending to completed", func(c *outreach.CallTask) error { return c.Complete("x", 1, nil) }},
		{"dialing to completed", func(c *outreach.CallTask) error {
			_ = c.Dial("+16502530000", "c", nil)
			return c.Complete("x", 1, nil)
		}},
		{"dial twice", func(c *outreach.CallTask) error {
			_ = c.Dial("+16502530000", "c", nil)
			return c.Dial("+16502530000", "c", nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(newTask())
			assert.ErrorIs(t, err, outreach.ErrInvalidTransition)
		})
	}
}

func TestCallTask_FailFromEveryNonTerminalState(t *testing.T) {
	setups := map[string]func(*outreach.CallTask){
		"pending": func(*outreach.CallTask) {},
		"dialing": func(c *outreach.CallTask) { _ = c.Dial("+16502530000", "c", nil) },
		"connected": func(c *outreach.CallTask) {
			_ = c.Dial("+16502530000", "c", nil)
			_ = c.Connect(nil)
		},
	}
	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			task := newTask()
			setup(task)
			require.NoError(t, task.Fail(outreach.ReasonBusy, errors.New("line busy"), nil))

			snap := task.Snapshot()
			assert.Equal(t, outreach.StatusFailed, snap.Status)
			assert.Equal(t, outreach.ReasonBusy, snap.FailureReason)
			assert.Equal(t, "line busy", snap.Error)
		})
	}
}

func TestCallTask_TerminalIsFinal(t *testing.T) {
	task := newTask()
	require.NoError(t, task.Fail(outreach.ReasonNoAnswer, nil, nil))

	emitted := false
	err := task.Fail(outreach.ReasonTimeout, nil, func() { emitted = true })
	assert.ErrorIs(t, err, outreach.ErrInvalidTransition)
	assert.False(t, emitted)
	assert.Equal(t, outreach.ReasonNoAnswer, task.Snapshot().FailureReason)
}

func TestCallTask_SummaryOnlyForCompleted(t *testing.T) {
	task := newTask()
	err := task.AttachSummary(&models.CallSummary{}, nil)
	assert.ErrorIs(t, err, outreach.ErrInvalidTransition)
	assert.Nil(t, task.Snapshot().Summary)
}

func TestCallTask_SealFailsInFlightTaskSilently(t *testing.T) {
	task := newTask()
	require.NoError(t, task.Dial("+16502530000", "c", nil))

	task.Seal(outreach.ReasonTimeout)

	snap := task.Snapshot()
	assert.Equal(t, outreach.StatusFailed, snap.Status)
	assert.Equal(t, outreach.ReasonTimeout, snap.FailureReason)
	assert.ErrorIs(t, task.Connect(nil), outreach.ErrTaskSealed)
}

func TestCallTask_SealRejectsLateSummary(t *testing.T) {
	task := newTask()
	require.NoError(t, task.Dial("+16502530000", "c", nil))
	require.NoError(t, task.Connect(nil))
	require.NoError(t, task.Complete("Dealer: hi", 10, nil))

	task.Seal(outreach.ReasonTimeout)

	assert.Equal(t, outreach.StatusCompleted, task.Status())
	err := task.AttachSummary(&models.CallSummary{}, func() { t.Fatal("emit after seal") })
	assert.ErrorIs(t, err, outreach.ErrTaskSealed)
	assert.Empty(t, task.Snapshot().FailureReason)
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, outreach.StatusPending.Terminal())
	assert.False(t, outreach.StatusDialing.Terminal())
	assert.False(t, outreach.StatusConnected.Terminal())
	assert.True(t, outreach.StatusCompleted.Terminal())
	assert.True(t, outreach.StatusFailed.Terminal())
}
