package outreach

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/dealerdial/internal/progress"
	"github.com/kiranshivaraju/dealerdial/internal/ranking"
	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// Run is one outreach pass over a session's shortlist. It owns its tasks
// and its progress stream.
type Run struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	AccountID uuid.UUID
	Tasks     []*CallTask
	Stream    *progress.Stream
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	status      string
	completedAt *time.Time
	top         []models.RankedVehicle
	errMsg      string
}

func newRun(sessionID, accountID uuid.UUID, tasks []*CallTask, stream *progress.Stream) *Run {
	return &Run{
		ID:        uuid.New(),
		SessionID: sessionID,
		AccountID: accountID,
		Tasks:     tasks,
		Stream:    stream,
		StartedAt: time.Now().UTC(),
		cancel:    func() {},
		done:      make(chan struct{}),
		status:    models.RunStatusRunning,
	}
}

// Cancel ends the stream first so no further events are observed, then
// stops every worker.
func (r *Run) Cancel() {
	r.Stream.Close()
	r.cancel()
}

// Done is closed once the run has finished and its results are persisted.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Status returns the run status.
func (r *Run) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Run) finish(status string, top []models.RankedVehicle, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.status = status
	r.completedAt = &now
	r.top = top
	r.errMsg = errMsg
}

// outcomes returns the ranking input for every task, in dispatch order.
func (r *Run) outcomes() []ranking.Outcome {
	out := make([]ranking.Outcome, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		snap := t.Snapshot()
		out = append(out, ranking.Outcome{
			Vehicle:       t.Vehicle,
			Status:        string(snap.Status),
			FailureReason: snap.FailureReason,
			Summary:       snap.Summary,
		})
	}
	return out
}

func (r *Run) vehicles() []models.Vehicle {
	out := make([]models.Vehicle, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		out = append(out, t.Vehicle)
	}
	return out
}

// summaries returns every attached summary keyed by vehicle id.
func (r *Run) summaries() map[string]*models.CallSummary {
	out := make(map[string]*models.CallSummary, len(r.Tasks))
	for _, t := range r.Tasks {
		if s := t.Snapshot().Summary; s != nil {
			out[t.Vehicle.VehicleID] = s
		}
	}
	return out
}

// RunView is the externally visible state of a run.
type RunView struct {
	RunID       uuid.UUID              `json:"run_id"`
	SessionID   uuid.UUID              `json:"session_id"`
	Status      string                 `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Tasks       []TaskSnapshot         `json:"tasks"`
	TopN        []models.RankedVehicle `json:"top_n,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// View returns a consistent snapshot of the run.
func (r *Run) View() RunView {
	tasks := make([]TaskSnapshot, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		tasks = append(tasks, t.Snapshot())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return RunView{
		RunID:       r.ID,
		SessionID:   r.SessionID,
		Status:      r.status,
		StartedAt:   r.StartedAt,
		CompletedAt: r.completedAt,
		Tasks:       tasks,
		TopN:        r.top,
		Error:       r.errMsg,
	}
}
