package outreach

import (
	"sync"

	"github.com/google/uuid"
)

// registry tracks the active run per session. Each session has its own lock
// so starting a run for one session never waits on another.
type registry struct {
	slots sync.Map // uuid.UUID -> *slot
}

type slot struct {
	mu  sync.Mutex
	run *Run
}

func (r *registry) slot(sessionID uuid.UUID) *slot {
	s, _ := r.slots.LoadOrStore(sessionID, &slot{})
	return s.(*slot)
}

// acquire makes run the active run for its session, or fails with
// ErrRunActive.
func (r *registry) acquire(run *Run) error {
	s := r.slot(run.SessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		return ErrRunActive
	}
	s.run = run
	return nil
}

// release clears the slot if run still owns it.
func (r *registry) release(run *Run) {
	s := r.slot(run.SessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == run {
		s.run = nil
	}
}

func (r *registry) active(sessionID uuid.UUID) *Run {
	v, ok := r.slots.Load(sessionID)
	if !ok {
		return nil
	}
	s := v.(*slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

func (r *registry) all() []*Run {
	var runs []*Run
	r.slots.Range(func(_, v any) bool {
		s := v.(*slot)
		s.mu.Lock()
		if s.run != nil {
			runs = append(runs, s.run)
		}
		s.mu.Unlock()
		return true
	})
	return runs
}
