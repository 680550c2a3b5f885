package telephony

import (
	"errors"
	"sync"
)

// ErrUnknownCall is returned when a notification names a call nobody waits on.
var ErrUnknownCall = errors.New("unknown call id")

// ErrMailboxFull is returned when a call's mailbox cannot take more events.
var ErrMailboxFull = errors.New("call mailbox full")

const mailboxSize = 4

// Router delivers provider notifications into per-call mailboxes.
type Router struct {
	mu        sync.Mutex
	mailboxes map[string]chan Notification
}

func NewRouter() *Router {
	return &Router{mailboxes: make(map[string]chan Notification)}
}

// Register opens a mailbox for callID. The returned func removes it and must
// be called once the owner stops listening.
func (r *Router) Register(callID string) (<-chan Notification, func()) {
	ch := make(chan Notification, mailboxSize)

	r.mu.Lock()
	r.mailboxes[callID] = ch
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		if r.mailboxes[callID] == ch {
			delete(r.mailboxes, callID)
		}
		r.mu.Unlock()
	}
}

// Deliver hands n to its mailbox without blocking.
func (r *Router) Deliver(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.mailboxes[n.CallID]
	if !ok {
		return ErrUnknownCall
	}
	select {
	case ch <- n:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Pending returns the number of open mailboxes.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mailboxes)
}
