package progress

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrClosed is returned when publishing to or subscribing on a closed stream.
	ErrClosed = errors.New("progress stream closed")
	// ErrSlowConsumer is reported when the subscriber did not drain its buffer
	// within the publish timeout and was detached.
	ErrSlowConsumer = errors.New("progress subscriber too slow")
	// ErrReplaced is reported to a subscription superseded by a newer Subscribe.
	ErrReplaced = errors.New("progress subscription replaced")
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultBuffer         = 64
)

// Option configures a Stream.
type Option func(*Stream)

// WithPublishTimeout bounds how long Publish waits on a full subscriber buffer.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithBuffer sets the subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(s *Stream) {
		if n >= 0 {
			s.buffer = n
		}
	}
}

// Stream is a single-consumer, multi-producer ordered log. All sends happen
// under mu, so the order in which Publish calls acquire the lock is the order
// the subscriber observes.
type Stream struct {
	mu             sync.Mutex
	seq            uint64
	sub            *Subscription
	closed         bool
	done           chan struct{}
	publishTimeout time.Duration
	buffer         int
}

// NewStream creates an open stream with no subscriber.
func NewStream(opts ...Option) *Stream {
	s := &Stream{
		done:           make(chan struct{}),
		publishTimeout: defaultPublishTimeout,
		buffer:         defaultBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe attaches a consumer that receives every event published from now
// on. Events published earlier are not replayed. A previous subscription is
// detached with ErrReplaced.
func (s *Stream) Subscribe() (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.sub != nil {
		s.detachLocked(ErrReplaced)
	}
	sub := &Subscription{
		events: make(chan Event, s.buffer),
		gone:   make(chan struct{}),
	}
	s.sub = sub
	return sub, nil
}

// Publish appends e to the stream. With no subscriber attached the event is
// sequenced and dropped. When the subscriber's buffer is full Publish waits up
// to the publish timeout, then detaches the subscriber and returns
// ErrSlowConsumer.
func (s *Stream) Publish(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.publishLocked(e)
}

// Finish publishes the terminal event and closes the stream in one step, so
// nothing can be observed after it. It succeeds at most once.
func (s *Stream) Finish(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	err := s.publishLocked(e)
	s.closeLocked()
	return err
}

// Close ends the stream without a terminal event. Closing twice is a no-op.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closeLocked()
	}
}

// Done is closed once the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) publishLocked(e Event) error {
	s.seq++
	e.Seq = s.seq

	sub := s.sub
	if sub == nil {
		return nil
	}

	select {
	case sub.events <- e:
		return nil
	case <-sub.gone:
		s.detachLocked(nil)
		return nil
	default:
	}

	timer := time.NewTimer(s.publishTimeout)
	defer timer.Stop()

	select {
	case sub.events <- e:
		return nil
	case <-sub.gone:
		s.detachLocked(nil)
		return nil
	case <-timer.C:
		s.detachLocked(ErrSlowConsumer)
		return ErrSlowConsumer
	}
}

func (s *Stream) detachLocked(reason error) {
	s.sub.finish(reason)
	s.sub = nil
}

func (s *Stream) closeLocked() {
	s.closed = true
	if s.sub != nil {
		s.detachLocked(nil)
	}
	close(s.done)
}

// Subscription is the consumer side of a Stream.
type Subscription struct {
	events   chan Event
	gone     chan struct{}
	goneOnce sync.Once

	mu  sync.Mutex
	err error
}

// Events yields events in publish order. The channel is closed when the
// stream closes or the subscription is detached.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}

// Unsubscribe tells the stream the consumer has gone away. Pending and future
// publishes stop waiting on this subscription.
func (sub *Subscription) Unsubscribe() {
	sub.goneOnce.Do(func() { close(sub.gone) })
}

// Err returns why the events channel was closed: nil for a normal stream
// close, ErrSlowConsumer or ErrReplaced otherwise.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

func (sub *Subscription) finish(reason error) {
	sub.mu.Lock()
	sub.err = reason
	sub.mu.Unlock()
	close(sub.events)
}
