// Package stream hands gate events to a subscriber running on another
// goroutine.
package stream

import (
	"sync"

	"example.com/trigger_bridge/pkg/trigger"
)

// ChannelSink is a trigger.Sink whose producer side never blocks. Events
// are queued and delivered in order on Events; the channel closes after
// the terminal event or after Cancel.
type ChannelSink struct {
	mu        sync.Mutex
	queue     []trigger.Event
	ended     bool
	cancelled bool
	err       error

	notify chan struct{}
	events chan trigger.Event
	done   chan struct{}
	once   sync.Once
}

var _ trigger.Sink = (*ChannelSink)(nil)

// NewChannelSink creates a sink and starts its delivery goroutine.
func NewChannelSink() *ChannelSink {
	s := &ChannelSink{
		notify: make(chan struct{}, 1),
		events: make(chan trigger.Event),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// Events returns the subscriber side of the stream.
func (s *ChannelSink) Events() <-chan trigger.Event {
	return s.events
}

// Err returns the engine error that ended the stream, if any.
func (s *ChannelSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Next queues a Begin or Word event.
func (s *ChannelSink) Next(event trigger.Event) {
	s.push(event)
}

// Error queues the terminal error event.
func (s *ChannelSink) Error(err error) {
	s.push(trigger.Failure(err))
}

// Complete queues the terminal complete event.
func (s *ChannelSink) Complete() {
	s.push(trigger.Complete())
}

// Cancelled reports whether Cancel was called.
func (s *ChannelSink) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Cancel stops delivery and discards queued events. It is safe to call
// more than once and from any goroutine.
func (s *ChannelSink) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.queue = nil
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *ChannelSink) push(event trigger.Event) {
	s.mu.Lock()
	if s.cancelled || s.ended {
		s.mu.Unlock()
		return
	}
	if event.Terminal() {
		s.ended = true
		s.err = event.Err
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *ChannelSink) pump() {
	defer close(s.events)
	for {
		s.mu.Lock()
		if s.cancelled {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- event:
		case <-s.done:
			return
		}
		if event.Terminal() {
			return
		}
	}
}
