// Package stream implements the Event Stream (C8): a bounded,
// cancellable channel of hook events scoped to one session, sitting on
// top of a hooks.Bus subscription (spec §4.8). The Agent Loop and Tree
// Search Controller never import this package directly — they only
// publish to the Bus they were constructed with; a transport adapter
// calls Subscribe to get the bounded channel it streams to its client.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentcore/decisioncore/hooks"
	"github.com/agentcore/decisioncore/ident"
)

// Capacity is the client-facing channel's fixed size (spec §4.8, "A
// bounded channel of Event values, capacity 32").
const Capacity = 32

// Stream adapts one session's slice of a shared hooks.Bus into a bounded
// channel a transport adapter can range over.
type Stream struct {
	sessionID ident.SessionID
	cancel    context.CancelFunc
	ch        chan hooks.Event
	done      chan struct{}
	sub       hooks.Subscription
	closeOnce sync.Once
}

// Subscribe registers a bus subscriber that forwards only events for
// sessionID into a capacity-32 channel. cancel is called (if non-nil)
// the first time a publish observes the consumer has disconnected (spec
// §4.8, "On consumer disconnect, the producer observes the channel
// closure within one send and proceeds to cancel the session") — the
// decision core's version of "closure" is Stream.Close, since a
// receive-only channel cannot itself be closed by a reader.
func Subscribe(bus hooks.Bus, sessionID ident.SessionID, cancel context.CancelFunc) (*Stream, error) {
	s := &Stream{
		sessionID: sessionID,
		cancel:    cancel,
		ch:        make(chan hooks.Event, Capacity),
		done:      make(chan struct{}),
	}
	sub, err := bus.Register(hooks.SubscriberFunc(s.handle))
	if err != nil {
		return nil, fmt.Errorf("stream: register subscriber: %w", err)
	}
	s.sub = sub
	return s, nil
}

// Events returns the channel a transport adapter should range over.
func (s *Stream) Events() <-chan hooks.Event { return s.ch }

// Close unregisters from the bus and unblocks any in-flight or future
// publish to this stream, so the bus's Publish call (and therefore the
// driver task that called it) is never kept waiting once the consumer is
// gone. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.sub != nil {
			err = s.sub.Close()
		}
	})
	return err
}

// handle is the hooks.Subscriber callback registered with the bus. It
// blocks only long enough to either hand the event to the bounded
// channel or observe the stream closing, so a slow consumer applies
// backpressure to the driver task publishing the event (spec §5's
// cooperative scheduling model) without ever blocking forever once the
// consumer disconnects.
func (s *Stream) handle(ctx context.Context, event hooks.Event) error {
	if event.SessionID() != s.sessionID {
		return nil
	}
	select {
	case s.ch <- event:
		return nil
	case <-s.done:
		if s.cancel != nil {
			s.cancel()
		}
		return fmt.Errorf("stream: consumer for session %s disconnected", s.sessionID)
	case <-ctx.Done():
		return ctx.Err()
	}
}
