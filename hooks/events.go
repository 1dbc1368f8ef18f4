// Package hooks defines the event vocabulary published by the Agent Loop
// and Tree Search Controller, and a synchronous fan-out Bus subscribers can
// register on. The bounded, cancellable client-facing channel (C8) is built
// in package stream on top of a Bus subscription.
package hooks

import (
	"context"
	"sync"

	"github.com/agentcore/decisioncore/ident"
)

// EventType identifies the concrete shape of an Event without a type
// assertion, so subscribers can route cheaply.
type EventType string

const (
	// ExchangeAppended fires whenever a new Exchange is appended to a
	// session's transcript.
	ExchangeAppended EventType = "exchange_appended"
	// ToolInvocationStarted fires when an Action Node transitions to
	// Executing.
	ToolInvocationStarted EventType = "tool_invocation_started"
	// ToolInvocationChunk fires for each streamed text delta produced while
	// a tool invocation (or the model reply preceding it) is in flight.
	ToolInvocationChunk EventType = "tool_invocation_chunk"
	// ToolInvocationCompleted fires when an Action Node reaches Finalized
	// or Failed.
	ToolInvocationCompleted EventType = "tool_invocation_completed"
	// NodeEvaluated fires when the value function assigns a reward to a
	// node.
	NodeEvaluated EventType = "node_evaluated"
	// SessionStatusChanged fires on every Session status transition.
	SessionStatusChanged EventType = "session_status_changed"
	// ErrorEvent fires for input, executor, transport, and invariant
	// errors surfaced to the client (spec §7).
	ErrorEvent EventType = "error"
)

type (
	// Event is the interface every hook event implements. The Agent Loop
	// and Tree Search Controller publish events through a Bus; the stream
	// package adapts Bus deliveries into the bounded client-facing channel.
	Event interface {
		Type() EventType
		SessionID() ident.SessionID
	}

	baseEvent struct {
		typ       EventType
		sessionID ident.SessionID
	}

	// ExchangeAppendedEvent identifies an exchange that was just appended
	// to (or superseded in) the transcript by its id, role and Superseded
	// flag; it does not carry the exchange's content.
	ExchangeAppendedEvent struct {
		baseEvent
		ExchangeID ident.ExchangeID
		Role       string
		Superseded bool
	}

	// ToolInvocationStartedEvent fires when a node begins executing.
	ToolInvocationStartedEvent struct {
		baseEvent
		NodeID ident.NodeID
		Tool   string
	}

	// ToolInvocationChunkEvent carries one streamed text fragment tagged
	// with the prospective node id it will be attributed to once parsed.
	ToolInvocationChunkEvent struct {
		baseEvent
		NodeID ident.NodeID
		Text   string
	}

	// ToolInvocationCompletedEvent fires when a node reaches a terminal
	// per-node state (Finalized or Failed).
	ToolInvocationCompletedEvent struct {
		baseEvent
		NodeID      ident.NodeID
		Observation string
		Failed      bool
	}

	// NodeEvaluatedEvent fires when the value function assigns a reward.
	NodeEvaluatedEvent struct {
		baseEvent
		NodeID ident.NodeID
		Reward float64
	}

	// SessionStatusChangedEvent fires on every session status transition.
	SessionStatusChangedEvent struct {
		baseEvent
		Status string
	}

	// ErrorEventPayload fires for any error category surfaced to clients.
	ErrorEventPayload struct {
		baseEvent
		Kind   string
		Detail string
	}
)

func (b baseEvent) Type() EventType            { return b.typ }
func (b baseEvent) SessionID() ident.SessionID { return b.sessionID }

// NewExchangeAppended constructs an ExchangeAppendedEvent.
func NewExchangeAppended(sid ident.SessionID, eid ident.ExchangeID, role string, superseded bool) *ExchangeAppendedEvent {
	return &ExchangeAppendedEvent{
		baseEvent:  baseEvent{typ: ExchangeAppended, sessionID: sid},
		ExchangeID: eid,
		Role:       role,
		Superseded: superseded,
	}
}

// NewToolInvocationStarted constructs a ToolInvocationStartedEvent.
func NewToolInvocationStarted(sid ident.SessionID, nid ident.NodeID, tool string) *ToolInvocationStartedEvent {
	return &ToolInvocationStartedEvent{
		baseEvent: baseEvent{typ: ToolInvocationStarted, sessionID: sid},
		NodeID:    nid,
		Tool:      tool,
	}
}

// NewToolInvocationChunk constructs a ToolInvocationChunkEvent.
func NewToolInvocationChunk(sid ident.SessionID, nid ident.NodeID, text string) *ToolInvocationChunkEvent {
	return &ToolInvocationChunkEvent{
		baseEvent: baseEvent{typ: ToolInvocationChunk, sessionID: sid},
		NodeID:    nid,
		Text:      text,
	}
}

// NewToolInvocationCompleted constructs a ToolInvocationCompletedEvent.
func NewToolInvocationCompleted(sid ident.SessionID, nid ident.NodeID, observation string, failed bool) *ToolInvocationCompletedEvent {
	return &ToolInvocationCompletedEvent{
		baseEvent:   baseEvent{typ: ToolInvocationCompleted, sessionID: sid},
		NodeID:      nid,
		Observation: observation,
		Failed:      failed,
	}
}

// NewNodeEvaluated constructs a NodeEvaluatedEvent.
func NewNodeEvaluated(sid ident.SessionID, nid ident.NodeID, reward float64) *NodeEvaluatedEvent {
	return &NodeEvaluatedEvent{
		baseEvent: baseEvent{typ: NodeEvaluated, sessionID: sid},
		NodeID:    nid,
		Reward:    reward,
	}
}

// NewSessionStatusChanged constructs a SessionStatusChangedEvent.
func NewSessionStatusChanged(sid ident.SessionID, status string) *SessionStatusChangedEvent {
	return &SessionStatusChangedEvent{
		baseEvent: baseEvent{typ: SessionStatusChanged, sessionID: sid},
		Status:    status,
	}
}

// NewError constructs an ErrorEventPayload.
func NewError(sid ident.SessionID, kind, detail string) *ErrorEventPayload {
	return &ErrorEventPayload{
		baseEvent: baseEvent{typ: ErrorEvent, sessionID: sid},
		Kind:      kind,
		Detail:    detail,
	}
}

type (
	// Bus publishes events to registered subscribers in a fan-out pattern.
	// The bus is thread-safe and supports concurrent Publish, Register, and
	// Close operations.
	//
	// Events are delivered synchronously in the publisher's goroutine, and
	// iteration stops at the first subscriber error. This lets a critical
	// subscriber (for example, durable persistence) halt delivery if it
	// hits an unrecoverable error.
	Bus interface {
		// Publish delivers the event to every currently registered
		// subscriber, in registration order, stopping at the first error.
		Publish(ctx context.Context, event Event) error
		// Register adds a subscriber and returns a Subscription that can
		// be closed to unregister. Returns an error if sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published events.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription represents an active registration on a Bus.
	Subscription interface {
		Close() error
	}

	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]Subscriber
		order       []*subscription
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// NewBus constructs a new in-memory event bus.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.order))
	for _, s := range b.order {
		if sub, ok := b.subscribers[s]; ok {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errSubscriberRequired
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.order = append(b.order, s)
	b.mu.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}
