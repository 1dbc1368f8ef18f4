// Package ident generates the opaque identifiers used throughout the
// decision core: session, exchange, action-node, and tool-call ids.
//
// Identifiers are time-ordered UUIDv7 strings so that lexical sort order
// matches creation order, which keeps naive tie-breaks (for example the
// tree search controller's "smaller node_id" tie-break) stable without an
// auxiliary sequence counter.
package ident

import "github.com/google/uuid"

// SessionID uniquely identifies a Session aggregate.
type SessionID string

// ExchangeID uniquely identifies one Exchange within a session.
type ExchangeID string

// NodeID uniquely identifies one Action Node within a session's tree.
type NodeID string

// ToolCallID uniquely identifies one invocation of a tool, distinct from
// the Action Node it produces so retries can be correlated to the
// underlying parsed call.
type ToolCallID string

// NewSessionID generates a fresh, time-ordered session identifier.
func NewSessionID() SessionID { return SessionID(new7()) }

// NewExchangeID generates a fresh, time-ordered exchange identifier.
func NewExchangeID() ExchangeID { return ExchangeID(new7()) }

// NewNodeID generates a fresh, time-ordered node identifier.
func NewNodeID() NodeID { return NodeID(new7()) }

// NewToolCallID generates a fresh, time-ordered tool-call identifier.
func NewToolCallID() ToolCallID { return ToolCallID(new7()) }

func new7() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the global random source is broken; fall back
		// to a v4 id rather than propagating an error from every ID
		// generator call site.
		return uuid.NewString()
	}
	return id.String()
}
