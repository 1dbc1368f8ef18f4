// Package exchange implements the Exchange Log (C4): an append-only
// transcript of user/assistant/tool entries with O(1) append and O(n)
// serialization, supporting the single mutation spec.md allows — marking
// the most recent assistant-or-tool entry as superseded when a human
// interrupts.
package exchange

import (
	"time"

	"github.com/agentcore/decisioncore/ident"
)

// Role identifies who produced an Exchange.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Exchange is one entry in the transcript (spec §3).
type Exchange struct {
	ID ident.ExchangeID
	Role
	// Text carries natural-language content for User/Assistant entries.
	Text string
	// ToolName and Result carry a tool name + structured result for
	// ToolResult entries.
	ToolName string
	Result   any
	// ActionNodeID optionally links this exchange to the node that
	// produced it.
	ActionNodeID ident.NodeID
	CreatedAt    time.Time
	// Superseded marks an entry as still present for replay but excluded
	// from default model-prompting serialization (spec I1, §4.4).
	Superseded bool
	// Terminal marks the exchange that ended a trajectory (a terminating
	// tool's result, or a final assistant message with no tool call).
	Terminal bool
	// Reminder optionally carries a <system-reminder>-wrapped addendum a
	// tool descriptor's ResultReminder attaches to this ToolResult entry
	// (spec §4.6 supplement). It rides on the existing exchange rather
	// than becoming its own entry, and is appended after Result whenever
	// the transcript is rendered for the model.
	Reminder string
}

// Log is an append-only sequence of Exchange entries (spec invariant I1:
// entries are only appended; the sole allowed mutation replaces the
// terminal entry's Superseded flag).
type Log struct {
	entries []Exchange
}

// NewLog constructs an empty exchange log.
func NewLog() *Log { return &Log{} }

// Append adds e to the end of the log and returns its assigned id. e.ID is
// overwritten with a freshly generated id if unset.
func (l *Log) Append(e Exchange) ident.ExchangeID {
	if e.ID == "" {
		e.ID = ident.NewExchangeID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	l.entries = append(l.entries, e)
	return e.ID
}

// SupersedeLast marks the log's last entry as superseded if it is an
// assistant-or-tool entry. It is a no-op if the log is empty, the last
// entry is a user entry, or the last entry is already superseded. This is
// the only mutation I1 permits on an already-appended entry.
func (l *Log) SupersedeLast() (ident.ExchangeID, bool) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := &l.entries[i]
		if e.Role == RoleUser {
			return "", false
		}
		if e.Superseded {
			return "", false
		}
		e.Superseded = true
		return e.ID, true
	}
	return "", false
}

// All returns every entry, including superseded ones, in append order.
func (l *Log) All() []Exchange {
	out := make([]Exchange, len(l.entries))
	copy(out, l.entries)
	return out
}

// ForPrompt returns entries suitable for rendering into a model transcript:
// superseded entries are filtered unless replay is requested (spec §4.4).
func (l *Log) ForPrompt(includeSuperseded bool) []Exchange {
	if includeSuperseded {
		return l.All()
	}
	out := make([]Exchange, 0, len(l.entries))
	for _, e := range l.entries {
		if !e.Superseded {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries, including superseded ones.
func (l *Log) Len() int { return len(l.entries) }

// Last returns the most recent entry and true, or the zero value and
// false if the log is empty.
func (l *Log) Last() (Exchange, bool) {
	if len(l.entries) == 0 {
		return Exchange{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Restore replaces the log's contents wholesale. Used only by
// session.restore when rehydrating from a snapshot; never called as part
// of normal append-only operation.
func (l *Log) Restore(entries []Exchange) {
	l.entries = append([]Exchange(nil), entries...)
}
