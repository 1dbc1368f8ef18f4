// Package store defines the Session Store contract (spec §6): load, save,
// and list session snapshots. Save is called by the host, not by the core:
// package loop and package search do not call it, so no snapshot is saved
// after each finalized Action Node (cmd/decisioncored saves once, after the
// run ends). Implementations must treat a single session's writes as
// serialized even under concurrent callers, since a store shared across
// multiple decision-core processes (store/mongo) has no such guarantee
// from its callers alone.
package store

import (
	"context"
	"errors"

	"github.com/agentcore/decisioncore/ident"
	"github.com/agentcore/decisioncore/session"
)

var (
	// ErrNotFound is returned by Load when no snapshot exists for the
	// requested session id.
	ErrNotFound = errors.New("store: session not found")
)

// Store persists and retrieves session snapshots, grounded on the
// teacher's runtime/agent/session.Store contract (CreateSession/
// LoadSession/EndSession collapse here into the snapshot-shaped
// Load/Save/List the core itself describes).
type Store interface {
	// Load returns the persisted snapshot for sessionID, or ErrNotFound.
	Load(ctx context.Context, sessionID ident.SessionID) (session.Snapshot, error)
	// Save persists a snapshot, overwriting any prior snapshot for the
	// same session id. Callers must only pass snapshots taken while the
	// session is quiescent (session.Session.Snapshot already enforces
	// this at the source).
	Save(ctx context.Context, snap session.Snapshot) error
	// List returns every session id known to the store, in no particular
	// order.
	List(ctx context.Context) ([]ident.SessionID, error)
}
