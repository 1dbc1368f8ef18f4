// Package inmem provides an in-memory implementation of store.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation such as store/mongo.
package inmem

import (
	"context"
	"sync"

	"github.com/agentcore/decisioncore/actiontree"
	"github.com/agentcore/decisioncore/exchange"
	"github.com/agentcore/decisioncore/ident"
	"github.com/agentcore/decisioncore/session"
	"github.com/agentcore/decisioncore/store"
)

// Store is an in-memory store.Store. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	snaps map[ident.SessionID]session.Snapshot
}

// New returns an empty Store.
func New() *Store {
	return &Store{snaps: make(map[ident.SessionID]session.Snapshot)}
}

// Load implements store.Store.
func (s *Store) Load(_ context.Context, sessionID ident.SessionID) (session.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[sessionID]
	if !ok {
		return session.Snapshot{}, store.ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

// Save implements store.Store.
func (s *Store) Save(_ context.Context, snap session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.SessionID] = cloneSnapshot(snap)
	return nil
}

// List implements store.Store.
func (s *Store) List(_ context.Context) ([]ident.SessionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ident.SessionID, 0, len(s.snaps))
	for id := range s.snaps {
		out = append(out, id)
	}
	return out, nil
}

func cloneSnapshot(in session.Snapshot) session.Snapshot {
	out := in
	out.ProjectLabels = append([]string(nil), in.ProjectLabels...)
	out.Exchanges = append([]exchange.Exchange(nil), in.Exchanges...)
	out.Nodes = append([]*actiontree.Node(nil), in.Nodes...)
	return out
}
