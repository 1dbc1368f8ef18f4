package session

import (
	"time"

	"github.com/agentcore/decisioncore/actiontree"
	"github.com/agentcore/decisioncore/exchange"
	"github.com/agentcore/decisioncore/ident"
)

// currentSnapshotVersion is the monotonic schema version written by
// Snapshot. Restore rejects any snapshot whose Version exceeds this
// build's understanding with ErrUnsupportedSnapshot (spec §6, "Persisted
// state").
const currentSnapshotVersion = 1

// Snapshot is the serializable document described in spec §6: session_id,
// status, exchanges, a flattened list of nodes (with parent ids), and
// model_config, plus a monotonic Version.
type Snapshot struct {
	Version       int
	SessionID     ident.SessionID
	Status        Status
	UserContext   UserContext
	RepoRef       RepoRef
	ProjectLabels []string
	ModelConfig   ModelConfig
	Config        Config
	Exchanges     []exchange.Exchange
	Nodes         []*actiontree.Node
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Snapshot serializes the session. Per I4, this is only consistent when
// status is quiescent (not Running); Snapshot enforces that by returning
// ErrNotQuiescent otherwise rather than producing a torn view.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		return Snapshot{}, ErrNotQuiescent
	}
	return Snapshot{
		Version:       currentSnapshotVersion,
		SessionID:     s.id,
		Status:        s.status,
		UserContext:   s.userContext,
		RepoRef:       s.repoRef,
		ProjectLabels: append([]string(nil), s.projectLabels...),
		ModelConfig:   s.modelConfig,
		Config:        s.config,
		Exchanges:     s.exchanges.All(),
		Nodes:         s.tree.All(),
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}, nil
}

// Restore rehydrates a Session from a Snapshot. Per I4, the restored
// session's status must be Idle or Paused; any other status in the
// snapshot is an invariant violation the process must treat as a bug
// rather than silently coerce.
func Restore(snap Snapshot) (*Session, error) {
	if snap.Version > currentSnapshotVersion {
		return nil, ErrUnsupportedSnapshot
	}
	if snap.Status != StatusIdle && snap.Status != StatusPaused {
		return nil, ErrInvalidTransition
	}
	s := New(snap.UserContext, snap.RepoRef, snap.ProjectLabels, snap.ModelConfig, snap.Config)
	s.id = snap.SessionID
	s.status = snap.Status
	s.createdAt = snap.CreatedAt
	s.updatedAt = snap.UpdatedAt
	s.exchanges.Restore(snap.Exchanges)
	s.tree.Restore(snap.Nodes)
	return s, nil
}
