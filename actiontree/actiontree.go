// Package actiontree implements the Action Node (C3): an
// immutable-after-finalize record of one tool call, and the forest of
// nodes that forms a session's action tree.
//
// There is no precedent for this structure in the surrounding codebase's
// idioms beyond general struct-and-method conventions; per spec.md's
// design notes on node graphs ("the action tree is a true tree... arena
// with indices is preferred"), nodes live in a single Tree value keyed by
// NodeID rather than as a pointer graph, which also makes Finalize's
// immutability guarantee (I5/I7) trivial to enforce in one place.
package actiontree

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentcore/decisioncore/ident"
)

// State is an Action Node's lifecycle state (spec §4.3).
type State string

const (
	StatePending   State = "pending"
	StateExecuting State = "executing"
	StateFinalized State = "finalized"
	StateFailed    State = "failed"
)

// Action is the parsed, validated tool call a node carries.
type Action struct {
	Tool      string
	Arguments map[string]any
}

// Observation is a tool's result or error, recorded once a node leaves
// Executing.
type Observation struct {
	Text  string
	Value any
	Err   error
}

// Node is one record of a tool invocation and its outcome (spec §3). Once
// State is Finalized or Failed, Action and Observation never change again
// (I5 for Reward, I7 for Action once it has children) — Tree enforces this
// by construction: every mutator method checks State before writing.
type Node struct {
	ID         ident.NodeID
	ParentID   ident.NodeID // empty for a root
	ChildIDs   []ident.NodeID
	Action     Action
	Observation Observation
	Reward     float64
	RewardSet  bool
	Visits     int
	State      State
	Depth      int
	CreatedAt  time.Time
}

// HasChildren reports whether further exploration from this node must
// spawn siblings rather than re-execute it (I7).
func (n *Node) HasChildren() bool { return len(n.ChildIDs) > 0 }

// Tree is a forest of Action Nodes belonging to one session. All mutation
// is serialized by the caller (the session's driver task holds an
// exclusive lock per spec §5); Tree's own mutex is a second line of
// defense against accidental concurrent access, not the primary one.
type Tree struct {
	mu    sync.RWMutex
	nodes map[ident.NodeID]*Node
	roots []ident.NodeID
}

// NewTree constructs an empty action tree.
func NewTree() *Tree {
	return &Tree{nodes: make(map[ident.NodeID]*Node)}
}

// NewRoot creates a new root node in Pending state.
func (t *Tree) NewRoot(action Action) *Node {
	n, _ := t.NewRootWithID("", action)
	return n
}

// NewRootWithID creates a new root node using id (a fresh id is generated
// if id is empty). The Agent Loop uses this to give a node the same id it
// already tagged speculative streaming events with while the model reply
// was still in flight (spec §4.6, "Streamed deltas are forwarded ...
// tagged with the prospective node id").
func (t *Tree) NewRootWithID(id ident.NodeID, action Action) (*Node, error) {
	if id == "" {
		id = ident.NewNodeID()
	}
	n := &Node{ID: id, Action: action, State: StatePending, Depth: 0, CreatedAt: time.Now().UTC()}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.nodes[id]; exists {
		return nil, fmt.Errorf("actiontree: node id %s already in use", id)
	}
	t.nodes[n.ID] = n
	t.roots = append(t.roots, n.ID)
	return n, nil
}

// NewChild creates a new Pending node as a child of parentID. Fails if
// parentID is unknown. Per I7, this is the only way to add exploration
// once a node already has children: NewChild never re-executes an
// existing node's action, it always allocates a sibling.
func (t *Tree) NewChild(parentID ident.NodeID, action Action) (*Node, error) {
	return t.NewChildWithID(parentID, "", action)
}

// NewChildWithID is NewChild with an explicit node id (see
// NewRootWithID).
func (t *Tree) NewChildWithID(parentID, id ident.NodeID, action Action) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("actiontree: unknown parent %s", parentID)
	}
	if id == "" {
		id = ident.NewNodeID()
	}
	if _, exists := t.nodes[id]; exists {
		return nil, fmt.Errorf("actiontree: node id %s already in use", id)
	}
	n := &Node{ID: id, ParentID: parentID, Action: action, State: StatePending, Depth: parent.Depth + 1, CreatedAt: time.Now().UTC()}
	t.nodes[n.ID] = n
	parent.ChildIDs = append(parent.ChildIDs, n.ID)
	return n, nil
}

// Get returns the node for id, or false if unknown.
func (t *Tree) Get(id ident.NodeID) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// TransitionExecuting moves a Pending node to Executing.
func (t *Tree) TransitionExecuting(id ident.NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("actiontree: unknown node %s", id)
	}
	if n.State != StatePending {
		return fmt.Errorf("actiontree: invariant violation: node %s not Pending (got %s)", id, n.State)
	}
	n.State = StateExecuting
	return nil
}

// Finalize moves an Executing node to Finalized with the given
// observation and reward, or to Failed if failed is true (observation's
// Err should be set in that case). Per I5, Reward is assigned exactly
// once here and never again; per §3, a Failed node's reward is always 0.
func (t *Tree) Finalize(id ident.NodeID, obs Observation, failed bool, reward float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("actiontree: unknown node %s", id)
	}
	if n.State != StateExecuting {
		return fmt.Errorf("actiontree: invariant violation: node %s not Executing (got %s)", id, n.State)
	}
	if n.RewardSet {
		return fmt.Errorf("actiontree: invariant violation: node %s reward already set", id)
	}
	n.Observation = obs
	if failed {
		n.State = StateFailed
		n.Reward = 0
	} else {
		n.State = StateFinalized
		n.Reward = reward
	}
	n.RewardSet = true
	return nil
}

// IncrementVisits bumps a node's visit counter. Per I6, only the tree
// search controller calls this, during selection/back-propagation.
func (t *Tree) IncrementVisits(id ident.NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("actiontree: unknown node %s", id)
	}
	n.Visits++
	return nil
}

// Roots returns the ids of every root node, in creation order.
func (t *Tree) Roots() []ident.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ident.NodeID, len(t.roots))
	copy(out, t.roots)
	return out
}

// PathFromRoot walks parent links from id back to its root, returning
// nodes in root-to-id order. Used to reconstruct the transcript prefix for
// a selected node (spec §4.7, "Expansion"). Per P3, this must terminate in
// a bounded number of steps; it guards against a malformed cycle with a
// depth cap derived from the tree's current size.
func (t *Tree) PathFromRoot(id ident.NodeID) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	maxSteps := len(t.nodes) + 1
	var rev []*Node
	cur := id
	for i := 0; i < maxSteps; i++ {
		n, ok := t.nodes[cur]
		if !ok {
			return nil, fmt.Errorf("actiontree: unknown node %s", cur)
		}
		rev = append(rev, n)
		if n.ParentID == "" {
			break
		}
		cur = n.ParentID
	}
	out := make([]*Node, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	if out[0].ParentID != "" {
		return nil, fmt.Errorf("actiontree: node %s did not terminate at a root within tree bounds", id)
	}
	return out, nil
}

// All returns every node in the tree, in no particular order; used for
// snapshotting (spec §6, "Persisted state: a flattened list of nodes with
// parent ids").
func (t *Tree) All() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}

// Restore replaces the tree's contents wholesale from a flattened node
// list, recomputing the roots in list order; each node's ChildIDs are kept
// as given. Used only by session.restore.
func (t *Tree) Restore(nodes []*Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = make(map[ident.NodeID]*Node, len(nodes))
	t.roots = nil
	for _, n := range nodes {
		t.nodes[n.ID] = n
	}
	for _, n := range nodes {
		if n.ParentID == "" {
			t.roots = append(t.roots, n.ID)
		}
	}
}
