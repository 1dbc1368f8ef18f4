// Package valuefn defines the value-function collaborator the Tree Search
// Controller (C7) calls during evaluation: given a just-finalized Action
// Node, estimate the scalar reward to back-propagate up the tree. This
// resolves the determinism Open Question from spec.md §9 by offering two
// concrete variants rather than picking one: valuefn/heuristic (the
// deterministic default) and valuefn/model (a model-scored, non-deterministic
// alternative), both satisfying the same narrow Func contract.
package valuefn

import (
	"context"

	"github.com/agentcore/decisioncore/actiontree"
)

// Func estimates the reward for a node that has just been finalized or
// failed. Implementations must be safe to call concurrently: the Tree
// Search Controller may evaluate sibling branches in parallel (spec §4.7,
// bounded parallelism).
type Func interface {
	Evaluate(ctx context.Context, node *actiontree.Node) (float64, error)
}

// FuncFunc adapts a plain function to Func.
type FuncFunc func(ctx context.Context, node *actiontree.Node) (float64, error)

// Evaluate calls f.
func (f FuncFunc) Evaluate(ctx context.Context, node *actiontree.Node) (float64, error) {
	return f(ctx, node)
}
