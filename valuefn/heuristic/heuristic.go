// Package heuristic provides a deterministic valuefn.Func: the default for
// the Tree Search Controller (C7) since it needs no model call and produces
// reproducible scores for the same tree shape, which is what spec.md §9
// leaves open and what this transformation resolves as the default.
package heuristic

import (
	"context"

	"github.com/agentcore/decisioncore/actiontree"
	"github.com/agentcore/decisioncore/valuefn"
)

// Options configures the deterministic scoring constants.
type Options struct {
	// Success is the reward for a Finalized terminal node (no children
	// expected to follow). Defaults to 1.0.
	Success float64
	// IntermediateBase is the reward for a Finalized node that is not
	// terminal, before the depth discount is applied. Defaults to 0.5.
	IntermediateBase float64
	// DepthDiscount is subtracted from IntermediateBase per unit of depth,
	// floored at zero. Defaults to 0.05.
	DepthDiscount float64
}

// Engine implements valuefn.Func with fixed constants: 1.0 for a Finalized
// node with no children, 0.0 for a Failed node, and a depth-discounted
// constant for a Finalized node that has children (spec.md §6A). Whether
// the node's tool is terminating is not consulted.
type Engine struct {
	success          float64
	intermediateBase float64
	depthDiscount    float64
}

var _ valuefn.Func = (*Engine)(nil)

// New builds a deterministic Engine from opts, applying defaults for any
// zero-valued field.
func New(opts Options) *Engine {
	e := &Engine{
		success:          opts.Success,
		intermediateBase: opts.IntermediateBase,
		depthDiscount:    opts.DepthDiscount,
	}
	if e.success == 0 {
		e.success = 1.0
	}
	if e.intermediateBase == 0 {
		e.intermediateBase = 0.5
	}
	if e.depthDiscount == 0 {
		e.depthDiscount = 0.05
	}
	return e
}

// Evaluate scores node purely from its State and Depth. It never calls out
// and never returns an error: the contract is preserved only for interface
// compatibility with valuefn.Func.
func (e *Engine) Evaluate(_ context.Context, node *actiontree.Node) (float64, error) {
	switch node.State {
	case actiontree.StateFailed:
		return 0, nil
	case actiontree.StateFinalized:
		if !node.HasChildren() {
			return e.success, nil
		}
		discounted := e.intermediateBase - e.depthDiscount*float64(node.Depth)
		if discounted < 0 {
			return 0, nil
		}
		return discounted, nil
	default:
		return 0, nil
	}
}
