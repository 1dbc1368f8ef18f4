package actiontree_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/actiontree"
	"github.com/agentcore/decisioncore/ident"
)

func TestNewRootThenChildBuildsTreeWithDepth(t *testing.T) {
	tree := actiontree.NewTree()
	root := tree.NewRoot(actiontree.Action{Tool: "search"})
	require.Equal(t, 0, root.Depth)
	require.Equal(t, actiontree.StatePending, root.State)

	child, err := tree.NewChild(root.ID, actiontree.Action{Tool: "read_file"})
	require.NoError(t, err)
	require.Equal(t, 1, child.Depth)
	require.Equal(t, root.ID, child.ParentID)

	got, ok := tree.Get(root.ID)
	require.True(t, ok)
	require.True(t, got.HasChildren())
	require.Equal(t, []ident.NodeID{child.ID}, got.ChildIDs)
}

func TestNewChildUnknownParentFails(t *testing.T) {
	tree := actiontree.NewTree()
	_, err := tree.NewChild("missing", actiontree.Action{Tool: "search"})
	require.Error(t, err)
}

func TestFinalizeRequiresExecutingState(t *testing.T) {
	tree := actiontree.NewTree()
	root := tree.NewRoot(actiontree.Action{Tool: "search"})

	err := tree.Finalize(root.ID, actiontree.Observation{Text: "ok"}, false, 1.0)
	require.Error(t, err, "Finalize must reject a Pending node that never transitioned through Executing")

	require.NoError(t, tree.TransitionExecuting(root.ID))
	require.NoError(t, tree.Finalize(root.ID, actiontree.Observation{Text: "ok"}, false, 1.0))

	got, _ := tree.Get(root.ID)
	require.Equal(t, actiontree.StateFinalized, got.State)
	require.Equal(t, 1.0, got.Reward)
	require.True(t, got.RewardSet)
}

func TestFinalizeRewardIsSetExactlyOnce(t *testing.T) {
	tree := actiontree.NewTree()
	root := tree.NewRoot(actiontree.Action{Tool: "search"})
	require.NoError(t, tree.TransitionExecuting(root.ID))
	require.NoError(t, tree.Finalize(root.ID, actiontree.Observation{}, false, 0.5))

	err := tree.Finalize(root.ID, actiontree.Observation{}, false, 0.9)
	require.Error(t, err)

	got, _ := tree.Get(root.ID)
	require.Equal(t, 0.5, got.Reward, "a second Finalize call must not overwrite the first reward")
}

func TestFinalizeFailedNodeAlwaysZeroReward(t *testing.T) {
	tree := actiontree.NewTree()
	root := tree.NewRoot(actiontree.Action{Tool: "search"})
	require.NoError(t, tree.TransitionExecuting(root.ID))

	obs := actiontree.Observation{Err: errors.New("boom")}
	require.NoError(t, tree.Finalize(root.ID, obs, true, 1.0))

	got, _ := tree.Get(root.ID)
	require.Equal(t, actiontree.StateFailed, got.State)
	require.Equal(t, 0.0, got.Reward)
}

func TestPathFromRootReturnsRootToNodeOrder(t *testing.T) {
	tree := actiontree.NewTree()
	root := tree.NewRoot(actiontree.Action{Tool: "search"})
	mid, err := tree.NewChild(root.ID, actiontree.Action{Tool: "read_file"})
	require.NoError(t, err)
	leaf, err := tree.NewChild(mid.ID, actiontree.Action{Tool: "final_answer"})
	require.NoError(t, err)

	path, err := tree.PathFromRoot(leaf.ID)
	require.NoError(t, err)
	require.Equal(t, []ident.NodeID{root.ID, mid.ID, leaf.ID}, []ident.NodeID{path[0].ID, path[1].ID, path[2].ID})
}

func TestRestoreRebuildsRootsFromFlattenedNodes(t *testing.T) {
	tree := actiontree.NewTree()
	root := tree.NewRoot(actiontree.Action{Tool: "search"})
	child, err := tree.NewChild(root.ID, actiontree.Action{Tool: "read_file"})
	require.NoError(t, err)

	fresh := actiontree.NewTree()
	fresh.Restore(tree.All())

	require.ElementsMatch(t, []ident.NodeID{root.ID}, fresh.Roots())
	got, ok := fresh.Get(child.ID)
	require.True(t, ok)
	require.Equal(t, root.ID, got.ParentID)
}

func TestIncrementVisitsUnknownNodeFails(t *testing.T) {
	tree := actiontree.NewTree()
	require.Error(t, tree.IncrementVisits("missing"))
}
