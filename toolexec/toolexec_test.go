package toolexec_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/engine"
	"github.com/agentcore/decisioncore/engine/inmem"
	"github.com/agentcore/decisioncore/tools"
	"github.com/agentcore/decisioncore/toolexec"
)

func newRegistry(t *testing.T, name string, exec tools.Executor) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Descriptor{
		Name:     tools.Name(name),
		Executor: exec,
	}))
	return reg
}

func TestExecutorExecuteReturnsToolObservation(t *testing.T) {
	reg := newRegistry(t, "search", tools.ExecutorFunc(func(_ context.Context, args any, _ tools.SessionView) (tools.Observation, error) {
		return tools.Observation{Text: "found it"}, nil
	}))

	eng := inmem.New()
	ctx := context.Background()
	require.NoError(t, toolexec.RegisterActivity(ctx, eng, reg, ""))

	exec := toolexec.New("", "")
	require.NoError(t, eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "wf",
		Handler: func(wfCtx engine.WorkflowContext, input any) (any, error) {
			return exec.Execute(wfCtx.Context(), wfCtx, toolexec.Input{ToolName: "search"})
		},
	}))

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "r1", Workflow: "wf"})
	require.NoError(t, err)

	var out toolexec.Output
	require.NoError(t, handle.Wait(ctx, &out))
	require.False(t, out.Failed)
	require.Equal(t, "found it", out.Observation.Text)
}

func TestExecutorExecuteSurfacesToolFailure(t *testing.T) {
	reg := newRegistry(t, "flaky", tools.ExecutorFunc(func(context.Context, any, tools.SessionView) (tools.Observation, error) {
		return tools.Observation{}, errors.New("boom")
	}))

	eng := inmem.New()
	ctx := context.Background()
	require.NoError(t, toolexec.RegisterActivity(ctx, eng, reg, ""))

	exec := toolexec.New("", "")
	require.NoError(t, eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "wf",
		Handler: func(wfCtx engine.WorkflowContext, input any) (any, error) {
			return exec.Execute(wfCtx.Context(), wfCtx, toolexec.Input{ToolName: "flaky"})
		},
	}))

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "r1", Workflow: "wf"})
	require.NoError(t, err)

	var out toolexec.Output
	require.NoError(t, handle.Wait(ctx, &out))
	require.True(t, out.Failed)
	require.Contains(t, out.ErrorText, "boom")
}

func TestExecutorExecuteUnknownToolFails(t *testing.T) {
	reg := tools.NewRegistry()
	eng := inmem.New()
	ctx := context.Background()
	require.NoError(t, toolexec.RegisterActivity(ctx, eng, reg, ""))

	exec := toolexec.New("", "")
	require.NoError(t, eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "wf",
		Handler: func(wfCtx engine.WorkflowContext, input any) (any, error) {
			return exec.Execute(wfCtx.Context(), wfCtx, toolexec.Input{ToolName: "missing"})
		},
	}))

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "r1", Workflow: "wf"})
	require.NoError(t, err)

	var out toolexec.Output
	require.NoError(t, handle.Wait(ctx, &out))
	require.True(t, out.Failed)
}
