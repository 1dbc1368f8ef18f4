package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/engine"
)

func TestStartWorkflowExecutesActivity(t *testing.T) {
	eng := New()
	ctx := context.Background()

	require.NoError(t, eng.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: "echo",
		Handler: func(_ context.Context, input any) (any, error) {
			return input, nil
		},
	}))

	require.NoError(t, eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "echo_workflow",
		Handler: func(wfCtx engine.WorkflowContext, input any) (any, error) {
			var out string
			if err := wfCtx.ExecuteActivity(wfCtx.Context(), engine.ActivityRequest{
				Name:  "echo",
				Input: input,
			}, &out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}))

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "run-1",
		Workflow: "echo_workflow",
		Input:    "hello",
	})
	require.NoError(t, err)

	var result string
	require.NoError(t, handle.Wait(ctx, &result))
	require.Equal(t, "hello", result)
}

func TestStartWorkflowUnregisteredNameFails(t *testing.T) {
	eng := New()
	_, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:       "run-1",
		Workflow: "does_not_exist",
	})
	require.Error(t, err)
}

func TestSignalDeliveredToRunningWorkflow(t *testing.T) {
	eng := New()
	ctx := context.Background()

	received := make(chan string, 1)
	require.NoError(t, eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "signal_workflow",
		Handler: func(wfCtx engine.WorkflowContext, _ any) (any, error) {
			var payload string
			if err := wfCtx.SignalChannel("pause").Receive(wfCtx.Context(), &payload); err != nil {
				return nil, err
			}
			received <- payload
			return nil, nil
		},
	}))

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "run-2",
		Workflow: "signal_workflow",
	})
	require.NoError(t, err)
	require.NoError(t, handle.Signal(ctx, "pause", "paused-by-user"))
	require.NoError(t, handle.Wait(ctx, nil))
	require.Equal(t, "paused-by-user", <-received)
}

func TestExecuteActivityAsyncFutureNotReadyUntilHandlerReturns(t *testing.T) {
	eng := New()
	ctx := context.Background()

	unblock := make(chan struct{})
	require.NoError(t, eng.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: "blocking",
		Handler: func(_ context.Context, _ any) (any, error) {
			<-unblock
			return "done", nil
		},
	}))
	require.NoError(t, eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "blocking_workflow",
		Handler: func(wfCtx engine.WorkflowContext, _ any) (any, error) {
			fut, err := wfCtx.ExecuteActivityAsync(wfCtx.Context(), engine.ActivityRequest{Name: "blocking"})
			if err != nil {
				return nil, err
			}
			if fut.IsReady() {
				t.Errorf("future should not be ready before the activity unblocks")
			}
			close(unblock)
			var out string
			if err := fut.Get(wfCtx.Context(), &out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}))

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "run-3", Workflow: "blocking_workflow"})
	require.NoError(t, err)
	var result string
	require.NoError(t, handle.Wait(ctx, &result))
	require.Equal(t, "done", result)
}
