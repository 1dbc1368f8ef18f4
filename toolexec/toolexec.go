// Package toolexec runs a parsed tool call through the durable engine's
// activity mechanism, so an in-flight invocation survives a process
// restart (spec §6, "Tool executor"). It is grounded on the teacher's
// ActivityToolExecutor: the activity itself performs the side effect, the
// workflow handler only schedules it and awaits the result, preserving
// workflow-replay determinism.
package toolexec

import (
	"context"
	"fmt"

	"github.com/agentcore/decisioncore/engine"
	"github.com/agentcore/decisioncore/toolerrors"
	"github.com/agentcore/decisioncore/tools"
)

// DefaultActivityName is the name tool invocations are registered under
// with an engine.Engine, unless a Executor overrides it.
const DefaultActivityName = "decisioncore.tool.invoke"

type (
	// Input is the envelope an invocation activity receives. It must be
	// plain data (no live registry/executor references) since a durable
	// engine may serialize it across a process boundary.
	Input struct {
		ToolName  tools.Name
		Arguments map[string]any
		View      tools.SessionView
	}

	// Output is the envelope an invocation activity returns.
	Output struct {
		Observation tools.Observation
		Failed      bool
		ErrorText   string
	}

	// Executor runs a parsed tool call via an engine.WorkflowContext's
	// activity mechanism. A single Executor instance is shared by every
	// session's Agent Loop.
	Executor struct {
		activityName string
		queue        string
	}
)

// New builds an Executor that schedules tool invocations under
// activityName (DefaultActivityName if empty) on queue (the engine's
// default queue if empty).
func New(activityName, queue string) *Executor {
	if activityName == "" {
		activityName = DefaultActivityName
	}
	return &Executor{activityName: activityName, queue: queue}
}

// RegisterActivity registers the activity handler that performs the tool's
// side effect, looking the tool up in reg by name on every invocation so a
// single activity definition serves the whole registry.
func RegisterActivity(ctx context.Context, eng engine.Engine, reg *tools.Registry, activityName string) error {
	if activityName == "" {
		activityName = DefaultActivityName
	}
	return eng.RegisterActivity(ctx, engine.ActivityDefinition{
		Name:    activityName,
		Handler: activityHandler(reg),
	})
}

func activityHandler(reg *tools.Registry) engine.ActivityFunc {
	return func(ctx context.Context, raw any) (any, error) {
		input, ok := raw.(Input)
		if !ok {
			return nil, fmt.Errorf("toolexec: unexpected activity input type %T", raw)
		}
		desc, err := reg.Lookup(input.ToolName)
		if err != nil {
			return Output{Failed: true, ErrorText: err.Error()}, nil
		}
		obs, err := desc.Executor.Invoke(ctx, input.Arguments, input.View)
		if err != nil {
			te := toolerrors.FromError(err)
			return Output{Failed: true, ErrorText: te.Error()}, nil
		}
		return Output{Observation: obs}, nil
	}
}

// Execute schedules the tool call as an activity and waits for its result.
// Running it via ExecuteActivityAsync (rather than the blocking
// ExecuteActivity) mirrors the teacher's ActivityToolExecutor, which keeps
// the same code path usable when the Tree Search Controller wants to
// launch several sibling tool calls concurrently and await them together.
func (e *Executor) Execute(ctx context.Context, wfCtx engine.WorkflowContext, input Input) (Output, error) {
	fut, err := wfCtx.ExecuteActivityAsync(ctx, engine.ActivityRequest{
		Name:  e.activityName,
		Queue: e.queue,
		Input: input,
	})
	if err != nil {
		return Output{}, fmt.Errorf("toolexec: schedule activity: %w", err)
	}
	var out Output
	if err := fut.Get(ctx, &out); err != nil {
		return Output{}, fmt.Errorf("toolexec: await activity: %w", err)
	}
	return out, nil
}

// ExecuteAsync schedules the tool call without waiting, for callers (the
// Tree Search Controller) that need to run several sibling branches in
// parallel (spec §4.7's bounded-parallelism expansion, spec §5).
func (e *Executor) ExecuteAsync(ctx context.Context, wfCtx engine.WorkflowContext, input Input) (engine.Future, error) {
	return wfCtx.ExecuteActivityAsync(ctx, engine.ActivityRequest{
		Name:  e.activityName,
		Queue: e.queue,
		Input: input,
	})
}
