// Package engine defines the durable-execution abstractions the Agent
// Loop (C6) and Tree Search Controller (C7) run on top of. A pluggable
// interface lets the core target Temporal, a plain in-memory engine for
// tests and standalone use, or a future custom backend without the core
// itself changing.
package engine

import (
	"context"
	"time"

	"github.com/agentcore/decisioncore/telemetry"
)

type (
	// Engine abstracts workflow registration and execution so adapters
	// (Temporal, in-memory, or custom) can be swapped without touching
	// core logic.
	Engine interface {
		// RegisterWorkflow registers a workflow definition with the
		// engine. Called during initialization before starting workers.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error
		// RegisterActivity registers an activity definition with the
		// engine. Must be called during initialization before starting
		// workers.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error
		// StartWorkflow initiates a new workflow execution and returns a
		// handle for interacting with it. req.ID must be unique within
		// the engine instance.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is a session-driving workflow entry point (the Agent
	// Loop or the Tree Search Controller). It must be deterministic: it
	// must produce the same execution sequence given the same inputs and
	// activity results, since durable engines replay it from history.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to a workflow handler
	// within the deterministic execution environment of a workflow. It
	// wraps engine-specific contexts (Temporal's workflow.Context, an
	// in-memory context, etc.) behind a uniform API for activity
	// execution, signal handling, and observability.
	//
	// Implementations must ensure deterministic replay: operations that
	// interact with the workflow engine (ExecuteActivity, SignalChannel)
	// must produce deterministic results when replayed. Direct I/O,
	// random number generation, or system time access inside a workflow
	// handler violates determinism; Now provides the one replay-safe time
	// source a handler may use.
	WorkflowContext interface {
		Context() context.Context
		WorkflowID() string
		RunID() string

		// ExecuteActivity schedules an activity and waits for its result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error
		// ExecuteActivityAsync schedules an activity without blocking,
		// returning a Future. This is how the Tree Search Controller
		// expands bounded-parallel sibling branches (spec §5).
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)
		// SignalChannel returns a channel for the given signal name, used
		// by package interrupt for pause/resume delivery.
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns the current workflow time in a replay-safe manner.
		Now() time.Time
	}

	// Future represents a pending activity result.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler with optional
	// defaults. Tool invocation (package toolexec) runs as an activity so
	// it survives process restarts mid-invocation.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc handles an activity invocation. Unlike workflow
	// handlers, activities may perform side effects (network, filesystem,
	// subprocess — exactly what tool executors do).
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry and timeout behavior.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		Memo             map[string]any
		SearchAttributes map[string]any
		RetryPolicy      RetryPolicy
	}

	// ActivityRequest contains the info needed to schedule an activity
	// from a workflow handler.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers interact with a running workflow.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy defines retry semantics shared by workflows and
	// activities. Zero-valued fields mean the engine uses its defaults.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes workflow signal delivery in an engine-agnostic
	// way.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)
