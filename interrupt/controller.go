// Package interrupt delivers pause/resume requests into a running Agent
// Loop or Tree Search Controller workflow via engine signal channels. It
// is the bridge between an external actor (a user pausing a session
// through an API) and the cooperative checkpoints the driver polls
// between node executions (spec §5, "Concurrency & Resource Model").
//
// Cancellation does not go through a signal: the driver checks
// session.Session.CancelContext (cancelled by Session.Cancel) at its
// checkpoints rather than poll a third channel. engine/temporal's
// WorkflowHandle.Cancel also cancels the Temporal workflow; engine/inmem's
// WorkflowHandle.Cancel does nothing.
package interrupt

import (
	"context"
	"errors"

	"github.com/agentcore/decisioncore/engine"
)

const (
	// SignalPause requests a running session transition to Paused at its
	// next cooperative checkpoint.
	SignalPause = "decisioncore.session.pause"
	// SignalResume requests a Paused session resume driving.
	SignalResume = "decisioncore.session.resume"
)

type (
	// PauseRequest carries metadata attached to a pause signal.
	PauseRequest struct {
		Reason      string
		RequestedBy string
	}

	// ResumeRequest carries metadata attached to a resume signal. Message
	// lets a human or policy actor inject a new user message before the
	// loop resumes (spec §4.6, reentrancy from Paused).
	ResumeRequest struct {
		Notes       string
		RequestedBy string
		Message     string
	}

	// Controller drains pause/resume signals for a single workflow
	// execution and exposes non-blocking and blocking helpers the Agent
	// Loop driver calls between node executions.
	Controller struct {
		pauseCh  engine.SignalChannel
		resumeCh engine.SignalChannel
	}
)

// NewController wires a Controller to the signal channels of wfCtx. Call
// once per workflow execution, typically at the top of the workflow
// handler.
func NewController(wfCtx engine.WorkflowContext) *Controller {
	return &Controller{
		pauseCh:  wfCtx.SignalChannel(SignalPause),
		resumeCh: wfCtx.SignalChannel(SignalResume),
	}
}

// PollPause dequeues a pending pause request without blocking. The Agent
// Loop calls this at each checkpoint (spec §5: "cooperative, not
// preemptive" cancellation/pause).
func (c *Controller) PollPause() (PauseRequest, bool) {
	if c == nil || c.pauseCh == nil {
		return PauseRequest{}, false
	}
	var req PauseRequest
	if !c.pauseCh.ReceiveAsync(&req) {
		return PauseRequest{}, false
	}
	return req, true
}

// WaitResume blocks until a resume request is delivered, or ctx is done
// (including by cancellation). The driver calls this once it has
// transitioned the session to Paused.
func (c *Controller) WaitResume(ctx context.Context) (ResumeRequest, error) {
	if c == nil || c.resumeCh == nil {
		return ResumeRequest{}, errors.New("interrupt: resume channel unavailable")
	}
	var req ResumeRequest
	if err := c.resumeCh.Receive(ctx, &req); err != nil {
		return ResumeRequest{}, err
	}
	return req, nil
}
