// Package loop implements the Agent Loop (C6): the driver of one linear
// trajectory. It is grounded on the teacher's workflowLoop/runDeadlines
// split in runtime/agent/runtime/workflow_loop.go — a loop owns the
// shared, (mostly) immutable context for a run and delegates each step to
// a small helper method, rather than threading a dozen parameters through
// free functions. Mutable per-turn state here is narrower than the
// teacher's runLoopState since the decision core's Session/Exchange
// Log/Action Tree already hold the state that would otherwise need to
// travel alongside the loop.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentcore/decisioncore/actiontree"
	"github.com/agentcore/decisioncore/engine"
	"github.com/agentcore/decisioncore/exchange"
	"github.com/agentcore/decisioncore/hooks"
	"github.com/agentcore/decisioncore/ident"
	"github.com/agentcore/decisioncore/interrupt"
	"github.com/agentcore/decisioncore/modelclient"
	"github.com/agentcore/decisioncore/policy"
	"github.com/agentcore/decisioncore/session"
	"github.com/agentcore/decisioncore/toolerrors"
	"github.com/agentcore/decisioncore/tools"
	"github.com/agentcore/decisioncore/toolexec"
)

// PromptRenderer builds the system prompt from session state and the tool
// catalog (spec §4.6, step 2: "Render the system prompt from registry +
// exchanges + user context + project labels"). A nil Deps.SystemPrompt
// falls back to DefaultSystemPrompt.
type PromptRenderer func(sess *session.Session, reg *tools.Registry) string

// Deps are the collaborators one Driver needs to run a session's
// trajectory. A single Deps value (built once per process) is shared by
// every session's workflow, since everything session-specific hangs off
// the Input passed into Run.
type Deps struct {
	Registry     *tools.Registry
	Model        modelclient.Client
	Tools        *toolexec.Executor
	Policy       policy.Engine
	Bus          hooks.Bus
	SystemPrompt PromptRenderer
}

// Input is what a workflow execution needs to drive one session.
type Input struct {
	Session *session.Session
}

// Result is what Run returns once a trajectory reaches a terminal state.
type Result struct {
	Status      session.Status
	Reason      string
	NodeCount   int
	ExchangeLen int
}

// Driver runs the Agent Loop for one session inside a workflow execution.
type Driver struct {
	deps Deps
}

// New constructs a Driver. Panics only if a required dependency is
// missing, since a misconfigured Driver cannot safely run any session.
func New(deps Deps) *Driver {
	if deps.Registry == nil {
		panic("loop: Registry is required")
	}
	if deps.Model == nil {
		panic("loop: Model is required")
	}
	if deps.Tools == nil {
		panic("loop: Tools is required")
	}
	if deps.Policy == nil {
		deps.Policy = policy.DefaultEngine{}
	}
	if deps.Bus == nil {
		deps.Bus = hooks.NewBus()
	}
	if deps.SystemPrompt == nil {
		deps.SystemPrompt = DefaultSystemPrompt
	}
	return &Driver{deps: deps}
}

// Handler adapts Run into an engine.WorkflowFunc suitable for
// engine.Engine.RegisterWorkflow.
func (d *Driver) Handler() engine.WorkflowFunc {
	return func(wfCtx engine.WorkflowContext, raw any) (any, error) {
		input, ok := raw.(Input)
		if !ok {
			return nil, fmt.Errorf("loop: unexpected workflow input type %T", raw)
		}
		return d.Run(wfCtx, input)
	}
}

// turn carries the state a trajectory threads across iterations: the
// action-node tail it should grow from next and the policy caps state.
// Everything else lives on the session itself.
type turn struct {
	parent ident.NodeID
	caps   policy.CapsState
}

// Run drives in.Session's trajectory to completion, following spec §4.6's
// per-iteration steps. It is the WorkflowFunc body registered for a
// session's workflow execution.
func (d *Driver) Run(wfCtx engine.WorkflowContext, in Input) (Result, error) {
	sess := in.Session
	ctx := wfCtx.Context()
	ctrl := interrupt.NewController(wfCtx)

	if sess.CancelContext().Err() != nil {
		return d.finishCancelled(ctx, sess)
	}
	if err := sess.TransitionTo(session.StatusRunning); err != nil {
		return Result{}, err
	}
	d.publishStatus(ctx, sess)

	cfg := sess.Config()
	t := turn{caps: policy.NewCapsState(cfg.ParseFailureRetries, cfg.MaxConsecutiveToolFailures, deadlineFor(wfCtx, cfg))}

	for {
		if sess.CancelContext().Err() != nil {
			return d.finishCancelled(ctx, sess)
		}

		if _, paused := ctrl.PollPause(); paused {
			out, err := d.handlePause(ctx, sess, ctrl)
			if err != nil {
				return Result{}, err
			}
			if out != nil {
				return *out, nil
			}
			continue
		}

		out, err := d.step(ctx, wfCtx, sess, ctrl, &t)
		if err != nil {
			return Result{}, err
		}
		if out != nil {
			return *out, nil
		}
	}
}

// handlePause transitions the session to Paused and blocks until a
// resume signal arrives, optionally injecting a user message the resume
// request carried (spec §4.6: "a follow-up question transitions the
// session to Paused, not Completed"; reentrancy is the Resume side of
// that same mechanism). Returns a non-nil *Result only if the wait ended
// because the session was cancelled while paused.
func (d *Driver) handlePause(ctx context.Context, sess *session.Session, ctrl *interrupt.Controller) (*Result, error) {
	if err := sess.Pause(); err != nil {
		return nil, err
	}
	d.publishStatus(ctx, sess)

	resume, err := ctrl.WaitResume(sess.CancelContext())
	if err != nil {
		if sess.CancelContext().Err() != nil {
			out, ferr := d.finishCancelled(ctx, sess)
			return &out, ferr
		}
		return nil, fmt.Errorf("loop: waiting for resume: %w", err)
	}

	if resume.Message != "" {
		if _, err := sess.AppendUserMessage(resume.Message); err != nil {
			return nil, err
		}
	}
	if err := sess.Resume(); err != nil {
		return nil, err
	}
	d.publishStatus(ctx, sess)
	return nil, nil
}

// step runs exactly one agent-loop iteration (spec §4.6, steps 2-6).
// Returns a non-nil *Result once the trajectory reaches a terminal
// session status.
func (d *Driver) step(ctx context.Context, wfCtx engine.WorkflowContext, sess *session.Session, ctrl *interrupt.Controller, t *turn) (*Result, error) {
	prospectiveNodeID := ident.NewNodeID()

	resp, err := d.callModel(ctx, sess, prospectiveNodeID)
	if err != nil {
		sess.TransitionTo(session.StatusErrored)
		d.publishStatus(ctx, sess)
		d.publish(ctx, hooks.NewError(sess.ID(), "model", err.Error()))
		return nil, fmt.Errorf("loop: model call: %w", err)
	}

	call, failure, err := tools.Parse(d.deps.Registry, resp.Text)
	if err != nil {
		return nil, fmt.Errorf("loop: parse reply: %w", err)
	}

	terminalReply := call == nil && failure == nil
	aid := sess.Exchanges().Append(exchange.Exchange{
		Role:     exchange.RoleAssistant,
		Text:     resp.Text,
		Terminal: terminalReply,
	})
	d.publish(ctx, hooks.NewExchangeAppended(sess.ID(), aid, string(exchange.RoleAssistant), false))

	switch {
	case terminalReply:
		sess.TransitionTo(session.StatusCompleted)
		d.publishStatus(ctx, sess)
		res := d.result(sess)
		return &res, nil

	case failure != nil:
		return d.handleParseFailure(ctx, sess, t, failure)

	default:
		return d.handleToolCall(ctx, wfCtx, sess, ctrl, t, prospectiveNodeID, call)
	}
}

// handleParseFailure implements spec §4.6 step 3's ParseFailure branch:
// append a synthetic ToolResult describing the failure and consult the
// shared retry budget.
func (d *Driver) handleParseFailure(ctx context.Context, sess *session.Session, t *turn, failure *tools.ParseFailure) (*Result, error) {
	tid := sess.Exchanges().Append(exchange.Exchange{
		Role:     exchange.RoleToolResult,
		ToolName: "",
		Text:     fmt.Sprintf("parse failure (%s): %s", failure.Kind, failure.Detail),
		Result:   failure,
	})
	d.publish(ctx, hooks.NewExchangeAppended(sess.ID(), tid, string(exchange.RoleToolResult), false))

	decision, err := d.deps.Policy.Decide(ctx, policy.Input{
		Caps:    t.caps,
		Outcome: policy.Outcome{Kind: policy.OutcomeParseFailure},
		Now:     time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("loop: policy decide: %w", err)
	}
	t.caps = decision.Caps
	if decision.Terminate {
		return d.finishErrored(ctx, sess, decision.Reason)
	}
	return nil, nil
}

// handleToolCall implements spec §4.6 steps 3 (ParsedToolCall branch)
// through 6: create the Action Node, invoke the tool, finalize the node,
// append its ToolResult exchange (with any ResultReminder addendum
// riding along, spec §4.6 supplement), consult policy, and check for a
// terminating tool.
func (d *Driver) handleToolCall(ctx context.Context, wfCtx engine.WorkflowContext, sess *session.Session, ctrl *interrupt.Controller, t *turn, nodeID ident.NodeID, call *tools.ParsedToolCall) (*Result, error) {
	desc, err := d.deps.Registry.Lookup(call.ToolName)
	if err != nil {
		// The parser already validated the tool exists against this same
		// registry; a lookup miss here means the registry changed
		// concurrently, which spec.md's shared read-mostly registry
		// model does not allow for a running session.
		return nil, fmt.Errorf("loop: tool %q vanished from registry: %w", call.ToolName, err)
	}

	action := actiontree.Action{Tool: string(call.ToolName), Arguments: call.Arguments}
	var node *actiontree.Node
	if t.parent == "" {
		node, err = sess.Tree().NewRootWithID(nodeID, action)
	} else {
		node, err = sess.Tree().NewChildWithID(t.parent, nodeID, action)
	}
	if err != nil {
		return nil, fmt.Errorf("loop: create action node: %w", err)
	}
	if err := sess.Tree().TransitionExecuting(node.ID); err != nil {
		return nil, fmt.Errorf("loop: transition node executing: %w", err)
	}
	d.publish(ctx, hooks.NewToolInvocationStarted(sess.ID(), node.ID, string(call.ToolName)))

	invokeCtx := ctx
	var cancel context.CancelFunc
	if timeout := toolTimeout(sess.Config(), desc); timeout > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	invokeStart := time.Now()
	out, execErr := d.deps.Tools.Execute(invokeCtx, wfCtx, toolexec.Input{
		ToolName:  call.ToolName,
		Arguments: call.Arguments,
		View:      sessionView(sess),
	})

	failed := execErr != nil || out.Failed
	var toolErr error
	if execErr != nil {
		if errors.Is(invokeCtx.Err(), context.DeadlineExceeded) {
			toolErr = toolerrors.Timeout(time.Since(invokeStart).Milliseconds())
		} else {
			toolErr = execErr
		}
	} else if out.Failed {
		toolErr = errors.New(out.ErrorText)
	}

	var reward float64
	if !failed && desc.IsTerminating {
		reward = 1.0
	}
	obs := actiontree.Observation{Text: out.Observation.Text, Value: out.Observation.Value}
	if failed {
		obs.Err = toolErr
	}
	if err := sess.Tree().Finalize(node.ID, obs, failed, reward); err != nil {
		return nil, fmt.Errorf("loop: finalize action node: %w", err)
	}
	d.publish(ctx, hooks.NewToolInvocationCompleted(sess.ID(), node.ID, out.Observation.Text, failed))
	if reward != 0 {
		d.publish(ctx, hooks.NewNodeEvaluated(sess.ID(), node.ID, reward))
	}

	reminder, err := desc.RenderResultReminder(tools.ResultReminderData{
		Tool: call.ToolName, Text: out.Observation.Text, Value: out.Observation.Value, Failed: failed,
	})
	if err != nil {
		return nil, fmt.Errorf("loop: render result reminder: %w", err)
	}

	terminating := !failed && desc.IsTerminating
	toolExchange := exchange.Exchange{
		Role:         exchange.RoleToolResult,
		ToolName:     string(call.ToolName),
		Result:       out.Observation.Value,
		ActionNodeID: node.ID,
		Reminder:     reminder,
		Terminal:     terminating,
	}
	if failed {
		toolExchange.Text = toolErr.Error()
	} else {
		toolExchange.Text = out.Observation.Text
	}
	tid := sess.Exchanges().Append(toolExchange)
	d.publish(ctx, hooks.NewExchangeAppended(sess.ID(), tid, string(exchange.RoleToolResult), false))

	outcome := policy.Outcome{Kind: policy.OutcomeToolSuccess, Tool: string(call.ToolName)}
	if failed {
		outcome.Kind = policy.OutcomeToolFailure
	}
	decision, err := d.deps.Policy.Decide(ctx, policy.Input{Caps: t.caps, Outcome: outcome, Now: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("loop: policy decide: %w", err)
	}
	t.caps = decision.Caps
	if decision.Terminate {
		return d.finishErrored(ctx, sess, decision.Reason)
	}

	if terminating {
		status := session.StatusCompleted
		if strings.EqualFold(desc.TerminatesToStatus, "paused") {
			status = session.StatusPaused
		}
		if err := sess.TransitionTo(status); err != nil {
			return nil, err
		}
		d.publishStatus(ctx, sess)
		if status == session.StatusPaused {
			// A follow-up-question tool paused the session; wait right
			// here for the resume rather than unwinding the workflow, so
			// a human reply resumes the same trajectory tail.
			out, err := d.handlePause(ctx, sess, ctrl)
			if err != nil {
				return nil, err
			}
			if out != nil {
				return out, nil
			}
			t.parent = node.ID
			return nil, nil
		}
		res := d.result(sess)
		return &res, nil
	}

	t.parent = node.ID
	return nil, nil
}

func (d *Driver) finishCancelled(ctx context.Context, sess *session.Session) (Result, error) {
	sess.Cancel()
	d.publishStatus(ctx, sess)
	return d.result(sess), nil
}

func (d *Driver) finishErrored(ctx context.Context, sess *session.Session, reason string) (*Result, error) {
	if err := sess.TransitionTo(session.StatusErrored); err != nil {
		return nil, err
	}
	d.publishStatus(ctx, sess)
	d.publish(ctx, hooks.NewError(sess.ID(), "budget_exhausted", reason))
	res := d.result(sess)
	res.Reason = reason
	return &res, nil
}

func (d *Driver) result(sess *session.Session) Result {
	return Result{
		Status:      sess.Status(),
		NodeCount:   len(sess.Tree().All()),
		ExchangeLen: sess.Exchanges().Len(),
	}
}

func (d *Driver) publishStatus(ctx context.Context, sess *session.Session) {
	d.publish(ctx, hooks.NewSessionStatusChanged(sess.ID(), string(sess.Status())))
}

func (d *Driver) publish(ctx context.Context, ev hooks.Event) {
	_ = d.deps.Bus.Publish(ctx, ev)
}

// callModel renders the transcript and calls the model collaborator. A
// streaming client streams text deltas as ToolInvocationChunk events
// tagged with nodeID (the id the loop will assign the Action Node if the
// reply turns out to carry a tool call) before falling back to a
// synthesized Response; a non-streaming client is called directly (spec
// §4.6 step 2, §6 "Model client").
func (d *Driver) callModel(ctx context.Context, sess *session.Session, nodeID ident.NodeID) (modelclient.Response, error) {
	req := modelclient.Request{
		ModelClass: modelclass(sess),
		Messages:   d.renderMessages(sess),
	}

	streamer, err := d.deps.Model.Stream(ctx, req)
	if err != nil || streamer == nil {
		return d.deps.Model.Complete(ctx, req)
	}
	defer streamer.Close()

	var text strings.Builder
	var usage modelclient.TokenUsage
	var stopReason string
	for {
		chunk, err := streamer.Recv(ctx)
		if err != nil {
			if errors.Is(err, modelclient.ErrStreamDone) {
				break
			}
			return modelclient.Response{}, err
		}
		switch chunk.Type {
		case modelclient.ChunkTypeTextDelta:
			text.WriteString(chunk.TextDelta)
			d.publish(ctx, hooks.NewToolInvocationChunk(sess.ID(), nodeID, chunk.TextDelta))
		case modelclient.ChunkTypeUsage:
			if chunk.UsageDelta != nil {
				usage = *chunk.UsageDelta
			}
		case modelclient.ChunkTypeStop:
			stopReason = chunk.StopReason
		}
	}
	return modelclient.Response{Text: text.String(), Usage: usage, StopReason: stopReason}, nil
}

func modelclass(sess *session.Session) modelclient.ModelClass {
	if sess.ModelConfig().Fast != "" {
		return modelclient.ModelClassFast
	}
	return ""
}

// renderMessages turns the non-superseded exchange log into a
// provider-agnostic transcript (spec §6: "transcript is a rendered
// sequence of role-tagged turns derived from the Exchange Log").
func (d *Driver) renderMessages(sess *session.Session) []modelclient.Message {
	entries := sess.Exchanges().ForPrompt(false)
	messages := make([]modelclient.Message, 0, len(entries)+1)
	messages = append(messages, modelclient.Message{Role: modelclient.RoleSystem, Text: d.deps.SystemPrompt(sess, d.deps.Registry)})
	for _, e := range entries {
		switch e.Role {
		case exchange.RoleUser:
			messages = append(messages, modelclient.Message{Role: modelclient.RoleUser, Text: e.Text})
		case exchange.RoleAssistant:
			messages = append(messages, modelclient.Message{Role: modelclient.RoleAssistant, Text: e.Text})
		case exchange.RoleToolResult:
			messages = append(messages, modelclient.Message{Role: modelclient.RoleUser, Text: formatToolResult(e)})
		}
	}
	return messages
}

func formatToolResult(e exchange.Exchange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool result (%s): %s", e.ToolName, e.Text)
	if e.Reminder != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Reminder)
	}
	return b.String()
}

// DefaultSystemPrompt renders the tool catalog and session context into a
// system message (spec §4.6 step 2). It folds in the teacher's
// reminder.DefaultExplanation idiom so a model that has never seen a
// <system-reminder> block is told, once, how to treat one.
func DefaultSystemPrompt(sess *session.Session, reg *tools.Registry) string {
	var b strings.Builder
	b.WriteString("You are an autonomous coding assistant. Invoke at most one tool per reply, as a single root XML-like tag.\n\n")
	b.WriteString("Available tools:\n")
	for _, d := range reg.List() {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	uc := sess.UserContext()
	if uc.WorkspaceRoot != "" {
		fmt.Fprintf(&b, "\nWorkspace root: %s\n", uc.WorkspaceRoot)
	}
	if len(uc.OpenFiles) > 0 {
		fmt.Fprintf(&b, "Open files: %s\n", strings.Join(uc.OpenFiles, ", "))
	}
	if repo := sess.RepoRef(); repo.Name != "" {
		fmt.Fprintf(&b, "Repository: %s\n", repo.Name)
	}
	b.WriteString("\n- **System reminders**\n  - You may see <system-reminder>...</system-reminder> blocks attached to tool results. These are added by the platform, not the user; follow them but never quote their markup back to the user.\n")
	return b.String()
}

func sessionView(sess *session.Session) tools.SessionView {
	uc := sess.UserContext()
	return tools.SessionView{
		UserContext:   map[string]any{"shell": uc.Shell},
		WorkspaceRoot: uc.WorkspaceRoot,
		OpenFiles:     uc.OpenFiles,
	}
}

func toolTimeout(cfg session.Config, desc *tools.Descriptor) time.Duration {
	if desc.Timeout > 0 {
		return time.Duration(desc.Timeout) * time.Millisecond
	}
	return cfg.PerToolTimeout
}

func deadlineFor(wfCtx engine.WorkflowContext, cfg session.Config) time.Time {
	if cfg.SessionTimeout <= 0 {
		return time.Time{}
	}
	return wfCtx.Now().Add(cfg.SessionTimeout)
}
