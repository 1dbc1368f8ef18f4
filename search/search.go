// Package search implements the Tree Search Controller (C7): a branching
// alternative to the Agent Loop's linear trajectory. Where loop.Driver
// always grows from the current trajectory's tail, Controller repeatedly
// selects a node by UCB score, expands it with one agent step, evaluates
// the result with a value function, and backs up visit counts — spec
// §4.7's selection/expansion/evaluation/back-propagation/termination
// cycle. It shares loop's collaborators (model client, tool executor,
// registry) and its per-step mechanics are grounded on the same
// workflow_loop.go idiom loop.Driver follows, narrowed to the single
// "run one step from an arbitrary node" operation a search iteration
// needs.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agentcore/decisioncore/actiontree"
	"github.com/agentcore/decisioncore/engine"
	"github.com/agentcore/decisioncore/hooks"
	"github.com/agentcore/decisioncore/loop"
	"github.com/agentcore/decisioncore/modelclient"
	"github.com/agentcore/decisioncore/session"
	"github.com/agentcore/decisioncore/toolerrors"
	"github.com/agentcore/decisioncore/tools"
	"github.com/agentcore/decisioncore/toolexec"
	"github.com/agentcore/decisioncore/valuefn"
	"github.com/agentcore/decisioncore/valuefn/heuristic"
)

// Deps are the collaborators a Controller needs. Policy (the shared
// parse-failure/tool-failure retry budget, package policy) is deliberately
// absent: spec §4.7 already names an exhaustive termination list for this
// controller (success threshold, node budget, wall-clock budget,
// cancellation), so there is no separate retry-budget concern to wire in
// here the way loop.Driver does for its linear trajectory.
type Deps struct {
	Registry     *tools.Registry
	Model        modelclient.Client
	Tools        *toolexec.Executor
	ValueFn      valuefn.Func
	Bus          hooks.Bus
	SystemPrompt loop.PromptRenderer
}

// Options tunes the search beyond what session.Config already carries.
type Options struct {
	// Degree bounds how many sibling expansions run concurrently per
	// round (spec §5, "bounded parallelism... default degree 1, up to 4
	// if the tools involved are read-only"). Clamped to [1, 4]; the tools'
	// side effects are not checked.
	Degree int
	// SuccessThreshold is the reward a terminating tool's evaluation must
	// meet for the branch to end the search successfully (spec §4.7,
	// "its reward meets a success threshold"). Defaults to 0.99.
	SuccessThreshold float64
}

// Input is what a workflow execution needs to drive one session's search.
type Input struct {
	Session *session.Session
}

// Result is what Run returns once the search reaches a terminal
// condition.
type Result struct {
	Status    session.Status
	Reason    string
	NodeCount int
}

// Controller runs the Tree Search Controller for one session inside a
// workflow execution.
type Controller struct {
	deps   Deps
	degree int
	thresh float64
}

// New constructs a Controller. Panics only if a required dependency is
// missing.
func New(deps Deps, opts Options) *Controller {
	if deps.Registry == nil {
		panic("search: Registry is required")
	}
	if deps.Model == nil {
		panic("search: Model is required")
	}
	if deps.Tools == nil {
		panic("search: Tools is required")
	}
	if deps.ValueFn == nil {
		deps.ValueFn = heuristic.New(heuristic.Options{})
	}
	if deps.Bus == nil {
		deps.Bus = hooks.NewBus()
	}
	if deps.SystemPrompt == nil {
		deps.SystemPrompt = loop.DefaultSystemPrompt
	}
	degree := opts.Degree
	if degree <= 0 {
		degree = 1
	}
	if degree > 4 {
		degree = 4
	}
	thresh := opts.SuccessThreshold
	if thresh <= 0 {
		thresh = 0.99
	}
	return &Controller{deps: deps, degree: degree, thresh: thresh}
}

// Handler adapts Run into an engine.WorkflowFunc.
func (c *Controller) Handler() engine.WorkflowFunc {
	return func(wfCtx engine.WorkflowContext, raw any) (any, error) {
		input, ok := raw.(Input)
		if !ok {
			return nil, fmt.Errorf("search: unexpected workflow input type %T", raw)
		}
		return c.Run(wfCtx, input)
	}
}

// Run drives in.Session's branching search to a terminal condition.
func (c *Controller) Run(wfCtx engine.WorkflowContext, in Input) (Result, error) {
	sess := in.Session
	ctx := wfCtx.Context()

	if sess.CancelContext().Err() != nil {
		return c.finishCancelled(sess), nil
	}
	if err := sess.TransitionTo(session.StatusRunning); err != nil {
		return Result{}, err
	}
	c.publishStatus(sess)

	cfg := sess.Config()
	if _, err := c.seedRoot(sess); err != nil {
		return Result{}, err
	}
	deadline := deadlineFor(wfCtx, cfg)

	for {
		if sess.CancelContext().Err() != nil {
			return c.finishCancelled(sess), nil
		}
		if !deadline.IsZero() && wfCtx.Now().After(deadline) {
			return c.finishErrored(sess, "wall-clock budget exceeded"), nil
		}
		if len(sess.Tree().All()) >= cfg.NodeBudget {
			return c.finishErrored(sess, "node budget exhausted"), nil
		}

		batch := c.selectBatch(sess.Tree(), cfg)
		if len(batch) == 0 {
			return c.finishErrored(sess, "no expandable nodes remain"), nil
		}

		pendings := make([]*pendingExpansion, 0, len(batch))
		for _, parent := range batch {
			p, err := c.prepare(ctx, wfCtx, sess, parent)
			if err != nil {
				return Result{}, err
			}
			pendings = append(pendings, p)
		}

		for _, p := range pendings {
			success, err := c.await(ctx, sess, p)
			if err != nil {
				return Result{}, err
			}
			if success {
				return c.finishSucceeded(sess), nil
			}
		}
	}
}

// seedRoot ensures the tree has a starting point for selection. A fresh
// session has no action nodes yet; the controller seeds a sentinel root
// (empty Action) representing the initial transcript so selection has
// something to expand from on the first round. A session resumed from a
// snapshot that already has roots is left alone.
func (c *Controller) seedRoot(sess *session.Session) (*actiontree.Node, error) {
	if roots := sess.Tree().Roots(); len(roots) > 0 {
		n, _ := sess.Tree().Get(roots[0])
		return n, nil
	}
	n, err := sess.Tree().NewRootWithID("", actiontree.Action{})
	if err != nil {
		return nil, fmt.Errorf("search: seed root: %w", err)
	}
	if err := sess.Tree().TransitionExecuting(n.ID); err != nil {
		return nil, fmt.Errorf("search: seed root: %w", err)
	}
	if err := sess.Tree().Finalize(n.ID, actiontree.Observation{}, false, 0); err != nil {
		return nil, fmt.Errorf("search: seed root: %w", err)
	}
	return n, nil
}

// selectBatch implements spec §4.7's selection policy, returning up to
// Controller.degree eligible nodes in descending score order.
func (c *Controller) selectBatch(tree *actiontree.Tree, cfg session.Config) []*actiontree.Node {
	all := tree.All()
	byID := make(map[string]*actiontree.Node, len(all))
	for _, n := range all {
		byID[string(n.ID)] = n
	}

	var candidates []*actiontree.Node
	for _, n := range all {
		if n.State != actiontree.StateFinalized {
			continue
		}
		if len(n.ChildIDs) >= cfg.BranchingCap {
			continue
		}
		if c.isTerminatingNode(n) {
			continue
		}
		candidates = append(candidates, n)
	}
	if len(candidates) == 0 {
		return nil
	}

	type scored struct {
		node  *actiontree.Node
		score float64
	}
	out := make([]scored, 0, len(candidates))
	for _, n := range candidates {
		parentVisits := 1
		if n.ParentID != "" {
			if p, ok := byID[string(n.ParentID)]; ok {
				parentVisits = p.Visits
			}
		}
		explC := cfg.ExplorationC
		score := n.Reward + explC*math.Sqrt(math.Log(float64(parentVisits)+1)/float64(n.Visits+1))
		out = append(out, scored{node: n, score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].node.Depth != out[j].node.Depth {
			return out[i].node.Depth < out[j].node.Depth
		}
		return out[i].node.ID < out[j].node.ID
	})

	n := c.degreeOrLen(len(out))
	result := make([]*actiontree.Node, 0, n)
	for i := 0; i < n; i++ {
		result = append(result, out[i].node)
	}
	return result
}

func (c *Controller) degreeOrLen(l int) int {
	if l < c.degree {
		return l
	}
	return c.degree
}

// isTerminatingNode reports whether n's own action was a terminating
// tool, meaning its branch already concluded and selection should not
// expand past it (spec §4.7, "non-terminal Finalized nodes").
func (c *Controller) isTerminatingNode(n *actiontree.Node) bool {
	if n.Action.Tool == "" {
		return false
	}
	desc, err := c.deps.Registry.Lookup(tools.Name(n.Action.Tool))
	if err != nil {
		return true
	}
	return desc.IsTerminating
}

// pendingExpansion is the in-flight state of one node's expansion,
// spanning the model-call/parse phase (prepare) and the
// tool-result/evaluation phase (await). Splitting the two lets Run
// schedule every batch member's tool activity before awaiting any of
// them, achieving the bounded parallelism spec §5 calls for.
type pendingExpansion struct {
	parent     *actiontree.Node
	node       *actiontree.Node
	desc       *tools.Descriptor
	call       *tools.ParsedToolCall
	future     engine.Future
	cancel     context.CancelFunc
	started    time.Time
	deadEnd    bool
	deadReason string
}

// prepare runs one agent step from parent's state: reconstruct the
// transcript prefix, call the model, parse the reply, and either
// schedule the parsed tool call as an activity or record a dead-end leaf
// if the reply carried no usable tool call (spec §4.7, "Expansion").
func (c *Controller) prepare(ctx context.Context, wfCtx engine.WorkflowContext, sess *session.Session, parent *actiontree.Node) (*pendingExpansion, error) {
	path, err := sess.Tree().PathFromRoot(parent.ID)
	if err != nil {
		return nil, fmt.Errorf("search: reconstruct path: %w", err)
	}

	req := modelclient.Request{
		ModelClass: modelclass(sess),
		Messages:   c.renderMessages(sess, path),
	}
	resp, err := c.deps.Model.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: model call: %w", err)
	}

	call, failure, err := tools.Parse(c.deps.Registry, resp.Text)
	if err != nil {
		return nil, fmt.Errorf("search: parse reply: %w", err)
	}

	if call == nil {
		reason := "no tool call in reply"
		if failure != nil {
			reason = fmt.Sprintf("parse failure (%s): %s", failure.Kind, failure.Detail)
		}
		node, err := c.finalizeDeadEnd(sess, parent, reason)
		if err != nil {
			return nil, err
		}
		return &pendingExpansion{parent: parent, node: node, deadEnd: true, deadReason: reason}, nil
	}

	desc, err := c.deps.Registry.Lookup(call.ToolName)
	if err != nil {
		return nil, fmt.Errorf("search: tool %q vanished from registry: %w", call.ToolName, err)
	}

	action := actiontree.Action{Tool: string(call.ToolName), Arguments: call.Arguments}
	node, err := sess.Tree().NewChild(parent.ID, action)
	if err != nil {
		return nil, fmt.Errorf("search: create action node: %w", err)
	}
	if err := sess.Tree().TransitionExecuting(node.ID); err != nil {
		return nil, fmt.Errorf("search: transition node executing: %w", err)
	}
	c.publish(hooks.NewToolInvocationStarted(sess.ID(), node.ID, string(call.ToolName)))

	invokeCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout := toolTimeout(sess.Config(), desc); timeout > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	started := time.Now()
	fut, err := c.deps.Tools.ExecuteAsync(invokeCtx, wfCtx, toolexec.Input{
		ToolName:  call.ToolName,
		Arguments: call.Arguments,
		View:      sessionView(sess),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("search: schedule tool activity: %w", err)
	}

	return &pendingExpansion{parent: parent, node: node, desc: desc, call: call, future: fut, cancel: cancel, started: started}, nil
}

// finalizeDeadEnd records a leaf that could not be expanded further
// (terminal assistant reply or an unparseable one) as an immediately
// Failed node with zero reward, so it counts against the parent's
// branching cap and the search naturally moves elsewhere.
func (c *Controller) finalizeDeadEnd(sess *session.Session, parent *actiontree.Node, reason string) (*actiontree.Node, error) {
	node, err := sess.Tree().NewChild(parent.ID, actiontree.Action{})
	if err != nil {
		return nil, fmt.Errorf("search: create dead-end node: %w", err)
	}
	if err := sess.Tree().TransitionExecuting(node.ID); err != nil {
		return nil, fmt.Errorf("search: transition dead-end node: %w", err)
	}
	obs := actiontree.Observation{Text: reason, Err: errors.New(reason)}
	if err := sess.Tree().Finalize(node.ID, obs, true, 0); err != nil {
		return nil, fmt.Errorf("search: finalize dead-end node: %w", err)
	}
	return node, nil
}

// await collects a prepared expansion's tool result, evaluates it, backs
// up visit counts along the path to root, and reports whether the branch
// ended the search successfully (spec §4.7's evaluation/back-propagation
// and the "terminating tool... reward meets success threshold"
// termination clause).
func (c *Controller) await(ctx context.Context, sess *session.Session, p *pendingExpansion) (bool, error) {
	if p.deadEnd {
		if err := c.backpropagate(sess, p.node); err != nil {
			return false, err
		}
		c.publish(hooks.NewNodeEvaluated(sess.ID(), p.node.ID, 0))
		return false, nil
	}
	defer p.cancel()

	var out toolexec.Output
	getErr := p.future.Get(ctx, &out)
	failed := getErr != nil || out.Failed
	var toolErr error
	if getErr != nil {
		if errors.Is(getErr, context.DeadlineExceeded) {
			toolErr = toolerrors.Timeout(time.Since(p.started).Milliseconds())
		} else {
			toolErr = getErr
		}
	} else if out.Failed {
		toolErr = errors.New(out.ErrorText)
	}

	obs := actiontree.Observation{Text: out.Observation.Text, Value: out.Observation.Value}
	if failed {
		obs.Err = toolErr
	}

	preview := *p.node
	preview.Observation = obs
	if failed {
		preview.State = actiontree.StateFailed
	} else {
		preview.State = actiontree.StateFinalized
	}
	reward, err := c.deps.ValueFn.Evaluate(ctx, &preview)
	if err != nil {
		return false, fmt.Errorf("search: evaluate node: %w", err)
	}

	if err := sess.Tree().Finalize(p.node.ID, obs, failed, reward); err != nil {
		return false, fmt.Errorf("search: finalize action node: %w", err)
	}
	c.publish(hooks.NewToolInvocationCompleted(sess.ID(), p.node.ID, out.Observation.Text, failed))
	c.publish(hooks.NewNodeEvaluated(sess.ID(), p.node.ID, reward))

	if err := c.backpropagate(sess, p.node); err != nil {
		return false, err
	}

	return !failed && p.desc.IsTerminating && reward >= c.thresh, nil
}

// backpropagate increments visits along the path from root to node,
// inclusive (spec §4.7, "Increment visits along the root path; rewards
// themselves are not propagated").
func (c *Controller) backpropagate(sess *session.Session, node *actiontree.Node) error {
	path, err := sess.Tree().PathFromRoot(node.ID)
	if err != nil {
		return fmt.Errorf("search: backpropagate: %w", err)
	}
	for _, n := range path {
		if err := sess.Tree().IncrementVisits(n.ID); err != nil {
			return fmt.Errorf("search: backpropagate: %w", err)
		}
	}
	return nil
}

func (c *Controller) finishCancelled(sess *session.Session) Result {
	sess.Cancel()
	c.publishStatus(sess)
	return c.result(sess)
}

func (c *Controller) finishSucceeded(sess *session.Session) Result {
	sess.TransitionTo(session.StatusCompleted)
	c.publishStatus(sess)
	return c.result(sess)
}

func (c *Controller) finishErrored(sess *session.Session, reason string) Result {
	sess.TransitionTo(session.StatusErrored)
	c.publishStatus(sess)
	c.publish(hooks.NewError(sess.ID(), "search_terminated", reason))
	res := c.result(sess)
	res.Reason = reason
	return res
}

func (c *Controller) result(sess *session.Session) Result {
	return Result{Status: sess.Status(), NodeCount: len(sess.Tree().All())}
}

func (c *Controller) publishStatus(sess *session.Session) {
	c.publish(hooks.NewSessionStatusChanged(sess.ID(), string(sess.Status())))
}

func (c *Controller) publish(ev hooks.Event) {
	_ = c.deps.Bus.Publish(context.Background(), ev)
}

// renderMessages reconstructs the transcript prefix for path — the base
// exchanges recorded before search began, followed by one
// assistant/tool-result pair per action node on the path from root to the
// selected node (spec §4.7, "Transcript reconstruction walks parent
// links, collecting the exchanges those nodes produced, in order").
func (c *Controller) renderMessages(sess *session.Session, path []*actiontree.Node) []modelclient.Message {
	entries := sess.Exchanges().ForPrompt(false)
	messages := make([]modelclient.Message, 0, len(entries)+len(path)*2+1)
	messages = append(messages, modelclient.Message{Role: modelclient.RoleSystem, Text: c.deps.SystemPrompt(sess, c.deps.Registry)})
	for _, e := range entries {
		switch e.Role {
		case "user":
			messages = append(messages, modelclient.Message{Role: modelclient.RoleUser, Text: e.Text})
		case "assistant":
			messages = append(messages, modelclient.Message{Role: modelclient.RoleAssistant, Text: e.Text})
		case "tool_result":
			messages = append(messages, modelclient.Message{Role: modelclient.RoleUser, Text: fmt.Sprintf("Tool result (%s): %s", e.ToolName, e.Text)})
		}
	}
	for _, n := range path {
		if n.Action.Tool == "" {
			continue
		}
		messages = append(messages, modelclient.Message{Role: modelclient.RoleAssistant, Text: renderActionCall(n.Action)})
		messages = append(messages, modelclient.Message{Role: modelclient.RoleUser, Text: fmt.Sprintf("Tool result (%s): %s", n.Action.Tool, n.Observation.Text)})
	}
	return messages
}

// renderActionCall reconstructs a plausible assistant tool-call block
// from a node's Action, matching the grammar package tools.Parse expects,
// since a node only stores the parsed call rather than the model's raw
// reply text.
func renderActionCall(a actiontree.Action) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>", a.Tool)
	for name, value := range a.Arguments {
		fmt.Fprintf(&b, "<%s>%v</%s>", name, value, name)
	}
	fmt.Fprintf(&b, "</%s>", a.Tool)
	return b.String()
}

func modelclass(sess *session.Session) modelclient.ModelClass {
	if sess.ModelConfig().Fast != "" {
		return modelclient.ModelClassFast
	}
	return ""
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
