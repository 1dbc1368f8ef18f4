// Package model provides a model-scored valuefn.Func: the non-deterministic
// alternative to valuefn/heuristic for callers who want the value function
// itself to reason about node quality via a model call, at the cost of
// reproducibility (spec.md §9's determinism Open Question, resolved by
// offering both variants rather than picking one).
package model

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/agentcore/decisioncore/actiontree"
	"github.com/agentcore/decisioncore/modelclient"
	"github.com/agentcore/decisioncore/valuefn"
)

const defaultPromptText = `You are scoring one step of an automated tool-use trajectory.

Tool: {{.Tool}}
Arguments: {{.Arguments}}
Result: {{.Result}}
Failed: {{.Failed}}

Respond with a single floating point number between 0.0 and 1.0 estimating
how much this step advanced the task toward a successful outcome. Output
only the number, nothing else.`

var defaultPrompt = template.Must(template.New("valuefn").Parse(defaultPromptText))

// Options configures a model-scored Engine.
type Options struct {
	Client   modelclient.Client
	Model    string
	Class    modelclient.ModelClass
	Template *template.Template // defaults to defaultPrompt when nil
}

// Engine implements valuefn.Func by rendering a scoring prompt from the
// node's action/observation and asking Client to complete it, then parsing
// the reply as a float in [0, 1].
type Engine struct {
	client modelclient.Client
	model  string
	class  modelclient.ModelClass
	tmpl   *template.Template
}

var _ valuefn.Func = (*Engine)(nil)

// New builds a model-backed Engine. Client is required.
func New(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("valuefn/model: model client is required")
	}
	tmpl := opts.Template
	if tmpl == nil {
		tmpl = defaultPrompt
	}
	return &Engine{client: opts.Client, model: opts.Model, class: opts.Class, tmpl: tmpl}, nil
}

type promptData struct {
	Tool      string
	Arguments map[string]any
	Result    string
	Failed    bool
}

// Evaluate renders the scoring prompt for node and asks the model client to
// complete it, clamping the parsed score into [0, 1]. A Failed node always
// scores 0 without a model call, matching valuefn/heuristic's contract so
// callers can swap variants without changing terminal-failure behavior.
func (e *Engine) Evaluate(ctx context.Context, node *actiontree.Node) (float64, error) {
	if node.State == actiontree.StateFailed {
		return 0, nil
	}

	var sb strings.Builder
	data := promptData{
		Tool:      node.Action.Tool,
		Arguments: node.Action.Arguments,
		Result:    node.Observation.Text,
		Failed:    node.Observation.Err != nil,
	}
	if err := e.tmpl.Execute(&sb, data); err != nil {
		return 0, fmt.Errorf("valuefn/model: render prompt: %w", err)
	}

	resp, err := e.client.Complete(ctx, modelclient.Request{
		Model:      e.model,
		ModelClass: e.class,
		Messages: []modelclient.Message{
			{Role: modelclient.RoleUser, Text: sb.String()},
		},
		MaxTokens: 16,
	})
	if err != nil {
		return 0, fmt.Errorf("valuefn/model: complete: %w", err)
	}
	return parseScore(resp.Text), nil
}

func parseScore(text string) float64 {
	trimmed := strings.TrimSpace(text)
	score, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0
	}
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
