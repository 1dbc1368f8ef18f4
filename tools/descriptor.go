// Package tools implements the Tool Registry (C1) and the Tool-Invocation
// Parser (C2): a namespaced catalog mapping a tool identifier to its
// invocation schema and executor, and the parser that turns a raw model
// reply into a validated call against that catalog.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SideEffect classifies what a tool does to the world, per spec §3's Tool
// Descriptor.
type SideEffect string

const (
	SideEffectNone     SideEffect = "none"
	SideEffectReads    SideEffect = "reads"
	SideEffectWrites   SideEffect = "writes"
	SideEffectExecutes SideEffect = "executes"
)

// Name is a registered tool's unique identifier, the root tag the parser
// looks for in a model reply.
type Name string

// Codec marshals and unmarshals a tool's structured argument or result
// type. Declaring this as a pair of functions (rather than forcing every
// argument type through reflection) mirrors the teacher's
// JSONCodec[T any] pattern, generalized to `any` at the registry boundary.
type Codec struct {
	FromJSON func(raw json.RawMessage) (any, error)
	ToJSON   func(value any) (json.RawMessage, error)
}

// Executor invokes a tool's side effect given validated arguments and a
// read-only session view (spec §6, "Tool executor, consumed per tool").
type Executor interface {
	Invoke(ctx context.Context, args any, view SessionView) (Observation, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, args any, view SessionView) (Observation, error)

// Invoke calls f.
func (f ExecutorFunc) Invoke(ctx context.Context, args any, view SessionView) (Observation, error) {
	return f(ctx, args, view)
}

// SessionView is a read-only projection of a session passed to executors:
// user context, workspace root, open files. It is intentionally an opaque
// carrier here — the decision core does not interpret its contents, only
// threads it from the session to the executor (spec §6).
type SessionView struct {
	UserContext map[string]any
	WorkspaceRoot string
	OpenFiles     []string
}

// Observation is whatever a tool returns on success; it is recorded
// verbatim on the Action Node and rendered into a ToolResult exchange.
type Observation struct {
	Text  string
	Value any
}

// Descriptor is the schema + executor pair registered under a tool name
// (spec §3, "Tool Descriptor").
type Descriptor struct {
	// Name is unique within the registry.
	Name Name
	// Description is rendered into the system prompt for model selection.
	Description string
	// ArgumentSchema is the compiled JSON Schema structural description
	// used by the registry to validate structured arguments and by a
	// prompt renderer to describe required/optional fields.
	ArgumentSchema *jsonschema.Schema
	// RawSchema is the uncompiled JSON form of ArgumentSchema, kept
	// alongside it for prompt rendering and snapshotting.
	RawSchema json.RawMessage
	// Arguments declares each argument's name and whether its value is a
	// plain string (copied verbatim from the parser) or a structured,
	// JSON-encoded value (decoded and schema-validated).
	Arguments []Argument
	// IsTerminating is true iff invoking this tool ends the trajectory.
	IsTerminating bool
	// TerminatesToStatus names the session status a terminating tool
	// invocation drives toward: "Completed" for a final answer, "Paused"
	// for a follow-up question requiring user input (spec §4.6).
	TerminatesToStatus string
	// SideEffects classifies the tool's effect on the world.
	SideEffects SideEffect
	// Timeout overrides the per-tool default invocation timeout (spec §6,
	// "Configuration surface"). Zero means use the session default.
	Timeout int64 // milliseconds
	// Codec marshals/unmarshals structured arguments. Required when any
	// Argument is Structured.
	Codec Codec
	// Executor performs the tool's side effect.
	Executor Executor
	// ResultReminder, when set, renders a run-scoped addendum that rides
	// on this tool's ToolResult exchange rather than becoming a new one
	// (spec §4.6 supplement, grounded on the teacher's
	// runtime/agent/reminder package, generalized from a per-run engine
	// down to a per-descriptor template since the decision core attaches
	// reminders to an exchange rather than scheduling them against a run
	// timeline). Executed with a ResultReminderData value; a template
	// that renders only whitespace means no reminder is attached.
	ResultReminder *template.Template
}

// ResultReminderData is the value a Descriptor's ResultReminder template
// is executed with.
type ResultReminderData struct {
	Tool   Name
	Text   string
	Value  any
	Failed bool
}

// RenderResultReminder executes d.ResultReminder against data, wrapping
// the output in a <system-reminder> tag unless it is already tagged.
// Returns "" if d.ResultReminder is nil or renders blank.
func (d Descriptor) RenderResultReminder(data ResultReminderData) (string, error) {
	if d.ResultReminder == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := d.ResultReminder.Execute(&buf, data); err != nil {
		return "", err
	}
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", nil
	}
	if strings.Contains(text, "<system-reminder>") {
		return text, nil
	}
	return "<system-reminder>" + text + "</system-reminder>", nil
}

// Argument describes one declared argument of a tool.
type Argument struct {
	Name       string
	Required   bool
	Structured bool // false: string argument; true: JSON-encoded structured argument
}

// RequiredArgumentSet returns the set of required argument names.
func (d Descriptor) RequiredArgumentSet() map[string]struct{} {
	set := make(map[string]struct{}, len(d.Arguments))
	for _, a := range d.Arguments {
		if a.Required {
			set[a.Name] = struct{}{}
		}
	}
	return set
}

// DeclaredArgumentSet returns every declared argument name, required or
// not, used by the parser's UnknownArgument check.
func (d Descriptor) DeclaredArgumentSet() map[string]Argument {
	set := make(map[string]Argument, len(d.Arguments))
	for _, a := range d.Arguments {
		set[a.Name] = a
	}
	return set
}
