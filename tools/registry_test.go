package tools_test

import (
	"context"
	"testing"
	"text/template"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/tools"
)

func echoExecutor(text string) tools.Executor {
	return tools.ExecutorFunc(func(context.Context, any, tools.SessionView) (tools.Observation, error) {
		return tools.Observation{Text: text}, nil
	})
}

func TestRegisterAndLookup(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Descriptor{Name: "search", Executor: echoExecutor("ok")}))

	d, err := reg.Lookup("search")
	require.NoError(t, err)
	require.Equal(t, tools.Name("search"), d.Name)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Descriptor{Name: "search", Executor: echoExecutor("ok")}))
	err := reg.Register(tools.Descriptor{Name: "search", Executor: echoExecutor("ok")})
	require.ErrorIs(t, err, tools.ErrDuplicateTool)
}

func TestLookupUnknownToolFails(t *testing.T) {
	reg := tools.NewRegistry()
	_, err := reg.Lookup("missing")
	require.ErrorIs(t, err, tools.ErrUnknownTool)
}

func TestRegisterCompilesRawSchema(t *testing.T) {
	reg := tools.NewRegistry()
	err := reg.Register(tools.Descriptor{
		Name:      "search",
		RawSchema: []byte(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
		Executor:  echoExecutor("ok"),
	})
	require.NoError(t, err)

	d, err := reg.Lookup("search")
	require.NoError(t, err)
	require.NotNil(t, d.ArgumentSchema)
	require.NoError(t, d.ArgumentSchema.Validate(map[string]any{"query": "x"}))
	require.Error(t, d.ArgumentSchema.Validate(map[string]any{}))
}

func TestListReturnsInsertionOrder(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Descriptor{Name: "b", Executor: echoExecutor("")}))
	require.NoError(t, reg.Register(tools.Descriptor{Name: "a", Executor: echoExecutor("")}))

	names := make([]tools.Name, 0, 2)
	for _, d := range reg.List() {
		names = append(names, d.Name)
	}
	require.Equal(t, []tools.Name{"b", "a"}, names)
}

func TestRenderResultReminderWrapsUntaggedText(t *testing.T) {
	d := tools.Descriptor{
		Name:           "search",
		ResultReminder: template.Must(template.New("r").Parse("{{.Text}} had {{if .Failed}}failures{{else}}results{{end}}")),
	}
	text, err := d.RenderResultReminder(tools.ResultReminderData{Text: "3 matches", Failed: false})
	require.NoError(t, err)
	require.Equal(t, "<system-reminder>3 matches had results</system-reminder>", text)
}

func TestRenderResultReminderBlankTemplateYieldsNothing(t *testing.T) {
	d := tools.Descriptor{
		Name:           "search",
		ResultReminder: template.Must(template.New("r").Parse("   ")),
	}
	text, err := d.RenderResultReminder(tools.ResultReminderData{})
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestRenderResultReminderNilTemplateYieldsNothing(t *testing.T) {
	d := tools.Descriptor{Name: "search"}
	text, err := d.RenderResultReminder(tools.ResultReminderData{})
	require.NoError(t, err)
	require.Empty(t, text)
}
