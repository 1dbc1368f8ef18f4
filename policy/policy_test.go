package policy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/policy"
)

func TestParseFailureBudgetResetsOnToolSuccess(t *testing.T) {
	eng := policy.DefaultEngine{}
	caps := policy.NewCapsState(2, 0, time.Time{})

	d, err := eng.Decide(context.Background(), policy.Input{Caps: caps, Outcome: policy.Outcome{Kind: policy.OutcomeParseFailure}})
	require.NoError(t, err)
	require.False(t, d.Terminate)
	require.Equal(t, 1, d.Caps.RemainingParseFailures)

	d, err = eng.Decide(context.Background(), policy.Input{Caps: d.Caps, Outcome: policy.Outcome{Kind: policy.OutcomeToolSuccess, Tool: "search"}})
	require.NoError(t, err)
	require.Equal(t, 2, d.Caps.RemainingParseFailures)
}

func TestParseFailureBudgetExhaustionTerminates(t *testing.T) {
	eng := policy.DefaultEngine{}
	caps := policy.NewCapsState(1, 0, time.Time{})

	d, err := eng.Decide(context.Background(), policy.Input{Caps: caps, Outcome: policy.Outcome{Kind: policy.OutcomeParseFailure}})
	require.NoError(t, err)
	require.True(t, d.Terminate)
	require.Contains(t, d.Reason, "parse failure")
}

func TestToolFailureStreaksAreIndependentPerTool(t *testing.T) {
	eng := policy.DefaultEngine{}
	caps := policy.NewCapsState(0, 2, time.Time{})

	d, err := eng.Decide(context.Background(), policy.Input{Caps: caps, Outcome: policy.Outcome{Kind: policy.OutcomeToolFailure, Tool: "flaky"}})
	require.NoError(t, err)
	require.False(t, d.Terminate)

	d, err = eng.Decide(context.Background(), policy.Input{Caps: d.Caps, Outcome: policy.Outcome{Kind: policy.OutcomeToolFailure, Tool: "stable"}})
	require.NoError(t, err)
	require.False(t, d.Terminate, "a single failure on a different tool must not trip flaky's streak")

	d, err = eng.Decide(context.Background(), policy.Input{Caps: d.Caps, Outcome: policy.Outcome{Kind: policy.OutcomeToolFailure, Tool: "flaky"}})
	require.NoError(t, err)
	require.True(t, d.Terminate)
	require.Contains(t, d.Reason, "flaky")
}

func TestToolSuccessResetsOnlyThatToolsStreak(t *testing.T) {
	eng := policy.DefaultEngine{}
	caps := policy.NewCapsState(0, 2, time.Time{})

	d, err := eng.Decide(context.Background(), policy.Input{Caps: caps, Outcome: policy.Outcome{Kind: policy.OutcomeToolFailure, Tool: "flaky"}})
	require.NoError(t, err)
	d, err = eng.Decide(context.Background(), policy.Input{Caps: d.Caps, Outcome: policy.Outcome{Kind: policy.OutcomeToolSuccess, Tool: "flaky"}})
	require.NoError(t, err)
	require.Equal(t, 0, d.Caps.ToolFailureStreak["flaky"])
}

func TestSessionTimeBudgetExceededTerminates(t *testing.T) {
	eng := policy.DefaultEngine{}
	deadline := time.Now().Add(-time.Minute)
	caps := policy.NewCapsState(0, 0, deadline)

	d, err := eng.Decide(context.Background(), policy.Input{Caps: caps, Now: time.Now()})
	require.NoError(t, err)
	require.True(t, d.Terminate)
	require.Contains(t, d.Reason, "time budget")
}
