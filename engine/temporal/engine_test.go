package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/engine"
)

func TestConvertRetryPolicyZeroValueIsNil(t *testing.T) {
	t.Parallel()
	require.Nil(t, convertRetryPolicy(engine.RetryPolicy{}))
}

func TestConvertRetryPolicyMapsFields(t *testing.T) {
	t.Parallel()
	got := convertRetryPolicy(engine.RetryPolicy{
		MaxAttempts:        5,
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
	})
	require.NotNil(t, got)
	require.EqualValues(t, 5, got.MaximumAttempts)
	require.Equal(t, time.Second, got.InitialInterval)
	require.Equal(t, 2.0, got.BackoffCoefficient)
}

func TestMergeRetryPoliciesOverridesWinOverDefaults(t *testing.T) {
	t.Parallel()
	base := engine.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Second, BackoffCoefficient: 1.5}
	override := engine.RetryPolicy{MaxAttempts: 10}
	got := mergeRetryPolicies(base, override)
	require.Equal(t, 10, got.MaxAttempts)
	require.Equal(t, time.Second, got.InitialInterval)
	require.Equal(t, 1.5, got.BackoffCoefficient)
}
