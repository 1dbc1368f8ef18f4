package exchange_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/exchange"
)

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	log := exchange.NewLog()
	id := log.Append(exchange.Exchange{Role: exchange.RoleUser, Text: "hello"})
	require.NotEmpty(t, id)

	entries := log.All()
	require.Len(t, entries, 1)
	require.Equal(t, id, entries[0].ID)
	require.False(t, entries[0].CreatedAt.IsZero())
}

func TestForPromptExcludesSupersededByDefault(t *testing.T) {
	log := exchange.NewLog()
	log.Append(exchange.Exchange{Role: exchange.RoleUser, Text: "question"})
	log.Append(exchange.Exchange{Role: exchange.RoleAssistant, Text: "first answer"})

	id, ok := log.SupersedeLast()
	require.True(t, ok)
	require.NotEmpty(t, id)

	visible := log.ForPrompt(false)
	require.Len(t, visible, 1)
	require.Equal(t, exchange.RoleUser, visible[0].Role)

	all := log.ForPrompt(true)
	require.Len(t, all, 2)
}

func TestSupersedeLastStopsAtUserEntry(t *testing.T) {
	log := exchange.NewLog()
	log.Append(exchange.Exchange{Role: exchange.RoleUser, Text: "question"})

	_, ok := log.SupersedeLast()
	require.False(t, ok, "there is no assistant/tool entry yet to supersede")
}

func TestSupersedeLastIsNoopWhenAlreadySuperseded(t *testing.T) {
	log := exchange.NewLog()
	log.Append(exchange.Exchange{Role: exchange.RoleUser, Text: "question"})
	log.Append(exchange.Exchange{Role: exchange.RoleAssistant, Text: "answer"})

	_, ok := log.SupersedeLast()
	require.True(t, ok)

	_, ok = log.SupersedeLast()
	require.False(t, ok)
}

func TestLastReturnsMostRecentEntry(t *testing.T) {
	log := exchange.NewLog()
	_, ok := log.Last()
	require.False(t, ok)

	log.Append(exchange.Exchange{Role: exchange.RoleUser, Text: "first"})
	log.Append(exchange.Exchange{Role: exchange.RoleAssistant, Text: "second"})

	last, ok := log.Last()
	require.True(t, ok)
	require.Equal(t, "second", last.Text)
}

func TestRestoreReplacesContentsWholesale(t *testing.T) {
	log := exchange.NewLog()
	log.Append(exchange.Exchange{Role: exchange.RoleUser, Text: "stale"})

	restored := []exchange.Exchange{
		{ID: "ex-1", Role: exchange.RoleUser, Text: "a"},
		{ID: "ex-2", Role: exchange.RoleAssistant, Text: "b"},
	}
	log.Restore(restored)

	require.Equal(t, 2, log.Len())
	all := log.All()
	require.Equal(t, "a", all[0].Text)
	require.Equal(t, "b", all[1].Text)
}
