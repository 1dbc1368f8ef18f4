package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/ident"
	"github.com/agentcore/decisioncore/session"
	"github.com/agentcore/decisioncore/store"
	"github.com/agentcore/decisioncore/store/inmem"
)

func TestLoadUnknownSessionReturnsErrNotFound(t *testing.T) {
	st := inmem.New()
	_, err := st.Load(context.Background(), ident.NewSessionID())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	st := inmem.New()
	sid := ident.NewSessionID()
	snap := session.Snapshot{
		Version:       1,
		SessionID:     sid,
		Status:        session.StatusIdle,
		ProjectLabels: []string{"go", "backend"},
		ModelConfig:   session.ModelConfig{Fast: "fast", Slow: "slow"},
		Config:        session.DefaultConfig(),
	}

	require.NoError(t, st.Save(context.Background(), snap))

	loaded, err := st.Load(context.Background(), sid)
	require.NoError(t, err)
	require.Equal(t, sid, loaded.SessionID)
	require.Equal(t, []string{"go", "backend"}, loaded.ProjectLabels)
}

func TestSaveOverwritesPriorSnapshotForSameSession(t *testing.T) {
	st := inmem.New()
	sid := ident.NewSessionID()

	require.NoError(t, st.Save(context.Background(), session.Snapshot{SessionID: sid, Status: session.StatusIdle}))
	require.NoError(t, st.Save(context.Background(), session.Snapshot{SessionID: sid, Status: session.StatusPaused}))

	loaded, err := st.Load(context.Background(), sid)
	require.NoError(t, err)
	require.Equal(t, session.StatusPaused, loaded.Status)
}

func TestListReturnsAllSavedSessionIDs(t *testing.T) {
	st := inmem.New()
	a, b := ident.NewSessionID(), ident.NewSessionID()
	require.NoError(t, st.Save(context.Background(), session.Snapshot{SessionID: a}))
	require.NoError(t, st.Save(context.Background(), session.Snapshot{SessionID: b}))

	ids, err := st.List(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []ident.SessionID{a, b}, ids)
}

func TestLoadReturnsIndependentCopyOfProjectLabels(t *testing.T) {
	st := inmem.New()
	sid := ident.NewSessionID()
	require.NoError(t, st.Save(context.Background(), session.Snapshot{
		SessionID:     sid,
		ProjectLabels: []string{"original"},
	}))

	loaded, err := st.Load(context.Background(), sid)
	require.NoError(t, err)
	loaded.ProjectLabels[0] = "mutated"

	reloaded, err := st.Load(context.Background(), sid)
	require.NoError(t, err)
	require.Equal(t, "original", reloaded.ProjectLabels[0], "Load must return a defensive copy")
}
