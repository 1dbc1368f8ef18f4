package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/actiontree"
	"github.com/agentcore/decisioncore/session"
)

func newTestSession() *session.Session {
	return session.New(
		session.UserContext{WorkspaceRoot: "/repo"},
		session.RepoRef{Name: "repo", Root: "/repo"},
		[]string{"go"},
		session.ModelConfig{Fast: "fast", Slow: "slow"},
		session.DefaultConfig(),
	)
}

func TestNewSessionStartsIdleWithDefaultedConfig(t *testing.T) {
	s := newTestSession()
	require.Equal(t, session.StatusIdle, s.Status())
	require.Equal(t, 3, s.Config().BranchingCap)
	require.Equal(t, 50, s.Config().NodeBudget)
}

func TestAppendUserMessageRejectedWhileRunning(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.TransitionTo(session.StatusRunning))

	_, err := s.AppendUserMessage("hello")
	require.ErrorIs(t, err, session.ErrBusy)
}

func TestAppendUserMessageAllowedWhileIdleOrPaused(t *testing.T) {
	s := newTestSession()
	_, err := s.AppendUserMessage("first")
	require.NoError(t, err)

	require.NoError(t, s.TransitionTo(session.StatusRunning))
	require.NoError(t, s.TransitionTo(session.StatusPaused))
	_, err = s.AppendUserMessage("second")
	require.NoError(t, err)

	require.Equal(t, 2, s.Exchanges().Len())
}

func TestTransitionToRejectsInvalidMoves(t *testing.T) {
	s := newTestSession()
	err := s.TransitionTo(session.StatusPaused)
	require.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestTransitionToIsNoopWhenAlreadyInTargetStatus(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.TransitionTo(session.StatusIdle))
	require.Equal(t, session.StatusIdle, s.Status())
}

func TestPauseThenResumeRoundTrips(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.TransitionTo(session.StatusRunning))
	require.NoError(t, s.Pause())
	require.Equal(t, session.StatusPaused, s.Status())
	require.NoError(t, s.Resume())
	require.Equal(t, session.StatusRunning, s.Status())
}

func TestCancelFromRunningTransitionsAndSignalsContext(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.TransitionTo(session.StatusRunning))

	require.NoError(t, s.Cancel())
	require.Equal(t, session.StatusCancelled, s.Status())

	select {
	case <-s.CancelContext().Done():
	default:
		t.Fatal("CancelContext must be Done after Cancel")
	}
}

func TestCancelIsIdempotentFromTerminalStatus(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.TransitionTo(session.StatusRunning))
	require.NoError(t, s.TransitionTo(session.StatusCompleted))

	require.NoError(t, s.Cancel())
	require.Equal(t, session.StatusCompleted, s.Status(), "Cancel must not move a session off a terminal status")

	select {
	case <-s.CancelContext().Done():
	default:
		t.Fatal("idempotent Cancel on a terminal session must still signal the cancellation context")
	}
}

func TestSnapshotRejectsRunningSession(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.TransitionTo(session.StatusRunning))

	_, err := s.Snapshot()
	require.ErrorIs(t, err, session.ErrNotQuiescent)
}

func TestSnapshotThenRestoreRoundTrips(t *testing.T) {
	s := newTestSession()
	_, err := s.AppendUserMessage("hello")
	require.NoError(t, err)

	s.Tree().NewRoot(actiontree.Action{Tool: "search"})

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Equal(t, s.ID(), snap.SessionID)
	require.Equal(t, session.StatusIdle, snap.Status)

	restored, err := session.Restore(snap)
	require.NoError(t, err)
	require.Equal(t, s.ID(), restored.ID())
	require.Equal(t, 1, restored.Exchanges().Len())
	require.Len(t, restored.Tree().All(), 1)
	require.Equal(t, "fast", restored.ModelConfig().Fast)
}

func TestRestoreRejectsNonQuiescentStatus(t *testing.T) {
	snap := session.Snapshot{
		Version:     1,
		Status:      session.StatusRunning,
		ModelConfig: session.ModelConfig{Fast: "fast", Slow: "slow"},
		Config:      session.DefaultConfig(),
	}
	_, err := session.Restore(snap)
	require.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestRestoreRejectsFutureSchemaVersion(t *testing.T) {
	snap := session.Snapshot{
		Version:     999,
		Status:      session.StatusIdle,
		ModelConfig: session.ModelConfig{Fast: "fast", Slow: "slow"},
		Config:      session.DefaultConfig(),
	}
	_, err := session.Restore(snap)
	require.ErrorIs(t, err, session.ErrUnsupportedSnapshot)
}
