package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/hooks"
	"github.com/agentcore/decisioncore/ident"
	"github.com/agentcore/decisioncore/stream"
)

func TestSubscribeOnlyForwardsEventsForOwnSession(t *testing.T) {
	bus := hooks.NewBus()
	sid := ident.NewSessionID()
	other := ident.NewSessionID()

	s, err := stream.Subscribe(bus, sid, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, bus.Publish(context.Background(), hooks.NewSessionStatusChanged(other, "Running")))
	require.NoError(t, bus.Publish(context.Background(), hooks.NewSessionStatusChanged(sid, "Running")))

	select {
	case evt := <-s.Events():
		require.Equal(t, sid, evt.SessionID())
	case <-time.After(time.Second):
		t.Fatal("expected an event for the subscribed session")
	}

	select {
	case evt := <-s.Events():
		t.Fatalf("unexpected second event: %+v", evt)
	default:
	}
}

func TestCloseUnblocksPendingPublishAndInvokesCancel(t *testing.T) {
	bus := hooks.NewBus()
	sid := ident.NewSessionID()
	var cancelled bool

	s, err := stream.Subscribe(bus, sid, func() { cancelled = true })
	require.NoError(t, err)

	for i := 0; i < stream.Capacity; i++ {
		require.NoError(t, bus.Publish(context.Background(), hooks.NewSessionStatusChanged(sid, "Running")))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- bus.Publish(context.Background(), hooks.NewSessionStatusChanged(sid, "Running"))
	}()
	time.Sleep(50 * time.Millisecond) // let the publish above enter its blocking select

	require.NoError(t, s.Close())

	select {
	case err := <-errCh:
		require.Error(t, err, "publishing to a disconnected consumer must report the disconnect to the bus")
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock the pending publish")
	}
	require.True(t, cancelled)
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := hooks.NewBus()
	sid := ident.NewSessionID()

	s, err := stream.Subscribe(bus, sid, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
