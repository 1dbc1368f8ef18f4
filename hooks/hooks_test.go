package hooks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/decisioncore/hooks"
	"github.com/agentcore/decisioncore/ident"
)

func TestPublishDeliversToSubscribersInRegistrationOrder(t *testing.T) {
	bus := hooks.NewBus()
	var order []int

	for i := 0; i < 3; i++ {
		i := i
		_, err := bus.Register(hooks.SubscriberFunc(func(context.Context, hooks.Event) error {
			order = append(order, i)
			return nil
		}))
		require.NoError(t, err)
	}

	sid := ident.NewSessionID()
	require.NoError(t, bus.Publish(context.Background(), hooks.NewSessionStatusChanged(sid, "Running")))
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestPublishStopsAtFirstSubscriberError(t *testing.T) {
	bus := hooks.NewBus()
	boom := errors.New("boom")
	var secondCalled bool

	_, err := bus.Register(hooks.SubscriberFunc(func(context.Context, hooks.Event) error { return boom }))
	require.NoError(t, err)
	_, err = bus.Register(hooks.SubscriberFunc(func(context.Context, hooks.Event) error {
		secondCalled = true
		return nil
	}))
	require.NoError(t, err)

	sid := ident.NewSessionID()
	err = bus.Publish(context.Background(), hooks.NewSessionStatusChanged(sid, "Errored"))
	require.ErrorIs(t, err, boom)
	require.False(t, secondCalled)
}

func TestCloseUnregistersSubscriber(t *testing.T) {
	bus := hooks.NewBus()
	var calls int
	sub, err := bus.Register(hooks.SubscriberFunc(func(context.Context, hooks.Event) error {
		calls++
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	sid := ident.NewSessionID()
	require.NoError(t, bus.Publish(context.Background(), hooks.NewSessionStatusChanged(sid, "Completed")))
	require.Equal(t, 0, calls)
}

func TestRegisterRejectsNilSubscriber(t *testing.T) {
	bus := hooks.NewBus()
	_, err := bus.Register(nil)
	require.Error(t, err)
}

func TestEventConstructorsCarrySessionIDAndType(t *testing.T) {
	sid := ident.NewSessionID()
	nid := ident.NewNodeID()

	evt := hooks.NewToolInvocationStarted(sid, nid, "search")
	require.Equal(t, hooks.ToolInvocationStarted, evt.Type())
	require.Equal(t, sid, evt.SessionID())
	require.Equal(t, "search", evt.Tool)

	errEvt := hooks.NewError(sid, "model", "timed out")
	require.Equal(t, hooks.ErrorEvent, errEvt.Type())
	require.Equal(t, "timed out", errEvt.Detail)
}
