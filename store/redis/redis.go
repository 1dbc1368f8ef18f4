// Package redis republishes one session's event stream on a Redis
// pub/sub channel keyed by session id, so multiple transport-layer
// processes can fan a single session's stream out to several connected
// clients (spec §4.8's supplement). It is grounded on the teacher's
// features/stream/pulse sink — same JSON envelope shape, same
// "Client field required, everything else defaulted" constructor idiom —
// simplified from Pulse's durable, consumer-group Redis Streams to a
// plain Redis Pub/Sub channel, since this fan-out only needs best-effort
// mirroring to whichever process currently holds a client connection, not
// replay or at-least-once delivery. Sink is registered as a second
// hooks.Subscriber alongside stream.Stream; Subscriber is for a transport
// process that did not itself drive the session's workflow.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agentcore/decisioncore/hooks"
)

// Envelope wraps one hook event for transmission over a Redis pub/sub
// channel (mirrors the teacher's pulse.Envelope).
type Envelope struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// ChannelName derives the Redis pub/sub channel for a session id,
// mirroring the teacher's defaultStreamID.
func ChannelName(sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("redis: event missing session id")
	}
	return fmt.Sprintf("decisioncore.session.%s", sessionID), nil
}

// Options configures a Sink.
type Options struct {
	// Client is the Redis connection used to publish. Required.
	Client *goredis.Client
	// Channel overrides ChannelName's default derivation.
	Channel func(sessionID string) (string, error)
}

// Sink is a hooks.Subscriber that republishes every event it sees onto
// the session's Redis pub/sub channel. Registered directly with a
// hooks.Bus alongside the in-process stream.Stream subscriber.
type Sink struct {
	client  *goredis.Client
	channel func(string) (string, error)
}

// NewSink constructs a Redis-backed fan-out sink. opts.Client is
// required; opts.Channel defaults to ChannelName.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("redis: client is required")
	}
	ch := opts.Channel
	if ch == nil {
		ch = ChannelName
	}
	return &Sink{client: opts.Client, channel: ch}, nil
}

// HandleEvent implements hooks.Subscriber: marshal event into an
// Envelope and publish it to the session's channel. A publish failure is
// returned to the bus, which per hooks.Bus's contract halts delivery to
// any subscriber registered after this one — callers that want the
// in-process stream.Stream to keep receiving events regardless of Redis
// availability should register this Sink after it, not before.
func (s *Sink) HandleEvent(ctx context.Context, event hooks.Event) error {
	sid := string(event.SessionID())
	channel, err := s.channel(sid)
	if err != nil {
		return fmt.Errorf("redis: derive channel: %w", err)
	}
	env := Envelope{
		Type:      string(event.Type()),
		SessionID: sid,
		Timestamp: time.Now().UTC(),
		Payload:   event,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal envelope: %w", err)
	}
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish: %w", err)
	}
	return nil
}

// Subscriber reads events mirrored by a Sink running in another process,
// for a transport process that did not itself drive the session's
// workflow.
type Subscriber struct {
	pubsub *goredis.PubSub
}

// Subscribe opens a Redis pub/sub subscription for sessionID's channel.
func Subscribe(ctx context.Context, client *goredis.Client, sessionID string) (*Subscriber, error) {
	channel, err := ChannelName(sessionID)
	if err != nil {
		return nil, err
	}
	return &Subscriber{pubsub: client.Subscribe(ctx, channel)}, nil
}

// Envelopes returns a channel of decoded envelopes. Malformed payloads
// (which should never occur since Sink is the only writer) are dropped
// rather than delivered, since a mirrored stream is best-effort and a
// decode failure for one message should not take the channel down.
func (s *Subscriber) Envelopes(ctx context.Context) <-chan Envelope {
	out := make(chan Envelope)
	go func() {
		defer close(out)
		ch := s.pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close releases the underlying Redis subscription.
func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}
