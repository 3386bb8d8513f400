// Package redisfanout mirrors an internal/eventlog.Log onto a Redis
// pub/sub channel so out-of-process observers can watch a run's events
// without holding the engine process open, generalizing spec §4.2's
// "live terminal observer" to a network subscriber. Grounded on the
// teacher's features/stream/pulse sink: a small Options/Sink pair that
// derives a wire envelope from a runtime event and publishes it through
// an injected client, trimmed from Pulse's Redis-streams transport to a
// plain pub/sub channel.
package redisfanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nikahq/nika/internal/eventlog"
)

// Publisher is the subset of *redis.Client a Sink needs, satisfied by
// *redis.Client in production and a fake in tests.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Options configures the Sink.
type Options struct {
	// Client publishes each mirrored event. Required.
	Client Publisher
	// Channel is the Redis pub/sub channel every event is published to.
	// Required.
	Channel string
	// MarshalEvent overrides the envelope's JSON encoding (primarily for
	// tests).
	MarshalEvent func(eventlog.Event) ([]byte, error)
}

// Sink subscribes to an eventlog.Log and republishes every event onto a
// Redis channel until its context is cancelled or the log closes its
// subscriber channel.
type Sink struct {
	client  Publisher
	channel string
	marshal func(eventlog.Event) ([]byte, error)
}

// New constructs a Sink from opts.
func New(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("redisfanout: client is required")
	}
	if opts.Channel == "" {
		return nil, errors.New("redisfanout: channel is required")
	}
	marshal := opts.MarshalEvent
	if marshal == nil {
		marshal = defaultMarshal
	}
	return &Sink{client: opts.Client, channel: opts.Channel, marshal: marshal}, nil
}

// Publish marshals and publishes a single event.
func (s *Sink) Publish(ctx context.Context, ev eventlog.Event) error {
	payload, err := s.marshal(ev)
	if err != nil {
		return fmt.Errorf("redisfanout: marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redisfanout: publish event: %w", err)
	}
	return nil
}

// Run subscribes to log and publishes every event it emits until ctx is
// cancelled or log closes the subscriber channel (via Unsubscribe). The
// first publish error stops the loop and is returned; the subscriber
// channel is always unsubscribed before Run returns.
func (s *Sink) Run(ctx context.Context, log *eventlog.Log) error {
	backlog, ch := log.Subscribe(128)
	defer log.Unsubscribe(ch)

	for _, ev := range backlog {
		if err := s.Publish(ctx, ev); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Publish(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func defaultMarshal(ev eventlog.Event) ([]byte, error) {
	return json.Marshal(ev)
}
