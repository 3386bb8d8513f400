package redisfanout_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/eventlog"
	"github.com/nikahq/nika/internal/eventlog/redisfanout"
)

type fakePublisher struct {
	mu       sync.Mutex
	channel  string
	messages [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channel
	f.messages = append(f.messages, message.([]byte))
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(1)
	return cmd
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func TestNewRequiresClientAndChannel(t *testing.T) {
	_, err := redisfanout.New(redisfanout.Options{Channel: "nika-events"})
	assert.Error(t, err)

	_, err = redisfanout.New(redisfanout.Options{Client: &fakePublisher{}})
	assert.Error(t, err)
}

func TestPublishSendsMarshaledEvent(t *testing.T) {
	pub := &fakePublisher{}
	sink, err := redisfanout.New(redisfanout.Options{Client: pub, Channel: "nika-events"})
	require.NoError(t, err)

	log := eventlog.New()
	log.Emit(eventlog.KindWorkflowStarted, map[string]any{"task_count": 2})
	ev := log.Events()[0]

	require.NoError(t, sink.Publish(context.Background(), ev))
	require.Equal(t, 1, pub.count())
	assert.Equal(t, "nika-events", pub.channel)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.messages[0], &decoded))
	assert.Equal(t, string(eventlog.KindWorkflowStarted), decoded["type"])
}

func TestRunPublishesBacklogThenLiveEvents(t *testing.T) {
	pub := &fakePublisher{}
	sink, err := redisfanout.New(redisfanout.Options{Client: pub, Channel: "nika-events"})
	require.NoError(t, err)

	log := eventlog.New()
	log.Emit(eventlog.KindWorkflowStarted, map[string]any{"task_count": 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx, log) }()

	log.Emit(eventlog.KindTaskStarted, map[string]any{"task_id": "a"})
	log.Emit(eventlog.KindWorkflowCompleted, map[string]any{"output": "ok"})

	assertEventually(t, func() bool { return pub.count() >= 3 })
	cancel()
	<-done
}

func assertEventually(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
