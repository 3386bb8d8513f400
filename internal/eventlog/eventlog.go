// Package eventlog implements the append-only, monotonically-numbered,
// broadcast-capable execution trace described in spec §4.2, grounded on the
// Rust original's src/event_log.rs (an RwLock<Vec<Event>> guarded append
// log with an atomic id counter), adapted to Go with a sync.RWMutex and a
// fan-out set of subscriber channels in place of a single broadcast
// receiver — so multiple late joiners can each request their own snapshot
// + channel pair per spec's "combined snapshot + receiver constructor"
// design note (§9).
package eventlog

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind tags the three event levels named in spec §3: workflow, task, and
// fine-grained (template/provider/agent) events.
type Kind string

const (
	KindWorkflowStarted   Kind = "workflow_started"
	KindWorkflowCompleted Kind = "workflow_completed"
	KindWorkflowFailed    Kind = "workflow_failed"

	KindTaskScheduled Kind = "task_scheduled"
	KindTaskStarted   Kind = "task_started"
	KindTaskCompleted Kind = "task_completed"
	KindTaskFailed    Kind = "task_failed"

	KindTemplateResolved Kind = "template_resolved"
	KindProviderCalled   Kind = "provider_called"
	KindProviderResponded Kind = "provider_responded"
	KindAgentTurn        Kind = "agent_turn"
	KindToolInvoked      Kind = "tool_invoked"
)

// Event is an immutable record (id, timestamp_ms, kind, payload). Payload
// fields vary by Kind; they are carried as a flat map so the JSON
// representation matches spec §6 ("type tag and payload fields" in
// lower-snake-case) without a family of Go types per variant.
type Event struct {
	ID          uint64         `json:"id"`
	TimestampMs uint64         `json:"timestamp_ms"`
	Kind        Kind           `json:"type"`
	Payload     map[string]any `json:"-"`
}

// MarshalJSON flattens Payload alongside id/timestamp_ms/type so the wire
// shape matches spec §6 exactly (a single JSON object, not a nested one).
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["id"] = e.ID
	out["timestamp_ms"] = e.TimestampMs
	out["type"] = e.Kind
	return json.Marshal(out)
}

// TaskID extracts the task_id payload field if this event is task-scoped.
func (e Event) TaskID() (string, bool) {
	v, ok := e.Payload["task_id"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IsWorkflowEvent reports whether Kind is one of the three workflow-level
// variants.
func (e Event) IsWorkflowEvent() bool {
	switch e.Kind {
	case KindWorkflowStarted, KindWorkflowCompleted, KindWorkflowFailed:
		return true
	default:
		return false
	}
}

// Log is a thread-safe, append-only event log with broadcast fan-out. The
// zero value is not usable; construct with New.
type Log struct {
	mu        sync.RWMutex
	events    []Event
	startTime time.Time
	nextID    atomic.Uint64
	runID     string

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New creates an empty event log whose timestamps are relative to this
// call and is assigned a fresh run id (github.com/google/uuid), the
// correlation id used to tag this run's events in out-of-process sinks
// (internal/eventlog/mongostore, internal/eventlog/redisfanout). The
// Temporal backend does not use it as its workflow id.
func New() *Log {
	return &Log{
		startTime: time.Now(),
		subs:      make(map[chan Event]struct{}),
		runID:     uuid.NewString(),
	}
}

// RunID returns this log's correlation id.
func (l *Log) RunID() string {
	return l.runID
}

// Emit assigns the next monotonic id, stamps the relative timestamp,
// appends under the writer lock (lock held only for the push), and
// best-effort forwards the event to every live subscriber. A full or
// closed subscriber channel never blocks or fails Emit — per spec §5's
// back-pressure rule, the event log drops on slow subscribers rather than
// stalling producers.
func (l *Log) Emit(kind Kind, payload map[string]any) uint64 {
	id := l.nextID.Add(1) - 1
	event := Event{
		ID:          id,
		TimestampMs: uint64(time.Since(l.startTime).Milliseconds()),
		Kind:        kind,
		Payload:     payload,
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	l.broadcast(event)
	return id
}

func (l *Log) broadcast(event Event) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for ch := range l.subs {
		select {
		case ch <- event:
		default:
			// Subscriber is behind; drop rather than block the writer.
		}
	}
}

// Events returns a snapshot copy of every event appended so far.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// FilterTask returns every event scoped to taskID, in append order.
func (l *Log) FilterTask(taskID string) []Event {
	all := l.Events()
	out := make([]Event, 0, len(all))
	for _, e := range all {
		if id, ok := e.TaskID(); ok && id == taskID {
			out = append(out, e)
		}
	}
	return out
}

// WorkflowEvents returns only the workflow-level events, in append order.
func (l *Log) WorkflowEvents() []Event {
	all := l.Events()
	out := make([]Event, 0, len(all))
	for _, e := range all {
		if e.IsWorkflowEvent() {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the number of appended events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// IsEmpty reports whether no events have been appended.
func (l *Log) IsEmpty() bool {
	return l.Len() == 0
}

// ToJSON serializes the full event history for persistence or debugging.
func (l *Log) ToJSON() ([]byte, error) {
	return json.Marshal(l.Events())
}

// Subscribe returns a snapshot of every event appended so far plus a
// channel that receives every subsequently emitted event, satisfying the
// "combined snapshot + receiver" construction spec §9 calls for so late
// joiners never miss the window between reading history and subscribing.
// The returned channel is buffered; Unsubscribe must be called to release
// it once the caller is done.
func (l *Log) Subscribe(buffer int) ([]Event, chan Event) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	l.subMu.Lock()
	l.subs[ch] = struct{}{}
	l.subMu.Unlock()

	return l.Events(), ch
}

// Unsubscribe removes and closes a channel previously returned by
// Subscribe.
func (l *Log) Unsubscribe(ch chan Event) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	if _, ok := l.subs[ch]; ok {
		delete(l.subs, ch)
		close(ch)
	}
}
