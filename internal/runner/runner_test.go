package runner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/binding"
	"github.com/nikahq/nika/internal/eventlog"
	"github.com/nikahq/nika/internal/executor"
	"github.com/nikahq/nika/internal/modelapi"
	"github.com/nikahq/nika/internal/runner"
	"github.com/nikahq/nika/internal/store"
	"github.com/nikahq/nika/internal/workflow"
)

func intPtr(v int) *int { return &v }

func newTestRunner() (*runner.Runner, *eventlog.Log, *store.Store) {
	events := eventlog.New()
	st := store.New()
	exec := executor.New("", "", events, nil)
	return runner.New(events, st, exec, nil, nil, nil, 4), events, st
}

func TestRunSimpleChainPropagatesOutput(t *testing.T) {
	r, _, st := newTestRunner()
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "echo hello"}},
			{ID: "b", Exec: &workflow.ExecParams{Command: "echo {{use.up}}"},
				Use: binding.WiringSpec{"up": {Path: "a"}}},
		},
		Flows: []workflow.Flow{{Source: workflow.FlowSide{"a"}, Target: workflow.FlowSide{"b"}}},
	}

	result, err := r.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusCompleted, result.Status)
	assert.Equal(t, "hello", result.Output)

	bResult, ok := st.Get("b")
	require.True(t, ok)
	assert.Equal(t, "hello", bResult.Output)
}

func TestRunDetectsCycle(t *testing.T) {
	r, _, _ := newTestRunner()
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "echo a"}},
			{ID: "b", Exec: &workflow.ExecParams{Command: "echo b"}},
		},
		Flows: []workflow.Flow{
			{Source: workflow.FlowSide{"a"}, Target: workflow.FlowSide{"b"}},
			{Source: workflow.FlowSide{"b"}, Target: workflow.FlowSide{"a"}},
		},
	}

	result, err := r.Run(context.Background(), doc)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "NIKA-020")
}

func TestRunRejectsUnknownAliasReference(t *testing.T) {
	r, _, _ := newTestRunner()
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "echo {{use.missing}}"}},
		},
	}

	result, err := r.Run(context.Background(), doc)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "NIKA-071")
}

func TestRunFailurePolicyStopsDownstreamPromotion(t *testing.T) {
	r, _, st := newTestRunner()
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "exit 1"}},
			{ID: "b", Exec: &workflow.ExecParams{Command: "echo {{use.up}}"},
				Use: binding.WiringSpec{"up": {Path: "a"}}},
		},
		Flows: []workflow.Flow{{Source: workflow.FlowSide{"a"}, Target: workflow.FlowSide{"b"}}},
	}

	result, err := r.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusFailed, result.Status)
	assert.Equal(t, "a", result.FirstFailedTask)

	assert.True(t, st.Contains("a"))
	assert.False(t, st.Contains("b"), "downstream task must never be promoted once its predecessor fails")
}

func TestRunAggregatesMultipleTerminalOutputs(t *testing.T) {
	r, _, _ := newTestRunner()
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "echo one"}},
			{ID: "b", Exec: &workflow.ExecParams{Command: "echo two"}},
		},
	}

	result, err := r.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusCompleted, result.Status)

	out, ok := result.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "one", out["a"])
	assert.Equal(t, "two", out["b"])
}

func TestRunEmptyDocumentCompletesImmediately(t *testing.T) {
	r, _, _ := newTestRunner()
	result, err := r.Run(context.Background(), &workflow.Document{})
	require.NoError(t, err)
	assert.Equal(t, runner.StatusCompleted, result.Status)
	assert.Nil(t, result.Output)
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	r, events, _ := newTestRunner()
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "echo hi"}},
		},
	}

	_, err := r.Run(context.Background(), doc)
	require.NoError(t, err)

	var kinds []eventlog.Kind
	for _, e := range events.Events() {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, eventlog.KindWorkflowStarted)
	assert.Contains(t, kinds, eventlog.KindTaskScheduled)
	assert.Contains(t, kinds, eventlog.KindTaskStarted)
	assert.Contains(t, kinds, eventlog.KindTaskCompleted)
	assert.Contains(t, kinds, eventlog.KindWorkflowCompleted)
}

type fakeAgentClient struct{}

func (f *fakeAgentClient) Complete(context.Context, *modelapi.Request) (*modelapi.Response, error) {
	return &modelapi.Response{
		Content: []modelapi.Message{{Role: modelapi.ConversationRoleAssistant, Parts: []modelapi.Part{modelapi.TextPart{Text: "agent done"}}}},
	}, nil
}

func (f *fakeAgentClient) Stream(context.Context, *modelapi.Request) (modelapi.Streamer, error) {
	return nil, modelapi.ErrStreamingUnsupported
}

func TestRunDispatchesAgentVerbAndResolvesItsPrompt(t *testing.T) {
	events := eventlog.New()
	st := store.New()
	exec := executor.New("", "", events, nil)
	r := runner.New(events, st, exec, &fakeAgentClient{}, nil, nil, 4)

	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "seed", Exec: &workflow.ExecParams{Command: "echo context"}},
			{ID: "agent_task", Agent: &workflow.AgentParams{Prompt: "act on {{use.ctx}}", MaxTurns: intPtr(2)},
				Use: binding.WiringSpec{"ctx": {Path: "seed"}}},
		},
		Flows: []workflow.Flow{{Source: workflow.FlowSide{"seed"}, Target: workflow.FlowSide{"agent_task"}}},
	}

	result, err := r.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusCompleted, result.Status)
	assert.Equal(t, "agent done", result.Output)
}

// TestRunResolvesLazyBindingWithDefaultOnMissingUpstream covers spec §8
// scenario 4: a lazy use: entry whose path never resolves against the
// store falls back to its default at template-read time, and the task
// completes successfully rather than failing with NIKA-071.
func TestRunResolvesLazyBindingWithDefaultOnMissingUpstream(t *testing.T) {
	r, _, st := newTestRunner()
	fallback := any("fallback")
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "t", Exec: &workflow.ExecParams{Command: "echo {{use.v}}"},
				Use: binding.WiringSpec{"v": {Path: "missing.field", Lazy: true, Default: &fallback}}},
		},
	}

	result, err := r.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusCompleted, result.Status)
	assert.Equal(t, "fallback", result.Output)

	tResult, ok := st.Get("t")
	require.True(t, ok)
	assert.True(t, tResult.IsSuccess())
}

func TestRunAppliesJSONOutputPolicy(t *testing.T) {
	r, _, st := newTestRunner()
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: `echo '{"ok":true}'`},
				Output: &workflow.OutputPolicy{Format: workflow.OutputJSON}},
		},
	}

	result, err := r.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusCompleted, result.Status)
	assert.Equal(t, map[string]any{"ok": true}, result.Output)

	aResult, ok := st.Get("a")
	require.True(t, ok)
	assert.True(t, aResult.IsSuccess())
}
