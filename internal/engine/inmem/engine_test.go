package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/engine"
	"github.com/nikahq/nika/internal/engine/inmem"
	"github.com/nikahq/nika/internal/workflow"
)

func TestRunReturnsSoleTaskOutput(t *testing.T) {
	e := inmem.New(inmem.Options{Concurrency: 4})
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "echo hello"}},
		},
	}

	outcome, err := e.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, outcome.Status)
	assert.Equal(t, "hello", outcome.Output)
	assert.NoError(t, e.Close())
}

func TestRunReportsFirstFailedTask(t *testing.T) {
	e := inmem.New(inmem.Options{Concurrency: 4})
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "exit 1"}},
		},
	}

	outcome, err := e.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusFailed, outcome.Status)
	assert.Equal(t, "a", outcome.FirstFailedTask)
}

func TestEventsAndStoreAreObservableAfterRun(t *testing.T) {
	e := inmem.New(inmem.Options{Concurrency: 4})
	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "echo hi"}},
		},
	}

	_, err := e.Run(context.Background(), doc)
	require.NoError(t, err)

	result, ok := e.Store().Get("a")
	require.True(t, ok)
	assert.Equal(t, "hi", result.Output)
	assert.NotEmpty(t, e.Events().Events())
}
