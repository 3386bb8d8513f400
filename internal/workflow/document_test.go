package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikahq/nika/internal/workflow"
)

const minimalDoc = `
schema: "1"
tasks:
  - id: greet
    infer:
      prompt: "hello"
`

func TestParseMinimalDocument(t *testing.T) {
	doc, err := workflow.Parse([]byte(minimalDoc))
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 1)
	assert.Equal(t, "greet", doc.Tasks[0].ID)
}

func TestParseInvalidTaskIDRejected(t *testing.T) {
	_, err := workflow.Parse([]byte(`
schema: "1"
tasks:
  - id: "9bad"
    infer:
      prompt: "hi"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-055")
}

func TestParseDuplicateTaskIDRejected(t *testing.T) {
	_, err := workflow.Parse([]byte(`
schema: "1"
tasks:
  - id: a
    infer:
      prompt: "hi"
  - id: a
    exec:
      command: "echo hi"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIKA-055")
}

func TestParseMultipleVerbsRejected(t *testing.T) {
	_, err := workflow.Parse([]byte(`
schema: "1"
tasks:
  - id: a
    infer:
      prompt: "hi"
    exec:
      command: "echo hi"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one verb")
}

func TestParseNoVerbRejected(t *testing.T) {
	_, err := workflow.Parse([]byte(`
schema: "1"
tasks:
  - id: a
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one verb")
}

func TestFlowSideAcceptsScalarAndList(t *testing.T) {
	doc, err := workflow.Parse([]byte(`
schema: "1"
tasks:
  - id: a
    infer: {prompt: "hi"}
  - id: b
    infer: {prompt: "hi"}
  - id: c
    infer: {prompt: "hi"}
flows:
  - source: a
    target: [b, c]
`))
	require.NoError(t, err)
	require.Len(t, doc.Flows, 1)
	assert.Equal(t, workflow.FlowSide{"a"}, doc.Flows[0].Source)
	assert.Equal(t, workflow.FlowSide{"b", "c"}, doc.Flows[0].Target)
}

func TestTaskByIDFound(t *testing.T) {
	doc, err := workflow.Parse([]byte(minimalDoc))
	require.NoError(t, err)
	task, ok := doc.TaskByID("greet")
	require.True(t, ok)
	verb, err := task.VerbKind()
	require.NoError(t, err)
	assert.Equal(t, workflow.VerbInfer, verb)
}

func TestTaskByIDNotFound(t *testing.T) {
	doc, err := workflow.Parse([]byte(minimalDoc))
	require.NoError(t, err)
	_, ok := doc.TaskByID("missing")
	assert.False(t, ok)
}

func TestParseUseBindings(t *testing.T) {
	doc, err := workflow.Parse([]byte(`
schema: "1"
tasks:
  - id: a
    infer: {prompt: "hi"}
  - id: b
    infer: {prompt: "hi {{use.prev}}"}
    use:
      prev: "a.output"
`))
	require.NoError(t, err)
	task, _ := doc.TaskByID("b")
	entry, ok := task.Use["prev"]
	require.True(t, ok)
	assert.Equal(t, "a.output", entry.Path)
}
