package temporal_test

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/nikahq/nika/internal/binding"
	"github.com/nikahq/nika/internal/engine/temporal"
	"github.com/nikahq/nika/internal/workflow"
)

func TestRunWorkflowPropagatesChainOutput(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(temporal.RunWorkflow)

	env.OnActivity(temporal.ActivityName, mock.Anything, mock.MatchedBy(func(req temporal.TaskRequest) bool {
		return req.TaskID == "a"
	})).Return(temporal.TaskResponse{Output: "hello"}, nil)
	env.OnActivity(temporal.ActivityName, mock.Anything, mock.MatchedBy(func(req temporal.TaskRequest) bool {
		return req.TaskID == "b"
	})).Return(func(_ interface{}, req temporal.TaskRequest) (temporal.TaskResponse, error) {
		return temporal.TaskResponse{Output: req.Inputs["up"]}, nil
	})

	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "echo hello"}},
			{ID: "b", Exec: &workflow.ExecParams{Command: "echo {{use.up}}"},
				Use: binding.WiringSpec{"up": {Path: "a"}}},
		},
		Flows: []workflow.Flow{{Source: workflow.FlowSide{"a"}, Target: workflow.FlowSide{"b"}}},
	}

	env.ExecuteWorkflow(temporal.RunWorkflow, temporal.WorkflowInput{Document: doc})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out temporal.WorkflowOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out.Status)
	require.Equal(t, "hello", out.Output)
}

func TestRunWorkflowDetectsCycle(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(temporal.RunWorkflow)

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

	env.ExecuteWorkflow(temporal.RunWorkflow, temporal.WorkflowInput{Document: doc})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	require.Contains(t, err.Error(), "NIKA-020")
}

func TestRunWorkflowReportsFirstFailedTask(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(temporal.RunWorkflow)

	env.OnActivity(temporal.ActivityName, mock.Anything, mock.MatchedBy(func(req temporal.TaskRequest) bool {
		return req.TaskID == "a"
	})).Return(temporal.TaskResponse{Failed: true, Err: "boom"}, nil)

	doc := &workflow.Document{
		Tasks: []workflow.Task{
			{ID: "a", Exec: &workflow.ExecParams{Command: "exit 1"}},
		},
	}

	env.ExecuteWorkflow(temporal.RunWorkflow, temporal.WorkflowInput{Document: doc})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out temporal.WorkflowOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out.Status)
	require.Equal(t, "a", out.FirstFailedTask)
}

func TestRunWorkflowEmptyDocumentCompletesImmediately(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(temporal.RunWorkflow)

	env.ExecuteWorkflow(temporal.RunWorkflow, temporal.WorkflowInput{Document: &workflow.Document{}})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out temporal.WorkflowOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out.Status)
	require.Nil(t, out.Output)
}
