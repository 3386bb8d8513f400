// Nexus exposes a single run of RunWorkflow as a cross-namespace Nexus
// operation, so a caller in another Temporal namespace (or a non-Temporal
// Nexus caller) can start and await a Nika run without holding a direct
// client to this namespace. Grounded on the teacher's dependency on
// github.com/nexus-rpc/sdk-go alongside go.temporal.io/sdk: Nika has no
// multi-namespace deployment of its own to point at, so this wires the
// same "workflow as a Nexus operation" shape the teacher's stack implies
// rather than inventing an unrelated use for the dependency.
package temporal

import (
	"context"

	"github.com/nexus-rpc/sdk-go/nexus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporalnexus"
	"go.temporal.io/sdk/worker"
)

// NexusServiceName is the Nexus service name the run-workflow operation
// (built by newRunOperation) is registered under.
const NexusServiceName = "nika"

// NexusOperationName is the operation name callers reference to start a
// run through Nexus instead of a direct ExecuteWorkflow call.
const NexusOperationName = "run-workflow"

// newRunOperation builds the run-workflow Nexus operation bound to
// taskQueue: starting it returns a Nexus operation token a caller can
// poll or cancel, and its result resolves to the same WorkflowOutput
// Run() returns over a direct client.
func newRunOperation(taskQueue string) nexus.Operation[WorkflowInput, *WorkflowOutput] {
	return temporalnexus.NewWorkflowRunOperation(
		NexusOperationName,
		RunWorkflow,
		func(ctx context.Context, input WorkflowInput, opts nexus.StartOperationOptions) (client.StartWorkflowOptions, error) {
			return client.StartWorkflowOptions{
				ID:        opts.RequestID,
				TaskQueue: taskQueue,
			}, nil
		},
	)
}

// registerNexusService attaches the Nika Nexus service, with its single
// run-workflow operation, to w.
func registerNexusService(w worker.Worker, taskQueue string) {
	service := nexus.NewService(NexusServiceName)
	service.MustRegister(newRunOperation(taskQueue))
	w.RegisterNexusService(service)
}
