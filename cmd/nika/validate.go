package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikahq/nika/internal/flow"
	"github.com/nikahq/nika/internal/workflow"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Parse a workflow document and check it for cycles without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateWorkflowFile(args[0])
		},
	}
}

func validateWorkflowFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return wrapf(2, "read workflow document: %w", err)
	}
	doc, err := workflow.Parse(data)
	if err != nil {
		return wrapf(2, "%w", err)
	}

	taskIDs := make([]string, len(doc.Tasks))
	for i, t := range doc.Tasks {
		taskIDs[i] = t.ID
	}
	edges := make([]flow.Edge, 0, len(doc.Flows))
	for _, f := range doc.Flows {
		edges = append(edges, flow.Edge{Sources: f.Source, Targets: f.Target})
	}
	graph := flow.New(taskIDs, edges)
	if err := graph.DetectCycles(); err != nil {
		return wrapf(2, "%w", err)
	}

	fmt.Printf("%s: %d tasks, %d flows, no cycles\n", path, len(doc.Tasks), len(doc.Flows))
	return nil
}
