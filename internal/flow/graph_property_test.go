package flow_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nikahq/nika/internal/flow"
)

// dagEdges builds a random DAG over n..n+k nodes by only ever connecting a
// lower-indexed node to a higher-indexed one, so the construction itself
// can never introduce a cycle.
func dagEdges(nodeCount int, pairs []int) (taskIDs []string, edges []flow.Edge) {
	taskIDs = make([]string, nodeCount)
	for i := range taskIDs {
		taskIDs[i] = fmt.Sprintf("t%d", i)
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		from := pairs[i] % nodeCount
		to := pairs[i+1] % nodeCount
		if from == to {
			continue
		}
		if from > to {
			from, to = to, from
		}
		edges = append(edges, flow.Edge{Sources: []string{taskIDs[from]}, Targets: []string{taskIDs[to]}})
	}
	return taskIDs, edges
}

// TestAcyclicGraphsAlwaysDetectCyclesClean checks spec's universally
// quantified property: for any acyclic workflow, DetectCycles succeeds.
// The generator only ever builds forward edges, so every edge pointing
// from a lower-indexed to a higher-indexed task holds by construction and
// is not checked here.
func TestAcyclicGraphsAlwaysDetectCyclesClean(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("acyclic graphs never report a cycle", prop.ForAll(
		func(nodeCount int, pairs []int) bool {
			taskIDs, edges := dagEdges(nodeCount, pairs)
			g := flow.New(taskIDs, edges)
			return g.DetectCycles() == nil
		},
		gen.IntRange(1, 12),
		gen.SliceOf(gen.IntRange(0, 11)),
	))

	properties.TestingRun(t)
}

// TestCycleAlwaysReportsClosedPath checks the companion property: for any
// workflow built from a clean acyclic base plus a forward edge from the
// first task to the last and the closing back-edge from the last to the
// first, DetectCycles fails and the reported path's first and last task
// ids match.
func TestCycleAlwaysReportsClosedPath(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("introducing a back-edge always yields a closed cycle path", prop.ForAll(
		func(nodeCount int, pairs []int) bool {
			taskIDs, edges := dagEdges(nodeCount, pairs)
			if len(taskIDs) < 2 {
				return true
			}
			last := taskIDs[len(taskIDs)-1]
			first := taskIDs[0]
			edges = append(edges,
				flow.Edge{Sources: []string{first}, Targets: []string{last}},
				flow.Edge{Sources: []string{last}, Targets: []string{first}},
			)

			g := flow.New(taskIDs, edges)
			err := g.DetectCycles()
			if err == nil {
				return false
			}
			path := err.Error()
			idx := strings.Index(path, ": ")
			if idx >= 0 {
				path = path[idx+2:]
			}
			segments := strings.Split(path, " → ")
			return len(segments) >= 2 && segments[0] == segments[len(segments)-1]
		},
		gen.IntRange(2, 12),
		gen.SliceOf(gen.IntRange(0, 11)),
	))

	properties.TestingRun(t)
}
