// Package flow builds the task dependency DAG from a workflow's flow
// declarations and detects cycles, grounded on the Rust original's
// dag/flow.rs (FlowGraph: adjacency/predecessor maps plus three-colour DFS
// cycle detection).
package flow

import (
	"strings"

	"github.com/nikahq/nika/internal/nikaerr"
)

// Edge is a single source -> target flow declaration; each side may
// expand to multiple task ids (spec §6: "each side is a task id or a list
// of ids").
type Edge struct {
	Sources []string
	Targets []string
}

// Graph holds the predecessor/successor adjacency built from a workflow's
// tasks and flows.
type Graph struct {
	successors   map[string][]string
	predecessors map[string][]string
	taskIDs      []string
	taskSet      map[string]struct{}
}

// New builds a Graph from the full set of task ids and flow edges. Every
// task id gets an entry in both adjacency maps (possibly empty) so
// Successors/Dependencies never need nil-checks downstream.
func New(taskIDs []string, edges []Edge) *Graph {
	g := &Graph{
		successors:   make(map[string][]string, len(taskIDs)),
		predecessors: make(map[string][]string, len(taskIDs)),
		taskIDs:      append([]string(nil), taskIDs...),
		taskSet:      make(map[string]struct{}, len(taskIDs)),
	}
	for _, id := range taskIDs {
		g.successors[id] = nil
		g.predecessors[id] = nil
		g.taskSet[id] = struct{}{}
	}
	for _, e := range edges {
		for _, src := range e.Sources {
			for _, tgt := range e.Targets {
				g.successors[src] = append(g.successors[src], tgt)
				g.predecessors[tgt] = append(g.predecessors[tgt], src)
			}
		}
	}
	return g
}

// Dependencies returns the predecessors of taskID.
func (g *Graph) Dependencies(taskID string) []string {
	return g.predecessors[taskID]
}

// Successors returns the successors of taskID.
func (g *Graph) Successors(taskID string) []string {
	return g.successors[taskID]
}

// Terminals returns every task id with no successors.
func (g *Graph) Terminals() []string {
	out := make([]string, 0, len(g.taskIDs))
	for _, id := range g.taskIDs {
		if len(g.successors[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Roots returns every task id with no predecessors.
func (g *Graph) Roots() []string {
	out := make([]string, 0, len(g.taskIDs))
	for _, id := range g.taskIDs {
		if len(g.predecessors[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Contains reports whether taskID is part of the graph.
func (g *Graph) Contains(taskID string) bool {
	_, ok := g.taskSet[taskID]
	return ok
}

// TaskIDs returns every task id in the graph, in declaration order.
func (g *Graph) TaskIDs() []string {
	return append([]string(nil), g.taskIDs...)
}

// HasPath reports whether a directed path exists from `from` to `to` via
// breadth-first search.
func (g *Graph) HasPath(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.successors[current] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

type color int

const (
	white color = iota
	gray
	black
)

// DetectCycles runs the three-colour DFS cycle detector described in spec
// §4.4: every node starts white, becomes grey on entry and black on exit; a
// grey-to-grey edge is a cycle. On detection, the cycle path is
// reconstructed from the current DFS stack starting at the first
// occurrence of the repeating node. Self-loops count as cycles; disjoint
// components are scanned independently.
func (g *Graph) DetectCycles() error {
	colors := make(map[string]color, len(g.taskIDs))
	for _, id := range g.taskIDs {
		colors[id] = white
	}

	var stack []string
	var dfs func(node string) error
	dfs = func(node string) error {
		colors[node] = gray
		stack = append(stack, node)

		for _, next := range g.successors[node] {
			switch colors[next] {
			case gray:
				cycleStart := 0
				for i, n := range stack {
					if n == next {
						cycleStart = i
						break
					}
				}
				cycle := append(append([]string(nil), stack[cycleStart:]...), next)
				return nikaerr.New(nikaerr.CycleDetected, "%s", strings.Join(cycle, " → "))
			case white:
				if err := dfs(next); err != nil {
					return err
				}
			case black:
				// already fully processed
			}
		}

		stack = stack[:len(stack)-1]
		colors[node] = black
		return nil
	}

	for _, id := range g.taskIDs {
		if colors[id] == white {
			if err := dfs(id); err != nil {
				return err
			}
		}
	}
	return nil
}
