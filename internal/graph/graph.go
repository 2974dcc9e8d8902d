// Package graph holds the task DAG: validation, cycle detection, and
// dependency-aware ready-set computation. A Graph is immutable once
// validated (SPEC_FULL.md §5, "Graph is immutable after validation"), so
// it needs no internal locking — callers only ever read it concurrently.
package graph

import (
	"fmt"
	"sort"

	"github.com/meshwave/agentwave/types"
)

// Graph holds a workflow's task list plus the adjacency information
// derived from it. Build one with New, then call Validate before using
// ReadyIDs.
type Graph struct {
	tasks   map[string]types.Task
	order   []string // task IDs in submission order
	checked bool
}

// New builds a Graph from tasks, recording their submission order. It does
// not validate the graph; call Validate for that.
func New(tasks []types.Task) *Graph {
	g := &Graph{
		tasks: make(map[string]types.Task, len(tasks)),
		order: make([]string, 0, len(tasks)),
	}
	for i, t := range tasks {
		t = t.Normalized().WithOrder(i)
		g.tasks[t.ID] = t
		g.order = append(g.order, t.ID)
	}
	return g
}

// Validate fails with a *types.Error{Kind: ErrorInvalidWorkflow} if the
// task list has duplicate IDs, a dependency on a missing or self ID, or a
// dependency cycle. It must be called exactly once, before any call to
// ReadyIDs.
func (g *Graph) Validate() error {
	if len(g.tasks) != len(g.order) {
		return invalidWorkflow("duplicate task id")
	}
	for id, t := range g.tasks {
		for _, dep := range t.Dependencies {
			if dep == id {
				return invalidWorkflow(fmt.Sprintf("task %q depends on itself", id))
			}
			if _, ok := g.tasks[dep]; !ok {
				return invalidWorkflow(fmt.Sprintf("task %q depends on unknown task %q", id, dep))
			}
		}
	}
	if cyc := g.findCycle(); cyc != "" {
		return invalidWorkflow(cyc)
	}
	g.checked = true
	return nil
}

// color states for the DFS-based cycle detector.
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS stack
	black              // fully explored
)

// findCycle runs a DFS with gray/black coloring over the dependency graph
// (edges point from a task to its dependencies) and returns a description
// of the first back edge found, or "" if the graph is acyclic.
func (g *Graph) findCycle() string {
	colors := make(map[string]color, len(g.tasks))
	var stack []string

	var visit func(id string) string
	visit = func(id string) string {
		colors[id] = gray
		stack = append(stack, id)
		for _, dep := range g.tasks[id].Dependencies {
			switch colors[dep] {
			case white:
				if msg := visit(dep); msg != "" {
					return msg
				}
			case gray:
				return fmt.Sprintf("cycle: %s↔%s", id, dep)
			case black:
				// already fully explored via another path, safe
			}
		}
		stack = stack[:len(stack)-1]
		colors[id] = black
		return ""
	}

	for _, id := range g.order {
		if colors[id] == white {
			if msg := visit(id); msg != "" {
				return msg
			}
		}
	}
	return ""
}

// ReadyIDs returns the IDs of tasks whose dependencies are all present in
// completed, excluding any task already in completed, sorted by
// (descending priority, ascending insertion order) for deterministic
// tie-breaking. Validate must have succeeded before calling this.
func (g *Graph) ReadyIDs(completed map[string]struct{}) []string {
	var ready []string
	for _, id := range g.order {
		if _, done := completed[id]; done {
			continue
		}
		t := g.tasks[id]
		allDone := true
		for _, dep := range t.Dependencies {
			if _, ok := completed[dep]; !ok {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		ti, tj := g.tasks[ready[i]], g.tasks[ready[j]]
		if ti.Priority != tj.Priority {
			return ti.Priority > tj.Priority
		}
		return ti.Order() < tj.Order()
	})
	return ready
}

// RemainingIDs returns the IDs of tasks not yet present in completed, in
// submission order.
func (g *Graph) RemainingIDs(completed map[string]struct{}) []string {
	var remaining []string
	for _, id := range g.order {
		if _, done := completed[id]; !done {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// IsEmpty reports whether every task is present in completed.
func (g *Graph) IsEmpty(completed map[string]struct{}) bool {
	return len(g.RemainingIDs(completed)) == 0
}

// Task returns the normalized task for id and whether it exists.
func (g *Graph) Task(id string) (types.Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// TaskCount returns the number of tasks in the graph.
func (g *Graph) TaskCount() int { return len(g.tasks) }

// Tasks returns the tasks in submission order. The returned slice is a
// fresh copy; mutating it does not affect the graph.
func (g *Graph) Tasks() []types.Task {
	out := make([]types.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

func invalidWorkflow(msg string) error {
	return types.NewError(types.ErrorInvalidWorkflow, msg)
}
