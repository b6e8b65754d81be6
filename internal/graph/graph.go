// Package graph implements the task dependency graph: a mapping from task
// id to task record, a deps/rdeps adjacency with incremental cycle
// rejection, and a completion set. It contains no scheduling or execution
// logic — that lives in the orchestration package, which borrows a Graph
// rather than owning one.
package graph

import (
	"context"
	"fmt"
)

// TaskID is an opaque, user-supplied identifier, unique within a Graph.
type TaskID string

// Handle is passed to a TaskFn when it is launched. It carries the task's
// own id and a context a long-running TaskFn can select on for
// cancellation; the graph and scheduler never cancel it themselves (see
// the orchestration package's Stop semantics).
type Handle struct {
	ID  TaskID
	Ctx context.Context
}

// TaskFn is the single capability a task provides: run to a result or an
// error. It is a closure, not an interface, so callers can close over
// whatever state their work needs.
type TaskFn func(h *Handle) (any, error)

// TaskOptions carries user-attached metadata for a task. It exists so
// AddTask can grow optional fields without breaking callers; none of its
// fields affect graph semantics.
type TaskOptions struct {
	Metadata map[string]string
}

// Task is an immutable record created by AddTask. Completion is tracked
// separately by the Graph, not on the Task itself.
type Task struct {
	ID   TaskID
	Fn   TaskFn
	Opts TaskOptions
}

// Graph is the task dependency model: a task map, forward dependency sets
// (deps), reverse dependency sets (rdeps), and a completed set. It is not
// safe for concurrent mutation; callers
// (typically a single orchestration.Scheduler) must serialize access
// themselves, which the scheduler does via its coordination goroutine.
type Graph struct {
	tasks     map[TaskID]*Task
	order     []TaskID // registration order, used as the ready/topo tie-break
	deps      map[TaskID][]TaskID
	rdeps     map[TaskID][]TaskID
	completed map[TaskID]struct{}
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		tasks:     make(map[TaskID]*Task),
		deps:      make(map[TaskID][]TaskID),
		rdeps:     make(map[TaskID][]TaskID),
		completed: make(map[TaskID]struct{}),
	}
}

// AddTask registers a new task. It returns the Graph so callers can chain
// registration calls. Fails with ErrDuplicateTask if id is already
// registered; the graph is left unchanged.
func (g *Graph) AddTask(id TaskID, fn TaskFn, opts ...TaskOptions) (*Graph, error) {
	if _, exists := g.tasks[id]; exists {
		return nil, fmt.Errorf("add task %q: %w", id, ErrDuplicateTask)
	}

	var o TaskOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	g.tasks[id] = &Task{ID: id, Fn: fn, Opts: o}
	g.order = append(g.order, id)
	g.deps[id] = nil
	g.rdeps[id] = nil
	return g, nil
}

// AddDependency registers prereq (or prereqs, in order) as dependencies of
// id: id may not run until every prereq has completed. Fails with
// ErrUnknownTask if id or any prereq is unregistered, or ErrCycle if id
// equals a prereq or the edge would create a cycle. On any failure the
// graph is left exactly as it was before the call: every prereq is
// checked before any edge is recorded.
func (g *Graph) AddDependency(id TaskID, prereqs ...TaskID) error {
	if _, exists := g.tasks[id]; !exists {
		return fmt.Errorf("add dependency to %q: %w", id, ErrUnknownTask)
	}
	for _, p := range prereqs {
		if _, exists := g.tasks[p]; !exists {
			return fmt.Errorf("add dependency %q on %q: %w", id, p, ErrUnknownTask)
		}
		if p == id {
			return fmt.Errorf("add dependency %q on itself: %w", id, ErrCycle)
		}
	}

	var pending []TaskID
	seen := make(map[TaskID]bool, len(prereqs))
	for _, p := range prereqs {
		if g.hasDep(id, p) || seen[p] {
			continue // idempotent, already recorded
		}
		if g.reachable(p, id) {
			return fmt.Errorf("add dependency %q on %q: %w", id, p, ErrCycle)
		}
		seen[p] = true
		pending = append(pending, p)
	}
	for _, p := range pending {
		g.deps[id] = append(g.deps[id], p)
		g.rdeps[p] = append(g.rdeps[p], id)
	}
	return nil
}

// hasDep reports whether p is already a recorded prerequisite of id.
func (g *Graph) hasDep(id, p TaskID) bool {
	for _, d := range g.deps[id] {
		if d == p {
			return true
		}
	}
	return false
}

// reachable reports whether target is reachable from start by following
// deps edges (prereq chains). Adding id as a dependent of p would create
// a cycle exactly when id is reachable from p this way.
func (g *Graph) reachable(start, target TaskID) bool {
	if start == target {
		return true
	}
	visited := make(map[TaskID]bool)
	var walk func(TaskID) bool
	walk = func(x TaskID) bool {
		if x == target {
			return true
		}
		if visited[x] {
			return false
		}
		visited[x] = true
		for _, p := range g.deps[x] {
			if walk(p) {
				return true
			}
		}
		return false
	}
	return walk(start)
}

// ReadyTasks returns, in a deterministic order (registration order), every
// registered, not-yet-completed task whose prerequisites are all
// completed.
func (g *Graph) ReadyTasks() []TaskID {
	var ready []TaskID
	for _, id := range g.order {
		if _, done := g.completed[id]; done {
			continue
		}
		if g.allDepsCompleted(id) {
			ready = append(ready, id)
		}
	}
	return ready
}

func (g *Graph) allDepsCompleted(id TaskID) bool {
	for _, d := range g.deps[id] {
		if _, done := g.completed[d]; !done {
			return false
		}
	}
	return true
}

// MarkCompleted records id as completed. It is idempotent and, per the
// graph's lenient-replay policy, does not itself check that deps[id] are
// completed — that invariant is the caller's (the scheduler's)
// responsibility.
func (g *Graph) MarkCompleted(id TaskID) error {
	if _, exists := g.tasks[id]; !exists {
		return fmt.Errorf("mark completed %q: %w", id, ErrUnknownTask)
	}
	g.completed[id] = struct{}{}
	return nil
}

// Reset empties the completed set. Tasks and edges are untouched, so the
// same Graph can be driven through another run.
func (g *Graph) Reset() {
	g.completed = make(map[TaskID]struct{})
}

// IsComplete reports whether every registered task is completed.
func (g *Graph) IsComplete() bool {
	return len(g.completed) == len(g.tasks)
}

// TopologicalOrder returns a total order over every registered task,
// consistent with deps (a prereq always precedes its dependents), stable
// across calls given identical registration order. It returns ErrCycle if
// a cycle is encountered, which should never happen if AddDependency's
// invariants held.
func (g *Graph) TopologicalOrder() ([]TaskID, error) {
	const (
		white = iota
		grey
		black
	)
	color := make(map[TaskID]int, len(g.tasks))
	order := make([]TaskID, 0, len(g.tasks))

	var visit func(TaskID) error
	visit = func(x TaskID) error {
		switch color[x] {
		case black:
			return nil
		case grey:
			return fmt.Errorf("topological order at %q: %w", x, ErrCycle)
		}
		color[x] = grey
		for _, p := range g.deps[x] {
			if err := visit(p); err != nil {
				return err
			}
		}
		color[x] = black
		order = append(order, x)
		return nil
	}

	for _, id := range g.order {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// GetTask returns the registered task record for id.
func (g *Graph) GetTask(id TaskID) (*Task, error) {
	t, exists := g.tasks[id]
	if !exists {
		return nil, fmt.Errorf("get task %q: %w", id, ErrUnknownTask)
	}
	return t, nil
}

// Deps returns the ordered, deduplicated prerequisite ids of id.
func (g *Graph) Deps(id TaskID) ([]TaskID, error) {
	if _, exists := g.tasks[id]; !exists {
		return nil, fmt.Errorf("deps of %q: %w", id, ErrUnknownTask)
	}
	return append([]TaskID(nil), g.deps[id]...), nil
}

// Rdeps returns the ordered, deduplicated dependent ids of id.
func (g *Graph) Rdeps(id TaskID) ([]TaskID, error) {
	if _, exists := g.tasks[id]; !exists {
		return nil, fmt.Errorf("rdeps of %q: %w", id, ErrUnknownTask)
	}
	return append([]TaskID(nil), g.rdeps[id]...), nil
}

// AllTasks returns every registered task in registration order.
func (g *Graph) AllTasks() []*Task {
	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// IsCompleted reports whether id has been marked completed.
func (g *Graph) IsCompleted(id TaskID) bool {
	_, done := g.completed[id]
	return done
}

// Completed returns every completed task id, in registration order.
func (g *Graph) Completed() []TaskID {
	out := make([]TaskID, 0, len(g.completed))
	for _, id := range g.order {
		if _, done := g.completed[id]; done {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of registered tasks.
func (g *Graph) Len() int {
	return len(g.tasks)
}
