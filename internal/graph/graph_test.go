package graph

import (
	"errors"
	"testing"
)

func noop(h *Handle) (any, error) { return nil, nil }

func TestAddTask_Duplicate(t *testing.T) {
	g := New()
	if _, err := g.AddTask("a", noop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.AddTask("a", noop); !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}
	if g.Len() != 1 {
		t.Fatalf("expected 1 task after rejected duplicate, got %d", g.Len())
	}
}

func TestAddDependency_UnknownTask(t *testing.T) {
	g := New()
	g.AddTask("a", noop)
	if err := g.AddDependency("a", "ghost"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	deps, _ := g.Deps("a")
	if len(deps) != 0 {
		t.Fatalf("graph mutated after failed AddDependency: deps=%v", deps)
	}
}

func TestAddDependency_SelfCycle(t *testing.T) {
	g := New()
	g.AddTask("a", noop)
	if err := g.AddDependency("a", "a"); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle for self-dependency, got %v", err)
	}
}

func TestAddDependency_Idempotent(t *testing.T) {
	g := New()
	g.AddTask("a", noop)
	g.AddTask("b", noop)
	if err := g.AddDependency("b", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddDependency("b", "a"); err != nil {
		t.Fatalf("second AddDependency should be a no-op, got error: %v", err)
	}
	deps, _ := g.Deps("b")
	if len(deps) != 1 {
		t.Fatalf("expected deps(b) to hold one entry after duplicate add, got %v", deps)
	}
	rdeps, _ := g.Rdeps("a")
	if len(rdeps) != 1 {
		t.Fatalf("expected rdeps(a) to hold one entry after duplicate add, got %v", rdeps)
	}
}

// Cycle rejection: a,b,c with deps(b)={a}, deps(c)={b}; AddDependency(a,c) must fail
// and leave the graph untouched.
func TestAddDependency_IndirectCycleRejected(t *testing.T) {
	g := New()
	g.AddTask("a", noop)
	g.AddTask("b", noop)
	g.AddTask("c", noop)
	mustAddDep(t, g, "b", "a")
	mustAddDep(t, g, "c", "b")

	if err := g.AddDependency("a", "c"); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}

	deps, _ := g.Deps("a")
	if len(deps) != 0 {
		t.Fatalf("expected deps(a) to remain empty, got %v", deps)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sameOrder(order, []TaskID{"a", "b", "c"}) {
		t.Fatalf("expected topological order [a b c], got %v", order)
	}
}

func TestReadyTasks_Diamond(t *testing.T) {
	g := New()
	for _, id := range []TaskID{"a", "b", "c", "d"} {
		g.AddTask(id, noop)
	}
	mustAddDep(t, g, "b", "a")
	mustAddDep(t, g, "c", "a")
	mustAddDep(t, g, "d", "b", "c")

	if !sameOrder(g.ReadyTasks(), []TaskID{"a"}) {
		t.Fatalf("expected only a ready, got %v", g.ReadyTasks())
	}

	mustComplete(t, g, "a")
	if !sameOrder(g.ReadyTasks(), []TaskID{"b", "c"}) {
		t.Fatalf("expected b,c ready, got %v", g.ReadyTasks())
	}

	mustComplete(t, g, "b")
	mustComplete(t, g, "c")
	if !sameOrder(g.ReadyTasks(), []TaskID{"d"}) {
		t.Fatalf("expected d ready, got %v", g.ReadyTasks())
	}

	mustComplete(t, g, "d")
	if !g.IsComplete() {
		t.Fatal("expected graph complete")
	}
}

func TestMarkCompleted_UnknownAndIdempotent(t *testing.T) {
	g := New()
	g.AddTask("a", noop)
	if err := g.MarkCompleted("ghost"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	mustComplete(t, g, "a")
	mustComplete(t, g, "a") // idempotent
	if !g.IsComplete() {
		t.Fatal("expected graph complete")
	}
}

func TestReset_RestoresReadySet(t *testing.T) {
	g := New()
	g.AddTask("a", noop)
	g.AddTask("b", noop)
	mustAddDep(t, g, "b", "a")
	mustComplete(t, g, "a")
	mustComplete(t, g, "b")

	g.Reset()
	if g.IsComplete() {
		t.Fatal("expected graph incomplete after reset")
	}
	if !sameOrder(g.ReadyTasks(), []TaskID{"a"}) {
		t.Fatalf("expected only a ready after reset, got %v", g.ReadyTasks())
	}
	deps, _ := g.Deps("b")
	if len(deps) != 1 {
		t.Fatal("reset must not clear edges")
	}
}

func TestTopologicalOrder_RespectsEdges(t *testing.T) {
	g := New()
	for _, id := range []TaskID{"a", "b", "c", "d"} {
		g.AddTask(id, noop)
	}
	mustAddDep(t, g, "b", "a")
	mustAddDep(t, g, "c", "a")
	mustAddDep(t, g, "d", "b", "c")

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := make(map[TaskID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["a"] >= pos["b"] || pos["a"] >= pos["c"] || pos["b"] >= pos["d"] || pos["c"] >= pos["d"] {
		t.Fatalf("topological order violates edges: %v", order)
	}
}

func mustAddDep(t *testing.T, g *Graph, id TaskID, prereqs ...TaskID) {
	t.Helper()
	if err := g.AddDependency(id, prereqs...); err != nil {
		t.Fatalf("AddDependency(%s, %v): %v", id, prereqs, err)
	}
}

func mustComplete(t *testing.T, g *Graph, id TaskID) {
	t.Helper()
	if err := g.MarkCompleted(id); err != nil {
		t.Fatalf("MarkCompleted(%s): %v", id, err)
	}
}

func sameOrder(got, want []TaskID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
