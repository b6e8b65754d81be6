package config

import (
	"testing"

	"github.com/samborba/taskflow/internal/graph"
)

func TestGraphConfig_Build(t *testing.T) {
	noop := func(h *graph.Handle) (any, error) { return nil, nil }
	gc := GraphConfig{Tasks: []TaskConfig{
		{ID: "a", Handler: "noop"},
		{ID: "b", Handler: "noop", DependsOn: []string{"a"}},
	}}

	g, err := gc.Build(HandlerSet{"noop": noop})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 tasks, got %d", g.Len())
	}
	ready := g.ReadyTasks()
	if len(ready) != 1 || ready[0] != "a" {
		t.Fatalf("expected only a ready, got %v", ready)
	}
}

func TestGraphConfig_Build_UnknownHandler(t *testing.T) {
	gc := GraphConfig{Tasks: []TaskConfig{{ID: "a", Handler: "missing"}}}
	if _, err := gc.Build(HandlerSet{}); err == nil {
		t.Fatal("expected error for unresolved handler")
	}
}
