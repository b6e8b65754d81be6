package config

import (
	"fmt"

	"github.com/samborba/taskflow/internal/graph"
)

// HandlerSet resolves a task's configured handler name to the function
// that executes it.
type HandlerSet map[string]graph.TaskFn

// Build constructs a graph.Graph from g, resolving each task's Handler
// name against handlers. Tasks are added before dependencies, so a
// forward reference to a task declared later in the list still resolves.
func (g GraphConfig) Build(handlers HandlerSet) (*graph.Graph, error) {
	gr := graph.New()

	for _, task := range g.Tasks {
		fn, ok := handlers[task.Handler]
		if !ok {
			return nil, fmt.Errorf("task.id=%s: no handler registered for %q", task.ID, task.Handler)
		}
		if _, err := gr.AddTask(graph.TaskID(task.ID), fn, graph.TaskOptions{Metadata: task.Metadata}); err != nil {
			return nil, fmt.Errorf("task.id=%s: %w", task.ID, err)
		}
	}

	for _, task := range g.Tasks {
		if len(task.DependsOn) == 0 {
			continue
		}
		deps := make([]graph.TaskID, len(task.DependsOn))
		for i, d := range task.DependsOn {
			deps[i] = graph.TaskID(d)
		}
		if err := gr.AddDependency(graph.TaskID(task.ID), deps...); err != nil {
			return nil, fmt.Errorf("task.id=%s: %w", task.ID, err)
		}
	}

	return gr, nil
}
