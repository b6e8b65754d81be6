package config

import "fmt"

// Validator validates task graph configurations.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs comprehensive validation of a Config.
// Returns nil if valid, or an error describing the first validation failure.
func (v *Validator) Validate(cfg *Config) error {
	if cfg == nil {
		return ErrConfigEmpty
	}

	if len(cfg.Graph.Tasks) == 0 {
		return ErrNoTasks
	}

	taskIDs := make(map[string]bool)
	for i, task := range cfg.Graph.Tasks {
		if task.ID == "" {
			return fmt.Errorf("task[%d]: %w", i, ErrTaskIDEmpty)
		}
		if taskIDs[task.ID] {
			return fmt.Errorf("task.id=%s: %w", task.ID, ErrTaskIDDuplicate)
		}
		taskIDs[task.ID] = true

		if task.Handler == "" {
			return fmt.Errorf("task[%d] id=%s: %w", i, task.ID, ErrTaskHandlerEmpty)
		}
	}

	for _, task := range cfg.Graph.Tasks {
		for _, depID := range task.DependsOn {
			if !taskIDs[depID] {
				return fmt.Errorf("task.id=%s depends_on=%s: %w", task.ID, depID, ErrDependencyNotFound)
			}
		}
	}

	if err := v.detectCycle(cfg.Graph.Tasks); err != nil {
		return err
	}

	if cfg.Run.Concurrency < 0 {
		return ErrConcurrencyInvalid
	}

	if cfg.Run.Adaptive != nil {
		a := cfg.Run.Adaptive
		if a.MinConcurrency <= 0 || a.MaxConcurrency <= 0 || a.MaxConcurrency < a.MinConcurrency {
			return ErrAdaptiveBoundsInvalid
		}
	}

	return nil
}

// detectCycle uses DFS with color marking to detect cycles in task
// dependencies. Colors: 0=white (unvisited), 1=gray (visiting), 2=black
// (visited). This mirrors the graph package's own cycle rejection but runs
// over the declarative config before any graph.Graph exists, so a bad
// config is rejected at load time rather than surfacing as a failed
// AddDependency call deep inside the caller's wiring code.
func (v *Validator) detectCycle(tasks []TaskConfig) error {
	adjacency := make(map[string][]string, len(tasks))
	for _, task := range tasks {
		if _, exists := adjacency[task.ID]; !exists {
			adjacency[task.ID] = []string{}
		}
	}
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			adjacency[depID] = append(adjacency[depID], task.ID)
		}
	}

	colors := make(map[string]int, len(tasks))
	for _, task := range tasks {
		colors[task.ID] = 0
	}

	for _, task := range tasks {
		if colors[task.ID] == 0 {
			if v.hasCycle(task.ID, colors, adjacency) {
				return fmt.Errorf("starting from task.id=%s: %w", task.ID, ErrCycleDetected)
			}
		}
	}

	return nil
}

func (v *Validator) hasCycle(node string, colors map[string]int, adj map[string][]string) bool {
	colors[node] = 1

	for _, next := range adj[node] {
		if colors[next] == 1 {
			return true
		}
		if colors[next] == 0 {
			if v.hasCycle(next, colors, adj) {
				return true
			}
		}
	}

	colors[node] = 2
	return false
}
