// Package config provides declarative task graph configuration loading and
// validation: a JSON document describing a graph's tasks and dependency
// edges, plus the run policy (starting concurrency and optional adaptive
// bounds) to drive it with.
package config

// Config is the root configuration document.
type Config struct {
	Graph GraphConfig `json:"graph"`
	Run   RunConfig   `json:"run"`
}

// GraphConfig describes a task graph declaratively: each task names a
// handler to look up in the caller's handler registry and the ids of the
// tasks it depends on. It carries no Go closures itself — resolving
// Handler to an actual graph.TaskFn is the loader's caller's job.
type GraphConfig struct {
	Name  string       `json:"name,omitempty"`
	Tasks []TaskConfig `json:"tasks"`
}

// TaskConfig describes a single node in the graph.
type TaskConfig struct {
	ID        string            `json:"id"`
	Handler   string            `json:"handler"`
	DependsOn []string          `json:"depends_on,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RunConfig is the scheduler's run policy.
type RunConfig struct {
	Concurrency int             `json:"concurrency"`
	Adaptive    *AdaptiveConfig `json:"adaptive,omitempty"`
}

// AdaptiveConfig describes adaptive controller bounds. The Validator checks
// them, but nothing in this repository applies them: the sidecar attaches
// a controller only when started with -adaptive, and then with the
// controller's default options, whether Adaptive is nil or not.
type AdaptiveConfig struct {
	MinConcurrency       int     `json:"min_concurrency"`
	MaxConcurrency       int     `json:"max_concurrency"`
	TargetCPUUtilization float64 `json:"target_cpu_utilization,omitempty"`
	TargetMemUtilization float64 `json:"target_mem_utilization,omitempty"`
	CheckIntervalSeconds int     `json:"check_interval_seconds,omitempty"`
	AdjustmentStep       int     `json:"adjustment_step,omitempty"`
	HistorySize          int     `json:"history_size,omitempty"`
}

const defaultConcurrency = 4

func (c *Config) applyDefaults() {
	if c.Run.Concurrency == 0 {
		c.Run.Concurrency = defaultConcurrency
	}
}
