package graph

import "errors"

// Sentinel errors for task graph mutation and query failures.
var (
	// ErrDuplicateTask is returned by AddTask when id is already registered.
	ErrDuplicateTask = errors.New("task already registered")

	// ErrUnknownTask is returned when an operation references an id that was
	// never registered with AddTask.
	ErrUnknownTask = errors.New("unknown task id")

	// ErrCycle is returned when a mutation would introduce a dependency cycle,
	// or TopologicalOrder encounters one that should have been rejected at
	// mutation time.
	ErrCycle = errors.New("dependency cycle")
)
