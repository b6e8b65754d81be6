package main

import (
	"time"

	"github.com/samborba/taskflow/config"
	"github.com/samborba/taskflow/internal/graph"
)

// builtinHandlers returns the small set of generic task handlers the
// sidecar ships with, keyed by the name a graph configuration's
// task.handler field names. They exist to make the binary runnable out of
// the box; production deployments register their own handler set instead
// of relying on these.
func builtinHandlers() config.HandlerSet {
	return config.HandlerSet{
		"noop": func(h *graph.Handle) (any, error) {
			return nil, nil
		},
		"log": func(h *graph.Handle) (any, error) {
			return string(h.ID), nil
		},
		"sleep": func(h *graph.Handle) (any, error) {
			const d = 100 * time.Millisecond
			select {
			case <-time.After(d):
			case <-h.Ctx.Done():
				return nil, h.Ctx.Err()
			}
			return d.String(), nil
		},
	}
}
