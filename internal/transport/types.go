// Package transport defines the shapes distribution adapters share: a
// task payload submitted over a transport, the reply it produces, and the
// handler registry both the message-broker and RPC adapters dispatch
// into. Neither adapter touches a graph.Graph or orchestration.Scheduler
// directly — they wrap user-defined handlers.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Payload is a task submitted over a transport.
type Payload struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Payload  json.RawMessage   `json:"payload"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result is the reply an adapter sends back for a submitted Payload.
// Exactly one of Result or Error is populated when Success is false/true.
type Result struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// TaskHandler executes a submitted Payload and produces a result to
// marshal back into a Result, or an error.
type TaskHandler func(ctx context.Context, p Payload) (any, error)

// ErrUnknownType is returned when no handler is registered for a
// Payload's Type.
var ErrUnknownType = fmt.Errorf("no handler registered for payload type")

// Registry maps a payload Type to the TaskHandler that executes it. Both
// the broker and RPC adapters dispatch through the same Registry shape.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]TaskHandler)}
}

// Register associates typ with handler, replacing any prior registration.
func (r *Registry) Register(typ string, handler TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typ] = handler
}

// Dispatch runs the handler registered for p.Type and builds a Result
// from its outcome. It never panics out: a handler panic is recovered and
// reported as a failed Result, since a single malformed task must not
// take down the adapter's consume loop.
func (r *Registry) Dispatch(ctx context.Context, p Payload) Result {
	r.mu.RLock()
	handler, ok := r.handlers[p.Type]
	r.mu.RUnlock()
	if !ok {
		return Result{ID: p.ID, Success: false, Error: fmt.Sprintf("%s: %q", ErrUnknownType, p.Type)}
	}

	out, err := r.runHandler(ctx, handler, p)
	if err != nil {
		return Result{ID: p.ID, Success: false, Error: err.Error()}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return Result{ID: p.ID, Success: false, Error: fmt.Sprintf("marshal result: %v", err)}
	}
	return Result{ID: p.ID, Success: true, Result: data}
}

func (r *Registry) runHandler(ctx context.Context, handler TaskHandler, p Payload) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler for %q panicked: %v", p.Type, rec)
		}
	}()
	return handler(ctx, p)
}
