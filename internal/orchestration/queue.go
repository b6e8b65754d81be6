package orchestration

import "github.com/samborba/taskflow/internal/graph"

// readyQueue is an ordered, deduplicated FIFO of task ids waiting for a
// worker slot. It is owned exclusively by the scheduler's coordination
// loop; nothing else touches it.
type readyQueue struct {
	ids []graph.TaskID
	in  map[graph.TaskID]bool
}

func newReadyQueue() *readyQueue {
	return &readyQueue{in: make(map[graph.TaskID]bool)}
}

// push appends id if it is not already queued.
func (q *readyQueue) push(id graph.TaskID) {
	if q.in[id] {
		return
	}
	q.ids = append(q.ids, id)
	q.in[id] = true
}

// pop removes and returns the oldest queued id.
func (q *readyQueue) pop() (graph.TaskID, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	delete(q.in, id)
	return id, true
}

func (q *readyQueue) len() int {
	return len(q.ids)
}

// clear drops every queued id without returning them.
func (q *readyQueue) clear() {
	q.ids = nil
	q.in = make(map[graph.TaskID]bool)
}
