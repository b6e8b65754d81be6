// Package orchestration implements the bounded-concurrency scheduler that
// drives a graph.Graph to completion. All coordination state — the
// running set, the ready queue, the counters, the mode flags — is owned
// by a single goroutine so no mutex needs to be held across the
// suspension point of launching or awaiting a task. Workers never touch
// this state directly; they report back over a channel when a task
// settles.
package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/samborba/taskflow/internal/graph"
)

// Stats is an immutable snapshot of the scheduler's counters and mode.
type Stats struct {
	Completed   int
	Failed      int
	Total       int
	Running     int
	Queued      int
	Concurrency int
	Processing  bool
	Paused      bool
	StartedAt   time.Time
	EndedAt     time.Time
}

// Duration reports elapsed time since StartedAt, using EndedAt if the run
// has finished or time.Now otherwise. It is zero if the scheduler has
// never been started.
func (s Stats) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.EndedAt.IsZero() {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdPause
	cmdResume
	cmdStop
	cmdReset
	cmdSetConcurrency
	cmdStats
)

type command struct {
	kind           cmdKind
	n              int
	waitForRunning bool
	reply          chan cmdReply
}

type cmdReply struct {
	stats Stats
	err   error
}

type settled struct {
	id     graph.TaskID
	result any
	err    error
}

// Scheduler drives a borrowed *graph.Graph to completion under a bounded,
// runtime-adjustable worker pool. It never mutates the graph's deps/rdeps,
// only its completed set (via MarkCompleted). Construct with New and
// drive it with Start/Pause/Resume/Stop/Reset/SetConcurrency; subscribe
// to lifecycle events via Events().
type Scheduler struct {
	g   *graph.Graph
	bus *EventBus

	cmds    chan command
	settled chan settled
}

// New creates a Scheduler for g with the given initial concurrency bound.
// concurrency must be positive; non-positive values are clamped to 1. The
// coordination loop starts immediately but dispatches nothing until
// Start is called.
func New(g *graph.Graph, concurrency int) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	s := &Scheduler{
		g:       g,
		bus:     NewEventBus(),
		cmds:    make(chan command),
		settled: make(chan settled),
	}
	go s.run(concurrency)
	return s
}

// Events returns the bus lifecycle events are published on.
func (s *Scheduler) Events() *EventBus {
	return s.bus
}

// Start begins processing. A second call while already processing is a
// no-op. Returns the Scheduler for chaining.
func (s *Scheduler) Start() *Scheduler {
	s.send(command{kind: cmdStart})
	return s
}

// Pause inhibits new dispatches; tasks already running continue.
func (s *Scheduler) Pause() {
	s.send(command{kind: cmdPause})
}

// Resume clears Pause and resumes dispatch. If the scheduler was never
// started (or was Reset), Resume behaves like Start.
func (s *Scheduler) Resume() {
	s.send(command{kind: cmdResume})
}

// Stop halts further dispatch and drops the pending ready queue. If
// waitForRunning, Stop blocks until every in-flight task has settled.
func (s *Scheduler) Stop(waitForRunning bool) {
	s.send(command{kind: cmdStop, waitForRunning: waitForRunning})
}

// Reset stops without waiting, resets the underlying graph's completed
// set, and zeroes counters, timestamps, the running set, and the ready
// queue. The graph's tasks and edges are untouched, so the Scheduler can
// be driven through another run with Start.
func (s *Scheduler) Reset() {
	s.send(command{kind: cmdReset})
}

// SetConcurrency updates the worker pool bound. n must be positive.
// Widening takes effect immediately (additional dispatches are attempted
// without preempting running tasks); narrowing only prevents new
// dispatches, it never stops in-flight work.
func (s *Scheduler) SetConcurrency(n int) error {
	if n <= 0 {
		return fmt.Errorf("set concurrency to %d: %w", n, ErrValidation)
	}
	reply := s.send(command{kind: cmdSetConcurrency, n: n})
	return reply.err
}

// Stats returns a snapshot of the current counters, running/queued sizes,
// concurrency bound, and mode flags.
func (s *Scheduler) Stats() Stats {
	return s.send(command{kind: cmdStats}).stats
}

func (s *Scheduler) send(c command) cmdReply {
	c.reply = make(chan cmdReply, 1)
	s.cmds <- c
	return <-c.reply
}

// run is the coordination loop. It is the only goroutine that reads or
// writes running, queue, counters, and mode flags.
func (s *Scheduler) run(concurrency int) {
	running := make(map[graph.TaskID]bool)
	failedIDs := make(map[graph.TaskID]bool)
	queue := newReadyQueue()

	concurrencyBound := concurrency
	processing := false
	paused := false
	completed := 0
	failed := 0
	total := 0
	var startedAt, endedAt time.Time

	queueCompleteEmitted := false
	queueStalledEmitted := false
	var pendingStop chan cmdReply

	snapshot := func() Stats {
		return Stats{
			Completed:   completed,
			Failed:      failed,
			Total:       total,
			Running:     len(running),
			Queued:      queue.len(),
			Concurrency: concurrencyBound,
			Processing:  processing,
			Paused:      paused,
			StartedAt:   startedAt,
			EndedAt:     endedAt,
		}
	}

	refreshReady := func() {
		for _, id := range s.g.ReadyTasks() {
			// A failed task is never marked completed, so the graph keeps
			// reporting it as ready; it is terminal and must not rerun.
			if running[id] || failedIDs[id] {
				continue
			}
			queue.push(id)
		}
	}

	launch := func(id graph.TaskID) {
		task, err := s.g.GetTask(id)
		if err != nil {
			// Programmer bug: ReadyTasks returned an id the graph doesn't
			// know about. Not recoverable at this layer.
			panic(fmt.Sprintf("orchestration: ready task %s not found in graph: %v", id, err))
		}
		running[id] = true
		s.bus.publish(Event{Kind: EventTaskStart, TaskID: id, Task: task})

		go func() {
			h := &graph.Handle{ID: id, Ctx: context.Background()}
			result, err := task.Fn(h)
			s.settled <- settled{id: id, result: result, err: err}
		}()
	}

	dispatch := func() {
		for processing && !paused && queue.len() > 0 && len(running) < concurrencyBound {
			id, ok := queue.pop()
			if !ok {
				break
			}
			launch(id)
		}
	}

	checkQuiescence := func() {
		if len(running) > 0 || queue.len() > 0 {
			return
		}
		if pendingStop != nil {
			endedAt = time.Now()
			processing = false
			s.bus.publish(Event{Kind: EventStopped, Stats: snapshot()})
			pendingStop <- cmdReply{stats: snapshot()}
			pendingStop = nil
			return
		}
		if !processing {
			return
		}
		if s.g.IsComplete() {
			if !queueCompleteEmitted {
				queueCompleteEmitted = true
				endedAt = time.Now()
				s.bus.publish(Event{Kind: EventQueueComplete, Stats: snapshot()})
			}
			return
		}
		if !queueStalledEmitted {
			queueStalledEmitted = true
			endedAt = time.Now()
			s.bus.publish(Event{Kind: EventQueueStalled, Stats: snapshot()})
		}
	}

	for {
		select {
		case c := <-s.cmds:
			switch c.kind {
			case cmdStart:
				if !processing {
					processing = true
					paused = false
					total = s.g.Len()
					if startedAt.IsZero() {
						startedAt = time.Now()
					}
					queueCompleteEmitted = false
					queueStalledEmitted = false
					refreshReady()
					dispatch()
				}
				c.reply <- cmdReply{stats: snapshot()}

			case cmdPause:
				paused = true
				s.bus.publish(Event{Kind: EventPaused})
				c.reply <- cmdReply{stats: snapshot()}

			case cmdResume:
				wasProcessing := processing
				paused = false
				if !wasProcessing {
					processing = true
					total = s.g.Len()
					if startedAt.IsZero() {
						startedAt = time.Now()
					}
					queueCompleteEmitted = false
					queueStalledEmitted = false
					refreshReady()
				}
				s.bus.publish(Event{Kind: EventResumed})
				dispatch()
				c.reply <- cmdReply{stats: snapshot()}

			case cmdStop:
				processing = false
				queue.clear()
				if c.waitForRunning && len(running) > 0 {
					pendingStop = c.reply
					continue
				}
				endedAt = time.Now()
				s.bus.publish(Event{Kind: EventStopped, Stats: snapshot()})
				c.reply <- cmdReply{stats: snapshot()}

			case cmdReset:
				if pendingStop != nil {
					// A Stop(waitForRunning=true) is still parked waiting
					// for in-flight tasks to settle; wake it rather than
					// leaving it blocked forever, since running is about
					// to be cleared out from under it.
					pendingStop <- cmdReply{err: ErrReset}
					pendingStop = nil
				}
				processing = false
				paused = false
				queue.clear()
				running = make(map[graph.TaskID]bool)
				failedIDs = make(map[graph.TaskID]bool)
				s.g.Reset()
				completed, failed, total = 0, 0, 0
				startedAt, endedAt = time.Time{}, time.Time{}
				queueCompleteEmitted, queueStalledEmitted = false, false
				s.bus.publish(Event{Kind: EventReset})
				c.reply <- cmdReply{stats: snapshot()}

			case cmdSetConcurrency:
				concurrencyBound = c.n
				s.bus.publish(Event{Kind: EventConcurrencyChanged, N: c.n})
				dispatch()
				c.reply <- cmdReply{stats: snapshot()}

			case cmdStats:
				c.reply <- cmdReply{stats: snapshot()}
			}

		case ev := <-s.settled:
			if !running[ev.id] {
				// Stray settle from a task left over from before a Reset;
				// the scheduler no longer honors it. (Stop keeps the
				// running set, so a task still in flight at Stop is
				// tallied when it settles, but nothing new is dispatched.)
				continue
			}
			delete(running, ev.id)
			task, _ := s.g.GetTask(ev.id)

			if ev.err != nil {
				failed++
				failedIDs[ev.id] = true
				s.bus.publish(Event{Kind: EventTaskError, TaskID: ev.id, Task: task, Err: ev.err})
			} else {
				if err := s.g.MarkCompleted(ev.id); err != nil {
					panic(fmt.Sprintf("orchestration: mark completed %s: %v", ev.id, err))
				}
				completed++
				s.bus.publish(Event{Kind: EventTaskComplete, TaskID: ev.id, Task: task, Result: ev.result})
			}

			refreshReady()
			dispatch()
			checkQuiescence()
		}
	}
}
