// Package audit provides structured logging for engine lifecycle events.
package audit

import (
	"log"

	"github.com/samborba/taskflow/internal/adaptive"
	"github.com/samborba/taskflow/internal/orchestration"
)

// Log writes an audit line with an [AUDIT] prefix. Format should use
// key=value pairs for structured logging.
func Log(format string, args ...interface{}) {
	log.Printf("[AUDIT] "+format, args...)
}

// SubscribeScheduler writes one audit line per Scheduler lifecycle
// transition: task start/complete/error, pause/resume/stop/reset, and
// concurrency changes. It returns a function that stops the subscription.
func SubscribeScheduler(bus *orchestration.EventBus) (unsubscribe func()) {
	return bus.SubscribeAll(func(e orchestration.Event) {
		switch e.Kind {
		case orchestration.EventTaskStart:
			Log("task_start id=%s", e.TaskID)
		case orchestration.EventTaskComplete:
			Log("task_complete id=%s", e.TaskID)
		case orchestration.EventTaskError:
			Log("task_error id=%s err=%q", e.TaskID, e.Err)
		case orchestration.EventQueueComplete:
			Log("queue_complete completed=%d failed=%d total=%d", e.Stats.Completed, e.Stats.Failed, e.Stats.Total)
		case orchestration.EventQueueStalled:
			Log("queue_stalled completed=%d failed=%d total=%d", e.Stats.Completed, e.Stats.Failed, e.Stats.Total)
		case orchestration.EventPaused:
			Log("paused")
		case orchestration.EventResumed:
			Log("resumed")
		case orchestration.EventStopped:
			Log("stopped")
		case orchestration.EventReset:
			Log("reset")
		case orchestration.EventConcurrencyChanged:
			Log("concurrency_changed n=%d", e.N)
		}
	})
}

// SubscribeController writes one audit line per Controller event:
// concurrency proposals and sampling errors.
func SubscribeController(bus *adaptive.EventBus) (unsubscribe func()) {
	return bus.SubscribeAll(func(e adaptive.Event) {
		switch e.Kind {
		case adaptive.EventConcurrencyUpdate:
			Log("adaptive_concurrency_update n=%d cpu=%.1f mem=%.1f", e.N, e.Metrics.CPUUsage, e.Metrics.MemoryUsage)
		case adaptive.EventError:
			Log("adaptive_sample_error err=%q", e.Err)
		}
	})
}
