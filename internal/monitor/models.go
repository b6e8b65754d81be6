package monitor

import (
	"time"

	"github.com/samborba/taskflow/internal/graph"
	"github.com/samborba/taskflow/internal/orchestration"
)

// statsView is the JSON shape returned by GET /stats.
type statsView struct {
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	Total       int    `json:"total"`
	Running     int    `json:"running"`
	Queued      int    `json:"queued"`
	Concurrency int    `json:"concurrency"`
	Processing  bool   `json:"processing"`
	Paused      bool   `json:"paused"`
	StartedAt   string `json:"startedAt,omitempty"`
	EndedAt     string `json:"endedAt,omitempty"`
	DurationMs  int64  `json:"durationMs"`
}

func newStatsView(s orchestration.Stats) statsView {
	v := statsView{
		Completed:   s.Completed,
		Failed:      s.Failed,
		Total:       s.Total,
		Running:     s.Running,
		Queued:      s.Queued,
		Concurrency: s.Concurrency,
		Processing:  s.Processing,
		Paused:      s.Paused,
		DurationMs:  s.Duration().Milliseconds(),
	}
	if !s.StartedAt.IsZero() {
		v.StartedAt = s.StartedAt.Format(time.RFC3339Nano)
	}
	if !s.EndedAt.IsZero() {
		v.EndedAt = s.EndedAt.Format(time.RFC3339Nano)
	}
	return v
}

// taskView is the per-task JSON shape returned by GET /tasks.
type taskView struct {
	ID        string   `json:"id"`
	Deps      []string `json:"deps"`
	Rdeps     []string `json:"rdeps"`
	Completed bool     `json:"completed"`
}

func newTaskViews(g *graph.Graph) []taskView {
	tasks := g.AllTasks()
	out := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		deps, _ := g.Deps(task.ID)
		rdeps, _ := g.Rdeps(task.ID)
		out = append(out, taskView{
			ID:        string(task.ID),
			Deps:      idStrings(deps),
			Rdeps:     idStrings(rdeps),
			Completed: g.IsCompleted(task.ID),
		})
	}
	return out
}

func idStrings(ids []graph.TaskID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// eventFrame is the JSON shape pushed over the /events WebSocket for
// every Scheduler or Controller event, in emission order.
type eventFrame struct {
	Kind    string       `json:"kind"`
	TaskID  string       `json:"taskId,omitempty"`
	Error   string       `json:"error,omitempty"`
	N       int          `json:"n,omitempty"`
	Stats   *statsView   `json:"stats,omitempty"`
	Metrics *metricsView `json:"metrics,omitempty"`
}

// metricsView is the JSON shape of an adaptive.Controller "metrics" event.
type metricsView struct {
	Timestamp           string  `json:"timestamp"`
	CPUUsage            float64 `json:"cpuUsage"`
	MemoryUsage         float64 `json:"memoryUsage"`
	NewConcurrency      int     `json:"newConcurrency"`
	PreviousConcurrency int     `json:"previousConcurrency"`
}
