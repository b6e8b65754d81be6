package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/samborba/taskflow/internal/adaptive"
	"github.com/samborba/taskflow/config"
	"github.com/samborba/taskflow/internal/graph"
	"github.com/samborba/taskflow/internal/orchestration"
)

func newTestMonitor(t *testing.T) (*Server, *httptest.Server, *orchestration.Scheduler) {
	t.Helper()
	g := graph.New()
	release := make(chan struct{})
	g.AddTask("a", func(h *graph.Handle) (any, error) {
		<-release
		return nil, nil
	})
	sched := orchestration.New(g, 1)
	t.Cleanup(func() { close(release) })

	srv := New("127.0.0.1:0", sched, g)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return srv, ts, sched
}

// Monitor control surface: pause, then stats reflects paused=true, then
// a concurrency change is visible in the next stats read.
func TestMonitor_ControlSurface(t *testing.T) {
	_, ts, sched := newTestMonitor(t)
	sched.Start()

	resp, err := http.Post(ts.URL+"/control/pause", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /control/pause: %v", err)
	}
	resp.Body.Close()

	var stats statsView
	getJSON(t, ts.URL+"/stats", &stats)
	if !stats.Paused {
		t.Fatalf("expected paused=true after /control/pause, got %+v", stats)
	}

	body, _ := json.Marshal(map[string]int{"n": 8})
	resp, err = http.Post(ts.URL+"/control/concurrency", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /control/concurrency: %v", err)
	}
	resp.Body.Close()

	getJSON(t, ts.URL+"/stats", &stats)
	if stats.Concurrency != 8 {
		t.Fatalf("expected concurrency=8 after control call, got %+v", stats)
	}
}

func TestMonitor_Tasks(t *testing.T) {
	_, ts, _ := newTestMonitor(t)

	var tasks []taskView
	getJSON(t, ts.URL+"/tasks", &tasks)
	if len(tasks) != 1 || tasks[0].ID != "a" {
		t.Fatalf("unexpected tasks payload: %+v", tasks)
	}
}

func TestMonitor_ConcurrencyRejectsNonPositive(t *testing.T) {
	_, ts, _ := newTestMonitor(t)

	body, _ := json.Marshal(map[string]int{"n": 0})
	resp, err := http.Post(ts.URL+"/control/concurrency", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /control/concurrency: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for n=0, got %d", resp.StatusCode)
	}
}

func TestMonitor_SubmitGraphReplacesScheduler(t *testing.T) {
	srv, ts, _ := newTestMonitor(t)
	srv.SetHandlers(config.HandlerSet{
		"noop": func(h *graph.Handle) (any, error) { return nil, nil },
	})

	body, _ := json.Marshal(config.Config{
		Graph: config.GraphConfig{Tasks: []config.TaskConfig{
			{ID: "x", Handler: "noop"},
			{ID: "y", Handler: "noop", DependsOn: []string{"x"}},
		}},
		Run: config.RunConfig{Concurrency: 2},
	})
	resp, err := http.Post(ts.URL+"/graph", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /graph: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var tasks []taskView
	getJSON(t, ts.URL+"/tasks", &tasks)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks after graph replacement, got %+v", tasks)
	}

	resp, err = http.Post(ts.URL+"/control/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /control/start: %v", err)
	}
	resp.Body.Close()
}

func TestMonitor_SubmitGraphWithoutHandlersFails(t *testing.T) {
	_, ts, _ := newTestMonitor(t)

	body, _ := json.Marshal(config.Config{
		Graph: config.GraphConfig{Tasks: []config.TaskConfig{{ID: "x", Handler: "noop"}}},
		Run:   config.RunConfig{Concurrency: 1},
	})
	resp, err := http.Post(ts.URL+"/graph", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /graph: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 with no handlers registered, got %d", resp.StatusCode)
	}
}

type constSampler struct{ cpu, mem float64 }

func (s constSampler) Sample() (float64, float64, error) { return s.cpu, s.mem, nil }

// GET /events must stream both Scheduler events and, once a Controller is
// attached via SetController, Controller events, in the order each source
// emits them.
func TestMonitor_EventsStreamsSchedulerAndControllerEvents(t *testing.T) {
	srv, ts, sched := newTestMonitor(t)

	controller := adaptive.New(constSampler{cpu: 95, mem: 10}, adaptive.Options{
		MinConcurrency: 1,
		MaxConcurrency: 4,
		CheckInterval:  5 * time.Millisecond,
		AdjustmentStep: 1,
	})
	defer controller.Stop()
	srv.SetController(controller)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", wsURL, err)
	}
	defer conn.Close()

	sched.Start()
	controller.Start()

	var sawTaskStart, sawConcurrencyUpdate bool
	deadline := time.Now().Add(2 * time.Second)
	for (!sawTaskStart || !sawConcurrencyUpdate) && time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame eventFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("reading event frame: %v", err)
		}
		switch frame.Kind {
		case string(orchestration.EventTaskStart):
			sawTaskStart = true
		case string(adaptive.EventConcurrencyUpdate):
			sawConcurrencyUpdate = true
		}
	}
	if !sawTaskStart {
		t.Fatal("never observed a Scheduler task-start frame over /events")
	}
	if !sawConcurrencyUpdate {
		t.Fatal("never observed a Controller concurrency-update frame over /events")
	}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
