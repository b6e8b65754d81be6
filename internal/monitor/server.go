// Package monitor is the HTTP/WebSocket dashboard: an external
// collaborator that wraps a running Scheduler and the Graph it drives,
// without owning either, and exposes their state and control surface as
// JSON plus a live event push.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/samborba/taskflow/internal/adaptive"
	"github.com/samborba/taskflow/config"
	"github.com/samborba/taskflow/internal/graph"
	"github.com/samborba/taskflow/internal/orchestration"
)

// ReplaceHook is called, with the mutex held only long enough to read the
// new pair, whenever POST /graph swaps in a new Scheduler and Graph. A
// caller that wires audit logging or an adaptive.Controller to the
// previous scheduler uses this to re-wire itself to the new one.
type ReplaceHook func(sched *orchestration.Scheduler, g *graph.Graph)

// Server is the Monitor. Its lifetime is bounded by the caller; it holds
// no goroutines of its own beyond the per-connection event-fanout loop
// started by each /events WebSocket client.
//
// Thread-safety: sched, g, and controller may be replaced at any time by
// POST /graph or SetController, so every access goes through current()
// and currentController().
type Server struct {
	mu         sync.RWMutex
	sched      *orchestration.Scheduler
	g          *graph.Graph
	handlers   config.HandlerSet
	onReplace  ReplaceHook
	controller *adaptive.Controller

	httpServer *http.Server
}

// New builds a Monitor listening on addr, wrapping sched and the graph
// it drives.
func New(addr string, sched *orchestration.Scheduler, g *graph.Graph) *Server {
	s := &Server{sched: sched, g: g}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /tasks", s.handleTasks)
	mux.HandleFunc("POST /control/start", s.handleControl(func(sched *orchestration.Scheduler) { sched.Start() }))
	mux.HandleFunc("POST /control/pause", s.handleControl(func(sched *orchestration.Scheduler) { sched.Pause() }))
	mux.HandleFunc("POST /control/resume", s.handleControl(func(sched *orchestration.Scheduler) { sched.Resume() }))
	mux.HandleFunc("POST /control/stop", s.handleControl(func(sched *orchestration.Scheduler) { sched.Stop(true) }))
	mux.HandleFunc("POST /control/reset", s.handleControl(func(sched *orchestration.Scheduler) { sched.Reset() }))
	mux.HandleFunc("POST /control/concurrency", s.handleConcurrency)
	mux.HandleFunc("POST /graph", s.handleSubmitGraph)
	mux.HandleFunc("GET /events", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// SetHandlers registers the handler set POST /graph resolves configured
// task handler names against. Without it, every POST /graph fails.
func (s *Server) SetHandlers(h config.HandlerSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = h
}

// OnGraphReplaced registers hook to run after POST /graph swaps in a new
// Scheduler and Graph.
func (s *Server) OnGraphReplaced(hook ReplaceHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReplace = hook
}

// SetController attaches the adaptive.Controller whose concurrency-update,
// metrics, and error events GET /events merges into the WebSocket fan-out
// alongside the Scheduler's. A nil controller (the default) means /events
// only carries Scheduler events.
func (s *Server) SetController(c *adaptive.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller = c
}

func (s *Server) current() (*orchestration.Scheduler, *graph.Graph) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched, s.g
}

func (s *Server) currentController() *adaptive.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controller
}

// Start blocks serving HTTP until the server is shut down or errors.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sched, _ := s.current()
	writeJSON(w, http.StatusOK, newStatsView(sched.Stats()))
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	_, g := s.current()
	writeJSON(w, http.StatusOK, newTaskViews(g))
}

func (s *Server) handleControl(op func(*orchestration.Scheduler)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, _ := s.current()
		op(sched)
		writeJSON(w, http.StatusOK, newStatsView(sched.Stats()))
	}
}

func (s *Server) handleConcurrency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		N int `json:"n"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body: "+err.Error(), http.StatusBadRequest)
		return
	}
	sched, _ := s.current()
	if err := sched.SetConcurrency(body.N); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, newStatsView(sched.Stats()))
}

// handleSubmitGraph builds a fresh Graph and Scheduler from a posted
// config.Config, stopping whatever the Monitor was previously wrapping.
// This is how the CLI client hands a declarative graph to an already
// running daemon rather than only being able to load one at startup.
func (s *Server) handleSubmitGraph(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "malformed body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := config.NewValidator().Validate(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	handlers := s.handlers
	prevSched := s.sched
	s.mu.Unlock()

	if handlers == nil {
		http.Error(w, "no handlers registered on this daemon", http.StatusConflict)
		return
	}

	newGraph, err := cfg.Graph.Build(handlers)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if prevSched != nil {
		prevSched.Stop(false)
	}
	newSched := orchestration.New(newGraph, cfg.Run.Concurrency)

	s.mu.Lock()
	s.sched = newSched
	s.g = newGraph
	hook := s.onReplace
	s.mu.Unlock()

	if hook != nil {
		hook(newSched, newGraph)
	}

	writeJSON(w, http.StatusOK, newStatsView(newSched.Stats()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
