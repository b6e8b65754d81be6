package monitor

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/samborba/taskflow/internal/adaptive"
	"github.com/samborba/taskflow/internal/orchestration"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingEvery  = (wsPongWait * 9) / 10
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleEvents upgrades to a WebSocket and pushes every Scheduler and
// (when an adaptive.Controller is attached via SetController) Controller
// event as a JSON frame, in emission order per source, for the lifetime
// of the connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	send := make(chan eventFrame, wsSendBuffer)
	unsubscribe := s.subscribe(send)
	defer unsubscribe()

	done := make(chan struct{})
	go s.readLoop(conn, done)

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop drains inbound frames (none are expected) so pong control
// messages are processed, and signals done when the client disconnects.
func (s *Server) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// subscribe registers send on the scheduler's event bus and, if one is
// attached, the adaptive.Controller's, and returns a function that
// unsubscribes from both. send is never closed here: a publish already in
// flight when unsubscribe runs may still hold the handler and attempt a
// send after this function returns, so closing the channel would risk a
// send on a closed channel. handleEvents abandons the channel instead and
// lets it be collected once the connection's goroutines exit.
func (s *Server) subscribe(send chan eventFrame) func() {
	safeSend := func(f eventFrame) {
		select {
		case send <- f:
		default:
			log.Printf("monitor: dropping event frame, subscriber too slow: %s", f.Kind)
		}
	}

	sched, _ := s.current()
	unsubScheduler := sched.Events().SubscribeAll(func(e orchestration.Event) {
		frame := eventFrame{Kind: string(e.Kind), TaskID: string(e.TaskID), N: e.N}
		if e.Err != nil {
			frame.Error = e.Err.Error()
		}
		if e.Kind == orchestration.EventQueueComplete || e.Kind == orchestration.EventQueueStalled || e.Kind == orchestration.EventStopped {
			v := newStatsView(e.Stats)
			frame.Stats = &v
		}
		safeSend(frame)
	})

	unsubController := func() {}
	if controller := s.currentController(); controller != nil {
		unsubController = controller.Events().SubscribeAll(func(e adaptive.Event) {
			frame := eventFrame{Kind: string(e.Kind), N: e.N}
			if e.Err != nil {
				frame.Error = e.Err.Error()
			}
			if e.Kind == adaptive.EventMetrics {
				frame.Metrics = &metricsView{
					Timestamp:           e.Metrics.Timestamp.Format(time.RFC3339Nano),
					CPUUsage:            e.Metrics.CPUUsage,
					MemoryUsage:         e.Metrics.MemoryUsage,
					NewConcurrency:      e.Metrics.NewConcurrency,
					PreviousConcurrency: e.Metrics.PreviousConcurrency,
				}
			}
			safeSend(frame)
		})
	}

	return func() {
		unsubScheduler()
		unsubController()
	}
}
