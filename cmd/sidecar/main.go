// Package main provides the entry point for the taskflow sidecar daemon:
// it loads a graph configuration, builds the Graph and Scheduler, and
// exposes the Monitor's HTTP/WebSocket surface. A running sidecar also
// accepts a graph over POST /graph from a workflow-client, so it can be
// started bare and driven entirely over the network.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samborba/taskflow/internal/adaptive"
	"github.com/samborba/taskflow/internal/audit"
	"github.com/samborba/taskflow/internal/broker"
	"github.com/samborba/taskflow/config"
	"github.com/samborba/taskflow/internal/graph"
	"github.com/samborba/taskflow/internal/monitor"
	"github.com/samborba/taskflow/internal/orchestration"
	"github.com/samborba/taskflow/internal/rpc"
	"github.com/samborba/taskflow/internal/transport"
)

func main() {
	addr := flag.String("addr", ":8080", "Monitor HTTP/WebSocket address")
	configPath := flag.String("config", "", "path to a graph configuration JSON file to load at startup (optional)")
	rpcAddr := flag.String("rpc-addr", "", "address for the RPC distribution adapter (empty disables it)")
	brokerURL := flag.String("broker-url", "", "AMQP URL for the message-broker distribution adapter (empty disables it)")
	adaptiveEnabled := flag.Bool("adaptive", false, "attach an adaptive concurrency controller sampling host CPU/memory")
	flag.Parse()

	log.Printf("taskflow sidecar starting on %s", *addr)

	handlers := builtinHandlers()

	var sched *orchestration.Scheduler
	var g *graph.Graph
	if *configPath != "" {
		cfg, err := config.NewLoader().LoadFromFile(*configPath)
		if err != nil {
			log.Fatalf("loading config %s: %v", *configPath, err)
		}
		g, err = cfg.Graph.Build(handlers)
		if err != nil {
			log.Fatalf("building graph from config: %v", err)
		}
		sched = orchestration.New(g, cfg.Run.Concurrency)
	} else {
		g = graph.New()
		sched = orchestration.New(g, 1)
	}

	mon := monitor.New(*addr, sched, g)
	mon.SetHandlers(handlers)

	var controllerStop func()
	wireController := func(sched *orchestration.Scheduler) func() {
		if !*adaptiveEnabled {
			return func() {}
		}
		controller := adaptive.New(adaptive.NewHostSampler(time.Second), adaptive.Options{})
		unsubAudit := audit.SubscribeController(controller.Events())
		unsubApply := controller.Events().SubscribeAll(func(e adaptive.Event) {
			if e.Kind == adaptive.EventConcurrencyUpdate {
				sched.SetConcurrency(e.N)
			}
		})
		mon.SetController(controller)
		controller.Start()
		return func() {
			controller.Stop()
			unsubAudit()
			unsubApply()
			mon.SetController(nil)
		}
	}

	unsubSchedAudit := audit.SubscribeScheduler(sched.Events())
	controllerStop = wireController(sched)

	mon.OnGraphReplaced(func(newSched *orchestration.Scheduler, newGraph *graph.Graph) {
		unsubSchedAudit()
		controllerStop()
		unsubSchedAudit = audit.SubscribeScheduler(newSched.Events())
		controllerStop = wireController(newSched)
	})

	registry := transport.NewRegistry()
	for name, fn := range handlers {
		fn := fn
		registry.Register(name, func(ctx context.Context, p transport.Payload) (any, error) {
			return fn(&graph.Handle{ID: graph.TaskID(p.ID), Ctx: ctx})
		})
	}

	var rpcServer *rpc.Server
	if *rpcAddr != "" {
		rpcServer = rpc.NewServer(*rpcAddr, registry)
		if err := rpcServer.Start(); err != nil {
			log.Fatalf("starting RPC adapter: %v", err)
		}
		log.Printf("RPC distribution adapter listening on %s", *rpcAddr)
	}

	var brokerAdapter *broker.Adapter
	if *brokerURL != "" {
		var err error
		brokerAdapter, err = broker.Dial(broker.Config{URL: *brokerURL}, registry)
		if err != nil {
			log.Fatalf("dialing broker adapter: %v", err)
		}
		if err := brokerAdapter.StartConsuming(context.Background()); err != nil {
			log.Fatalf("starting broker consumer: %v", err)
		}
		log.Printf("message-broker distribution adapter connected to %s", *brokerURL)
	}

	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if rpcServer != nil {
			rpcServer.Close()
		}
		if brokerAdapter != nil {
			brokerAdapter.StopConsuming()
			brokerAdapter.Close()
		}
		controllerStop()
		if err := mon.Shutdown(ctx); err != nil {
			log.Printf("monitor shutdown error: %v", err)
		}
		close(done)
	}()

	if err := mon.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("monitor server error: %v", err)
	}

	<-done
	log.Println("sidecar stopped")
}
