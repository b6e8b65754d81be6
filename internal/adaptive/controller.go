// Package adaptive implements the out-of-band controller that samples
// host CPU and memory utilization and proposes a new concurrency bound.
// It shares no state with the orchestration package's Scheduler: it is a
// pure advisor that publishes concurrency-update events over its own
// EventBus, which a caller wires to Scheduler.SetConcurrency.
package adaptive

import (
	"runtime"
	"time"
)

// Options configures a Controller. Zero values are replaced with defaults.
type Options struct {
	MinConcurrency       int
	MaxConcurrency       int
	TargetCPUUtilization float64
	TargetMemUtilization float64
	CheckInterval        time.Duration
	AdjustmentStep       int
	HistorySize          int
}

func (o Options) withDefaults() Options {
	if o.MinConcurrency <= 0 {
		o.MinConcurrency = 1
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = runtime.NumCPU()
	}
	if o.TargetCPUUtilization <= 0 {
		o.TargetCPUUtilization = 70
	}
	if o.TargetMemUtilization <= 0 {
		o.TargetMemUtilization = 80
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = 5 * time.Second
	}
	if o.AdjustmentStep <= 0 {
		o.AdjustmentStep = 1
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 3
	}
	return o
}

// Metrics is a snapshot of the controller's last sample and proposal.
type Metrics struct {
	Timestamp           time.Time
	CPUUsage            float64
	MemoryUsage         float64
	NewConcurrency      int
	PreviousConcurrency int
}

// Controller periodically samples host utilization and recommends a new
// concurrency bound within [min, max]. Start/Stop are idempotent.
type Controller struct {
	opts    Options
	sampler Sampler
	bus     *EventBus

	cmds chan controllerCmd
}

type controllerCmdKind int

const (
	ctlStart controllerCmdKind = iota
	ctlStop
	ctlSetConcurrency
	ctlMetrics
)

type controllerCmd struct {
	kind  controllerCmdKind
	n     int
	reply chan controllerReply
}

type controllerReply struct {
	metrics Metrics
}

// New creates a Controller. sampler is typically NewHostSampler in
// production and a synthetic Sampler in tests.
func New(sampler Sampler, opts Options) *Controller {
	o := opts.withDefaults()
	c := &Controller{
		opts:    o,
		sampler: sampler,
		bus:     NewEventBus(),
		cmds:    make(chan controllerCmd),
	}
	go c.run()
	return c
}

// Events returns the bus concurrency-update, metrics, and error events
// are published on.
func (c *Controller) Events() *EventBus {
	return c.bus
}

// Start begins sampling at the configured interval. Idempotent.
func (c *Controller) Start() {
	c.send(controllerCmd{kind: ctlStart})
}

// Stop halts sampling. Idempotent.
func (c *Controller) Stop() {
	c.send(controllerCmd{kind: ctlStop})
}

// SetConcurrency manually overrides the recommended bound, clamped to
// [min, max], and publishes a concurrency-update event.
func (c *Controller) SetConcurrency(n int) {
	c.send(controllerCmd{kind: ctlSetConcurrency, n: n})
}

// Metrics returns the last sample snapshot.
func (c *Controller) Metrics() Metrics {
	return c.send(controllerCmd{kind: ctlMetrics}).metrics
}

func (c *Controller) send(cmd controllerCmd) controllerReply {
	cmd.reply = make(chan controllerReply, 1)
	c.cmds <- cmd
	return <-cmd.reply
}

// run is the coordination loop: it owns the rolling history, the current
// recommendation, and the sampling timer.
func (c *Controller) run() {
	o := c.opts
	current := clamp(o.MaxConcurrency, o.MinConcurrency, o.MaxConcurrency)
	running := false
	var cpuHist, memHist []float64
	var last Metrics
	var ticker *time.Ticker
	var tickC <-chan time.Time

	startTicking := func() {
		if running {
			return
		}
		running = true
		ticker = time.NewTicker(o.CheckInterval)
		tickC = ticker.C
	}
	stopTicking := func() {
		if !running {
			return
		}
		running = false
		ticker.Stop()
		tickC = nil
	}

	sampleOnce := func() {
		cpuPct, memPct, err := c.sampler.Sample()
		if err != nil {
			c.bus.publish(Event{Kind: EventError, Err: err})
			return
		}

		cpuHist = pushWindow(cpuHist, cpuPct, o.HistorySize)
		memHist = pushWindow(memHist, memPct, o.HistorySize)
		avgCPU := average(cpuHist)
		avgMem := average(memHist)

		proposed := current
		switch {
		case avgCPU > o.TargetCPUUtilization+10:
			proposed = current - o.AdjustmentStep
		case avgCPU < o.TargetCPUUtilization-10 && avgMem < o.TargetMemUtilization:
			proposed = current + o.AdjustmentStep
		}
		if avgMem > o.TargetMemUtilization+10 {
			proposed = current - o.AdjustmentStep
		}
		proposed = clamp(proposed, o.MinConcurrency, o.MaxConcurrency)

		last = Metrics{
			Timestamp:           time.Now(),
			CPUUsage:            cpuPct,
			MemoryUsage:         memPct,
			NewConcurrency:      proposed,
			PreviousConcurrency: current,
		}

		if proposed != current {
			current = proposed
			c.bus.publish(Event{Kind: EventConcurrencyUpdate, N: current})
			c.bus.publish(Event{Kind: EventMetrics, N: current, Metrics: last})
		}
	}

	for {
		select {
		case cmd := <-c.cmds:
			switch cmd.kind {
			case ctlStart:
				startTicking()
				cmd.reply <- controllerReply{}
			case ctlStop:
				stopTicking()
				cmd.reply <- controllerReply{}
			case ctlSetConcurrency:
				current = clamp(cmd.n, o.MinConcurrency, o.MaxConcurrency)
				c.bus.publish(Event{Kind: EventConcurrencyUpdate, N: current})
				cmd.reply <- controllerReply{}
			case ctlMetrics:
				cmd.reply <- controllerReply{metrics: last}
			}

		case <-tickC:
			sampleOnce()
		}
	}
}

func pushWindow(hist []float64, v float64, size int) []float64 {
	hist = append(hist, v)
	if len(hist) > size {
		hist = hist[len(hist)-size:]
	}
	return hist
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
