package adaptive

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sampler reads whole-host CPU and memory utilization as percentages in
// [0, 100]. It is an interface, not a concrete dependency, so the control
// law in controller.go can be driven by synthetic sequences in tests
// without touching the host.
type Sampler interface {
	Sample() (cpuPct, memPct float64, err error)
}

// hostSampler is the production Sampler: one instantaneous CPU percentage
// over a short window and one memory-utilization percentage, read via
// gopsutil the way a host-metrics library would.
type hostSampler struct {
	window time.Duration
}

// NewHostSampler creates a Sampler that measures CPU utilization over
// window (a sensible default is a few hundred milliseconds, well under
// the controller's check interval).
func NewHostSampler(window time.Duration) Sampler {
	if window <= 0 {
		window = 200 * time.Millisecond
	}
	return &hostSampler{window: window}
}

func (h *hostSampler) Sample() (float64, float64, error) {
	cpuPcts, err := cpu.Percent(h.window, false)
	if err != nil {
		return 0, 0, err
	}
	var cpuPct float64
	if len(cpuPcts) > 0 {
		cpuPct = cpuPcts[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}

	return cpuPct, vm.UsedPercent, nil
}
