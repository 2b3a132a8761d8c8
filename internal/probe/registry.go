package probe

import (
	"sync"
	"time"
)

// Process-wide cleanup registry. Probes hold the SDR exclusively, and a
// probe that outlives the console blocks every later run, so the console's
// signal handler and exit path call KillAll unconditionally.

var (
	registryMu sync.Mutex
	registry   = make(map[*Probe]struct{})
)

func register(p *Probe) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p] = struct{}{}
}

func deregister(p *Probe) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, p)
}

// Live returns the number of probes currently tracked.
func Live() int {
	registryMu.Lock()
	defer registryMu.Unlock()
	return len(registry)
}

// KillAll terminates every outstanding probe, giving each the grace
// timeout before the hard kill. Safe to call concurrently with probe
// starts and from signal handlers.
func KillAll(timeout time.Duration) {
	registryMu.Lock()
	live := make([]*Probe, 0, len(registry))
	for p := range registry {
		live = append(live, p)
	}
	registryMu.Unlock()

	for _, p := range live {
		_ = p.Stop(timeout)
	}
}
