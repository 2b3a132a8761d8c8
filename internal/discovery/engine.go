// Package discovery obtains service credentials with the least operator
// effort: it launches a signup probe, polls the probe's combined output
// for the service's extraction targets within a time budget, and reports
// a typed failure when the operator has to step in.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/easyadsb/easyadsb/internal/extract"
	"github.com/easyadsb/easyadsb/internal/probe"
)

// ErrExtractionTimeout indicates a target did not resolve within the
// budget. Non-fatal: the console downgrades to manual entry or a
// placeholder.
var ErrExtractionTimeout = errors.New("discovery: extraction target not found within budget")

// LaunchError indicates the probe process could not start at all. Surfaced
// immediately; the operator retries or skips.
type LaunchError struct {
	Service string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("discovery: launch probe for %s: %v", e.Service, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Handle is the slice of a running probe the engine needs. *probe.Probe
// satisfies it; tests substitute scripted fakes.
type Handle interface {
	Buffer() []byte
	Discarded() int64
	Running() bool
	Stop(timeout time.Duration) error
	PID() int
}

// Launcher starts a probe process.
type Launcher func(opts probe.Options) (Handle, error)

func defaultLauncher(opts probe.Options) (Handle, error) {
	return probe.Start(opts)
}

// ServiceSpec describes one service's discovery run.
type ServiceSpec struct {
	Service string
	Command string
	Args    []string
	Env     []string
	Targets []extract.Target
	LogSink io.Writer
}

// Engine supervises one probe at a time. Discovery across services is
// strictly sequential: every probe needs exclusive access to the SDR.
type Engine struct {
	Launch    Launcher
	Interval  time.Duration // poll interval against the output buffer
	Budget    time.Duration // total time allowed per service
	StopGrace time.Duration // SIGTERM-to-kill grace when stopping a probe
	Logf      func(format string, args ...any)
}

// NewEngine returns an engine with production defaults.
func NewEngine() *Engine {
	return &Engine{
		Launch:    defaultLauncher,
		Interval:  2 * time.Second,
		Budget:    2 * time.Minute,
		StopGrace: 5 * time.Second,
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

// Discover launches the service's probe and resolves its extraction
// targets in declared dependency order. A dependent target is never
// searched before its prerequisite resolves: probes echo stale or partial
// text before the prerequisite event actually occurs. The probe is
// terminated proactively on every return path so the SDR is free for the
// next probe. Discover never blocks past the budget by more than one poll
// interval.
func (e *Engine) Discover(ctx context.Context, spec ServiceSpec) (map[string]string, error) {
	launch := e.Launch
	if launch == nil {
		launch = defaultLauncher
	}

	handle, err := launch(probe.Options{
		Command: spec.Command,
		Args:    spec.Args,
		Env:     spec.Env,
		LogSink: spec.LogSink,
	})
	if err != nil {
		return nil, &LaunchError{Service: spec.Service, Err: err}
	}
	defer handle.Stop(e.StopGrace)

	e.logf("[Discovery] %s: probe pid %d, budget %s", spec.Service, handle.PID(), e.Budget)

	values := make(map[string]string, len(spec.Targets))
	next := 0

	deadline := time.NewTimer(e.Budget)
	defer deadline.Stop()
	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	// offsets records where each resolved target matched, as absolute
	// stream positions, so a dependent target only searches output
	// produced after its prerequisite's match. The probe buffer is a
	// rolling window; absolute positions survive its trimming.
	offsets := make(map[string]int64, len(spec.Targets))

	// resolve consumes as many targets as buf allows. buf is the current
	// window and discarded is how many leading stream bytes it has
	// dropped. Only the next pending target is searched; later targets
	// wait for their prerequisites by construction of the declared order.
	resolve := func(buf []byte, discarded int64) {
		for next < len(spec.Targets) {
			target := spec.Targets[next]
			var from int64
			if target.Requires != "" {
				prereqAt, ok := offsets[target.Requires]
				if !ok {
					break
				}
				from = prereqAt
			}
			rel := from - discarded
			if rel < 0 {
				// The prerequisite's text has scrolled out of the window;
				// everything still buffered is newer than its match.
				rel = 0
			}
			if rel > int64(len(buf)) {
				break
			}
			value, idx, ok := extract.ScanIndex(buf[rel:], target)
			if !ok {
				break
			}
			values[target.Name] = value
			offsets[target.Name] = discarded + rel + int64(idx)
			e.logf("[Discovery] %s: resolved %s", spec.Service, target.Name)
			next++
		}
	}

	// The trim count is snapshotted before the window; a trim landing
	// between the two reads only moves the scan start later in the stream.
	scan := func() {
		discarded := handle.Discarded()
		resolve(handle.Buffer(), discarded)
	}

	for {
		scan()
		if next == len(spec.Targets) {
			return values, nil
		}

		if !handle.Running() {
			// The exit can race the last buffered output; scan the final
			// buffer once more before giving up.
			scan()
			if next == len(spec.Targets) {
				return values, nil
			}
			// Probe exited with targets unresolved; its buffer is final,
			// waiting out the rest of the budget cannot help.
			return values, fmt.Errorf("%w: %s target %q (probe exited)", ErrExtractionTimeout, spec.Service, spec.Targets[next].Name)
		}

		select {
		case <-ctx.Done():
			return values, ctx.Err()
		case <-deadline.C:
			return values, fmt.Errorf("%w: %s target %q", ErrExtractionTimeout, spec.Service, spec.Targets[next].Name)
		case <-ticker.C:
		}
	}
}
