package discovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/easyadsb/easyadsb/internal/extract"
	"github.com/easyadsb/easyadsb/internal/probe"
)

// fakeProbe replays scripted output: every Buffer() call reveals one more
// step, mimicking a streaming process. A nonzero window caps how much of
// the stream stays visible, like the real probe's rolling buffer.
type fakeProbe struct {
	mu        sync.Mutex
	steps     []string
	step      int
	window    int
	discarded int64
	running   bool
	stopped   int
}

func newFakeProbe(steps ...string) *fakeProbe {
	return &fakeProbe{steps: steps, running: true}
}

func (f *fakeProbe) Buffer() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step < len(f.steps) {
		f.step++
	}
	out := []byte(strings.Join(f.steps[:f.step], ""))
	if f.window > 0 && len(out) > f.window {
		f.discarded = int64(len(out) - f.window)
		out = out[len(out)-f.window:]
	}
	return out
}

func (f *fakeProbe) Discarded() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discarded
}

func (f *fakeProbe) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeProbe) Stop(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stopped++
	return nil
}

func (f *fakeProbe) PID() int { return 4242 }

func (f *fakeProbe) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func testEngine(h Handle) (*Engine, *fakeProbe) {
	fp, _ := h.(*fakeProbe)
	return &Engine{
		Launch:    func(probe.Options) (Handle, error) { return h, nil },
		Interval:  time.Millisecond,
		Budget:    250 * time.Millisecond,
		StopGrace: time.Millisecond,
	}, fp
}

const (
	fr24Key   = "a1b2c3d4e5f60718293a4b5c6d7e8f90"
	fr24Radar = "T-KJFK17"
)

func fr24Spec() ServiceSpec {
	return ServiceSpec{
		Service: "fr24",
		Command: "fr24feed",
		Targets: extract.FR24Targets,
	}
}

func TestDiscoverResolvesOrderedTargets(t *testing.T) {
	fp := newFakeProbe(
		"starting signup wizard\n",
		"+ Your sharing key ("+fr24Key+") has been configured.\n",
		"+ Your radar id is "+fr24Radar+", please include it in all communications.\n",
	)
	engine, _ := testEngine(fp)

	values, err := engine.Discover(context.Background(), fr24Spec())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if values["sharing-key"] != fr24Key {
		t.Errorf("sharing-key = %q", values["sharing-key"])
	}
	if values["radar-id"] != fr24Radar {
		t.Errorf("radar-id = %q", values["radar-id"])
	}
	if fp.stopCount() == 0 {
		t.Error("probe was not terminated proactively after resolution")
	}
}

func TestDependentTargetWaitsForPrerequisite(t *testing.T) {
	// The radar-id anchor appears lexically before the sharing key: stale
	// transcript from a previous partial signup. The engine must not
	// accept it until the sharing key resolves.
	fp := newFakeProbe(
		"replaying log: Your radar id is T-STALE99\n",
		"still waiting for registration...\n",
		"+ Your sharing key ("+fr24Key+") has been configured.\n",
		"+ Your radar id is "+fr24Radar+"\n",
	)
	engine, _ := testEngine(fp)

	values, err := engine.Discover(context.Background(), fr24Spec())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if values["radar-id"] != fr24Radar {
		t.Errorf("radar-id = %q, want the post-prerequisite value", values["radar-id"])
	}
}

func TestDependentTargetResolvesAfterWindowTrim(t *testing.T) {
	// A chatty probe scrolls the prerequisite's match out of the rolling
	// window before the dependent value appears. The recorded offset must
	// rebase against the trimmed stream instead of pointing past the
	// window forever.
	fp := newFakeProbe(
		strings.Repeat("boot noise line\n", 60)+
			"+ Your sharing key ("+fr24Key+") has been configured.\n",
		strings.Repeat("telemetry spam line\n", 25)+
			"+ Your radar id is "+fr24Radar+"\n"+
			strings.Repeat("closing chatter line\n", 15),
	)
	fp.window = 512
	engine, _ := testEngine(fp)

	values, err := engine.Discover(context.Background(), fr24Spec())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if values["sharing-key"] != fr24Key {
		t.Errorf("sharing-key = %q", values["sharing-key"])
	}
	if values["radar-id"] != fr24Radar {
		t.Errorf("radar-id = %q", values["radar-id"])
	}
}

func TestSecondaryUnresolvedUntilPrimaryEvenAtTimeout(t *testing.T) {
	// Secondary anchor present, primary never appears: the engine must
	// time out on the primary, reporting the secondary unresolved too.
	fp := newFakeProbe("Your radar id is T-EARLY1\nwaiting...\n")
	engine, _ := testEngine(fp)

	values, err := engine.Discover(context.Background(), fr24Spec())
	if !errors.Is(err, ErrExtractionTimeout) {
		t.Fatalf("Discover = %v, want ErrExtractionTimeout", err)
	}
	if !strings.Contains(err.Error(), "sharing-key") {
		t.Errorf("timeout should name the pending primary target: %v", err)
	}
	if _, ok := values["radar-id"]; ok {
		t.Error("secondary target resolved before its prerequisite")
	}
}

func TestTimeoutBoundedByBudgetPlusInterval(t *testing.T) {
	fp := newFakeProbe("no credentials here\n")
	engine, _ := testEngine(fp)
	engine.Budget = 50 * time.Millisecond
	engine.Interval = 10 * time.Millisecond

	start := time.Now()
	_, err := engine.Discover(context.Background(), fr24Spec())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrExtractionTimeout) {
		t.Fatalf("Discover = %v, want ErrExtractionTimeout", err)
	}
	if elapsed > engine.Budget+5*engine.Interval {
		t.Errorf("Discover blocked %v past a %v budget", elapsed, engine.Budget)
	}
	if fp.stopCount() == 0 {
		t.Error("probe not terminated on timeout")
	}
}

func TestProbeExitShortCircuitsBudget(t *testing.T) {
	fp := newFakeProbe("registration failed, giving up\n")
	engine, _ := testEngine(fp)
	engine.Budget = 10 * time.Second // would be far too long to wait out

	go func() {
		time.Sleep(5 * time.Millisecond)
		fp.mu.Lock()
		fp.running = false
		fp.mu.Unlock()
	}()

	start := time.Now()
	_, err := engine.Discover(context.Background(), fr24Spec())
	if !errors.Is(err, ErrExtractionTimeout) {
		t.Fatalf("Discover = %v, want ErrExtractionTimeout", err)
	}
	if time.Since(start) > time.Second {
		t.Error("engine waited out the budget for an exited probe")
	}
}

func TestLaunchFailureSurfacesImmediately(t *testing.T) {
	engine := &Engine{
		Launch: func(probe.Options) (Handle, error) {
			return nil, errors.New("docker: command not found")
		},
		Interval: time.Millisecond,
		Budget:   time.Second,
	}

	_, err := engine.Discover(context.Background(), fr24Spec())
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("Discover = %v, want LaunchError", err)
	}
	if launchErr.Service != "fr24" {
		t.Errorf("LaunchError.Service = %q", launchErr.Service)
	}
}

func TestCancellationStopsProbe(t *testing.T) {
	fp := newFakeProbe("waiting forever\n")
	engine, _ := testEngine(fp)
	engine.Budget = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := engine.Discover(ctx, fr24Spec())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Discover = %v, want context.Canceled", err)
	}
	if fp.stopCount() == 0 {
		t.Error("probe not terminated on cancellation")
	}
}
