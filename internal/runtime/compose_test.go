package runtime

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// fakeRunner records invocations and replays scripted results.
type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (f *fakeRunner) Output(_ context.Context, args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	return f.output, f.err
}

func (f *fakeRunner) Stream(_ context.Context, w io.Writer, args ...string) error {
	f.calls = append(f.calls, args)
	if f.output != nil {
		_, _ = w.Write(f.output)
	}
	return f.err
}

func TestStartAllOmitsServiceNames(t *testing.T) {
	fr := &fakeRunner{}
	c := newController(fr)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	want := []string{"up", "-d"}
	if got := strings.Join(fr.calls[0], " "); got != strings.Join(want, " ") {
		t.Fatalf("runner args = %q, want %q", got, strings.Join(want, " "))
	}
}

func TestStopNamedSubset(t *testing.T) {
	fr := &fakeRunner{}
	c := newController(fr)

	if err := c.Stop(context.Background(), "fr24", "piaware"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := strings.Join(fr.calls[0], " "); got != "stop fr24 piaware" {
		t.Fatalf("runner args = %q", got)
	}
}

func TestUnknownServiceRejectedBeforeRuntime(t *testing.T) {
	fr := &fakeRunner{}
	c := newController(fr)

	err := c.Restart(context.Background(), "warpdrive")
	if err == nil || !strings.Contains(err.Error(), "unknown service") {
		t.Fatalf("Restart = %v, want unknown-service error", err)
	}
	if len(fr.calls) != 0 {
		t.Error("runtime was invoked for an unknown service")
	}
}

func TestOpErrorCarriesRuntimeMessage(t *testing.T) {
	fr := &fakeRunner{
		output: []byte("Error response from daemon: No such container"),
		err:    errors.New("exit status 1"),
	}
	c := newController(fr)

	err := c.Start(context.Background(), "fr24")
	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("Start = %v, want OpError", err)
	}
	if !strings.Contains(opErr.Error(), "No such container") {
		t.Errorf("OpError message should surface the runtime's own output: %v", opErr)
	}
}

func TestStatusParsesAndCoversFleet(t *testing.T) {
	fr := &fakeRunner{output: []byte(`{"Service":"ultrafeeder","Name":"ultrafeeder","State":"running","Status":"Up 2 hours"}
{"Service":"fr24","Name":"fr24","State":"exited","Status":"Exited (1) 5 minutes ago"}
`)}
	c := newController(fr)

	states, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	byService := make(map[string]ServiceState)
	for _, s := range states {
		byService[s.Service] = s
	}
	if byService["ultrafeeder"].State != "running" {
		t.Errorf("ultrafeeder state = %q", byService["ultrafeeder"].State)
	}
	if byService["fr24"].State != "exited" {
		t.Errorf("fr24 state = %q", byService["fr24"].State)
	}
	// Services the runtime never created still appear in the summary.
	if byService["piaware"].State != "absent" {
		t.Errorf("piaware state = %q, want absent", byService["piaware"].State)
	}
}

func TestLogsStreamsTail(t *testing.T) {
	fr := &fakeRunner{output: []byte("log line one\n")}
	c := newController(fr)

	var sb strings.Builder
	if err := c.Logs(context.Background(), &sb, "ultrafeeder", false, 50); err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if got := strings.Join(fr.calls[0], " "); got != "logs --tail 50 ultrafeeder" {
		t.Fatalf("runner args = %q", got)
	}
	if sb.String() != "log line one\n" {
		t.Errorf("streamed output = %q", sb.String())
	}
}
