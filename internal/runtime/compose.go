// Package runtime translates named-service lifecycle requests into docker
// compose invocations. The container runtime is a black box: this package
// surfaces its exit status and output and never retries on its own, since
// retrying a failed lifecycle operation behind the operator's back would
// mask a persistent fault.
package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/easyadsb/easyadsb/internal/config"
)

// OpError is a failed runtime operation, carrying the runtime's own
// message for the operator.
type OpError struct {
	Op     string
	Output string
	Err    error
}

func (e *OpError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" {
		return fmt.Sprintf("runtime: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("runtime: %s: %v: %s", e.Op, e.Err, msg)
}

func (e *OpError) Unwrap() error { return e.Err }

// ServiceState is one service's status as reported by the runtime.
type ServiceState struct {
	Service string `json:"Service"`
	Name    string `json:"Name"`
	State   string `json:"State"`
	Status  string `json:"Status"`
}

// Runner executes a runtime invocation. The exec-backed implementation is
// the production one; tests substitute scripted fakes.
type Runner interface {
	Output(ctx context.Context, args ...string) ([]byte, error)
	Stream(ctx context.Context, w io.Writer, args ...string) error
}

type execRunner struct {
	prefix []string
}

func (r execRunner) Output(ctx context.Context, args ...string) ([]byte, error) {
	full := append(append([]string(nil), r.prefix...), args...)
	cmd := exec.CommandContext(ctx, "docker", full...)
	return cmd.CombinedOutput()
}

func (r execRunner) Stream(ctx context.Context, w io.Writer, args ...string) error {
	full := append(append([]string(nil), r.prefix...), args...)
	cmd := exec.CommandContext(ctx, "docker", full...)
	cmd.Stdout = w
	cmd.Stderr = w
	return cmd.Run()
}

// Controller drives the managed compose project.
type Controller struct {
	runner Runner
	known  map[string]struct{}
}

// NewController creates a controller over the install's compose project.
func NewController(paths config.Paths) *Controller {
	prefix := []string{
		"compose",
		"-f", paths.ComposeBase,
		"-f", paths.ComposeFeeders,
		"--env-file", paths.EnvFile,
	}
	return newController(execRunner{prefix: prefix})
}

func newController(runner Runner) *Controller {
	known := make(map[string]struct{}, len(config.AllServices))
	for _, s := range config.AllServices {
		known[s.ID] = struct{}{}
	}
	return &Controller{runner: runner, known: known}
}

// validate rejects unknown service names before touching the runtime.
func (c *Controller) validate(services []string) error {
	for _, name := range services {
		if _, ok := c.known[name]; !ok {
			return fmt.Errorf("runtime: unknown service %q (known: %s)", name, strings.Join(config.ServiceIDs(), ", "))
		}
	}
	return nil
}

func (c *Controller) run(ctx context.Context, op string, args []string, services []string) error {
	if err := c.validate(services); err != nil {
		return err
	}
	out, err := c.runner.Output(ctx, append(args, services...)...)
	if err != nil {
		return &OpError{Op: op, Output: string(out), Err: err}
	}
	return nil
}

// Start brings the named services up detached; with no names, the whole
// fleet.
func (c *Controller) Start(ctx context.Context, services ...string) error {
	return c.run(ctx, "start", []string{"up", "-d"}, services)
}

// Stop stops the named services, or all of them.
func (c *Controller) Stop(ctx context.Context, services ...string) error {
	return c.run(ctx, "stop", []string{"stop"}, services)
}

// Restart restarts the named services, or all of them.
func (c *Controller) Restart(ctx context.Context, services ...string) error {
	return c.run(ctx, "restart", []string{"restart"}, services)
}

// Pull fetches the latest images for the named services, or all of them.
func (c *Controller) Pull(ctx context.Context, services ...string) error {
	return c.run(ctx, "pull", []string{"pull"}, services)
}

// Status returns the per-service state. Services the runtime does not
// report (never created) are appended as "absent" so the summary always
// covers the whole fleet.
func (c *Controller) Status(ctx context.Context) ([]ServiceState, error) {
	out, err := c.runner.Output(ctx, "ps", "-a", "--format", "json")
	if err != nil {
		return nil, &OpError{Op: "status", Output: string(out), Err: err}
	}

	reported := make(map[string]ServiceState)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var state ServiceState
		if err := json.Unmarshal(line, &state); err != nil {
			return nil, &OpError{Op: "status", Output: string(out), Err: fmt.Errorf("parse runtime status: %w", err)}
		}
		reported[state.Service] = state
	}

	states := make([]ServiceState, 0, len(config.AllServices))
	for _, svc := range config.AllServices {
		if state, ok := reported[svc.ID]; ok {
			states = append(states, state)
			continue
		}
		states = append(states, ServiceState{Service: svc.ID, State: "absent", Status: "not created"})
	}
	return states, nil
}

// Logs streams a service's log output to w. With follow the stream runs
// until ctx is cancelled.
func (c *Controller) Logs(ctx context.Context, w io.Writer, service string, follow bool, tail int) error {
	if err := c.validate([]string{service}); err != nil {
		return err
	}
	args := []string{"logs", "--tail", fmt.Sprintf("%d", tail)}
	if follow {
		args = append(args, "--follow")
	}
	args = append(args, service)
	if err := c.runner.Stream(ctx, w, args...); err != nil {
		if ctx.Err() != nil {
			return nil // cancelled follow is a normal exit
		}
		return &OpError{Op: "logs", Err: err}
	}
	return nil
}

// Down removes the project's containers. Used by uninstall.
func (c *Controller) Down(ctx context.Context, removeVolumes bool) error {
	args := []string{"down"}
	if removeVolumes {
		args = append(args, "--volumes")
	}
	out, err := c.runner.Output(ctx, args...)
	if err != nil {
		return &OpError{Op: "down", Output: string(out), Err: err}
	}
	return nil
}
