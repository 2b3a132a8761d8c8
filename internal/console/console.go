package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/easyadsb/easyadsb/internal/artifact"
	"github.com/easyadsb/easyadsb/internal/config"
	"github.com/easyadsb/easyadsb/internal/discovery"
	"github.com/easyadsb/easyadsb/internal/runtime"
)

// State identifies a screen in the operator console.
type State int

const (
	// StateFresh runs first-time setup when no configuration exists.
	StateFresh State = iota
	// StateMenu is the maintenance menu shown on an existing install.
	StateMenu
	// StateReconfigure re-runs setup seeded with the stored configuration.
	StateReconfigure
	// StateStatusLogs is the re-entrant status and log viewer.
	StateStatusLogs
	// StateUpdate pulls fresh images and restarts the fleet.
	StateUpdate
	// StateUninstall walks the tiered removal flow.
	StateUninstall
	// StateExit terminates the console loop.
	StateExit
)

// Lifecycle is the container runtime surface the console drives.
// *runtime.Controller is the production implementation.
type Lifecycle interface {
	Start(ctx context.Context, services ...string) error
	Stop(ctx context.Context, services ...string) error
	Restart(ctx context.Context, services ...string) error
	Pull(ctx context.Context, services ...string) error
	Status(ctx context.Context) ([]runtime.ServiceState, error)
	Logs(ctx context.Context, w io.Writer, service string, follow bool, tail int) error
	Down(ctx context.Context, removeVolumes bool) error
}

// Session carries everything one console run needs. All state flows
// through it explicitly; there are no package-level globals to reset
// between runs.
type Session struct {
	In        *bufio.Reader
	Out       io.Writer
	Store     *config.Store
	Generator *artifact.Generator
	Runtime   Lifecycle
	Engine    *discovery.Engine
	NewUUID   func() string // overridable identity source for self-issued credentials

	// DiscoverScope derives the cancellation scope for one discovery run.
	// The default arms SIGINT, so Ctrl-C stops the in-flight probe and
	// returns control to the menu instead of ending the console.
	DiscoverScope func(context.Context) (context.Context, context.CancelFunc)
}

// NewSession wires a session against the install rooted at paths.
func NewSession(paths config.Paths, in io.Reader, out io.Writer) *Session {
	engine := discovery.NewEngine()
	engine.Logf = func(format string, args ...any) {
		log.Printf(format, args...)
	}
	return &Session{
		In:        bufio.NewReader(in),
		Out:       out,
		Store:     config.NewStore(paths),
		Generator: artifact.NewGenerator(paths),
		Runtime:   runtime.NewController(paths),
		Engine:    engine,
		DiscoverScope: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	}
}

// transitions is the state dispatch table. Every handler returns the next
// state; quick actions that stay on the same screen loop internally.
var transitions = map[State]func(*Session, context.Context) (State, error){
	StateFresh:       (*Session).runFresh,
	StateMenu:        (*Session).runMenu,
	StateReconfigure: (*Session).runReconfigure,
	StateStatusLogs:  (*Session).runStatusLogs,
	StateUpdate:      (*Session).runUpdate,
	StateUninstall:   (*Session).runUninstall,
}

// Run drives the console until the operator exits. The initial state is
// chosen from what is on disk: no config file means first-time setup, a
// damaged file is backed up before setup restarts from scratch.
func (s *Session) Run(ctx context.Context) error {
	state, err := s.initialState()
	if err != nil {
		return err
	}
	return s.RunFrom(ctx, state)
}

// RunFrom drives the console starting at state. Used by CLI subcommands
// that jump straight to one flow.
func (s *Session) RunFrom(ctx context.Context, state State) error {
	var err error
	for state != StateExit {
		handle, ok := transitions[state]
		if !ok {
			return fmt.Errorf("console: no handler for state %d", state)
		}
		state, err = handle(s, ctx)
		if err != nil {
			return err
		}
	}
	fmt.Fprintln(s.Out, "Goodbye.")
	return nil
}

func (s *Session) initialState() (State, error) {
	_, err := s.Store.Load()
	switch {
	case err == nil:
		return StateMenu, nil
	case errors.Is(err, config.ErrNotFound):
		return StateFresh, nil
	case config.IsMalformed(err):
		fmt.Fprintf(s.Out, "The configuration file is damaged: %v\n", err)
		if !s.confirm("Back it up and start a fresh configuration?", false) {
			return StateExit, nil
		}
		rec, berr := s.Store.Backup()
		if berr != nil {
			return 0, fmt.Errorf("console: backing up damaged configuration: %w", berr)
		}
		fmt.Fprintf(s.Out, "Damaged file saved to %s\n", rec.Path)
		return StateFresh, nil
	default:
		return 0, err
	}
}

func (s *Session) runFresh(ctx context.Context) (State, error) {
	fmt.Fprintln(s.Out, "Welcome to EasyADSB. No configuration found; starting first-time setup.")
	snap := config.NewSnapshot()
	if err := s.runSetup(ctx, snap); err != nil {
		return 0, err
	}
	if s.confirm("Start the feeder fleet now?", true) {
		s.report(s.Runtime.Start(ctx), "Fleet started.")
	}
	return StateMenu, nil
}

func (s *Session) runMenu(ctx context.Context) (State, error) {
	fmt.Fprintln(s.Out)
	fmt.Fprintln(s.Out, "EasyADSB maintenance")
	fmt.Fprintln(s.Out, "  1) Reconfigure station and feeds")
	fmt.Fprintln(s.Out, "  2) Status and logs")
	fmt.Fprintln(s.Out, "  3) Start the fleet")
	fmt.Fprintln(s.Out, "  4) Stop the fleet")
	fmt.Fprintln(s.Out, "  5) Restart the fleet")
	fmt.Fprintln(s.Out, "  6) Update container images")
	fmt.Fprintln(s.Out, "  7) Uninstall")
	fmt.Fprintln(s.Out, "  8) Exit")
	choice, err := s.promptChoice("Select", 1, 8)
	if err != nil {
		return StateExit, nil
	}
	switch choice {
	case 1:
		return StateReconfigure, nil
	case 2:
		return StateStatusLogs, nil
	case 3:
		s.report(s.Runtime.Start(ctx), "Fleet started.")
	case 4:
		s.report(s.Runtime.Stop(ctx), "Fleet stopped.")
	case 5:
		s.report(s.Runtime.Restart(ctx), "Fleet restarted.")
	case 6:
		return StateUpdate, nil
	case 7:
		return StateUninstall, nil
	case 8:
		return StateExit, nil
	}
	return StateMenu, nil
}

// runReconfigure re-runs setup on top of the stored configuration. The
// backup happens before anything is modified; a failed backup aborts the
// whole flow.
func (s *Session) runReconfigure(ctx context.Context) (State, error) {
	snap, err := s.Store.Load()
	if errors.Is(err, config.ErrNotFound) {
		return StateFresh, nil
	}
	if err != nil {
		fmt.Fprintf(s.Out, "Cannot load configuration: %v\n", err)
		return StateMenu, nil
	}
	rec, err := s.Store.Backup()
	if err != nil {
		fmt.Fprintf(s.Out, "Backup failed, reconfigure aborted: %v\n", err)
		return StateMenu, nil
	}
	fmt.Fprintf(s.Out, "Current configuration backed up to %s\n", rec.Path)
	if err := s.runSetup(ctx, snap); err != nil {
		return 0, err
	}
	if s.confirm("Restart the fleet to apply the new configuration?", true) {
		s.report(s.Runtime.Restart(ctx), "Fleet restarted.")
	}
	return StateMenu, nil
}

func (s *Session) runStatusLogs(ctx context.Context) (State, error) {
	for {
		fmt.Fprintln(s.Out)
		fmt.Fprintln(s.Out, "Status and logs")
		fmt.Fprintln(s.Out, "  1) Service status")
		fmt.Fprintln(s.Out, "  2) Recent logs for a service")
		fmt.Fprintln(s.Out, "  3) Back")
		choice, err := s.promptChoice("Select", 1, 3)
		if err != nil {
			return StateMenu, nil
		}
		switch choice {
		case 1:
			s.showStatus(ctx)
		case 2:
			s.showLogs(ctx)
		case 3:
			return StateMenu, nil
		}
	}
}

func (s *Session) showStatus(ctx context.Context) {
	states, err := s.Runtime.Status(ctx)
	if err != nil {
		fmt.Fprintf(s.Out, "Status unavailable: %v\n", err)
		return
	}
	tw := tabwriter.NewWriter(s.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tSTATE\tSTATUS")
	for _, st := range states {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Service, st.State, st.Status)
	}
	tw.Flush()
}

func (s *Session) showLogs(ctx context.Context) {
	service := s.prompt("Service", config.ServiceUltrafeeder.ID)
	if err := s.Runtime.Logs(ctx, s.Out, service, false, 100); err != nil {
		fmt.Fprintf(s.Out, "Logs unavailable: %v\n", err)
	}
}

func (s *Session) runUpdate(ctx context.Context) (State, error) {
	fmt.Fprintln(s.Out, "Pulling latest container images...")
	if err := s.Runtime.Pull(ctx); err != nil {
		fmt.Fprintf(s.Out, "Pull failed: %v\n", err)
		return StateMenu, nil
	}
	fmt.Fprintln(s.Out, "Restarting the fleet on the new images...")
	if err := s.Runtime.Restart(ctx); err != nil {
		fmt.Fprintf(s.Out, "Restart failed: %v\n", err)
		return StateMenu, nil
	}
	fmt.Fprintln(s.Out, "Update complete.")
	return StateMenu, nil
}

func (s *Session) report(err error, ok string) {
	if err != nil {
		fmt.Fprintf(s.Out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.Out, ok)
}
