package console

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/easyadsb/easyadsb/internal/config"
)

// Uninstall tiers. Each wider tier includes everything before it.
const (
	uninstallContainers = iota + 1
	uninstallConfig
	uninstallEverything
	uninstallBack
)

// runUninstall walks the tiered removal flow. Configuration is always
// backed up before it is deleted, and a failed backup aborts the tier
// before anything is removed.
func (s *Session) runUninstall(ctx context.Context) (State, error) {
	fmt.Fprintln(s.Out)
	fmt.Fprintln(s.Out, "Uninstall")
	fmt.Fprintln(s.Out, "  1) Stop and remove containers (keep configuration and data)")
	fmt.Fprintln(s.Out, "  2) Also remove configuration and generated files (keep flight data)")
	fmt.Fprintln(s.Out, "  3) Remove everything, including logged flight data")
	fmt.Fprintln(s.Out, "  4) Back")
	choice, err := s.promptChoice("Select", 1, 4)
	if err != nil || choice == uninstallBack {
		return StateMenu, nil
	}
	if !s.typedAffirmation("yes") {
		fmt.Fprintln(s.Out, "Aborted, nothing was removed.")
		return StateMenu, nil
	}

	if choice >= uninstallConfig {
		rec, err := s.Store.Backup()
		switch {
		case err == nil:
			fmt.Fprintf(s.Out, "Configuration backed up to %s\n", rec.Path)
		case errors.Is(err, config.ErrNotFound):
			// Nothing to back up.
		default:
			fmt.Fprintf(s.Out, "Backup failed, uninstall aborted: %v\n", err)
			return StateMenu, nil
		}
	}

	if err := s.Runtime.Down(ctx, choice == uninstallEverything); err != nil {
		fmt.Fprintf(s.Out, "Removing containers failed: %v\n", err)
		return StateMenu, nil
	}
	fmt.Fprintln(s.Out, "Containers removed.")
	if choice == uninstallContainers {
		return StateMenu, nil
	}

	paths := s.Store.Paths()
	for _, p := range []string{paths.EnvFile, paths.DashboardConfig, paths.ComposeFeeders} {
		if err := removeIfExists(p); err != nil {
			fmt.Fprintf(s.Out, "Removing %s failed: %v\n", p, err)
			return StateMenu, nil
		}
	}
	fmt.Fprintln(s.Out, "Configuration and generated files removed.")

	if choice == uninstallEverything {
		if err := os.RemoveAll(paths.DataDir); err != nil {
			fmt.Fprintf(s.Out, "Removing flight data failed: %v\n", err)
			return StateMenu, nil
		}
		fmt.Fprintln(s.Out, "Flight data removed.")
	}

	fmt.Fprintln(s.Out, "EasyADSB has been removed from this system.")
	return StateExit, nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
