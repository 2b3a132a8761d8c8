package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/easyadsb/easyadsb/internal/config"
	"github.com/easyadsb/easyadsb/internal/runtime"
)

func controller() (*runtime.Controller, error) {
	paths, err := installPaths()
	if err != nil {
		return nil, err
	}
	return runtime.NewController(paths), nil
}

func fleetStatus(cmd *cobra.Command, args []string) error {
	formatter := newOutputFormatter(cmd)
	ctl, err := controller()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	states, err := ctl.Status(ctx)
	if err != nil {
		return formatter.Error("failed to query service status", err)
	}
	if formatter.jsonMode {
		return formatter.Print(states)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tSTATE\tSTATUS")
	for _, st := range states {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Service, st.State, st.Status)
	}
	return tw.Flush()
}

func fleetStart(cmd *cobra.Command, args []string) error {
	return fleetOp(cmd, "started", func(ctl *runtime.Controller) error {
		ctx, stop := signalContext()
		defer stop()
		return ctl.Start(ctx, args...)
	})
}

func fleetStop(cmd *cobra.Command, args []string) error {
	return fleetOp(cmd, "stopped", func(ctl *runtime.Controller) error {
		ctx, stop := signalContext()
		defer stop()
		return ctl.Stop(ctx, args...)
	})
}

func fleetRestart(cmd *cobra.Command, args []string) error {
	return fleetOp(cmd, "restarted", func(ctl *runtime.Controller) error {
		ctx, stop := signalContext()
		defer stop()
		return ctl.Restart(ctx, args...)
	})
}

func fleetUpdate(cmd *cobra.Command, args []string) error {
	return fleetOp(cmd, "updated", func(ctl *runtime.Controller) error {
		ctx, stop := signalContext()
		defer stop()
		if err := ctl.Pull(ctx); err != nil {
			return err
		}
		return ctl.Restart(ctx)
	})
}

func fleetOp(cmd *cobra.Command, done string, op func(*runtime.Controller) error) error {
	formatter := newOutputFormatter(cmd)
	ctl, err := controller()
	if err != nil {
		return err
	}
	if err := op(ctl); err != nil {
		return formatter.Error("fleet operation failed", err)
	}
	return formatter.Print("Fleet " + done + ".")
}

func fleetLogs(cmd *cobra.Command, args []string) error {
	service := config.ServiceUltrafeeder.ID
	if len(args) == 1 {
		service = args[0]
	}
	follow, _ := cmd.Flags().GetBool("follow")
	tail, _ := cmd.Flags().GetInt("tail")

	ctl, err := controller()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return ctl.Logs(ctx, os.Stdout, service, follow, tail)
}
