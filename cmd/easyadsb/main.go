package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/easyadsb/easyadsb/internal/config"
	"github.com/easyadsb/easyadsb/internal/console"
	"github.com/easyadsb/easyadsb/internal/probe"
	easyadsbversion "github.com/easyadsb/easyadsb/internal/version"
)

var rootCmd *cobra.Command

// OutputFormatter handles output in JSON or human-readable format
type OutputFormatter struct {
	jsonMode bool
}

func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &OutputFormatter{jsonMode: jsonMode}
}

// Print outputs data in the appropriate format
func (f *OutputFormatter) Print(data interface{}) error {
	if f.jsonMode {
		jsonBytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(jsonBytes))
		return nil
	}
	switch v := data.(type) {
	case string:
		fmt.Println(v)
	default:
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	}
	return nil
}

// Error outputs an error message
func (f *OutputFormatter) Error(message string, err error) error {
	if f.jsonMode {
		output := map[string]interface{}{
			"success": false,
			"error":   message,
		}
		if err != nil {
			output["details"] = err.Error()
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(os.Stderr, string(jsonBytes))
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", message, err)
	} else {
		fmt.Fprintln(os.Stderr, message)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", message, err)
	}
	return fmt.Errorf("%s", message)
}

func init() {
	rootCmd = &cobra.Command{
		Use:   "easyadsb",
		Short: "EasyADSB - operator console for a managed ADS-B feeder fleet",
		Long: `EasyADSB bootstraps and manages a fleet of ADS-B feeder containers:
it discovers feeder credentials from the services' own signup output,
keeps a durable env-file configuration, regenerates derived artifacts
(dashboard config, compose overlay), and drives the container runtime.

Run without arguments on a terminal to enter the interactive console.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runConsole,
	}
	rootCmd.Version = easyadsbversion.Format(easyadsbversion.String())
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

// signalContext cancels on SIGINT/SIGTERM so probes and log streams wind
// down instead of being orphaned.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func installPaths() (config.Paths, error) {
	paths, err := config.EnsureDirs(config.GetHome())
	if err != nil {
		return config.Paths{}, fmt.Errorf("prepare %s: %w", config.GetHome(), err)
	}
	return paths, nil
}

func runConsole(cmd *cobra.Command, args []string) error {
	if !terminal.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("the interactive console requires a terminal; see 'easyadsb --help' for scriptable commands")
	}
	paths, err := installPaths()
	if err != nil {
		return err
	}

	// SIGTERM ends the console; SIGINT is armed per discovery run inside
	// the session, so Ctrl-C stops an in-flight probe and returns to the
	// menu rather than the shell.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	// Signup probes hold the SDR; none may outlive the console.
	defer probe.KillAll(5 * time.Second)

	return console.NewSession(paths, os.Stdin, os.Stdout).Run(ctx)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	if !terminal.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("uninstall is interactive and requires a terminal")
	}
	paths, err := installPaths()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return console.NewSession(paths, os.Stdin, os.Stdout).RunFrom(ctx, console.StateUninstall)
}

func main() {
	setupCmd := &cobra.Command{
		Use:           "setup",
		Short:         "Run the interactive setup console",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runConsole,
	}

	statusCmd := &cobra.Command{
		Use:           "status",
		Short:         "Show the state of every managed service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          fleetStatus,
	}

	startCmd := &cobra.Command{
		Use:           "start [service...]",
		Short:         "Start the fleet, or the named services",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          fleetStart,
	}

	stopCmd := &cobra.Command{
		Use:           "stop [service...]",
		Short:         "Stop the fleet, or the named services",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          fleetStop,
	}

	restartCmd := &cobra.Command{
		Use:           "restart [service...]",
		Short:         "Restart the fleet, or the named services",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          fleetRestart,
	}

	updateCmd := &cobra.Command{
		Use:           "update",
		Short:         "Pull the latest container images and restart the fleet",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          fleetUpdate,
	}

	logsCmd := &cobra.Command{
		Use:           "logs [service]",
		Short:         "Show logs for a service (default ultrafeeder)",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          fleetLogs,
	}
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().Int("tail", 100, "Number of lines to show from the end")

	configCmd := &cobra.Command{
		Use:           "config",
		Short:         "Inspect and modify the stored configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configShowCmd := &cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configShow,
	}
	configSetCmd := &cobra.Command{
		Use:           "set KEY VALUE",
		Short:         "Set one configuration key and regenerate derived files",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configSet,
	}
	configRegenCmd := &cobra.Command{
		Use:           "regen",
		Short:         "Regenerate derived files from the stored configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configRegen,
	}
	configCmd.AddCommand(configShowCmd, configSetCmd, configRegenCmd)

	uninstallCmd := &cobra.Command{
		Use:           "uninstall",
		Short:         "Remove containers, configuration, or the whole install",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runUninstall,
	}

	rootCmd.AddCommand(setupCmd, statusCmd, startCmd, stopCmd, restartCmd,
		updateCmd, logsCmd, configCmd, uninstallCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
