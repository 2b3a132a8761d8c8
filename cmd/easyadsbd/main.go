package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/easyadsb/easyadsb/internal/logger"
	easyadsbversion "github.com/easyadsb/easyadsb/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "easyadsbd",
		Short:         "EasyADSB flight logger daemon - records positions and serves the dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	rootCmd.Version = easyadsbversion.Format(easyadsbversion.String())
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.SetFlags(log.LstdFlags)

	host := envDefault("ULTRAFEEDER_HOST", "ultrafeeder")
	port := envDefault("ULTRAFEEDER_PORT", "8080")
	interval := envInt("LOGGER_INTERVAL", 10)
	retention := envInt("LOGGER_RETENTION_DAYS", 14)
	dbPath := envDefault("DB_PATH", "/data/flights.db")
	settingsPath := envDefault("SETTINGS_PATH", "/data/logger-settings.json")
	userConfigPath := envDefault("USER_CONFIG_PATH", "/data/user-config.json")
	listenAddr := envDefault("LISTEN_ADDR", ":5000")

	log.Printf("[Daemon] EasyADSB flight logger %s", easyadsbversion.String())
	log.Printf("[Daemon] ultrafeeder %s:%s, interval %ds, retention %dd", host, port, interval, retention)
	log.Printf("[Daemon] database %s", dbPath)

	store, err := logger.Open(logger.Options{DBPath: dbPath})
	if err != nil {
		return err
	}
	defer store.Close()

	hub := logger.NewHub()
	go hub.Run()
	defer hub.Close()

	poller := logger.NewPoller(logger.PollerOptions{
		Store:          store,
		UltrafeederURL: fmt.Sprintf("http://%s:%s", host, port),
		SettingsPath:   settingsPath,
		Interval:       interval,
		RetentionDays:  retention,
		OnBatch:        hub.Publish,
	})

	api := logger.NewAPIServer(logger.APIServerOptions{
		Store:          store,
		Poller:         poller,
		Hub:            hub,
		UserConfigPath: userConfigPath,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Cleanup(ctx)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	server := &http.Server{
		Addr:         listenAddr,
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("[Daemon] API listening on %s", listenAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		log.Printf("[Daemon] received %s, shutting down...", sig)
	case err := <-errChan:
		runErr = err
	}

	// The poller must drain before the deferred hub and store closes: an
	// in-flight poll still publishes to the hub and writes to the store.
	cancel()
	<-pollerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Daemon] shutdown error: %v", err)
	}
	log.Printf("[Daemon] stopped")
	return runErr
}
