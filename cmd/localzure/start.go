package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localzure/localzure/pkg/api"
	"github.com/localzure/localzure/pkg/events"
	"github.com/localzure/localzure/pkg/health"
	"github.com/localzure/localzure/pkg/keyvault"
	"github.com/localzure/localzure/pkg/log"
	"github.com/localzure/localzure/pkg/metrics"
	"github.com/localzure/localzure/pkg/oauth"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the LocalZure emulator",
	Long: `Start the emulator: the Key Vault data plane, the OAuth token
authority, and the operational endpoints on a single listener.

Examples:
  # In-memory backend on the default listener
  localzure start

  # Redis-backed state with a config file
  localzure start -c localzure.yaml

  # Override the listener
  localzure start --listen 0.0.0.0:9000`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().String("listen", "", "Listen address (overrides config)")
	startCmd.Flags().String("backend", "", "State backend: memory, redis or bolt (overrides config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.ListenAddr = listen
	}
	if backendType, _ := cmd.Flags().GetString("backend"); backendType != "" {
		cfg.Backend.Type = backendType
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	initLogging(cfg)

	ctx := context.Background()
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize %s backend: %w", cfg.Backend.Type, err)
	}
	defer backend.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	// Every published event becomes one structured log line
	stopSink := events.StartLogSink(broker, log.WithComponent("events"))
	defer stopSink()

	engine := keyvault.NewEngine(backend, broker, keyvault.Config{
		SoftDeleteEnabled: cfg.KeyVault.SoftDeleteEnabled,
		RetentionDays:     cfg.KeyVault.RetentionDays,
		VaultDNSSuffix:    cfg.KeyVault.VaultDNSSuffix,
	})

	issuer, err := oauth.NewIssuer(oauth.IssuerConfig{
		Issuer:        cfg.OAuth.Issuer,
		TokenLifetime: cfg.OAuth.TokenLifetime.Std(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token authority: %w", err)
	}

	registry := health.NewRegistry()
	registry.Register(health.NewBackendChecker(backend))

	collector := metrics.NewCollector(backend, engine)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(api.Options{
		ListenAddr: cfg.Server.ListenAddr,
		Engine:     engine,
		Issuer:     issuer,
		Health:     registry,
		Broker:     broker,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	log.Logger.Info().
		Str("version", Version).
		Str("backend", backend.Type()).
		Str("addr", cfg.Server.ListenAddr).
		Msg("LocalZure started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
