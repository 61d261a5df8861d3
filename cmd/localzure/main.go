package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/localzure/localzure/pkg/config"
	"github.com/localzure/localzure/pkg/log"
	"github.com/localzure/localzure/pkg/state"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "localzure",
	Short: "LocalZure - Azure service emulator for local development",
	Long: `LocalZure emulates Azure-style cloud services on a developer
workstation so client SDKs targeting Azure Key Vault and the Azure AD
token endpoint can be exercised end-to-end without network egress or
cloud credentials.

State lives in a pluggable backend (in-memory, Redis, or bolt) and the
whole emulator world can be captured into a single snapshot artifact.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"LocalZure version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadConfig resolves the effective configuration: defaults, then the
// config file if one was given
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// initLogging applies the log section of the configuration
func initLogging(cfg config.Config) {
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
}

// newBackend constructs the configured state backend
func newBackend(ctx context.Context, cfg config.Config) (state.Backend, error) {
	switch cfg.Backend.Type {
	case "memory":
		return state.NewMemoryBackend(), nil
	case "redis":
		return state.NewRedisBackend(ctx, state.RedisOptions{
			Addr:       cfg.Backend.Redis.Addr,
			Password:   cfg.Backend.Redis.Password,
			DB:         cfg.Backend.Redis.DB,
			KeyPrefix:  cfg.Backend.Redis.KeyPrefix,
			Timeout:    cfg.Backend.Redis.Timeout.Std(),
			PoolSize:   cfg.Backend.Redis.PoolSize,
			RetryCount: cfg.Backend.Redis.RetryCount,
		})
	case "bolt":
		return state.NewBoltBackend(cfg.Backend.Bolt.DataDir)
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
}
