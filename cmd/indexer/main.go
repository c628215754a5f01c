package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goran-ethernal/TezosIndexor/internal/chainsync"
	"github.com/goran-ethernal/TezosIndexor/internal/common"
	"github.com/goran-ethernal/TezosIndexor/internal/config"
	"github.com/goran-ethernal/TezosIndexor/internal/db"
	"github.com/goran-ethernal/TezosIndexor/internal/indexer"
	"github.com/goran-ethernal/TezosIndexor/internal/logger"
	"github.com/goran-ethernal/TezosIndexor/internal/metrics"
	"github.com/goran-ethernal/TezosIndexor/internal/migrations"
	"github.com/goran-ethernal/TezosIndexor/internal/rpc"
	"github.com/goran-ethernal/TezosIndexor/pkg/api"
	pkgconfig "github.com/goran-ethernal/TezosIndexor/pkg/config"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║         TezosIndexor v%s               ║
║      Tezos Chain Indexing Service         ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "TezosIndexor - Tezos chain indexing service",
	Long: `TezosIndexor is a long-running service that tracks a Tezos node's
canonical chain, downloads blocks with their operations, accounts and voting
state, repairs forks of the locally indexed branch, and persists normalized
records into a local SQLite store served over a small HTTP API.`,
	Version: version,
	RunE:    runIndexer,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the configuration file",
	Long:  `Emit the JSON Schema describing every recognized configuration option, for editor completion and validation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema := jsonschema.Reflect(&pkgconfig.Config{})

		encoded, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}

		fmt.Println(string(encoded))
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(schemaCmd)
}

func runIndexer(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	// Load configuration
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	log := logger.NewComponentLoggerFromConfig(common.ComponentIndexer, cfg.Logging)
	defer log.Close()

	// Initialize RPC client
	log.Infof("connecting to Tezos node %s:%d", cfg.Node.Host, cfg.Node.Port)
	client, err := rpc.NewClient(cfg.Node, log)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}

	// Handle shutdown signals: reject new RPC calls immediately, then stop
	// the loop.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down gracefully")
		client.Shutdown()
		cancel()
	}()

	// Run database migrations
	if err := migrations.RunMigrations(cfg.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Open the store
	database, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	store, err := db.NewStore(database, log)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer store.Close()

	// Initialize metrics server if enabled
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("failed to stop metrics server: %v", err)
			}
		}()
	}

	// Initialize API server if enabled
	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, store, log.WithComponent(common.ComponentAPI))
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer func() {
			if err := apiServer.Stop(); err != nil {
				log.Warnf("failed to stop API server: %v", err)
			}
		}()
	}

	// Wire the sync engine and run the indexing loop
	engine, err := chainsync.New(cfg.Sync, client, store, log)
	if err != nil {
		return fmt.Errorf("failed to create sync engine: %w", err)
	}

	runner, err := indexer.NewRunner(cfg.Sync, engine, store, log)
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}
