// Command esindexer runs the chain-data indexing pipeline: it subscribes
// to a blockchain controller's accepted-block, irreversible-block,
// accepted-transaction, and applied-transaction signals, and writes
// structured documents to an Elasticsearch-compatible document store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eosplugins/chainindex/internal/common"
	"github.com/eosplugins/chainindex/internal/config"
	"github.com/eosplugins/chainindex/internal/logger"
	"github.com/eosplugins/chainindex/internal/metrics"
	"github.com/eosplugins/chainindex/internal/pipeline"
	"github.com/eosplugins/chainindex/pkg/chain"
	"github.com/eosplugins/chainindex/pkg/docstore"
	pkgconfig "github.com/eosplugins/chainindex/pkg/config"
)

const version = "0.1.0"

var (
	configPath   string
	dropExisting bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "esindexer",
	Short:   "esindexer indexes blockchain data into an Elasticsearch-compatible document store",
	Version: version,
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.Flags().BoolVar(&dropExisting, "drop-index", false, "drop and recreate the index on startup")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log := logger.NewComponentLoggerFromConfig(common.ComponentPipeline, cfg.Logging)

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics, logger.NewComponentLoggerFromConfig(common.ComponentMetrics, cfg.Logging))
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(context.Background()); err != nil {
				log.Warnf("failed to stop metrics server: %v", err)
			}
		}()
		log.Infof("metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	store, err := docstore.NewClient(cfg.DocStore, logger.NewComponentLoggerFromConfig(common.ComponentDocStore, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create document store client: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, cfg.DocStore.ConnectTimeout.Duration)
	defer waitCancel()
	log.Info("waiting for document store...")
	if err := store.WaitReady(waitCtx); err != nil {
		return fmt.Errorf("document store not reachable: %w", err)
	}

	controller := newController(cfg, logger.NewComponentLoggerFromConfig(common.ComponentPipeline, cfg.Logging))
	go func() {
		if err := controller.Run(ctx); err != nil {
			log.Warnf("controller polling loop exited: %v", err)
		}
	}()

	orch := pipeline.New(controller, store, cfg.Indexer, logger.NewComponentLoggerFromConfig(common.ComponentPipeline, cfg.Logging))

	mapping, err := loadMapping(cfg.DocStore.MappingPath)
	if err != nil {
		return fmt.Errorf("failed to load index mapping: %w", err)
	}

	if err := orch.Init(ctx, mapping, dropExisting); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	log.Info("esindexer started")

	<-ctx.Done()

	log.Info("shutting down esindexer...")
	orch.Stop()
	log.Info("esindexer stopped")
	return nil
}

func loadMapping(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

func newController(cfg *pkgconfig.Config, log *logger.Logger) *chain.HTTPController {
	return chain.NewHTTPController(chain.HTTPControllerConfig{
		NodeURL:        cfg.Controller.NodeURL,
		PollInterval:   cfg.Controller.PollInterval.Duration,
		RequestTimeout: cfg.Controller.RequestTimeout.Duration,
	}, log)
}
