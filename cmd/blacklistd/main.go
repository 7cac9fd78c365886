// Command blacklistd runs the actor blacklist integrity checker: it
// periodically reconciles the locally configured actor blacklist against
// the on-chain blacklist table and the hash this node last submitted, and
// exposes the result over an HTTP health/check_hash API.
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
	"github.com/eosplugins/chainindex/pkg/api"
	"github.com/eosplugins/chainindex/pkg/blacklist"
	"github.com/eosplugins/chainindex/pkg/chain"
)

const version = "0.1.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "blacklistd",
	Short:   "blacklistd reconciles the actor blacklist against on-chain state",
	Version: version,
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Blacklist == nil {
		return fmt.Errorf("blacklist section is required in config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log := logger.NewComponentLoggerFromConfig(common.ComponentBlacklist, cfg.Logging)

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

	keyPair, err := blacklist.ParseSignatureProvider(cfg.Blacklist.SignatureProvider, log)
	if err != nil {
		return fmt.Errorf("invalid signature_provider: %w", err)
	}

	controller := chain.NewHTTPController(chain.HTTPControllerConfig{
		NodeURL:        cfg.Controller.NodeURL,
		PollInterval:   cfg.Controller.PollInterval.Duration,
		RequestTimeout: cfg.Controller.RequestTimeout.Duration,
	}, logger.NewComponentLoggerFromConfig(common.ComponentBlacklist, cfg.Logging))
	go func() {
		if err := controller.Run(ctx); err != nil {
			log.Warnf("controller polling loop exited: %v", err)
		}
	}()

	reconciler := blacklist.New(controller, *cfg.Blacklist, keyPair, logger.NewComponentLoggerFromConfig(common.ComponentBlacklist, cfg.Logging))
	go reconciler.Run(ctx)

	var apiServer *api.Server
	if cfg.API != nil && cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, reconciler, logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging))
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				log.Errorf("API server error: %v", err)
			}
		}()
	}

	log.Info("blacklistd started")
	<-ctx.Done()
	log.Info("blacklistd stopped")
	return nil
}
