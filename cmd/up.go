package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"pipectl/internal/adminapi"
	"pipectl/internal/config"
	"pipectl/internal/metrics"
	"pipectl/internal/orchestrator"
	"pipectl/internal/reporting"
	"pipectl/pkg/logging"
)

func newUpCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start supervising the configured pipeline",
		Long: `Loads the pipeline configuration, builds the dependency graph, and
supervises every node until interrupted or shut down via the admin API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a pipeline config file (overrides layered lookup)")

	return cmd
}

func runUp(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logging.Init(logging.ParseLevel(cfg.GlobalSettings.LogLevel), os.Stderr)

	bus := reporting.NewEventBus()
	defer bus.Close()

	reporter := reporting.NewConsoleReporter(bus, nil)
	defer reporter.Close()

	registry := prometheus.NewRegistry()
	busMetrics := metrics.New(registry, bus)
	defer busMetrics.Close()

	orch, err := orchestrator.New(orchestrator.Config{Pipeline: cfg.Pipeline}, bus)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		return err
	}

	var admin *adminapi.Server
	if cfg.Admin.Enabled {
		admin = adminapi.New(orch, registry, cfg.Admin.Host, cfg.Admin.Port, stop)
		go func() {
			if err := admin.Start(); err != nil && err != http.ErrServerClosed {
				logging.Error("AdminAPI", err, "Admin server exited")
			}
		}()
	}

	<-ctx.Done()
	logging.Info("Main", "Shutdown signal received")

	orch.Stop()

	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logging.Warn("AdminAPI", "Admin server shutdown: %v", err)
		}
	}

	return nil
}

func loadConfig(configPath string) (config.PipectlConfig, error) {
	if configPath != "" {
		return config.LoadConfigFromPath(configPath)
	}
	return config.LoadConfig()
}
