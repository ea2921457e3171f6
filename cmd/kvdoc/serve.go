package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/kvdoc/pkg/api"
	"github.com/cuemby/kvdoc/pkg/backup"
	"github.com/cuemby/kvdoc/pkg/config"
	"github.com/cuemby/kvdoc/pkg/importer"
	"github.com/cuemby/kvdoc/pkg/log"
	"github.com/cuemby/kvdoc/pkg/metrics"
	"github.com/cuemby/kvdoc/pkg/namespace"
	"github.com/cuemby/kvdoc/pkg/pubsub"
	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kvdoc HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := rootCmd.PersistentFlags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("port") {
			port, _ := cmd.Flags().GetInt("port")
			cfg.Port = port
		}

		// LOG_LEVEL / LOG_JSON (or the config file) apply unless the
		// corresponding flag was given explicitly.
		flags := rootCmd.PersistentFlags()
		logLevel, logJSON := cfg.LogLevel, cfg.LogJSON
		if flags.Changed("log-level") {
			logLevel, _ = flags.GetString("log-level")
		}
		if flags.Changed("log-json") {
			logJSON, _ = flags.GetBool("log-json")
		}
		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

		metrics.SetVersion(Version)

		engine, err := storage.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open storage engine: %w", err)
		}
		defer engine.Close()
		metrics.RegisterComponent("storage", true, "ready")

		registry := pubsub.NewRegistry()

		pool := backup.NewPool(cfg.Workers)
		defer pool.Stop()

		orchestrator := backup.NewOrchestrator(engine, pool, cfg.BackupDir)
		if err := orchestrator.EnsureCFs(); err != nil {
			return fmt.Errorf("failed to initialize backup column families: %w", err)
		}
		if err := namespace.EnsureCFs(engine); err != nil {
			return fmt.Errorf("failed to initialize namespace column families: %w", err)
		}

		imp := importer.New(engine, registry)

		server := api.New(engine, registry, orchestrator, imp, cfg.AdminToken, cfg.BackupDir)
		metrics.RegisterComponent("api", true, "ready")

		if cfg.MetricsAddr != "" {
			go serveMetrics(cfg.MetricsAddr)
		}

		addr := fmt.Sprintf(":%d", cfg.Port)
		httpServer := &http.Server{
			Addr:    addr,
			Handler: server.Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info(fmt.Sprintf("kvdoc listening on %s", addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down...")
		case err := <-errCh:
			log.Errorf("server error", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		log.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides PORT env var and config file)")
}

// serveMetrics runs a second HTTP listener exposing only /metrics and the
// health endpoints, for operators who don't want scrape traffic on the same
// port as tenant requests.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", metrics.HealthHandler())
	mux.Handle("/readyz", metrics.ReadyHandler())
	mux.Handle("/livez", metrics.LivenessHandler())

	log.Info(fmt.Sprintf("metrics listening on %s", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Errorf("metrics server error", err)
	}
}
