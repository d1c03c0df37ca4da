package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/eshields/caseplan/internal/actionplan"
	"github.com/eshields/caseplan/internal/app"
	"github.com/eshields/caseplan/pkg/config"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the schedule worker",
	Long: `Run the long-lived worker: it consumes prisoner lifecycle events,
relays accepted status changes through the outbox and serves health probes.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	container, err := app.NewContainer(ctx, cfg, logger, app.Options{
		ActionPlanCheck: actionplan.NewClient(cfg.ActionPlanURL, nil),
	})
	if err != nil {
		return err
	}
	defer container.Close()

	logger.Info("starting caseplan worker")

	if cfg.OutboxProcessorEnabled {
		if err := container.OutboxProcessor.Start(ctx); err != nil {
			return err
		}
		defer container.OutboxProcessor.Stop()
	}

	if container.EventConsumer != nil {
		go func() {
			if err := container.EventConsumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("lifecycle consumer stopped", "error", err)
				stop()
			}
		}()
	}

	go runCleanupLoop(ctx, container, cfg)
	go runStatsLoop(ctx, container, cfg)

	if cfg.WorkerHealthAddr != "" {
		startHealthServer(ctx, container, cfg)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	return nil
}

func runCleanupLoop(ctx context.Context, container *app.Container, cfg *config.Config) {
	ticker := time.NewTicker(cfg.OutboxCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := container.OutboxRepo.DeleteOld(ctx, cfg.OutboxRetentionDays)
			if err != nil {
				logger.Error("outbox cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("outbox cleanup completed",
					"deleted", deleted,
					"retention_days", cfg.OutboxRetentionDays,
				)
			}
		}
	}
}

func runStatsLoop(ctx context.Context, container *app.Container, cfg *config.Config) {
	ticker := time.NewTicker(cfg.OutboxStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := container.OutboxProcessor.GetStats()
			logger.Info("outbox stats",
				"running", stats.IsRunning,
				"published", stats.PublishedCount,
				"failed", stats.FailedCount,
				"dead", stats.DeadCount,
				"last_processed_at", stats.LastProcessedAt,
				"last_error", stats.LastError,
			)
		}
	}
}

func startHealthServer(ctx context.Context, container *app.Container, cfg *config.Config) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		health := container.Health.GetOverallHealth(checkCtx)
		body, err := health.ToJSON()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write(body)
	})

	srv := &http.Server{
		Addr:              cfg.WorkerHealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()
}
