package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/document-pipeline/internal/bootstrap"
	"github.com/kirillkom/document-pipeline/internal/config"
	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-pipeline/internal/observability/logging"
	"github.com/kirillkom/document-pipeline/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, "worker", cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NATSURL == "" {
		logger.Error("worker_requires_nats", "env", "NATS_URL")
		os.Exit(1)
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, "worker", logger, workerMetrics.Registerer())
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSIngestSubject)
	err = app.Queue.SubscribeIngest(ctx, func(_ context.Context, msg nats.IngestMessage) error {
		started := time.Now()
		workerMetrics.StartIngest()
		size, err := enqueue(app, msg)
		workerMetrics.FinishIngest(msg.MimeType, size, time.Since(started), err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}

// enqueue hands the message to the upload scheduler; processing continues
// after the handler returns.
func enqueue(app *bootstrap.App, msg nats.IngestMessage) (int, error) {
	data := msg.Data
	if len(data) == 0 {
		raw, err := os.ReadFile(msg.Path)
		if err != nil {
			return 0, fmt.Errorf("read ingest file %s: %w", msg.Path, err)
		}
		data = raw
	}
	ids := app.Scheduler.Enqueue([]domain.UploadFile{{
		Name:     msg.Filename,
		MimeType: msg.MimeType,
		Data:     data,
	}}, domain.UploadOptions{
		Location:   msg.Location,
		LocalOnly:  msg.LocalOnly,
		Language:   msg.Language,
		ShareImage: msg.ShareImage,
	})
	app.Logger.Info("ingest_enqueued", "filename", msg.Filename, "item_id", ids[0])
	return len(data), nil
}
