package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/document-pipeline/internal/config"
	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
	"github.com/kirillkom/document-pipeline/internal/core/usecase"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/classifier"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/extractor"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/extractor/fields"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/imageproc"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/ocr"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/ocr/tesseract"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/persistence"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/document-pipeline/internal/observability/metrics"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	Config config.Config
	Logger *slog.Logger

	Pipeline   *metrics.PipelineMetrics
	Uploader   *usecase.UploadUseCase
	Scheduler  *usecase.UploadScheduler
	Documents  *usecase.DocumentUseCase
	Recognizer *ocr.Recognizer
	// Queue is nil when NATS_URL is empty.
	Queue *nats.Queue

	closeFns []func()
}

// New wires every adapter into the upload use cases. service labels the
// metrics registered on registerer.
func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger, registerer prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	router, err := app.persistence(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cls, err := newClassifier(cfg.PatternsFile)
	if err != nil {
		return nil, fmt.Errorf("init classifier: %w", err)
	}

	images := imageproc.NewProcessor(imageproc.Options{
		MaxWidth:    cfg.PreprocessMaxWidth,
		MaxHeight:   cfg.PreprocessMaxHeight,
		Denoise:     true,
		Stretch:     true,
		Binarize:    true,
		ClipPercent: imageproc.DefaultOptions().ClipPercent,
	}, cfg.CompressMaxDimension, cfg.CompressJPEGQuality)

	engine := tesseract.New(cfg.TesseractBin, logger)
	app.Recognizer = ocr.NewRecognizer(engine, cls, ocr.Config{
		DefaultLanguage: domain.Language(cfg.OCRDefaultLanguage),
		PassTimeout:     cfg.OCRTimeout,
		DetectTimeout:   cfg.OCRTimeout / 3,
		MaxImageBytes:   cfg.MaxFileBytes,
		Sampler:         images.Sample,
	}, logger)
	app.closeFns = append(app.closeFns, func() {
		if err := app.Recognizer.Terminate(); err != nil {
			logger.Warn("ocr_terminate_failed", "error", err)
		}
	})

	textExtractor := extractor.NewMux().
		Register("application/pdf", pdftext.NewExtractor(cfg.MaxPDFPages)).
		Register("text/plain", plaintext.NewExtractor())

	app.Pipeline = metrics.NewPipelineMetrics(service, registerer)

	enhancer, err := newEnhancer(cfg, cls.Types(), app.Pipeline, logger)
	if err != nil {
		return nil, err
	}

	var events ports.EventPublisher
	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSIngestSubject, cfg.NATSProcessedSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.Config{
				Retry:   resilience.DefaultRetryPolicy(),
				Breaker: resilience.DefaultBreakerPolicy(),
				Logger:  logger,
			}),
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)
		events = queue
	}

	location := domain.StorageLocation(cfg.DefaultStorageLocation)
	app.Uploader = usecase.NewUploadUseCase(usecase.UploadConfig{
		MaxFileBytes:                      cfg.MaxFileBytes,
		MinImageDimension:                 cfg.MinImageDimension,
		AllowedMIMETypes:                  cfg.AllowedMIMETypes,
		OCRConfidenceThreshold:            cfg.OCRConfidenceThreshold,
		ClassificationConfidenceThreshold: cfg.ClassificationConfidenceThreshold,
		DefaultLocation:                   location,
	}, usecase.UploadDeps{
		Images:      images,
		Recognizer:  app.Recognizer,
		Extractor:   textExtractor,
		Classifier:  cls,
		Fields:      fields.NewExtractor(),
		Anonymizer:  fields.NewAnonymizer(),
		Enhancer:    enhancer,
		Persistence: router,
		Events:      events,
		Observer:    app.Pipeline,
		Logger:      logger,
	})

	app.Scheduler = usecase.NewUploadScheduler(app.Uploader, cfg.MaxConcurrency, app.Pipeline, logger)
	// Registered last so it runs first: in-flight uploads still need the recognizer and stores.
	app.closeFns = append(app.closeFns, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Scheduler.Shutdown(shutdownCtx); err != nil {
			logger.Warn("scheduler_shutdown_timeout", "error", err)
		}
	})
	app.Documents = usecase.NewDocumentUseCase(router, location)

	go func() {
		if err := app.Recognizer.Initialize(ctx); err != nil {
			logger.Warn("ocr_warmup_failed", "error", err)
		}
	}()

	logger.Info("bootstrap_ready",
		"reasoning_provider", cfg.ReasoningProvider,
		"cloud_storage", cfg.PostgresDSN != "",
		"nats", app.Queue != nil,
		"max_concurrency", cfg.MaxConcurrency,
	)
	ok = true
	return app, nil
}

// persistence opens the local stores and, when configured, the cloud one.
func (a *App) persistence(ctx context.Context, cfg config.Config) (*persistence.Router, error) {
	blobs, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}
	localDB, err := sqlite.OpenDB(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	a.closeDB(localDB)
	local := sqlite.NewDocumentRepository(localDB, blobs)
	if err := local.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}

	var cloud ports.DocumentStore
	if cfg.PostgresDSN != "" {
		cloudDB, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closeDB(cloudDB)
		repo := postgres.NewDocumentRepository(cloudDB)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		cloud = repo
	}
	return persistence.NewRouter(local, cloud, a.Logger), nil
}

func (a *App) closeDB(db *sql.DB) {
	a.closeFns = append(a.closeFns, func() { _ = db.Close() })
}

func newClassifier(patternsFile string) (*classifier.Classifier, error) {
	if patternsFile == "" {
		return classifier.NewDefault()
	}
	table, err := classifier.LoadTableFile(patternsFile)
	if err != nil {
		return nil, err
	}
	return classifier.New(table)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
