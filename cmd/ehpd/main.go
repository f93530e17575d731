package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nsyy/eye-pacs/internal/archive"
	"github.com/nsyy/eye-pacs/internal/async"
	"github.com/nsyy/eye-pacs/internal/classify"
	"github.com/nsyy/eye-pacs/internal/common"
	"github.com/nsyy/eye-pacs/internal/core/runner"
	"github.com/nsyy/eye-pacs/internal/events"
	"github.com/nsyy/eye-pacs/internal/export"
	"github.com/nsyy/eye-pacs/internal/extract"
	"github.com/nsyy/eye-pacs/internal/ingest"
	"github.com/nsyy/eye-pacs/internal/mirror"
	"github.com/nsyy/eye-pacs/internal/ocr"
	"github.com/nsyy/eye-pacs/internal/pipeline"
	repo "github.com/nsyy/eye-pacs/internal/repository"
	"github.com/nsyy/eye-pacs/internal/scheduler"
	svc "github.com/nsyy/eye-pacs/internal/server"
	"github.com/nsyy/eye-pacs/internal/stability"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	// journald stamps lines itself, so drop the time attribute
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err, "driver", cfg.Database.Driver)
		os.Exit(1)
	}
	defer repo.Close(db, logger)

	if err := repo.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := repo.EnsureSchema(ctx, db, logger); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	reports := repo.NewReportRepository(db, logger)

	// Optional sinks
	var hooks []ingest.Hook
	procOpts := []pipeline.Option{pipeline.WithBatchSize(cfg.Extract.BatchSize)}
	if len(cfg.Events.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close event publisher", "error", err)
			}
		}()
		hooks = append(hooks, publisher)
		procOpts = append(procOpts, pipeline.WithNotifier(publisher))
		logger.Info("report events enabled", "brokers", strings.Join(cfg.Events.Brokers, ","), "topic", cfg.Events.Topic)
	}
	if cfg.Mirror.Bucket != "" {
		client, err := mirror.NewS3Client(ctx)
		if err != nil {
			logger.Error("failed to build s3 client", "error", err)
			os.Exit(1)
		}
		hooks = append(hooks, mirror.NewS3Mirror(client, cfg.Mirror.Bucket, cfg.Mirror.Prefix, cfg.Paths.DestDir, logger))
		logger.Info("archive mirroring enabled", "bucket", cfg.Mirror.Bucket, "prefix", cfg.Mirror.Prefix)
	}

	// Ingestion
	for _, dir := range []string{cfg.Paths.SourceDir, cfg.Paths.DestDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}
	exec := runner.Exec{}
	gate := stability.NewGate(logger,
		stability.WithSamples(cfg.Ingest.StabilitySamples),
		stability.WithInterval(cfg.Ingest.StabilityInterval),
		stability.WithLockChecker(stability.NewLsofChecker(cfg.OCR.Lsof, exec, logger)),
	)
	mover := archive.NewMover(cfg.Paths.DestDir, logger)
	loop := ingest.NewLoop(ingest.Config{
		SourceDir:     cfg.Paths.SourceDir,
		RetryAttempts: cfg.Ingest.RetryAttempts,
		RetryBackoff:  cfg.Ingest.RetryBackoff,
	}, reports, gate, classify.New(), mover, logger, ingest.WithHooks(hooks...))

	// Extraction
	ocrCfg := ocr.Config{
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Tesseract:   cfg.OCR.Tesseract,
		Language:    cfg.OCR.Language,
		DPI:         cfg.OCR.DPI,
		MaxPages:    1,
		TessdataDir: cfg.OCR.TessdataDir,
	}
	engine, engineCloser, err := ocr.NewEngine(cfg.OCR.Engine, ocrCfg, exec, logger)
	if err != nil {
		logger.Error("failed to start ocr engine", "engine", cfg.OCR.Engine, "error", err)
		os.Exit(1)
	}
	defer closeQuietly(engineCloser, logger)

	recognizer := ocr.NewPageRecognizer(engine, logger,
		ocr.WithMergeLevel(ocr.MergeLevel(cfg.OCR.MergeLevel)),
		ocr.WithRowThreshold(cfg.OCR.RowThreshold),
	)
	processor := pipeline.NewProcessor(reports,
		ocr.NewRasterizer(ocrCfg, exec, logger),
		extract.NewExtractor(recognizer, logger, extract.WithRenderDPI(cfg.OCR.DPI)),
		logger,
		procOpts...,
	)

	queue := async.NewTaskQueue(logger, async.WithWorkers(4), async.WithTaskTimeout(10*time.Minute))
	queue.Register(svc.TaskIngest, func(ctx context.Context) error {
		_, err := loop.RunOnce(ctx)
		return err
	})
	queue.Register(svc.TaskExtract, func(ctx context.Context) error {
		_, err := processor.RunBatch(ctx)
		return err
	})

	sched := scheduler.New(queue, logger)
	for _, e := range []scheduler.Entry{
		{Task: svc.TaskIngest, Every: cfg.Ingest.PollInterval},
		{Task: svc.TaskExtract, Every: cfg.Extract.Interval},
	} {
		if err := sched.Add(e); err != nil {
			logger.Error("failed to schedule task", "task", e.Task, "error", err)
			os.Exit(1)
		}
	}
	sched.Start()

	if cfg.Ingest.Watch {
		evs, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:    []string{cfg.Paths.SourceDir},
			Debounce: cfg.Ingest.WatchDebounce,
		}, logger)
		if err != nil {
			// polling still covers the drop folder
			logger.Warn("file watcher unavailable", "error", err)
		} else {
			go ingest.TriggerOnEvents(ctx, evs, errs, func(path string) {
				if err := queue.Enqueue(svc.TaskIngest); err != nil && !errors.Is(err, common.ErrBusy) {
					logger.Warn("failed to enqueue ingest", "path", path, "error", err)
				}
			})
		}
	}

	// gRPC health
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reporter := svc.NewHealthReporter(healthServer, func(ctx context.Context) error {
		return repo.HealthCheck(ctx, db, 2*time.Second, logger)
	}, 30*time.Second, logger)
	go reporter.Run(ctx)

	go func() {
		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
		}
	}()

	// HTTP
	api := svc.NewAPI(queue, reports, export.NewService(reports, logger), mover, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("ehpd listening", "addr", cfg.Server.HTTPAddr, "source", cfg.Paths.SourceDir, "dest", cfg.Paths.DestDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	sched.Stop(shutdownCtx)
	queue.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func closeQuietly(c io.Closer, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "error", err)
	}
}
