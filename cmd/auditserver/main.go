// Package main wires together the audit service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/api"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/clock/system"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/config"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/dispatcher"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/export"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/hash/sha256"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/id/uuid"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/logging"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/policy/ratelimit"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/progress"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/progress/sinks"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/provider"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/provider/dataforseo"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/provider/pagespeed"
	memorypublisher "github.com/bipulgarera-droid/seo-audit-slides/internal/publisher/memory"
	pubsubpublisher "github.com/bipulgarera-droid/seo-audit-slides/internal/publisher/pubsub"
	queueMemory "github.com/bipulgarera-droid/seo-audit-slides/internal/queue/memory"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/storage/gcs"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/storage/local"
	memoryStorage "github.com/bipulgarera-droid/seo-audit-slides/internal/storage/memory"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/storage/postgres"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/tracker"
	"github.com/bipulgarera-droid/seo-audit-slides/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		taskStore audit.TaskStore
		records   audit.RecordStore
	)
	if cfg.DB.DSN != "" {
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxConns),
			MinConns: int32(cfg.DB.MinConns),
		})
		if err != nil {
			logger.Fatal("postgres pool init failed", zap.Error(err))
		}
		defer pool.Close()
		pgTasks, err := postgres.NewTaskStore(pool, "audit_tasks")
		if err != nil {
			logger.Fatal("task store init failed", zap.Error(err))
		}
		pgRecords, err := postgres.NewRecordStore(pool, "audit_records")
		if err != nil {
			logger.Fatal("record store init failed", zap.Error(err))
		}
		taskStore, records = pgTasks, pgRecords
	} else {
		taskStore = memoryStorage.NewTaskStore()
		records = memoryStorage.NewRecordStore()
	}

	var blobs audit.BlobStore
	switch {
	case cfg.Storage.GCSBucket != "":
		gcsClient, err := gcstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := gcsClient.Close(); closeErr != nil {
				logger.Warn("gcs client close failed", zap.Error(closeErr))
			}
		}()
		blobs, err = gcs.New(gcsClient, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("gcs blob store init failed", zap.Error(err))
		}
	case cfg.Storage.LocalDir != "":
		blobs, err = local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			logger.Fatal("local blob store init failed", zap.Error(err))
		}
	default:
		blobs = memoryStorage.NewBlobStore()
	}

	var publisher audit.Publisher
	if cfg.PubSub.ProjectID != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := psClient.Close(); closeErr != nil {
				logger.Warn("pubsub client close failed", zap.Error(closeErr))
			}
		}()
		publisher = pubsubpublisher.New(psClient.Publisher(cfg.PubSub.TopicName))
	} else {
		publisher = memorypublisher.New()
	}

	clock := system.New()
	idGen := uuid.New()
	hasher := sha256.New()
	trk := tracker.New(taskStore, clock, idGen, logger.Named("tracker"))

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
		Budgets: map[string]ratelimit.Budget{
			dataforseo.ProviderKey: {
				RPS:   cfg.Providers.DataForSEO.RatePerSecond,
				Burst: cfg.Providers.DataForSEO.Burst,
			},
			pagespeed.ProviderKey: {
				RPS:   cfg.Providers.PageSpeed.RatePerSecond,
				Burst: cfg.Providers.PageSpeed.Burst,
			},
		},
	})

	dfsClient := dataforseo.NewClient(dataforseo.Config{
		BaseURL:  cfg.Providers.DataForSEO.BaseURL,
		Login:    cfg.Providers.DataForSEO.Login,
		Password: cfg.Providers.DataForSEO.Password,
		Timeout:  time.Duration(cfg.Providers.DataForSEO.TimeoutSeconds) * time.Second,
	}, limiter, logger.Named("dataforseo"))
	pollInterval := time.Duration(cfg.Providers.DataForSEO.PollIntervalSeconds) * time.Second
	registry, err := provider.NewRegistry(
		dataforseo.NewTechnicalAdapter(dfsClient, pollInterval, logger.Named("technical")),
		dataforseo.NewKeywordsAdapter(dfsClient, 0, 0),
		dataforseo.NewBacklinksAdapter(dfsClient),
		pagespeed.New(pagespeed.Config{
			BaseURL:  cfg.Providers.PageSpeed.BaseURL,
			APIKey:   cfg.Providers.PageSpeed.APIKey,
			Strategy: cfg.Providers.PageSpeed.Strategy,
			Timeout:  time.Duration(cfg.Providers.PageSpeed.TimeoutSeconds) * time.Second,
		}, limiter, logger.Named("pagespeed")),
	)
	if err != nil {
		logger.Fatal("adapter registry init failed", zap.Error(err))
	}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("prometheus sink init failed", zap.Error(err))
	}
	hub := progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      logger.Named("progress"),
	}, sinks.NewLogSink(logger.Named("events")), promSink)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := hub.Close(closeCtx); closeErr != nil {
			logger.Warn("progress hub close failed", zap.Error(closeErr))
		}
	}()

	var extraTemplates []export.Template
	for _, tc := range cfg.Export.Templates {
		tmpl := export.Template{
			Name:            tc.Name,
			Title:           tc.Title,
			RequireComplete: tc.RequireComplete,
		}
		for _, sc := range tc.Sections {
			tmpl.Sections = append(tmpl.Sections, export.Section{
				ID:     sc.ID,
				Title:  sc.Title,
				Source: audit.Source(sc.Source),
			})
		}
		extraTemplates = append(extraTemplates, tmpl)
	}
	exporter, err := export.NewExporter(blobs, hasher, cfg.Storage.ExportPrefix, logger.Named("export"), extraTemplates...)
	if err != nil {
		logger.Fatal("exporter init failed", zap.Error(err))
	}

	queue := queueMemory.NewQueue(cfg.Audit.QueueDepth)
	cancels := worker.NewCancelRegistry()
	workerCfg := worker.Config{
		SourceTimeout: cfg.SourceTimeout(),
		RetryDelay:    cfg.RetryDelay(),
		Topic:         cfg.PubSub.TopicName,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Audit.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			trk,
			records,
			registry,
			publisher,
			clock,
			hub,
			cancels,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(trk, records, dispatch, exporter, cancels, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Audit.Workers))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}
