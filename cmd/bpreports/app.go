package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/noah-isme/bp-reports-api/internal/handler"
	"github.com/noah-isme/bp-reports-api/internal/repository"
	"github.com/noah-isme/bp-reports-api/internal/service"
	"github.com/noah-isme/bp-reports-api/pkg/cache"
	"github.com/noah-isme/bp-reports-api/pkg/config"
	"github.com/noah-isme/bp-reports-api/pkg/database"
	"github.com/noah-isme/bp-reports-api/pkg/export"
	"github.com/noah-isme/bp-reports-api/pkg/jobs"
	"github.com/noah-isme/bp-reports-api/pkg/logger"
	"github.com/noah-isme/bp-reports-api/pkg/storage"
)

const (
	streamMaxLen  = 10000
	staleRunAfter = time.Hour
)

// app holds the shared clients and services used by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *sqlx.DB
	redis   *redis.Client
	mongo   *mongo.Client
	scratch *storage.Scratch
	metrics *service.MetricsService

	reports   *repository.ReportRequestRepository
	users     *repository.UserRepository
	orgs      *service.CachedOrgReader
	artifacts *service.ArtifactPublisher
	worker    *service.ReportWorker

	closers []func()
}

func newApp(ctx context.Context) (_ *app, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logr, metrics: service.NewMetricsService()}
	a.closers = append(a.closers, func() { _ = logr.Sync() })
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.db, err = database.NewPostgres(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.db.Close() })

	if a.redis, err = cache.NewRedis(ctx, cfg.Redis); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.redis.Close() })

	if a.mongo, err = database.NewMongo(cfg.Mongo); err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.mongo.Disconnect(context.Background()) })

	blob, mode, err := storage.NewStore(ctx, cfg.Blob, logr)
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	if a.scratch, err = storage.NewScratch(cfg.Reports.ScratchDir); err != nil {
		return nil, err
	}
	renderer, err := export.NewRenderer(cfg.Reports.ArtifactFormat)
	if err != nil {
		return nil, err
	}

	a.reports = repository.NewReportRequestRepository(a.db)
	a.users = repository.NewUserRepository(a.db)
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(a.redis), a.metrics, cfg.Cache.TTL, logr.Named("cache"), cfg.Cache.Enabled)
	a.orgs = service.NewCachedOrgReader(a.users, cacheSvc, cfg.Cache.TTL)
	surveys := repository.NewSurveyRepository(a.mongo.Database(cfg.Mongo.Database).Collection(cfg.Mongo.SurveyCollection))

	builder := service.NewReportBuilder(
		repository.NewBatchRepository(a.db),
		repository.NewWorkflowRepository(a.db, cfg.Reports.PageSize),
		a.users,
		surveys,
		service.ReportBuilderConfig{
			DefaultHeaders:     cfg.Reports.DefaultHeaders,
			ExcludedSurveyKeys: cfg.Reports.ExcludedSurveyKey,
		},
		logr.Named("builder"),
	)
	a.artifacts = service.NewArtifactPublisher(blob, a.scratch, cfg.Reports.Container, logr)
	a.worker = service.NewReportWorker(a.reports, builder, a.artifacts, renderer, a.metrics, logr.Named("worker"))

	logr.Info("app ready",
		zap.String("env", cfg.Env),
		zap.String("blob_mode", mode),
		zap.String("artifact_format", renderer.Extension()),
	)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) publisher() *jobs.StreamPublisher {
	return jobs.NewStreamPublisher(a.redis, a.cfg.Reports.Stream, streamMaxLen)
}

func (a *app) healthChecks() map[string]handler.HealthCheck {
	return map[string]handler.HealthCheck{
		"postgres": a.db.PingContext,
		"redis":    func(ctx context.Context) error { return a.redis.Ping(ctx).Err() },
		"mongo":    func(ctx context.Context) error { return a.mongo.Ping(ctx, nil) },
	}
}

// runConsumer feeds stream entries to a bounded pool until ctx is done. Runs
// already handed to the pool are allowed to finish.
func (a *app) runConsumer(ctx context.Context) error {
	if removed, err := a.scratch.CleanupOlderThan(staleRunAfter); err != nil {
		a.logger.Warn("scratch sweep failed", zap.Error(err))
	} else if len(removed) > 0 {
		a.logger.Info("removed stale scratch runs", zap.Int("count", len(removed)))
	}

	pool := jobs.NewPool("bp-reports", a.worker.Handle, jobs.PoolConfig{
		Workers:    a.cfg.Reports.Workers,
		BufferSize: a.cfg.Reports.BufferSize,
		MaxRetries: a.cfg.Reports.MaxRetries,
		Logger:     a.logger,
	})
	a.metrics.RegisterPoolGauge(pool.InFlight)
	pool.Start(context.WithoutCancel(ctx))
	defer pool.Stop()

	consumer := jobs.NewStreamConsumer(a.redis, jobs.StreamConsumerConfig{
		Stream:   a.cfg.Reports.Stream,
		Group:    a.cfg.Reports.ConsumerGroup,
		Consumer: a.cfg.Reports.ConsumerName,
		Block:    a.cfg.Reports.ReadBlock,
		Logger:   a.logger,
	})
	return consumer.Run(ctx, pool)
}
