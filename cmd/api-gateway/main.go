package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/journal-portal-api/api/swagger"
	"github.com/noah-isme/journal-portal-api/internal/handler"
	internalmiddleware "github.com/noah-isme/journal-portal-api/internal/middleware"
	"github.com/noah-isme/journal-portal-api/internal/repository"
	"github.com/noah-isme/journal-portal-api/internal/service"
	"github.com/noah-isme/journal-portal-api/pkg/cache"
	"github.com/noah-isme/journal-portal-api/pkg/config"
	"github.com/noah-isme/journal-portal-api/pkg/database"
	"github.com/noah-isme/journal-portal-api/pkg/jobs"
	"github.com/noah-isme/journal-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/journal-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/journal-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/journal-portal-api/pkg/storage"
)

// @title Journal Portal API
// @version 1.0.0
// @description Abstract review workflow and full paper copyright agreements
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	readiness := map[string]handler.Pinger{"postgres": db}

	var submissionCache *service.SubmissionCache
	if cfg.Review.CacheEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, submission cache disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
			submissionCache = service.NewSubmissionCache(cacheRepo, metrics, cfg.Review.CacheTTL, logr)
			readiness["redis"] = handler.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			})
		}
	}

	users := repository.NewUserRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	records := repository.NewCopyrightRepository(db)
	templates := repository.NewTemplateRepository(db)
	journals := repository.NewJournalRepository(db)

	txRunner := func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
		return database.WithTx(ctx, db, fn)
	}
	signer := storage.NewSignedURLSigner(cfg.Copyright.SignedURLSecret, cfg.Copyright.SignedURLTTL)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})

	reviewOpts := []service.ReviewServiceOption{service.WithReviewMetrics(metrics)}
	if submissionCache != nil {
		reviewOpts = append(reviewOpts, service.WithReviewCache(submissionCache))
	}
	reviewSvc := service.NewReviewService(submissions, users, users, validate, logr, reviewOpts...)
	exportSvc := service.NewExportService(submissions, logr, nil, nil)
	templateSvc := service.NewTemplateService(templates, users, txRunner, validate, logr)

	var copyrightSvc *service.CopyrightService
	renderQueue := jobs.NewQueue(service.JobTypeCopyrightPDF, func(ctx context.Context, job jobs.Job) error {
		return copyrightSvc.HandleRenderJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Copyright.WorkerConcurrency,
		MaxRetries: cfg.Copyright.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	copyrightSvc = service.NewCopyrightService(records, templates, journals, submissions, files, users, txRunner,
		service.CopyrightServiceConfig{APIPrefix: cfg.APIPrefix}, logr,
		service.WithRenderQueue(renderQueue),
		service.WithCopyrightSigner(signer),
		service.WithCopyrightMetrics(metrics),
	)
	manuscriptSvc := service.NewManuscriptService(records, submissions, files, signer, users, service.ManuscriptServiceConfig{
		MaxFileSize:  cfg.Copyright.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Copyright.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	}, logr)

	renderQueue.Start(ctx)
	defer renderQueue.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	ops := handler.NewMetricsHandler(metrics, readiness)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Routes{
		Auth:        handler.NewAuthHandler(authSvc),
		Submissions: handler.NewSubmissionHandler(reviewSvc, exportSvc, handler.WithPollInterval(cfg.Review.PollInterval)),
		Copyright:   handler.NewCopyrightHandler(copyrightSvc, templateSvc, manuscriptSvc),
		Ops:         ops,
		Tokens:      authSvc,
		Audit:       users,
		Logger:      logr,
	}.Register(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
