package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/clinsync/air-submit-api/api/swagger"
	"github.com/clinsync/air-submit-api/internal/air"
	"github.com/clinsync/air-submit-api/internal/handler"
	"github.com/clinsync/air-submit-api/internal/middleware"
	"github.com/clinsync/air-submit-api/internal/models"
	"github.com/clinsync/air-submit-api/internal/repository"
	"github.com/clinsync/air-submit-api/internal/service"
	"github.com/clinsync/air-submit-api/pkg/cache"
	"github.com/clinsync/air-submit-api/pkg/config"
	"github.com/clinsync/air-submit-api/pkg/database"
	"github.com/clinsync/air-submit-api/pkg/jobs"
	"github.com/clinsync/air-submit-api/pkg/logger"
	corsmiddleware "github.com/clinsync/air-submit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/clinsync/air-submit-api/pkg/middleware/requestid"
	"github.com/clinsync/air-submit-api/pkg/storage"
)

// @title AIR Submission API
// @version 1.0.0
// @description Vaccination record submission gateway for the Australian Immunisation Register
// @BasePath /api/v1
// @schemes http

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
	sugar := logr.Sugar()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Progress snapshots fall back to the database when redis is down.
		sugar.Warnw("redis unavailable, progress caching disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()

	submissionRepo := repository.NewSubmissionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Submissions.ProgressCacheTTL, logr, redisClient != nil)
	registryClient := air.NewClient(cfg.Registry, logr, metricsSvc)
	tokenSvc := service.NewTokenService(cfg.JWT)

	fileStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		sugar.Fatalw("failed to prepare report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	reportSvc := service.NewReportService(submissionRepo, fileStore, signer, service.ReportConfig{APIPrefix: cfg.APIPrefix}, logr, nil, nil)

	var submissionSvc *service.SubmissionService
	queue := jobs.NewQueue("submissions", func(ctx context.Context, job jobs.Job) error {
		return submissionSvc.HandleJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Submissions.WorkerConcurrency,
		BufferSize: cfg.Submissions.QueueBuffer,
		MaxRetries: 0,
		Logger:     logr,
	})
	submissionSvc = service.NewSubmissionService(submissionRepo, queue, registryClient, cacheSvc, metricsSvc, logr)
	confirmationSvc := service.NewConfirmationService(submissionRepo, registryClient, cacheSvc, logr)

	queue.Start(context.Background())
	defer queue.Stop()

	recoverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := submissionSvc.RecoverUnfinished(recoverCtx); err != nil {
		sugar.Warnw("failed to recover unfinished submissions", "error", err)
	}
	cancel()

	submissionHandler := handler.NewSubmissionHandler(submissionSvc, confirmationSvc)
	reportHandler := handler.NewReportHandler(reportSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Mutating routes additionally require a known role: tokens from the
	// identity provider can carry roles this service does not recognise.
	operator := middleware.RequireRole(models.RoleAdmin, models.RoleOperator)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		api.POST("/submissions/validate", submissionHandler.Validate)
		api.POST("/submissions", operator, middleware.Audit(logr, "submission.create"), submissionHandler.Create)
		api.GET("/submissions", submissionHandler.List)
		api.GET("/submissions/:id", submissionHandler.Get)
		api.POST("/submissions/:id/pause", operator, middleware.Audit(logr, "submission.pause"), submissionHandler.Pause)
		api.POST("/submissions/:id/resume", operator, middleware.Audit(logr, "submission.resume"), submissionHandler.Resume)
		api.GET("/submissions/:id/pending", submissionHandler.Pending)
		api.POST("/submissions/:id/encounters/:index/confirm", operator, middleware.Audit(logr, "submission.confirm"), submissionHandler.Confirm)
		api.POST("/submissions/:id/encounters/:index/resubmit", operator, middleware.Audit(logr, "submission.resubmit"), submissionHandler.Resubmit)
		api.POST("/submissions/:id/confirm-all", operator, middleware.Audit(logr, "submission.confirm_all"), submissionHandler.ConfirmAll)
		api.GET("/submissions/:id/report", reportHandler.Generate)
		api.GET("/reports/download/:token", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	sugar.Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		sugar.Fatalw("server failed", "error", err)
	}
}
