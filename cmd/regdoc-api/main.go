package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/clinforge/regdoc-api/api/swagger"
	"github.com/clinforge/regdoc-api/internal/handler"
	"github.com/clinforge/regdoc-api/internal/middleware"
	"github.com/clinforge/regdoc-api/internal/repository"
	"github.com/clinforge/regdoc-api/internal/service"
	"github.com/clinforge/regdoc-api/pkg/cache"
	"github.com/clinforge/regdoc-api/pkg/config"
	"github.com/clinforge/regdoc-api/pkg/database"
	"github.com/clinforge/regdoc-api/pkg/logger"
	corsmiddleware "github.com/clinforge/regdoc-api/pkg/middleware/cors"
	reqidmiddleware "github.com/clinforge/regdoc-api/pkg/middleware/requestid"
	"github.com/clinforge/regdoc-api/pkg/storage"
)

// @title RegDoc API
// @version 1.0.0
// @description Regulatory document lifecycle and submission gateway
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	lockRepo := repository.NewLockRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	redactionRepo := repository.NewRedactionRepository(db)
	harvestRepo := repository.NewHarvestRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	metricsSvc := service.NewMetricsService()

	var diffCache, redactionCache *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		diffCache = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.DiffTTL, logr, true)
		redactionCache = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.RedactionTTL, logr, true)
	} else {
		diffCache = service.NewCacheService(nil, metricsSvc, cfg.Cache.DiffTTL, logr, false)
		redactionCache = service.NewCacheService(nil, metricsSvc, cfg.Cache.RedactionTTL, logr, false)
	}

	authSvc := service.NewAuthService(userRepo, auditRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		Audience:           []string{cfg.JWT.Audience},
	})
	auditSvc := service.NewAuditService(auditRepo, logr)
	lockSvc := service.NewLockService(lockRepo, auditRepo, logr, service.LockServiceConfig{
		DefaultTTL: cfg.Locks.DefaultTTL,
		MaxTTL:     cfg.Locks.MaxTTL,
	})
	versionSvc := service.NewVersionService(versionRepo, docRepo, lockSvc, diffCache, auditRepo, logr)
	approvalSvc := service.NewApprovalService(approvalRepo, versionRepo, versionSvc, auditRepo, logr, cfg.Approvals.SigningSecret)
	redactionSvc := service.NewRedactionService(redactionRepo, docRepo, redactionCache, metricsSvc, auditRepo, logr)
	harvestSvc := service.NewHarvestService(harvestRepo, docRepo, versionRepo, versionSvc, lockSvc, metricsSvc, auditRepo, logr)

	bundleStore, err := storage.NewLocalStorage(cfg.Bundles.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init bundle storage", "error", err)
	}
	bundleSigner := storage.NewBundleURLSigner(cfg.Bundles.SignedURLSecret, cfg.Bundles.SignedURLTTL)

	transport, err := service.NewDropDirTransport(cfg.Gateway.DropDir, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init gateway transport", "error", err)
	}
	submissionSvc := service.NewSubmissionService(submissionRepo, docRepo, versionRepo, redactionSvc, approvalSvc, bundleStore, transport, metricsSvc, auditRepo, logr, service.SubmissionServiceConfig{
		AckWorkers:      cfg.Gateway.AckWorkers,
		AckRetryDelay:   cfg.Gateway.AckRetryDelay,
		EventPollPeriod: cfg.Gateway.EventPollPeriod,
	})

	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	handler.RegisterRoutes(api, handler.RouteDeps{
		AuthService: authSvc,
		AuditRepo:   auditRepo,
		Auth:        handler.NewAuthHandler(authSvc),
		Documents:   handler.NewDocumentHandler(versionSvc, lockSvc),
		Approvals:   handler.NewApprovalHandler(approvalSvc),
		Redaction:   handler.NewRedactionHandler(redactionSvc, versionSvc),
		Harvest:     handler.NewHarvestHandler(harvestSvc),
		Submissions: handler.NewSubmissionHandler(submissionSvc, bundleStore, bundleSigner),
		Audit:       handler.NewAuditHandler(auditSvc),
		Metrics:     metricsHandler,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	submissionSvc.Start(ctx)
	go lockSvc.Sweep(ctx, cfg.Locks.SweepInterval)
	go bundleStore.Sweep(ctx, time.Hour, cfg.Bundles.RetentionTTL, logr)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
	submissionSvc.Stop()
}
