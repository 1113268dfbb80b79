package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fleet-presence-api/api/swagger"
	"github.com/noah-isme/fleet-presence-api/internal/handler"
	internalmiddleware "github.com/noah-isme/fleet-presence-api/internal/middleware"
	"github.com/noah-isme/fleet-presence-api/internal/models"
	"github.com/noah-isme/fleet-presence-api/internal/repository"
	"github.com/noah-isme/fleet-presence-api/internal/service"
	"github.com/noah-isme/fleet-presence-api/pkg/cache"
	"github.com/noah-isme/fleet-presence-api/pkg/config"
	"github.com/noah-isme/fleet-presence-api/pkg/database"
	"github.com/noah-isme/fleet-presence-api/pkg/export"
	"github.com/noah-isme/fleet-presence-api/pkg/jobs"
	"github.com/noah-isme/fleet-presence-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fleet-presence-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fleet-presence-api/pkg/middleware/requestid"
	"github.com/noah-isme/fleet-presence-api/pkg/storage"
)

// @title Fleet Presence API
// @version 1.0.0
// @description Driver attendance ledger with kiosk self-reporting, manager actions and exports
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

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logr.Warn("invalid APP_TIMEZONE, falling back to UTC", zap.String("timezone", cfg.Timezone))
		loc = time.UTC
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, running without dashboard cache", zap.Error(err))
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Dashboard.CacheTTL, logr, false)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close()
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled)
	}

	localStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()
	service.RegisterAttendanceValidations(validate)

	userRepo := repository.NewUserRepository(db)
	driverRepo := repository.NewDriverRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "fleet-presence-api",
	})

	attendanceSvc := service.NewAttendanceService(service.AttendanceServiceParams{
		Ledger:    attendanceRepo,
		Drivers:   driverRepo,
		Cache:     cacheSvc,
		Validator: validate,
		Logger:    logr,
		Location:  loc,
	})

	driverSvc := service.NewDriverService(driverRepo, cacheSvc, validate, logr)

	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Drivers:  driverRepo,
		Ledger:   attendanceRepo,
		Cache:    cacheSvc,
		Logger:   logr,
		Location: loc,
		CacheTTL: cfg.Dashboard.CacheTTL,
	})

	var exportSvc *service.ExportService
	archiveQueue := jobs.NewQueue("export-archive", func(ctx context.Context, job jobs.Job) error {
		return exportSvc.ArchiveHandler()(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Exports.ArchiveWorkers,
		MaxRetries: cfg.Exports.ArchiveRetries,
		Logger:     logr,
	})
	exportSvc = service.NewExportService(service.ExportServiceParams{
		Reports: attendanceSvc,
		CSV:     export.NewCSVExporter(cfg.Exports.IncludeBOM),
		PDF:     export.NewPDFExporter(),
		Storage: localStorage,
		Signer:  signer,
		Queue:   archiveQueue,
		Logger:  logr,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archiveQueue.Start(rootCtx)
	defer archiveQueue.Stop()

	go cleanupArchives(rootCtx, localStorage, cfg.Exports.CleanupInterval, cfg.Exports.SignedURLTTL, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	driverHandler := handler.NewDriverHandler(driverSvc, attendanceSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	exportHandler := handler.NewExportHandler(exportSvc)

	kioskLimiter := internalmiddleware.NewTokenBucket(cfg.Kiosk.RateLimitBurst, cfg.Kiosk.RateLimitPerMinute)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", internalmiddleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", internalmiddleware.JWT(authSvc), authHandler.Me)

	api.POST("/attendance", kioskLimiter.RateLimit(), attendanceHandler.Kiosk)
	api.GET("/attendance/export/download", exportHandler.Download)

	protected := api.Group("", internalmiddleware.JWT(authSvc))
	protected.PUT("/attendance/:id",
		internalmiddleware.Audit(userRepo, models.AuditActionCorrection, "attendance"),
		attendanceHandler.Correct)
	protected.GET("/attendance/export",
		internalmiddleware.RequireRoles(models.RoleAdmin),
		internalmiddleware.Audit(userRepo, models.AuditActionExport, "attendance"),
		exportHandler.Export)

	protected.GET("/dashboard", dashboardHandler.Board)

	protected.GET("/drivers", driverHandler.List)
	protected.POST("/drivers", driverHandler.Create)
	protected.GET("/drivers/:id", driverHandler.Get)
	protected.PUT("/drivers/:id", driverHandler.Update)
	protected.DELETE("/drivers/:id", driverHandler.Delete)
	protected.GET("/drivers/:id/history", driverHandler.History)
	protected.POST("/drivers/:id/attendance", driverHandler.RecordAttendance)
	protected.POST("/drivers/:id/attendance/manual",
		internalmiddleware.Audit(userRepo, models.AuditActionManualEntry, "attendance"),
		driverHandler.RecordManual)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown interrupted", zap.Error(err))
	}
}

func cleanupArchives(ctx context.Context, store *storage.LocalStorage, interval, ttl time.Duration, logr *zap.Logger) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupOlderThan(ttl)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}
