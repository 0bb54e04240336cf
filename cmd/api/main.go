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

	_ "github.com/sklapp/skl-api/api/swagger"
	"github.com/sklapp/skl-api/internal/handler"
	"github.com/sklapp/skl-api/internal/middleware"
	"github.com/sklapp/skl-api/internal/models"
	"github.com/sklapp/skl-api/internal/repository"
	"github.com/sklapp/skl-api/internal/service"
	"github.com/sklapp/skl-api/pkg/cache"
	"github.com/sklapp/skl-api/pkg/config"
	"github.com/sklapp/skl-api/pkg/database"
	"github.com/sklapp/skl-api/pkg/logger"
	corsmiddleware "github.com/sklapp/skl-api/pkg/middleware/cors"
	reqidmiddleware "github.com/sklapp/skl-api/pkg/middleware/requestid"
	"github.com/sklapp/skl-api/pkg/pdf"
	"github.com/sklapp/skl-api/pkg/storage"
)

// @title SKL API
// @version 1.0.0
// @description Surat Keterangan Lulus management and certificate issuance
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
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	// Repositories.
	studentRepo := repository.NewStudentRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Certificates.CacheTTL, logr, cfg.Certificates.CacheEnabled)
	renderer := pdf.NewCertificateRenderer(cfg.Certificates.AssetsDir)
	certificateSvc := service.NewCertificateService(studentRepo, gradeRepo, settingsRepo, renderer, cacheSvc, metricsSvc, logr)
	verificationSvc := service.NewVerificationService(studentRepo, userRepo, certificateSvc, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, certificateSvc, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, studentRepo, subjectRepo, certificateSvc, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, validate)
	settingsSvc := service.NewSettingsService(settingsRepo, userRepo, certificateSvc, cacheSvc, validate, logr)
	userSvc := service.NewUserService(userRepo, studentRepo, validate, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "skl-api",
	})

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(studentRepo, certificateSvc, store, signer, userRepo, metricsSvc, logr, service.ExportQueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
		})
		exportSvc.Start(context.Background())
		defer exportSvc.Stop()
		exportSvc.CleanupExpired(cfg.Exports.SignedURLTTL)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	verificationHandler := handler.NewVerificationHandler(verificationSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)
	userHandler := handler.NewUserHandler(userSvc)
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

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		session := auth.Group("")
		session.Use(middleware.JWT(authSvc))
		session.POST("/logout", authHandler.Logout)
		session.POST("/change-password", authHandler.ChangePassword)
		session.GET("/me", authHandler.Me)
	}

	students := api.Group("/students")
	students.Use(middleware.JWT(authSvc))
	{
		students.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), studentHandler.List)
		students.POST("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(userRepo, models.AuditActionStudentCreate, "student"), studentHandler.Create)
		students.POST("/import", middleware.RequireRoles(models.RoleAdmin), studentHandler.Import)
		students.GET("/export", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), studentHandler.ExportCSV)

		students.GET("/:id", middleware.RBAC("ADMIN", "GURU", "SELF"), studentHandler.Get)
		students.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(userRepo, models.AuditActionStudentUpdate, "student"), studentHandler.Update)
		students.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(userRepo, models.AuditActionStudentDelete, "student"), studentHandler.Delete)

		students.POST("/:id/verification", middleware.RequireRoles(models.RoleAdmin), verificationHandler.Submit)
		students.POST("/:id/verification/reopen", middleware.RequireRoles(models.RoleAdmin), verificationHandler.Reopen)

		students.GET("/:id/certificate", middleware.RBAC("ADMIN", "GURU", "SELF"), certificateHandler.Download)
		students.GET("/:id/certificate/preview", middleware.RBAC("ADMIN", "GURU", "SELF"), certificateHandler.Preview)

		students.GET("/:id/grades", middleware.RBAC("ADMIN", "GURU", "SELF"), gradeHandler.ListByStudent)
		students.PUT("/:id/grades", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), middleware.Audit(userRepo, models.AuditActionGradeUpsert, "grade"), gradeHandler.Upsert)
		students.PUT("/:id/grades/bulk", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), middleware.Audit(userRepo, models.AuditActionGradeUpsert, "grade"), gradeHandler.BulkUpsert)
	}

	subjects := api.Group("/subjects")
	subjects.Use(middleware.JWT(authSvc))
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		subjects.POST("", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(userRepo, models.AuditActionSubjectCreate, "subject"), subjectHandler.Create)
	}

	settings := api.Group("/settings")
	settings.Use(middleware.JWT(authSvc))
	{
		settings.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), settingsHandler.Get)
		settings.PUT("", middleware.RequireRoles(models.RoleAdmin), settingsHandler.Update)
	}

	users := api.Group("/users")
	users.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", middleware.Audit(userRepo, models.AuditActionUserCreate, "user"), userHandler.Create)
	}

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		exports := api.Group("/exports")
		// Download authenticates through the signed token itself.
		exports.GET("/download", exportHandler.Download)

		adminExports := exports.Group("")
		adminExports.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
		adminExports.POST("", exportHandler.Create)
		adminExports.GET("/:id", exportHandler.Get)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
