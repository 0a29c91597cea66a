package main

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/campus-lms-api/api/swagger"
	"github.com/noah-isme/campus-lms-api/internal/handler"
	"github.com/noah-isme/campus-lms-api/internal/repository"
	"github.com/noah-isme/campus-lms-api/internal/router"
	"github.com/noah-isme/campus-lms-api/internal/service"
	"github.com/noah-isme/campus-lms-api/pkg/cache"
	"github.com/noah-isme/campus-lms-api/pkg/chapa"
	"github.com/noah-isme/campus-lms-api/pkg/config"
	"github.com/noah-isme/campus-lms-api/pkg/database"
	"github.com/noah-isme/campus-lms-api/pkg/export"
	"github.com/noah-isme/campus-lms-api/pkg/jobs"
	"github.com/noah-isme/campus-lms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-lms-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-lms-api/pkg/storage"
)

// @title Campus LMS API
// @version 1.0.0
// @description Learning management backend: courses, assignments, grading, transcripts and paid enrollment
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Uploads.BaseDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare upload storage", "error", err)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	pairingRepo := repository.NewCourseAssignmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	transcriptRepo := repository.NewTranscriptRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	gateway := chapa.NewClient(cfg.Chapa.BaseURL, cfg.Chapa.SecretKey, cfg.Chapa.Timeout)
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	courseSvc := service.NewCourseService(courseRepo, pairingRepo, userRepo, cacheRepo, store, validate, logr, cfg.Cache.TTL)
	courseSvc.SetMetrics(metricsSvc)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, pairingRepo, enrollmentRepo, submissionRepo, store, validate, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, pairingRepo, enrollmentRepo, store, export.NewCSVExporter(), validate, logr)
	transcriptSvc := service.NewTranscriptService(transcriptRepo, userRepo, pairingRepo, enrollmentRepo, export.NewPDFExporter(), validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, enrollmentRepo, pairingRepo, validate, logr)

	paymentSvc := service.NewPaymentService(enrollmentRepo, courseRepo, gateway, userRepo, cacheRepo, nil, logr, cfg.Chapa.ReturnURL, cfg.Chapa.CallbackURL)
	verifyQueue := jobs.NewQueue("payment-verify", paymentSvc.VerifyJobHandler(), jobs.QueueConfig{
		Workers:    cfg.Payments.VerifyWorkers,
		MaxRetries: cfg.Payments.VerifyRetries,
		RetryDelay: cfg.Payments.RetryDelay,
		Logger:     logr,
	})
	paymentSvc.SetQueue(verifyQueue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	verifyQueue.Start(ctx)
	defer verifyQueue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.MaxMultipartMemory = cfg.Uploads.MaxFileSizeBytes

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Thumbnails are the only public scope. Materials and submission files
	// stay behind the authenticated download endpoints.
	r.StaticFS(
		path.Join(cfg.Uploads.PublicPrefix, storage.ScopeThumbnails),
		gin.Dir(filepath.Join(store.PublicDir(), storage.ScopeThumbnails), false),
	)

	router.Mount(r, cfg.APIPrefix, authSvc, metricsSvc, router.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Courses:       handler.NewCourseHandler(courseSvc, paymentSvc),
		Assignments:   handler.NewAssignmentHandler(assignmentSvc),
		Submissions:   handler.NewSubmissionHandler(submissionSvc, metricsSvc),
		Transcripts:   handler.NewTranscriptHandler(transcriptSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Payments:      handler.NewPaymentHandler(paymentSvc, metricsSvc),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
