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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/coaching-console/internal/handler"
	"github.com/noah-isme/coaching-console/internal/middleware"
	"github.com/noah-isme/coaching-console/internal/mutation"
	"github.com/noah-isme/coaching-console/internal/query"
	"github.com/noah-isme/coaching-console/internal/repository"
	"github.com/noah-isme/coaching-console/internal/service"
	"github.com/noah-isme/coaching-console/pkg/cache"
	"github.com/noah-isme/coaching-console/pkg/config"
	"github.com/noah-isme/coaching-console/pkg/database"
	"github.com/noah-isme/coaching-console/pkg/jobs"
	"github.com/noah-isme/coaching-console/pkg/logger"
	corsmiddleware "github.com/noah-isme/coaching-console/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/coaching-console/pkg/middleware/requestid"
)

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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, preferences fall back to defaults", zap.Error(err))
	} else {
		redisClient = client
	}

	metricsSvc := service.NewMetricsService()

	queryClient := query.New(query.Config{
		Defaults: query.Options{
			StaleTime:      cfg.Query.StaleTime,
			CacheTime:      cfg.Query.CacheTime,
			Retry:          cfg.Query.Retry,
			RefetchOnFocus: true,
		},
		RetryBaseDelay: cfg.Query.RetryBaseDelay,
		RetryMaxDelay:  cfg.Query.RetryMaxDelay,
		FetchTimeout:   cfg.Query.FetchTimeout,
		Logger:         logr.Named("query"),
		Recorder:       metricsSvc,
	})
	defer queryClient.Close()
	go queryClient.RunGC(ctx, cfg.Query.GCInterval)

	pipeline := mutation.New(queryClient, mutation.Config{Logger: logr.Named("mutation"), Recorder: metricsSvc})

	sessions := service.NewSessionService(service.SessionConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}, queryClient, logr.Named("session"))
	core := service.Core{Cache: queryClient, Pipeline: pipeline, Identity: sessions}

	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	testRepo := repository.NewTestRepository(db)
	questionBankRepo := repository.NewQuestionBankRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(redisClient, cfg.Redis.PreferenceTTL, logr)
	defer preferenceRepo.Close() //nolint:errcheck

	syncWorker := service.NewAttendanceSyncWorker(core, attendanceRepo, studentRepo, logr.Named("attendance_sync"))
	syncQueue := jobs.NewQueue("attendance-sync", syncWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Sync.WorkerConcurrency,
		MaxRetries: cfg.Sync.WorkerRetries,
		RetryDelay: cfg.Sync.RetryDelay,
		Logger:     logr,
		OnGiveUp: func(job jobs.Job, err error) {
			logr.Error("attendance sync abandoned", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		},
	})
	syncQueue.Start(ctx)
	defer syncQueue.Stop()

	studentSvc := service.NewStudentService(core, studentRepo, nil, logr)
	attendanceSvc := service.NewAttendanceService(core, attendanceRepo, syncQueue, nil, logr)
	testSvc := service.NewTestService(core, testRepo, nil, logr)
	dashboardSvc := service.NewDashboardService(studentSvc, testSvc, service.DashboardServiceConfig{
		LowAttendanceThreshold: cfg.Attendance.LowThreshold,
		SummaryLimit:           cfg.Attendance.SummaryLimit,
	}, logr)
	preferenceSvc := service.NewPreferenceService(preferenceRepo, sessions, nil, logr)
	exportSvc := service.NewExportService(studentSvc, cfg.Attendance.LowThreshold, logr, nil, nil)
	questionBankSvc := service.NewQuestionBankService(core, questionBankRepo, 0, logr.Named("questionbank"))

	sessionHandler := handler.NewSessionHandler(sessions, queryClient)
	studentHandler := handler.NewStudentHandler(studentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	testHandler := handler.NewTestHandler(testSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	preferenceHandler := handler.NewPreferenceHandler(preferenceSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	questionBankHandler := handler.NewQuestionBankHandler(questionBankSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.POST("/session", sessionHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.Session(sessions))
	secured.GET("/session", sessionHandler.Me)
	secured.DELETE("/session", sessionHandler.Logout)
	secured.POST("/focus", sessionHandler.Focus)

	secured.GET("/students", studentHandler.List)
	secured.POST("/students", studentHandler.Create)
	secured.GET("/students/:id", studentHandler.Get)
	secured.PATCH("/students/:id", studentHandler.Update)
	secured.DELETE("/students/:id", studentHandler.Delete)
	secured.GET("/students/:id/attendance", attendanceHandler.ForStudent)
	secured.GET("/students/:id/results", testHandler.StudentResults)
	secured.GET("/classes", studentHandler.Classes)

	secured.GET("/attendance", attendanceHandler.ForDay)
	secured.POST("/attendance", attendanceHandler.Mark)

	secured.GET("/tests", testHandler.List)
	secured.POST("/tests", testHandler.Create)
	secured.GET("/tests/:id/results", testHandler.Results)
	secured.POST("/tests/:id/results", testHandler.RecordResult)
	secured.GET("/tests/:id/report", testHandler.Report)

	secured.GET("/dashboard", dashboardHandler.Summary)
	secured.GET("/exports/low-attendance", exportHandler.LowAttendance)
	secured.GET("/exports/pending-fees", exportHandler.PendingFees)

	secured.GET("/preferences/:key", preferenceHandler.Get)
	secured.PUT("/preferences/:key", preferenceHandler.Set)
	secured.DELETE("/preferences", preferenceHandler.Reset)

	secured.GET("/question-bank", questionBankHandler.Browse)
	secured.PUT("/question-bank/topics/:topicId/questions/:id/favorite", questionBankHandler.SetFavorite)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	syncQueue.Stop()
	sessions.Logout()
}
