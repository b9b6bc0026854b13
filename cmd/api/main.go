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

	"github.com/planbook/planbook-api/internal/handler"
	"github.com/planbook/planbook-api/internal/middleware"
	"github.com/planbook/planbook-api/internal/repository"
	"github.com/planbook/planbook-api/internal/service"
	"github.com/planbook/planbook-api/pkg/cache"
	"github.com/planbook/planbook-api/pkg/config"
	"github.com/planbook/planbook-api/pkg/database"
	"github.com/planbook/planbook-api/pkg/logger"
	corsmiddleware "github.com/planbook/planbook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/planbook/planbook-api/pkg/middleware/requestid"
	"github.com/planbook/planbook-api/pkg/storage"
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	configRepo := repository.NewScheduleConfigRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "planbook-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	cacheService := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	configService := service.NewConfigService(configRepo, validate, logr)
	courseService := service.NewCourseService(courseRepo, validate, logr)

	calc := service.NewTeachingDayCalculator(logr, metrics)
	factory := service.NewEventFactory(calc, logr)
	analyzer := service.NewSequenceAnalyzer(logr)
	generator := service.NewSequenceGenerator(calc, logr)
	shifter := service.NewShiftEngine(calc, logr, metrics)

	planService := service.NewPlanService(
		scheduleRepo, configService, courseService,
		factory, analyzer, generator, shifter, calc,
		cacheService, metrics, validate, logr,
		service.PlanServiceConfig{
			SaveWorkers: cfg.Planner.SaveWorkers,
			SaveRetries: cfg.Planner.SaveRetries,
		},
	)
	exportService := service.NewExportService(planService, courseService, exportStorage, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, nil, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	planService.StartWorker(ctx)
	defer planService.StopWorker()

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	configHandler := handler.NewScheduleConfigHandler(configService)
	courseHandler := handler.NewCourseHandler(courseService)
	planHandler := handler.NewPlanHandler(planService, exportService)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
			auth.GET("/me", middleware.JWT(authService), authHandler.Me)
			auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		}

		api.GET("/export/:token", planHandler.Download)

		protected := api.Group("", middleware.JWT(authService))
		admin := middleware.RequireAdmin()
		editor := middleware.RequireEditor()
		{
			protected.GET("/users", admin, userHandler.List)
			protected.POST("/users", admin, userHandler.Create)
			protected.GET("/users/:id", admin, userHandler.Get)
			protected.PUT("/users/:id", admin, userHandler.Update)
			protected.DELETE("/users/:id", admin, userHandler.Delete)

			protected.GET("/configs", configHandler.List)
			protected.POST("/configs", editor, configHandler.Create)
			protected.GET("/configs/:id", configHandler.Get)
			protected.PUT("/configs/:id", editor, configHandler.Update)
			protected.DELETE("/configs/:id", editor, configHandler.Delete)

			protected.GET("/courses", courseHandler.List)
			protected.POST("/courses", editor, courseHandler.Create)
			protected.GET("/courses/:id", courseHandler.Get)
			protected.PUT("/courses/:id", editor, courseHandler.Update)
			protected.DELETE("/courses/:id", editor, courseHandler.Delete)
			protected.POST("/courses/:id/topics", editor, courseHandler.AddTopic)
			protected.GET("/courses/:id/lessons", courseHandler.Lessons)
			protected.POST("/topics/:id/lessons", editor, courseHandler.AddLesson)

			protected.POST("/plans/activate", editor, planHandler.Activate)
			protected.GET("/plans/active", planHandler.Active)
			protected.GET("/plans/active/events", planHandler.Events)
			protected.POST("/plans/active/lessons", editor, planHandler.LessonAdded)
			protected.POST("/plans/active/special-days", editor, planHandler.InsertSpecialDay)
			protected.DELETE("/plans/active/special-days", editor, planHandler.DeleteSpecialDay)
			protected.POST("/plans/active/save", editor, planHandler.Save)
			protected.POST("/plans/active/export", planHandler.Export)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		logr.Sugar().Infow("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Sugar().Errorw("server shutdown failed", "error", err)
		}
	}()

	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
