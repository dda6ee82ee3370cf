package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/planordo/planning-api/internal/handler"
	"github.com/planordo/planning-api/internal/models"
	"github.com/planordo/planning-api/internal/repository"
	"github.com/planordo/planning-api/internal/service"
	"github.com/planordo/planning-api/pkg/cache"
	"github.com/planordo/planning-api/pkg/config"
	"github.com/planordo/planning-api/pkg/database"
	"github.com/planordo/planning-api/pkg/logger"
	corsmiddleware "github.com/planordo/planning-api/pkg/middleware/cors"
	reqidmiddleware "github.com/planordo/planning-api/pkg/middleware/requestid"
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metrics := service.NewMetricsService()

	trainerRepo := repository.NewTrainerRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	exceptionRepo := repository.NewExceptionRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	relayRepo := repository.NewRelayRepository(redisClient, logr)
	sessionRepo := repository.NewSessionRepository(redisClient, logr)

	relay := service.NewCommandRelay(relayRepo, metrics, logr, service.CommandRelayConfig{
		PollInterval: cfg.Relay.PollInterval,
		CommandTTL:   cfg.Relay.CommandTTL,
	})

	sessions := service.NewSessionCoordinator(sessionRepo, relay, metrics, logr, service.SessionCoordinatorConfig{
		HeartbeatTimeout: cfg.Sessions.HeartbeatTimeout,
		SweepInterval:    cfg.Sessions.SweepInterval,
	})

	inference := service.NewLocationInferenceService(assignmentRepo, locationRepo, cfg.Arbitration.DefaultLocationID, logr)
	arbitration := service.NewArbitrationService(exceptionRepo, assignmentRepo, availabilityRepo, trainerRepo, inference, metrics, logr)

	exceptions := service.NewExceptionService(exceptionRepo, assignmentRepo, notificationRepo, trainerRepo, relay, sessions, validate, logr, service.ExceptionServiceConfig{
		WorkerConcurrency: cfg.SideEffects.WorkerConcurrency,
		WorkerRetries:     cfg.SideEffects.WorkerRetries,
		RetryDelay:        cfg.SideEffects.RetryDelay,
	})
	exceptions.Start(ctx)
	defer exceptions.Stop()

	availability := service.NewAvailabilityService(availabilityRepo, trainerRepo, relay, sessions, validate, logr)
	assignments := service.NewAssignmentService(assignmentRepo, relay, sessions, validate, logr)

	go sessions.SweepLoop(ctx)
	go relay.PollLoop(ctx, func(commands []models.Command) {
		for _, command := range commands {
			logr.Info("relay command consumed",
				zap.String("action", string(command.Action)),
				zap.String("trainer_id", command.TrainerID),
				zap.Time("effective_date", command.EffectiveDate))
		}
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(metrics.GinMiddleware())
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	planningHandler := handler.NewPlanningHandler(arbitration)
	sessionHandler := handler.NewSessionHandler(sessions)
	relayHandler := handler.NewRelayHandler(relay)
	availabilityHandler := handler.NewAvailabilityHandler(availability)
	exceptionHandler := handler.NewExceptionHandler(exceptions)
	assignmentHandler := handler.NewAssignmentHandler(assignments)

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/planning/grid", planningHandler.Grid)
		api.GET("/trainers/:id/week", planningHandler.TrainerWeek)
		api.GET("/trainers/:id/slot", planningHandler.Slot)

		api.GET("/trainers/:id/availabilities", availabilityHandler.List)
		api.PUT("/trainers/:id/availabilities", availabilityHandler.Redeclare)
		api.POST("/trainers/:id/availabilities/validate", availabilityHandler.Validate)

		api.GET("/trainers/:id/exceptions", exceptionHandler.ListByTrainer)
		api.POST("/exceptions", exceptionHandler.Create)
		api.POST("/exceptions/:id/approve", exceptionHandler.Approve)
		api.DELETE("/exceptions/:id", exceptionHandler.Delete)

		api.GET("/assignments", assignmentHandler.GetWeek)
		api.PUT("/assignments", assignmentHandler.ReplaceWeek)

		api.POST("/sessions", sessionHandler.Register)
		api.GET("/sessions", sessionHandler.List)
		api.POST("/sessions/:id/heartbeat", sessionHandler.Heartbeat)
		api.POST("/sessions/:id/lock", sessionHandler.ClaimLock)
		api.DELETE("/sessions/:id/lock", sessionHandler.ReleaseLock)

		api.GET("/commands", relayHandler.Poll)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)

	server := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		logr.Info("shutting down")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("server failed", zap.Error(err))
	}
}
