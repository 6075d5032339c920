package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/techbridge/service-tutoring/internal/application"
	"github.com/techbridge/service-tutoring/internal/config"
	"github.com/techbridge/service-tutoring/internal/domain/member"
	tutoringEvents "github.com/techbridge/service-tutoring/internal/events"
	"github.com/techbridge/service-tutoring/internal/handler"
	"github.com/techbridge/service-tutoring/internal/platform/auth"
	"github.com/techbridge/service-tutoring/internal/platform/clock"
	"github.com/techbridge/service-tutoring/internal/platform/database"
	"github.com/techbridge/service-tutoring/internal/platform/health"
	"github.com/techbridge/service-tutoring/internal/platform/kafka"
	"github.com/techbridge/service-tutoring/internal/platform/logger"
	"github.com/techbridge/service-tutoring/internal/platform/middleware"
	"github.com/techbridge/service-tutoring/internal/platform/tracing"
	"github.com/techbridge/service-tutoring/internal/repository"
	"github.com/techbridge/service-tutoring/internal/scheduler"
)

const serviceName = "service-tutoring"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting service-tutoring",
		zap.String("port", cfg.Port),
		zap.String("conflict_policy", cfg.BookingConfig.ConflictPolicy),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.AppEnv, cfg.TracingConfig.Endpoint)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	// Connect to database
	db, err := database.Connect(cfg.DBConfig, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(
			&repository.MemberModel{},
			&repository.StudentModel{},
			&repository.TutorModel{},
			&repository.TutoringModel{},
		); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), "migrations", log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Connect to Redis (optional)
	var rdb *redis.Client
	if cfg.RedisConfig.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			pingCancel()
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		pingCancel()
		log.Info("connected to redis", zap.String("addr", cfg.RedisConfig.Addr))
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.AccessTokenTTL)

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
	defer func() { _ = kafkaProducer.Close() }()

	// Initialize repositories
	tutoringRepo := repository.NewGormTutoringRepository(db)
	var members member.Directory = repository.NewGormMemberDirectory(db)
	var roleCache *repository.CachedMemberDirectory
	if rdb != nil {
		roleCache = repository.NewCachedMemberDirectory(members, rdb, cfg.RedisConfig.RoleCacheTTL, log)
		members = roleCache
	}

	policy, err := application.ParseConflictPolicy(cfg.BookingConfig.ConflictPolicy)
	if err != nil {
		log.Fatal("invalid booking configuration", zap.Error(err))
	}

	// Initialize application services
	clk := clock.Real()
	commandService := application.NewCommandService(tutoringRepo, members, kafkaProducer, policy, clk, log)
	queryService := application.NewQueryService(tutoringRepo, members, log)

	// Start the status scheduler
	if cfg.SchedulerConfig.Enabled {
		var locker scheduler.Locker
		if rdb != nil {
			locker = scheduler.NewRedisLock(rdb, scheduler.DefaultLockKey, cfg.SchedulerConfig.LockTTL)
		}
		statusScheduler := scheduler.NewStatusScheduler(
			tutoringRepo,
			locker,
			kafkaProducer,
			clk,
			cfg.SchedulerConfig.Interval,
			log,
		)
		go statusScheduler.Start(ctx)
	}

	// Start the member event consumer when there is a cache to keep fresh
	if roleCache != nil {
		groupID := cfg.KafkaConfig.GroupPrefix + serviceName
		memberConsumer := tutoringEvents.NewMemberEventConsumer(
			cfg.KafkaConfig.Brokers,
			groupID,
			roleCache,
			log,
		)
		defer func() { _ = memberConsumer.Close() }()

		go func() {
			log.Info("starting member event consumer")
			if err := memberConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("member event consumer error", zap.Error(err))
			}
		}()
	}

	// Initialize HTTP handlers
	tutoringHandler := handler.NewTutoringHandler(commandService, queryService)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, rdb, serviceName)
	healthHandler.RegisterRoutes(router)

	// Register routes
	tutoringHandler.RegisterRoutes(&router.RouterGroup, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down service-tutoring...")

	// Stop the scheduler and the consumer
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info("service-tutoring stopped")
}
