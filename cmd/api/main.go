package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/queue-service/internal/api/http"
	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/persistence"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/repository/memstore"
	"github.com/spec-kit/queue-service/internal/service"
	"github.com/spec-kit/queue-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		pg         *persistence.Postgres
		queueRepo  repository.QueueRepository
		tokenRepo  repository.TokenRepository
		patronRepo repository.PatronRepository
		bizRepo    repository.BusinessRepository
		auditRepo  repository.AuditRepository
	)
	if cfg.Postgres.DSN != "" {
		pg, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}

		pool := pg.PoolHandle()
		queueRepo = repository.NewQueueRepository(pool)
		tokenRepo = repository.NewTokenRepository(pool)
		patronRepo = repository.NewPatronRepository(pool)
		bizRepo = repository.NewBusinessRepository(pool)
		auditRepo = repository.NewAuditRepository(pool)
	} else {
		// No DSN means local development against the in-memory store.
		logger.Warn("POSTGRES_DSN not set, using in-memory store")
		store := memstore.New()
		queueRepo = store.Queues()
		tokenRepo = store.Tokens()
		patronRepo = store.Patrons()
		bizRepo = store.Businesses()
		auditRepo = store.Audit()
	}

	metrics := observability.NewMetrics()
	hub := events.NewHub(cfg.Queue.EventBufferSize, metrics)

	var publisher events.Publisher = hub
	var redisConn *persistence.Redis
	if cfg.Redis.Addr != "" {
		redisConn = persistence.NewRedis(cfg.Redis, logger)
		defer redisConn.Close()

		bridge := events.NewRedisBridge(hub, redisConn.Client, logger)
		go bridge.Run(ctx)
		publisher = bridge
	}

	locks := service.NewQueueLocks()

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	otpStore := auth.NewOTPStore(cfg.Auth.OTPTTL(), cfg.Auth.OTPMaxAttempts, cfg.Auth.DemoMode)

	authService := service.NewAuthService(service.AuthDependencies{
		PatronRepo:   patronRepo,
		OTPStore:     otpStore,
		TokenManager: tokenManager,
		Config:       cfg.Auth,
	})
	businessService := service.NewBusinessService(service.BusinessDependencies{
		BusinessRepo: bizRepo,
		PatronRepo:   patronRepo,
		AuditRepo:    auditRepo,
		Config:       cfg.Auth,
	})
	tokenService := service.NewTokenService(service.TokenDependencies{
		TokenRepo:    tokenRepo,
		QueueRepo:    queueRepo,
		BusinessRepo: bizRepo,
		AuditRepo:    auditRepo,
		Publisher:    publisher,
		Locks:        locks,
		Config:       cfg.Queue,
	})
	queueService := service.NewQueueService(service.QueueDependencies{
		QueueRepo:    queueRepo,
		TokenRepo:    tokenRepo,
		BusinessRepo: bizRepo,
		AuditRepo:    auditRepo,
		Publisher:    publisher,
		Locks:        locks,
		Config:       cfg.Queue,
	})

	notificationService := service.NewNotificationService(tokenRepo, logger, cfg.Notification)
	worker.StartNotificationWorker(ctx, hub, notificationService)

	authMiddleware := auth.NewAuthMiddleware(tokenManager, patronRepo)

	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.App.Env == "production"})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redisConn),
		Auth:           handlers.NewAuthHandler(authService),
		Businesses:     handlers.NewBusinessesHandler(businessService),
		Queues:         handlers.NewQueuesHandler(queueService, metrics),
		Tokens:         handlers.NewTokensHandler(tokenService, metrics),
		Streams:        handlers.NewStreamsHandler(hub, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
