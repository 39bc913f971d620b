package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/infra/config"
	"github.com/meridian-commerce/customer-auth/internal/infra/database"
	kafkainfra "github.com/meridian-commerce/customer-auth/internal/infra/kafka"
	"github.com/meridian-commerce/customer-auth/internal/infra/logger"
	"github.com/meridian-commerce/customer-auth/internal/infra/notify"
	redisinfra "github.com/meridian-commerce/customer-auth/internal/infra/redis"
	"github.com/meridian-commerce/customer-auth/internal/infra/security"
	postgresrepo "github.com/meridian-commerce/customer-auth/internal/repository/postgres"
	redisrepo "github.com/meridian-commerce/customer-auth/internal/repository/redis"
	"github.com/meridian-commerce/customer-auth/internal/transport/http/middleware"
	"github.com/meridian-commerce/customer-auth/internal/transport/http/routes"
	"github.com/meridian-commerce/customer-auth/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewFileKeyProvider(cfg.JWT.KeyDirectory, cfg.JWT.SigningKid)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	jwtManager := security.NewJWTManager(keyProvider)

	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	accounts := postgresrepo.NewAccountRepository(pool)
	sessions := postgresrepo.NewSessionRepository(pool)
	devices := postgresrepo.NewDeviceRepository(pool)
	resetTokens := postgresrepo.NewResetTokenRepository(pool)
	rateLimits := redisrepo.NewRateLimitRepository(redisClient.Client(), cfg.Redis.KeyPrefix)
	challenges := redisrepo.NewChallengeRepository(redisClient.Client(), cfg.Redis.KeyPrefix)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	passwordValidator := security.NewPasswordValidator(security.DefaultPasswordRules()...)

	limiter := usecase.NewLimiterService(cfg, rateLimits, log)
	tokenService := usecase.NewTokenService(cfg, sessions, jwtManager, eventPublisher, log)
	sessionService := usecase.NewSessionService(sessions, eventPublisher, log)
	deviceService := usecase.NewDeviceService(cfg, devices, eventPublisher, log)
	mfaService := usecase.NewMFAService(cfg, challenges, accounts, notifier, limiter, eventPublisher, log)
	authService := usecase.NewAuthService(cfg, accounts, limiter, tokenService, mfaService, deviceService, eventPublisher, log)
	resetService := usecase.NewPasswordResetService(cfg, accounts, resetTokens, sessionService, deviceService, limiter, notifier, passwordValidator, eventPublisher, log)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:     cfg,
		Logger:     log,
		JWTManager: jwtManager,
		Database:   pool,
		Cache:      redisClient,
		Metrics:    httpMetrics,
		Services: routes.ServiceSet{
			Auth:          authService,
			MFA:           mfaService,
			Tokens:        tokenService,
			Sessions:      sessionService,
			Devices:       deviceService,
			PasswordReset: resetService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
}

func buildNotifier(cfg *config.AppConfig, log *zap.Logger) (port.Notifier, error) {
	switch cfg.Notify.Provider {
	case "aws":
		notifier, err := notify.NewAWSNotifier(cfg.Notify.SESRegion, cfg.Notify.EmailFrom, cfg.Notify.ResetBaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("init aws notifier: %w", err)
		}
		return notifier, nil
	default:
		return notify.NewLogNotifier(log), nil
	}
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting customer auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if port := a.cfg.Telemetry.MetricsPort; port > 0 && port != a.cfg.App.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		a.logger.Info("starting metrics endpoint", zap.String("address", metricsSrv.Addr))
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
