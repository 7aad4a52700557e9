package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arclightapps/identity-gateway/internal/core/port"
	biometricinfra "github.com/arclightapps/identity-gateway/internal/infra/biometric"
	"github.com/arclightapps/identity-gateway/internal/infra/config"
	"github.com/arclightapps/identity-gateway/internal/infra/database"
	kafkainfra "github.com/arclightapps/identity-gateway/internal/infra/kafka"
	"github.com/arclightapps/identity-gateway/internal/infra/logger"
	oauthinfra "github.com/arclightapps/identity-gateway/internal/infra/oauth"
	"github.com/arclightapps/identity-gateway/internal/infra/provider"
	redisinfra "github.com/arclightapps/identity-gateway/internal/infra/redis"
	"github.com/arclightapps/identity-gateway/internal/infra/security"
	"github.com/arclightapps/identity-gateway/internal/infra/telemetry"
	postgresrepo "github.com/arclightapps/identity-gateway/internal/repository/postgres"
	redisrepo "github.com/arclightapps/identity-gateway/internal/repository/redis"
	"github.com/arclightapps/identity-gateway/internal/transport/http/handlers"
	"github.com/arclightapps/identity-gateway/internal/transport/http/middleware"
	"github.com/arclightapps/identity-gateway/internal/transport/http/routes"
	"github.com/arclightapps/identity-gateway/internal/usecase"
)

// Application owns the wired object graph and its shutdown order.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracing  *telemetry.TracerProvider
	security *usecase.SecurityService
}

// New builds the application from configuration. Construction fails fast on
// any unreachable backend except Kafka, which degrades to a logging stub.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics, err := telemetry.Attach(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var tracing *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracing, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			log.Warn("tracing disabled", zap.Error(err))
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var producer *kafkainfra.Producer
	var eventPublisher port.SecurityEventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewSecurityEventPublisher(producer, cfg.App, log)
			log.Info("kafka security event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	securityService := usecase.NewSecurityService(repos.SecurityEvents, eventPublisher, usecase.SecurityThresholds{
		FailedLoginLimit:    cfg.Security.FailedLoginLimit,
		PasswordChangeLimit: cfg.Security.PasswordChangeLimit,
		Window:              cfg.Security.AlertWindow,
	}, log).WithMetrics(metrics.EventsRecordedCounter(), metrics.EventsDroppedCounter())

	credentialProvider, err := provider.NewGoTrueClient(cfg.Provider, log)
	if err != nil {
		return nil, fmt.Errorf("init credential provider: %w", err)
	}

	sessionService, err := usecase.NewSessionService(credentialProvider, securityService, security.DefaultPasswordValidator(), log)
	if err != nil {
		return nil, fmt.Errorf("init session service: %w", err)
	}
	sessionService.WithProviderTimeout(cfg.Provider.RequestTimeout)

	nonceStore := redisrepo.NewBiometricNonceRepository(redisClient.Client())
	biometricService, err := usecase.NewBiometricService(
		credentialProvider,
		repos.BiometricKeys,
		nonceStore,
		biometricinfra.NewECDSAVerifier(),
		securityService,
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("init biometric service: %w", err)
	}
	biometricService.
		WithProviderTimeout(cfg.Provider.RequestTimeout).
		WithNonceTTL(cfg.Security.BiometricNonceTTL)

	exchanger := oauthinfra.NewExchanger(cfg.OAuth, log)
	oauthService, err := usecase.NewOAuthService(credentialProvider, exchanger, securityService, log)
	if err != nil {
		return nil, fmt.Errorf("init oauth service: %w", err)
	}
	oauthService.WithProviderTimeout(cfg.Provider.RequestTimeout)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "idgw:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	healthChecks := []handlers.HealthCheck{
		{Name: "postgres", Probe: pool.Ping},
		{Name: "redis", Probe: func(ctx context.Context) error {
			return redisClient.Client().Ping(ctx).Err()
		}},
	}

	engine := routes.Register(routes.Dependencies{
		Config:       cfg,
		Logger:       log,
		RateLimiter:  rateLimiter,
		Metrics:      httpMetrics,
		HealthChecks: healthChecks,
		Services: routes.ServiceSet{
			Sessions:  sessionService,
			Security:  securityService,
			Biometric: biometricService,
			OAuth:     oauthService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		tracing:  tracing,
		security: securityService,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down in reverse
// dependency order so in-flight audit events reach their sinks.
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
	defer func() {
		if a.producer != nil {
			if err := a.producer.Close(); err != nil {
				a.logger.Warn("close kafka producer", zap.Error(err))
			}
		}
	}()
	defer func() {
		if a.security != nil {
			a.security.Close()
		}
	}()
	defer func() {
		if a.tracing != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.tracing.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("shutdown tracer provider", zap.Error(err))
			}
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

	a.logger.Info("starting identity gateway",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
