package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arclightapps/identity-gateway/internal/infra/config"
	"github.com/arclightapps/identity-gateway/internal/transport/http/handlers"
	"github.com/arclightapps/identity-gateway/internal/transport/http/middleware"
	"github.com/arclightapps/identity-gateway/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Sessions  *usecase.SessionService
	Security  *usecase.SecurityService
	Biometric *usecase.BiometricService
	OAuth     *usecase.OAuthService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config       *config.AppConfig
	Logger       *zap.Logger
	RateLimiter  *middleware.RateLimiter
	Metrics      *middleware.HTTPMetrics
	HealthChecks []handlers.HealthCheck
	Services     ServiceSet
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Config.Provider.JWTSecret)

	healthHandler := handlers.NewHealthHandler(deps.HealthChecks...)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")

		authHandler := handlers.NewAuthHandler(deps.Services.Sessions)
		authHandler.RegisterRoutes(authGroup, authMiddleware, buildRateLimits(deps))

		protected := api.Group("/auth")
		protected.Use(authMiddleware)

		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions)
		sessionHandler.RegisterRoutes(protected)

		if deps.Services.Security != nil {
			securityHandler := handlers.NewSecurityHandler(deps.Services.Security)
			securityHandler.RegisterRoutes(protected)
		}

		if deps.Services.Biometric != nil {
			biometricHandler := handlers.NewBiometricHandler(deps.Services.Biometric)
			biometricHandler.RegisterRoutes(protected)
		}

		if deps.Services.OAuth != nil {
			oauthHandler := handlers.NewOAuthHandler(deps.Services.OAuth)
			oauthHandler.RegisterRoutes(authGroup, protected)
		}
	}

	handlers.RegisterSwagger(r)

	return r
}

func buildRateLimits(deps Dependencies) map[string]gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	limits := make(map[string]gin.HandlerFunc)

	if limit := deps.Config.RateLimit.LoginMaxAttempts; limit > 0 {
		limits["login"] = deps.RateLimiter.RateLimit(middleware.RateLimitRule{
			Name:       "auth_login_ip",
			Limit:      limit,
			Window:     window,
			Identifier: middleware.ClientIPIdentifier(),
		})
	}

	if limit := deps.Config.RateLimit.RegisterMaxAttempts; limit > 0 {
		limits["register"] = deps.RateLimiter.RateLimit(middleware.RateLimitRule{
			Name:       "auth_register_ip",
			Limit:      limit,
			Window:     window,
			Identifier: middleware.ClientIPIdentifier(),
		})
	}

	if limit := deps.Config.RateLimit.PasswordResetMaxAttempts; limit > 0 {
		limits["password-reset"] = deps.RateLimiter.RateLimit(middleware.RateLimitRule{
			Name:       "password_reset_ip",
			Limit:      limit,
			Window:     window,
			Identifier: middleware.ClientIPIdentifier(),
		})
	}

	return limits
}
