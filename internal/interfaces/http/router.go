package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyshape/internal/infrastructure/auth"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/internal/interfaces/http/handlers"
	"github.com/turtacn/keyshape/internal/interfaces/http/middleware"
	"github.com/turtacn/keyshape/pkg/errors"
	"github.com/turtacn/keyshape/pkg/types/common"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree.
type RouterConfig struct {
	// Handlers
	ShapeHandler   *handlers.ShapeHandler
	LibraryHandler *handlers.LibraryHandler
	HealthHandler  *handlers.HealthHandler

	// Middleware
	Logging     middleware.LoggingConfig
	CORS        *middleware.CORSConfig
	MaxBodySize int64
	// Auth, when set, guards every /api/v1 route.
	Auth *AuthConfig
	// RateLimit, when set, throttles /api/v1 after authentication.
	RateLimit *middleware.RateLimitConfig

	// Infrastructure
	Logger         logging.Logger
	Metrics        middleware.HTTPMetrics
	MetricsHandler http.Handler
	// MetricsPath defaults to /metrics.
	MetricsPath    string
}

// NewRouter constructs the complete HTTP route tree from the given
// configuration.  Nil handlers leave their routes unmounted.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// --- Global middleware (applied to every request) ---
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogging(logger, cfg.Logging))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	// Inside logging and metrics so a recovered panic is recorded as a 500.
	r.Use(recovery(logger))
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}

	// --- Public health endpoints ---
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	// --- API v1 ---
	api := r.Group("/api/v1")
	if cfg.MaxBodySize > 0 {
		api.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	if cfg.Auth != nil {
		api.Use(middleware.Authenticate(cfg.Auth.Verifier, logger))
		api.Use(middleware.Authorize(cfg.Auth.Enforcer, routePermissions))
	}
	if cfg.RateLimit != nil {
		api.Use(middleware.RateLimit(middleware.NewKeyedLimiter(*cfg.RateLimit), *cfg.RateLimit))
	}
	if cfg.ShapeHandler != nil {
		cfg.ShapeHandler.RegisterRoutes(api)
	}
	if cfg.LibraryHandler != nil {
		cfg.LibraryHandler.RegisterRoutes(api)
	}

	r.NoRoute(func(c *gin.Context) {
		abortWithCode(c, http.StatusNotFound, errors.ErrCodeNotFound)
	})
	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, common.NewErrorResponse(common.ErrorDetail{
			Code:    errors.ErrCodeBadRequest.String(),
			Message: "method not allowed",
		}, middleware.GetRequestID(c)))
	})

	return r
}

// AuthConfig pairs a token verifier with the role enforcer.
type AuthConfig struct {
	Verifier middleware.TokenVerifier
	Enforcer *auth.Enforcer
}

func routePermissions(method, route string) []auth.Permission {
	switch {
	case strings.HasPrefix(route, "/api/v1/shapes/"):
		return []auth.Permission{auth.PermShapeCompute}
	case strings.HasPrefix(route, "/api/v1/libraries"):
		if strings.HasSuffix(route, "/screen") {
			return []auth.Permission{auth.PermLibraryRead, auth.PermShapeCompute}
		}
		if method == http.MethodGet {
			return []auth.Permission{auth.PermLibraryRead}
		}
		return []auth.Permission{auth.PermLibraryWrite}
	}
	return nil
}

// recovery turns a handler panic into a logged 500 response.
func recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered",
			logging.String("request_id", middleware.GetRequestID(c)),
			logging.String("path", c.Request.URL.Path),
			logging.String("panic", fmt.Sprint(recovered)))
		abortWithCode(c, http.StatusInternalServerError, errors.ErrCodeInternal)
	})
}

func abortWithCode(c *gin.Context, status int, code errors.ErrorCode) {
	c.AbortWithStatusJSON(status, common.NewErrorResponse(common.ErrorDetail{
		Code:    code.String(),
		Message: errors.DefaultMessageForCode(code),
	}, middleware.GetRequestID(c)))
}
