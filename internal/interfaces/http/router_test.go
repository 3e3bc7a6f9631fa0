package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyshape/internal/application/alignment"
	"github.com/turtacn/keyshape/internal/application/library"
	"github.com/turtacn/keyshape/internal/config"
	"github.com/turtacn/keyshape/internal/infrastructure/auth"
	"github.com/turtacn/keyshape/internal/interfaces/http/handlers"
	"github.com/turtacn/keyshape/internal/interfaces/http/middleware"
	"github.com/turtacn/keyshape/internal/testutil"
	"github.com/turtacn/keyshape/pkg/types/common"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingMetrics struct {
	mu    sync.Mutex
	paths map[string]int
}

func (m *countingMetrics) ObserveHTTPRequest(_ string, path string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paths == nil {
		m.paths = map[string]int{}
	}
	m.paths[path]++
}

func newTestRouter(t *testing.T) (*gin.Engine, *countingMetrics, *testutil.MockLogger) {
	t.Helper()
	logger := testutil.NewMockLogger()
	svc := alignment.NewService(alignment.NewAligner(alignment.DefaultOptions(), logger), logger)
	metrics := &countingMetrics{}
	r := NewRouter(RouterConfig{
		ShapeHandler:  handlers.NewShapeHandler(svc, logger),
		HealthHandler: handlers.NewHealthHandler("test"),
		Logging:       middleware.DefaultLoggingConfig(),
		MaxBodySize:   1 << 20,
		Logger:        logger,
		Metrics:       metrics,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})
	return r, metrics, logger
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewRouter_PublicEndpoints(t *testing.T) {
	r, _, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/readyz", "").Code)

	w := do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())
}

func TestNewRouter_ShapeRoutesEndToEnd(t *testing.T) {
	r, metrics, _ := newTestRouter(t)
	ref := testutil.DTO(testutil.Toluenol())

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(shapetypes.OverlapRequest{Reference: ref, Overlay: ref}))
	w := do(r, http.MethodPost, "/api/v1/shapes/overlap", buf.String())
	require.Equal(t, http.StatusOK, w.Code)

	var env common.APIResponse[shapetypes.OverlapResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, w.Header().Get(middleware.HeaderRequestID), env.RequestID)
	assert.InDelta(t, 1, env.Data.Scores.Tanimoto, 1e-6)

	assert.Equal(t, 1, metrics.paths["/api/v1/shapes/overlap"])
}

func TestNewRouter_ValidationErrorEnvelope(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/v1/shapes/properties", `{"shape":{"elements":[{"x":0,"y":0,"z":0,"radius":-1}]}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var env common.APIResponse[struct{}]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "SHP_001", env.Error.Code)
}

func TestNewRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	r, metrics, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/v1/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Equal(t, 1, metrics.paths["unmatched"])

	w = do(r, http.MethodGet, "/api/v1/shapes/align", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestNewRouter_BodyLimit(t *testing.T) {
	logger := testutil.NewMockLogger()
	svc := alignment.NewService(alignment.NewAligner(alignment.DefaultOptions(), logger), logger)
	r := NewRouter(RouterConfig{ShapeHandler: handlers.NewShapeHandler(svc, logger), MaxBodySize: 32})

	w := do(r, http.MethodPost, "/api/v1/shapes/properties", `{"shape":{"name":"`+strings.Repeat("x", 64)+`"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNewRouter_RecoversFromPanic(t *testing.T) {
	r, _, logger := newTestRouter(t)
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := do(r, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, logger.HasMessage("error", "panic recovered"))
	assert.True(t, logger.HasMessage("error", "HTTP request completed with server error"))
}

func TestNewRouter_LibraryRoutesOptional(t *testing.T) {
	r, _, _ := newTestRouter(t)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/libraries/fragments", "").Code)

	logger := testutil.NewMockLogger()
	shapes := alignment.NewService(alignment.NewAligner(alignment.DefaultOptions(), logger), logger)
	r = NewRouter(RouterConfig{
		LibraryHandler: handlers.NewLibraryHandler(library.NewService(nil, shapes, logger), logger),
		Logger:         logger,
	})

	// Name validation fails before the repository is consulted.
	w := do(r, http.MethodGet, "/api/v1/libraries/Bad_Name", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var env common.APIResponse[struct{}]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "LIB_003", env.Error.Code)
}

func TestNewRouter_Auth(t *testing.T) {
	const secret = "router-test-secret"
	logger := testutil.NewMockLogger()
	verifier, err := auth.NewVerifier(config.AuthConfig{Enabled: true, HMACSecret: secret}, logger)
	require.NoError(t, err)

	shapes := alignment.NewService(alignment.NewAligner(alignment.DefaultOptions(), logger), logger)
	r := NewRouter(RouterConfig{
		ShapeHandler:   handlers.NewShapeHandler(shapes, logger),
		LibraryHandler: handlers.NewLibraryHandler(library.NewService(nil, shapes, logger), logger),
		HealthHandler:  handlers.NewHealthHandler("test"),
		Logger:         logger,
		Auth:           &AuthConfig{Verifier: verifier, Enforcer: auth.NewEnforcer(nil)},
	})

	token := func(role string) string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   role + "-user",
			"exp":   time.Now().Add(time.Minute).Unix(),
			"roles": []string{role},
		}).SignedString([]byte(secret))
		require.NoError(t, err)
		return raw
	}
	call := func(method, path, role, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if role != "" {
			req.Header.Set("Authorization", "Bearer "+token(role))
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	props := `{"shape":{"elements":[{"x":0,"y":0,"z":0,"radius":1.5}]}}`

	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/healthz", "", ""))
	assert.Equal(t, http.StatusUnauthorized, call(http.MethodPost, "/api/v1/shapes/properties", "", props))
	assert.Equal(t, http.StatusForbidden, call(http.MethodPost, "/api/v1/shapes/properties", "viewer", props))
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "/api/v1/shapes/properties", "analyst", props))

	// Viewers may read libraries; the handler then rejects the name.
	assert.Equal(t, http.StatusBadRequest, call(http.MethodGet, "/api/v1/libraries/Bad_Name", "viewer", ""))
	assert.Equal(t, http.StatusForbidden, call(http.MethodPost, "/api/v1/libraries/Bad_Name/screen", "viewer", "{}"))
	assert.Equal(t, http.StatusForbidden, call(http.MethodPost, "/api/v1/libraries", "analyst", "{}"))
	assert.Equal(t, http.StatusNotFound, call(http.MethodGet, "/api/v1/nowhere", "", ""))
}

func TestNewRouter_RateLimitSkipsHealth(t *testing.T) {
	logger := testutil.NewMockLogger()
	shapes := alignment.NewService(alignment.NewAligner(alignment.DefaultOptions(), logger), logger)
	limits := middleware.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1}
	r := NewRouter(RouterConfig{
		ShapeHandler:  handlers.NewShapeHandler(shapes, logger),
		HealthHandler: handlers.NewHealthHandler("test"),
		Logger:        logger,
		RateLimit:     &limits,
	})

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/v1/shapes/properties", "{}").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/api/v1/shapes/properties", "{}").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "").Code)
}

func TestRoutePermissions(t *testing.T) {
	assert.Equal(t, []auth.Permission{auth.PermShapeCompute}, routePermissions(http.MethodPost, "/api/v1/shapes/align"))
	assert.Equal(t, []auth.Permission{auth.PermLibraryRead}, routePermissions(http.MethodGet, "/api/v1/libraries/:name/shapes"))
	assert.Equal(t, []auth.Permission{auth.PermLibraryWrite}, routePermissions(http.MethodDelete, "/api/v1/libraries/:name"))
	assert.Equal(t, []auth.Permission{auth.PermLibraryRead, auth.PermShapeCompute}, routePermissions(http.MethodPost, "/api/v1/libraries/:name/screen"))
	assert.Nil(t, routePermissions(http.MethodGet, "/healthz"))
}

func TestNewRouter_NilHandlers_NoPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		r := NewRouter(RouterConfig{})
		assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/healthz", "").Code)
	})
}
