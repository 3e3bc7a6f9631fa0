package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keyshape/pkg/errors"
	"github.com/turtacn/keyshape/pkg/types/common"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

type testLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) Infof(format string, args ...interface{})  { l.log(format, args...) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.log(format, args...) }

func (l *testLogger) log(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func writeData(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(common.NewSuccessResponse(data, "srv-req"))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(common.NewErrorResponse(common.ErrorDetail{Code: code, Message: message, Detail: "element=1"}, "srv-req"))
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Empty(t, c.apiKey)

	_, err = NewClient("")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))

	_, err = NewClient("ftp://example.com")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))

	_, err = NewClient("://bad")
	assert.Error(t, err)
}

func TestClient_ShapesLazyInit(t *testing.T) {
	c, err := NewClient("http://localhost")
	require.NoError(t, err)

	var wg sync.WaitGroup
	got := make([]*ShapesClient, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = c.Shapes()
		}(i)
	}
	wg.Wait()
	for _, s := range got {
		assert.Same(t, got[0], s)
	}
}

func TestShapes_Align(t *testing.T) {
	var seen shapetypes.AlignRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/shapes/align", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Len(t, r.Header.Get("X-Request-ID"), 36)
		assert.Contains(t, r.Header.Get("User-Agent"), "keyshape-go-sdk/")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		writeData(w, shapetypes.AlignResponse{Reference: "ref", Overlay: "ovl", Score: 0.93, Metric: "tanimoto"})
	}, WithAPIKey("k"))

	resp, err := c.Shapes().Align(context.Background(), &shapetypes.AlignRequest{
		Reference: shapetypes.ShapeDTO{Name: "ref", Elements: []shapetypes.ElementDTO{{Radius: 1.7}}},
		Overlay:   shapetypes.ShapeDTO{Name: "ovl", Elements: []shapetypes.ElementDTO{{X: 1, Radius: 1.7}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.93, resp.Score)
	assert.Equal(t, "tanimoto", resp.Metric)
	assert.Equal(t, "ovl", seen.Overlay.Name)
	assert.Equal(t, 1.0, seen.Overlay.Elements[0].X)
}

func TestShapes_Endpoints(t *testing.T) {
	paths := make(chan string, 4)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		switch r.URL.Path {
		case "/api/v1/shapes/properties":
			writeData(w, shapetypes.PropertiesResponse{Name: "p", Volume: 20.6})
		case "/api/v1/shapes/overlap":
			writeData(w, shapetypes.OverlapResponse{Strategy: "exact"})
		case "/api/v1/shapes/screen":
			writeData(w, shapetypes.ScreenResponse{Screened: 2})
		}
	})
	ctx := context.Background()

	props, err := c.Shapes().Properties(ctx, &shapetypes.PropertiesRequest{})
	require.NoError(t, err)
	assert.Equal(t, 20.6, props.Volume)

	ov, err := c.Shapes().Overlap(ctx, &shapetypes.OverlapRequest{})
	require.NoError(t, err)
	assert.Equal(t, "exact", ov.Strategy)

	sc, err := c.Shapes().Screen(ctx, &shapetypes.ScreenRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, sc.Screened)

	assert.Equal(t, "/api/v1/shapes/properties", <-paths)
	assert.Equal(t, "/api/v1/shapes/overlap", <-paths)
	assert.Equal(t, "/api/v1/shapes/screen", <-paths)
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeError(w, http.StatusBadRequest, "SHP_001", "invalid shape element")
	})

	_, err := c.Shapes().Properties(context.Background(), &shapetypes.PropertiesRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "SHP_001", apiErr.Code)
	assert.Equal(t, "element=1", apiErr.Detail)
	assert.Equal(t, "srv-req", apiErr.RequestID)
	assert.Contains(t, apiErr.Error(), "invalid shape element: element=1")
	assert.False(t, apiErr.IsServerError())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_ServerErrorRetried(t *testing.T) {
	var calls int32
	logger := &testLogger{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeError(w, http.StatusServiceUnavailable, "COMMON_008", "service unavailable")
			return
		}
		writeData(w, shapetypes.OverlapResponse{Strategy: "fast"})
	}, WithLogger(logger))

	resp, err := c.Shapes().Overlap(context.Background(), &shapetypes.OverlapRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Strategy)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.NotEmpty(t, logger.entries)
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}, WithRetryMax(2))

	err := c.do(context.Background(), http.MethodGet, "status", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_RateLimitedRetryAfter(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			writeError(w, http.StatusTooManyRequests, "COMMON_007", "too many requests")
			return
		}
		writeData(w, shapetypes.ScreenResponse{Screened: 1})
	})

	resp, err := c.Shapes().Screen(context.Background(), &shapetypes.ScreenRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Screened)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClient_ContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, nil)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Shapes().Align(ctx, &shapetypes.AlignRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_MalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := c.Shapes().Properties(context.Background(), &shapetypes.PropertiesRequest{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))
}

func TestCalculateBackoff(t *testing.T) {
	c := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: 300 * time.Millisecond}

	first := c.calculateBackoff(1)
	assert.GreaterOrEqual(t, first, 100*time.Millisecond)
	assert.Less(t, first, 125*time.Millisecond)

	capped := c.calculateBackoff(5)
	assert.GreaterOrEqual(t, capped, 300*time.Millisecond)
	assert.Less(t, capped, 375*time.Millisecond)
}
