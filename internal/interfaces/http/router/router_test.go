package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/posgateway/internal/application/gateway"
	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/domain/shared"
	"github.com/erp/posgateway/internal/infrastructure/telemetry"
	"github.com/erp/posgateway/internal/interfaces/http/handler"
	"github.com/erp/posgateway/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine  *gin.Engine
	logs    *observer.ObservedLogs
	metrics *telemetry.Metrics
	calls   []gateway.Call
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	metrics := telemetry.NewMetrics("test")

	envs, err := environment.NewRegistry([]environment.Environment{
		{Code: "p", Host: "erp.example.com", Port: 8069, Database: "prod", Origins: []string{"http://pos.example.com"}},
		{Code: "t", Host: "localhost", Port: 8069, Database: "test"},
	}, nil)
	require.NoError(t, err)

	ts := &testServer{logs: logs, metrics: metrics}

	registry := gateway.NewRegistry()
	registry.Register("m1", gateway.Module{
		"echo": func(ctx context.Context, call gateway.Call) (gateway.Result, error) {
			ts.calls = append(ts.calls, call)
			return gateway.JSONResult{Value: call.Args}, nil
		},
		"_get_logo": func(ctx context.Context, call gateway.Call) (gateway.Result, error) {
			return gateway.BinaryResult{Bytes: []byte("PNG"), MimeType: "png"}, nil
		},
		"boom": func(ctx context.Context, call gateway.Call) (gateway.Result, error) {
			return nil, errors.New("exploded")
		},
	})
	dispatcher := gateway.NewDispatcher(envs, registry, log, metrics)

	engine, err := NewEngine(EngineConfig{Logger: log, MaxBodySize: 256})
	require.NoError(t, err)

	system, err := handler.NewSystemHandler("")
	require.NoError(t, err)

	NewRouter(engine).
		Register(SystemRoutes{Handler: system}).
		Register(MetricsRoutes{Path: "/metrics", Handler: metrics.Handler()}).
		Register(DispatchRoutes{Handler: handler.NewDispatchHandler(dispatcher)}).
		Setup()

	ts.engine = engine
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func assertCORS(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, middleware.AllowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, middleware.AllowMethods, w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, middleware.AllowHeaders, w.Header().Get("Access-Control-Allow-Headers"))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) shared.AppError {
	t.Helper()
	var appErr shared.AppError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &appErr))
	return appErr
}

func TestRouter_Ping(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assertCORS(t, w)
}

func TestRouter_Favicon(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, handler.FaviconContentType, w.Header().Get("Content-Type"))
}

func TestRouter_Options(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/p/m1/echo", "/ping", "/nowhere"} {
		w := ts.do(httptest.NewRequest(http.MethodOptions, path, nil))

		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Empty(t, w.Body.String(), path)
		assertCORS(t, w)
	}
	assert.Empty(t, ts.calls)
}

func TestRouter_DispatchPost(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/p/m1/echo",
		strings.NewReader(`{"$username":"u","$password":"pw","name":"<b>"}`))
	req.Header.Set("Origin", "http://pos.example.com")
	w := ts.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, gateway.ContentTypeJSON, w.Header().Get("Content-Type"))
	assert.Equal(t, `{"name":"<b>"}`, w.Body.String())
	assertCORS(t, w)

	require.Len(t, ts.calls, 1)
	assert.Equal(t, "u", ts.calls[0].Username)
	assert.Equal(t, "pw", ts.calls[0].Password)
	assert.Equal(t, "p", ts.calls[0].Env.Code)
}

func TestRouter_OriginRejected(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/p/m1/echo", strings.NewReader(`{}`))
	req.Header.Set("Origin", "http://intruder.example.com")
	w := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared.ClassOriginNotAuthorized, decodeError(t, w).Class)
	assertCORS(t, w)
	assert.Empty(t, ts.calls)
	assert.Equal(t, 1, ts.logs.FilterMessage("Operation failed").Len())
}

func TestRouter_GetSkipsOriginCheck(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/p/m1/_get_logo", nil)
	req.Header.Set("Origin", "http://intruder.example.com")
	w := ts.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "PNG", w.Body.String())
}

func TestRouter_ResolutionErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		path  string
		class int
	}{
		{"/z/m1/echo", shared.ClassUnknownEnvironment},
		{"/t/m9/echo", shared.ClassUnknownModule},
		{"/t/m1/missing", shared.ClassUnknownFunction},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := ts.do(httptest.NewRequest(http.MethodDelete, tt.path, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.class, decodeError(t, w).Class)
		})
	}
}

func TestRouter_InvalidBodyAnswersAfterResolution(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		origin string
		class  int
	}{
		{"unlisted origin wins", "/p/m1/echo", "http://intruder.example.com", shared.ClassOriginNotAuthorized},
		{"unknown environment wins", "/z/m1/echo", "", shared.ClassUnknownEnvironment},
		{"unknown function wins", "/t/m1/missing", "", shared.ClassUnknownFunction},
		{"resolved call reports the body", "/t/m1/echo", "", shared.ClassUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader("not json"))
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := ts.do(req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.class, decodeError(t, w).Class)
			assert.Empty(t, ts.calls)

			failed := ts.logs.FilterMessage("Operation failed").All()
			require.Len(t, failed, 1)
			fields := failed[0].ContextMap()
			assert.Equal(t, tt.path, fields["path"])
			assert.NotEmpty(t, fields["request_id"])
		})
	}
}

func TestRouter_UnexpectedError(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodPut, "/t/m1/boom", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	appErr := decodeError(t, w)
	assert.Equal(t, shared.ClassUnexpected, appErr.Class)
	assert.Equal(t, shared.MsgUnexpected, appErr.Message)
	assert.Equal(t, "exploded", appErr.Detail)
}

func TestRouter_BodyLimit(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/t/m1/echo",
		strings.NewReader(`{"blob":"`+strings.Repeat("x", 512)+`"}`))
	w := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared.ClassUnexpected, decodeError(t, w).Class)
	assert.Empty(t, ts.calls)
}

func TestRouter_Metrics(t *testing.T) {
	ts := newTestServer(t)

	ts.do(httptest.NewRequest(http.MethodGet, "/t/m1/echo?a=1", nil))
	w := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_dispatch_requests_total")
}
