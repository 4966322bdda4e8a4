package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/estate/internal/auth"
	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/metrics"
	"github.com/hitoshi/estate/internal/middleware"
	"github.com/hitoshi/estate/internal/repository"
)

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.pingFn(ctx)
}

func newBareRouter(t *testing.T, checker HealthChecker, gatherer prometheus.Gatherer) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)
	return NewRouter(&RouterDeps{
		Handler: Deps{
			Sessions:  auth.NewService(repository.NewMemorySessionRepo(), auth.ServiceConfig{SessionMaxAge: 60}),
			Providers: auth.NewManager(estateapi.Options{BaseURL: "http://127.0.0.1:1"}, logger),
			Logger:    logger,
		},
		HealthChecker: checker,
		RateLimiter:   limiter,
		Gatherer:      gatherer,
	})
}

func TestHealth_WithoutChecker_OK(t *testing.T) {
	router := newBareRouter(t, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want 200", rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			t.Error("ヘルスチェックでセッションが発行されている")
		}
	}
}

func TestHealth_CheckerFails_ServiceUnavailable(t *testing.T) {
	router := newBareRouter(t, &mockHealthChecker{pingFn: func(ctx context.Context) error {
		return errors.New("connection refused")
	}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health status = %d, want 503", rec.Code)
	}
}

func TestMetrics_ExposesCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.RecordScreenMount("buildings")
	router := newBareRouter(t, nil, reg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "estate_screen_mounts_total") {
		t.Errorf("画面マウントのメトリクスが出力されていない:\n%s", rec.Body.String())
	}
}

func TestRouter_UnreachableBackend_AbsorbsListFailure(t *testing.T) {
	router := newBareRouter(t, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/screens/land", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("GET /screens/land status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", rec.Header().Get("Cache-Control"))
	}
}

func TestRouter_PostWithoutCSRF_Forbidden(t *testing.T) {
	router := newBareRouter(t, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("POST /auth/login status = %d, want 403", rec.Code)
	}
}
