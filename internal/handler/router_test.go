package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/ffmesync/internal/metrics"
	"github.com/hitoshi/ffmesync/internal/middleware"
	"github.com/hitoshi/ffmesync/internal/storesync"
)

func newTestRouter(t *testing.T, buf *bytes.Buffer, mutate func(*RouterDeps)) http.Handler {
	t.Helper()
	logger := newTestLogger(buf)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	rl := middleware.NewRateLimiter("api", middleware.RateLimiterConfig{Rate: 1, Burst: 3, CleanupInterval: time.Minute}, logger)
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		Logger:            logger,
		CORSAllowedOrigin: "https://licences.example.org",
		RateLimiter:       rl,
		AdminToken:        "admin-secret",
		HealthChecker:     &mockHealthChecker{},
		MetricsHandler:    metrics.Handler(reg),
		Metrics:           collector,
		Quoter:            okQuoter(9500),
		Clock:             fixedClock(testAt),
		SyncTrigger: &mockSyncTrigger{
			runOnceFn: func(ctx context.Context) (*storesync.Report, error) {
				return &storesync.Report{Season: 2024, Failures: []string{}}, nil
			},
		},
		SyncWriteTimeout: time.Minute,
	}
	if mutate != nil {
		mutate(deps)
	}
	return NewRouter(deps)
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{"疎通可", nil, http.StatusOK, "ok"},
		{"疎通不可", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			router := newTestRouter(t, &buf, func(d *RouterDeps) {
				d.HealthChecker = &mockHealthChecker{err: tt.pingErr}
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body healthResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("status = %q, want %q", body.Status, tt.wantBody)
			}
		})
	}
}

func TestRouter_HealthIsNotRateLimited(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(t, &buf, nil)

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestRouter_MetricsExposePriceQuotes(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(t, &buf, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/price?club_id=10&license_type=a&insurance_level=base", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("price status = %d, want 200: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `ffmesync_price_quotes_total{outcome="success"} 1`) {
		t.Errorf("metrics にprice quoteが含まれていない:\n%s", body)
	}
}

func TestRouter_APIRateLimit(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(t, &buf, nil)

	var last int
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/season", nil))
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("4回目のstatus = %d, want %d", last, http.StatusTooManyRequests)
	}
}

func TestRouter_SyncRequiresAdminToken(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(t, &buf, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("トークンなし: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("正しいトークン: status = %d, want %d", w.Code, http.StatusOK)
	}

	if !strings.Contains(buf.String(), `"caller":"admin"`) {
		t.Errorf("アクセスログにcallerが含まれていない: %s", buf.String())
	}
}

func TestRouter_SyncNotRegisteredWithoutTrigger(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(t, &buf, func(d *RouterDeps) { d.SyncTrigger = nil })

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(t, &buf, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/price", nil)
	req.Header.Set("Origin", "https://licences.example.org")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://licences.example.org" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(t, &buf, func(d *RouterDeps) {
		d.HealthChecker = panickingChecker{}
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

type panickingChecker struct{}

func (panickingChecker) Ping(ctx context.Context) error { panic("nil pool") }
