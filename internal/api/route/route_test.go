package route

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bassista/manifest_alert/internal/app"
	"github.com/bassista/manifest_alert/internal/config"
	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := &config.Config{
		Shared: config.SharedConfig{Path: t.TempDir(), LocalDir: t.TempDir()},
		Cache: config.CacheConfig{
			NetworkTTL:    30 * time.Second,
			FastTTL:       5 * time.Second,
			SweepInterval: time.Minute,
		},
		Network: config.NetworkConfig{
			Timeout:       time.Second,
			Retries:       1,
			RetryDelay:    5 * time.Millisecond,
			WatchDebounce: 20 * time.Millisecond,
		},
		Server: config.ServerConfig{
			RequestTimeout:     time.Second,
			CORSAllowedOrigins: "http://dashboard.local",
		},
	}
	a, err := app.New(cfg, func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) })
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Shutdown)
	return a
}

func serve(r *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetupRoutes_RegistersEndpoints(t *testing.T) {
	r := SetupRoutes(newTestApp(t), logger.Logger)

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/mute", http.StatusOK},
		{http.MethodGet, "/acknowledgments", http.StatusOK},
		{http.MethodGet, "/acknowledgments/summary?date=2026-03-01", http.StatusOK},
		{http.MethodGet, "/manifests", http.StatusOK},
		{http.MethodGet, "/manifest-config", http.StatusOK},
		{http.MethodGet, "/configuration", http.StatusOK},
		{http.MethodGet, "/cache/stats", http.StatusOK},
		{http.MethodGet, "/cache/info", http.StatusOK},
		{http.MethodDelete, "/cache", http.StatusNoContent},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			if w := serve(r, tc.method, tc.path, nil); w.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestSetupRoutes_MetricsExposeCacheCounters(t *testing.T) {
	r := SetupRoutes(newTestApp(t), logger.Logger)
	serve(r, http.MethodGet, "/mute", nil)

	w := serve(r, http.MethodGet, "/metrics", nil)
	if !strings.Contains(w.Body.String(), "manifest_alert_cache_lookups_total") {
		t.Error("expected cache lookup counter in metrics output")
	}
}

func TestSetupRoutes_AppliesCORS(t *testing.T) {
	r := SetupRoutes(newTestApp(t), logger.Logger)

	w := serve(r, http.MethodGet, "/mute", map[string]string{"Origin": "http://dashboard.local"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}
	w = serve(r, http.MethodGet, "/mute", map[string]string{"Origin": "http://evil.local"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no ACAO for unknown origin, got %q", got)
	}
}
