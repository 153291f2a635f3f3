package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/gin-gonic/gin"
)

func TestHoneybadgerMiddleware_DisabledWithoutKey(t *testing.T) {
	t.Setenv("HONEYBADGER_API_KEY", "")

	r := gin.New()
	r.Use(HoneybadgerMiddleware(logger.Logger))
	r.GET("/fail", func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "share unreachable"})
	})

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected handler status to pass through, got %d", w.Code)
	}
}
