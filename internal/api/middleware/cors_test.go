package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const dashboard = "http://dashboard.warehouse.local:8080"

func corsRequest(allowed, method, origin string, headers map[string]string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(CORSMiddleware(allowed))
	r.GET("/mute", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"is_muted": false}) })
	r.POST("/acknowledgment", func(c *gin.Context) { c.Status(http.StatusCreated) })

	path := "/mute"
	if method != http.MethodGet {
		path = "/acknowledgment"
	}
	req := httptest.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSMiddleware_Origins(t *testing.T) {
	tests := []struct {
		name        string
		allowed     string
		origin      string
		wantOrigin  string
		wantCreds   string
		wantVary    string
		wantMethods bool
	}{
		{"wildcard", "*", dashboard, "*", "", "", true},
		{"listed origin", dashboard + ",http://kiosk.local", dashboard, dashboard, "true", "Origin", true},
		{"listed with spaces", "  http://kiosk.local ,  " + dashboard + "  ", dashboard, dashboard, "true", "Origin", true},
		{"unlisted origin", "http://kiosk.local", dashboard, "", "", "", false},
		{"nothing allowed", "", dashboard, "", "", "", false},
		{"same-origin request", dashboard, "", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := corsRequest(tt.allowed, http.MethodGet, tt.origin, nil)

			assert.Equal(t, http.StatusOK, w.Code, "request is served regardless of CORS")
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, tt.wantVary, w.Header().Get("Vary"))
			assert.Equal(t, tt.wantMethods, w.Header().Get("Access-Control-Allow-Methods") != "")
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	w := corsRequest("*", http.MethodOptions, dashboard, map[string]string{
		"Access-Control-Request-Method": http.MethodPost,
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Equal(t, corsAllowHeaders, w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, w.Body.String())
}

func TestCORSMiddleware_PreflightEchoesRequestedHeaders(t *testing.T) {
	w := corsRequest(dashboard, http.MethodOptions, dashboard, map[string]string{
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Content-Type, X-Dashboard-User",
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "Content-Type, X-Dashboard-User", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, dashboard, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_PlainOptionsIsNotPreflight(t *testing.T) {
	w := corsRequest("*", http.MethodOptions, dashboard, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
