package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bassista/manifest_alert/internal/api/controller"
	"github.com/bassista/manifest_alert/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hungShare is a mute store whose share never answers; it returns only
// when the request deadline passes.
type hungShare struct {
	repository.MuteStore
	deadline time.Time
}

func (h *hungShare) Load(ctx context.Context) (repository.MuteStatus, error) {
	h.deadline, _ = ctx.Deadline()
	<-ctx.Done()
	return repository.MuteStatus{}, ctx.Err()
}

func muteRouter(d time.Duration, store repository.MuteStore) *gin.Engine {
	r := gin.New()
	r.Use(RequestTimeout(d))
	r.GET("/mute", controller.NewMuteController(store, time.Now).GetMute)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRequestTimeout_HungShareAnswers504(t *testing.T) {
	store := &hungShare{}
	start := time.Now()

	w := get(muteRouter(50*time.Millisecond, store), "/mute")

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Less(t, time.Since(start), time.Second)
	assert.WithinDuration(t, start.Add(50*time.Millisecond), store.deadline, 40*time.Millisecond)
}

func TestRequestTimeout_SilentHandlerGetsTimeoutError(t *testing.T) {
	r := gin.New()
	r.Use(RequestTimeout(30 * time.Millisecond))
	r.GET("/acknowledgments", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	w := get(r, "/acknowledgments")
	require.Equal(t, http.StatusGatewayTimeout, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "GET /acknowledgments timed out")
	assert.Contains(t, body["error"], "limit 30ms")
}

func TestRequestTimeout_WrittenResponseIsKept(t *testing.T) {
	r := gin.New()
	r.Use(RequestTimeout(20 * time.Millisecond))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "degraded"})
		<-c.Request.Context().Done()
	})

	w := get(r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"degraded"}`, w.Body.String())
}

func TestRequestTimeout_Disabled(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		r := gin.New()
		r.Use(RequestTimeout(d))
		var hasDeadline bool
		r.GET("/cache/stats", func(c *gin.Context) {
			_, hasDeadline = c.Request.Context().Deadline()
			c.Status(http.StatusOK)
		})

		w := get(r, "/cache/stats")
		assert.Equal(t, http.StatusOK, w.Code, d)
		assert.False(t, hasDeadline, d)
	}
}
