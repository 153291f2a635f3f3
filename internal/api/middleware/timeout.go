package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/gin-gonic/gin"
)

// RequestTimeout bounds the shared-folder work of one request. Handlers and
// repositories see the deadline through the request context; a handler that
// gives up without writing gets a 504 carrying the timeout error.
// A non-positive d disables the deadline.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	log := logger.WithComponent("http")

	return func(c *gin.Context) {
		start := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}
		entry := log.WithFields(logger.Since(start)).
			WithField("method", c.Request.Method).
			WithField("path", c.FullPath())
		if c.Writer.Written() {
			entry.Debugf("deadline of %s passed after the response was written", d)
			return
		}
		err := &errs.TimeoutError{Label: c.Request.Method + " " + c.FullPath(), Timeout: d, Elapsed: time.Since(start)}
		entry.Warn(err.Error())
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	}
}
