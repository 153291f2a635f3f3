package controller

import (
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusFor maps the error taxonomy to an HTTP status. Deadline is checked
// first because a timed-out network call is also unavailable.
func statusFor(err error) int {
	switch {
	case errdefs.IsDeadlineExceeded(err):
		return http.StatusGatewayTimeout
	case errdefs.IsCanceled(err):
		return 499
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the mapped status with the error message and logs it.
func respondError(c *gin.Context, log *logrus.Entry, action string, err error) {
	status := statusFor(err)
	entry := log.WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Errorf("%s failed", action)
	} else {
		entry.Debugf("%s rejected", action)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badPayload(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
}
