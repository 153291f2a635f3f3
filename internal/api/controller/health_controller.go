package controller

import (
	"net/http"
	"time"

	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/bassista/manifest_alert/internal/network"
	"github.com/gin-gonic/gin"
)

// HealthController reports liveness plus whether the shared location is
// reachable. The process stays healthy while the share is down because
// reads keep degrading to local backups.
type HealthController struct {
	accessor *network.Accessor
	timeout  time.Duration
}

func NewHealthController(acc *network.Accessor, timeout time.Duration) *HealthController {
	return &HealthController{accessor: acc, timeout: timeout}
}

// GetHealth handles GET /health.
func (hc *HealthController) GetHealth(c *gin.Context) {
	resp := gin.H{"status": "ok", "shared_reachable": true}
	if err := hc.accessor.ValidateAccess(c.Request.Context(), hc.timeout); err != nil {
		logger.WithComponent("health-controller").WithError(err).Debug("shared location unreachable")
		resp["status"] = "degraded"
		resp["shared_reachable"] = false
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
