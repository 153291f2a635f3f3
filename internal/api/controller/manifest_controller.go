package controller

import (
	"net/http"
	"time"

	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/bassista/manifest_alert/internal/repository"
	"github.com/gin-gonic/gin"
)

type ManifestController struct {
	store repository.ManifestStore
	now   func() time.Time
}

func NewManifestController(store repository.ManifestStore, now func() time.Time) *ManifestController {
	if now == nil {
		now = time.Now
	}
	return &ManifestController{store: store, now: now}
}

// GetManifests handles GET /manifests?date=YYYY-MM-DD.
func (mc *ManifestController) GetManifests(c *gin.Context) {
	date := dateOrToday(c, mc.now)
	manifests, err := mc.store.LoadManifests(c.Request.Context(), date)
	if err != nil {
		respondError(c, logger.WithComponent("manifest-controller"), "list manifests", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "manifests": manifests, "count": len(manifests)})
}

// GetConfig handles GET /manifest-config.
func (mc *ManifestController) GetConfig(c *gin.Context) {
	cfg, err := mc.store.LoadConfig(c.Request.Context())
	if err != nil {
		respondError(c, logger.WithComponent("manifest-controller"), "load manifest config", err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// PutConfig handles PUT /manifest-config.
func (mc *ManifestController) PutConfig(c *gin.Context) {
	var cfg repository.ManifestConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badPayload(c, err)
		return
	}
	if err := mc.store.SaveConfig(c.Request.Context(), cfg); err != nil {
		respondError(c, logger.WithComponent("manifest-controller"), "save manifest config", err)
		return
	}
	mc.GetConfig(c)
}
