package controller

import (
	"net/http"

	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/bassista/manifest_alert/internal/repository"
	"github.com/gin-gonic/gin"
)

// ConfigurationController serves the shared application settings.
type ConfigurationController struct {
	store repository.SettingsStore
}

func NewConfigurationController(store repository.SettingsStore) *ConfigurationController {
	return &ConfigurationController{store: store}
}

// GetConfiguration handles GET /configuration.
func (cc *ConfigurationController) GetConfiguration(c *gin.Context) {
	s, err := cc.store.Load(c.Request.Context())
	if err != nil {
		respondError(c, logger.WithComponent("configuration-controller"), "load settings", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// GetSetting handles GET /configuration/:key.
func (cc *ConfigurationController) GetSetting(c *gin.Context) {
	key := c.Param("key")
	v := cc.store.Setting(c.Request.Context(), key, nil)
	if v == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "setting not found: " + key})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": v})
}

// PutConfiguration handles PUT /configuration. Keys missing from the body
// take their default values; unknown keys are stored as-is.
func (cc *ConfigurationController) PutConfiguration(c *gin.Context) {
	var s repository.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		badPayload(c, err)
		return
	}
	if err := cc.store.Save(c.Request.Context(), s); err != nil {
		respondError(c, logger.WithComponent("configuration-controller"), "save settings", err)
		return
	}
	c.JSON(http.StatusOK, s)
}
