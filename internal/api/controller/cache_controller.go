package controller

import (
	"net/http"

	"github.com/bassista/manifest_alert/internal/cache"
	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/bassista/manifest_alert/internal/network"
	"github.com/gin-gonic/gin"
)

// CacheController exposes cache diagnostics and manual invalidation.
type CacheController struct {
	cache    *cache.Manager
	accessor *network.Accessor
}

func NewCacheController(cm *cache.Manager, acc *network.Accessor) *CacheController {
	return &CacheController{cache: cm, accessor: acc}
}

// tiersParam parses the optional tier query parameter; none means all tiers.
func tiersParam(c *gin.Context) ([]cache.Tier, error) {
	raw := c.Query("tier")
	if raw == "" {
		return nil, nil
	}
	t, err := cache.ParseTier(raw)
	if err != nil {
		return nil, err
	}
	return []cache.Tier{t}, nil
}

// GetStats handles GET /cache/stats.
func (cc *CacheController) GetStats(c *gin.Context) {
	st := cc.cache.Statistics()
	c.JSON(http.StatusOK, gin.H{
		"cache":   st,
		"summary": st.Summary(),
		"network": cc.accessor.Stats(),
	})
}

// GetInfo handles GET /cache/info?tier=network|fast.
func (cc *CacheController) GetInfo(c *gin.Context) {
	tiers, err := tiersParam(c)
	if err != nil {
		respondError(c, logger.WithComponent("cache-controller"), "cache info", err)
		return
	}
	entries := cc.cache.Info(tiers...)
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// ClearAll handles DELETE /cache.
func (cc *CacheController) ClearAll(c *gin.Context) {
	cc.cache.ClearAll()
	logger.WithComponent("cache-controller").Info("cache cleared on request")
	c.Status(http.StatusNoContent)
}

// Invalidate handles DELETE /cache/:key?tier=network|fast.
func (cc *CacheController) Invalidate(c *gin.Context) {
	tiers, err := tiersParam(c)
	if err != nil {
		respondError(c, logger.WithComponent("cache-controller"), "invalidate", err)
		return
	}
	key := c.Param("key")
	c.JSON(http.StatusOK, gin.H{"key": key, "removed": cc.cache.Invalidate(key, tiers...)})
}
