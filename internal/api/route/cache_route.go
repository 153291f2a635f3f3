package route

import (
	"github.com/bassista/manifest_alert/internal/api/controller"
	"github.com/bassista/manifest_alert/internal/app"
	"github.com/gin-gonic/gin"
)

// NewCacheRouter sets up cache diagnostics. These never touch the share so
// no request timeout applies.
func NewCacheRouter(group *gin.RouterGroup, appCtx *app.App) {
	cc := controller.NewCacheController(appCtx.Cache, appCtx.Accessor)

	group.GET("stats", cc.GetStats)
	group.GET("info", cc.GetInfo)
	group.DELETE("", cc.ClearAll)
	group.DELETE(":key", cc.Invalidate)
}
