package route

import (
	"time"

	"github.com/bassista/manifest_alert/internal/api/controller"
	"github.com/bassista/manifest_alert/internal/api/middleware"
	"github.com/bassista/manifest_alert/internal/app"
	"github.com/gin-gonic/gin"
)

// NewConfigurationRouter sets up the shared settings routes.
func NewConfigurationRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	cc := controller.NewConfigurationController(appCtx.Settings)
	timeoutMiddleware := middleware.RequestTimeout(timeout)

	group.GET("configuration", timeoutMiddleware, cc.GetConfiguration)
	group.GET("configuration/:key", timeoutMiddleware, cc.GetSetting)
	group.PUT("configuration", timeoutMiddleware, cc.PutConfiguration)
}
