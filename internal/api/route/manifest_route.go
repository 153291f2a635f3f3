package route

import (
	"time"

	"github.com/bassista/manifest_alert/internal/api/controller"
	"github.com/bassista/manifest_alert/internal/api/middleware"
	"github.com/bassista/manifest_alert/internal/app"
	"github.com/gin-gonic/gin"
)

func NewManifestRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	group.Use(middleware.RequestTimeout(timeout))

	mc := controller.NewManifestController(appCtx.Manifests, appCtx.Now)

	group.GET("manifests", mc.GetManifests)
	group.GET("manifest-config", mc.GetConfig)
	group.PUT("manifest-config", mc.PutConfig)
}
