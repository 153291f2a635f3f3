package route

import (
	"time"

	"github.com/bassista/manifest_alert/internal/api/controller"
	"github.com/bassista/manifest_alert/internal/api/middleware"
	"github.com/bassista/manifest_alert/internal/app"
	"github.com/gin-gonic/gin"
)

func NewMuteRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	group.Use(middleware.RequestTimeout(timeout))

	mc := controller.NewMuteController(appCtx.Mute, appCtx.Now)

	group.GET("mute", mc.GetMute)
	group.PUT("mute", mc.PutMute)
	group.POST("mute/toggle", mc.Toggle)
	group.POST("mute/snooze", mc.Snooze)
	group.POST("mute/unmute", mc.Unmute)
}
