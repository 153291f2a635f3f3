package route

import (
	"time"

	"github.com/bassista/manifest_alert/internal/api/controller"
	"github.com/bassista/manifest_alert/internal/api/middleware"
	"github.com/bassista/manifest_alert/internal/app"
	"github.com/gin-gonic/gin"
)

func NewAckRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	group.Use(middleware.RequestTimeout(timeout))

	ac := controller.NewAckController(appCtx.Acks, appCtx.Now)

	group.GET("acknowledgments", ac.GetAcknowledgments)
	group.GET("acknowledgments/summary", ac.GetSummary)
	group.DELETE("acknowledgments", ac.ClearAcknowledgments)
	group.GET("acknowledgment", ac.GetAcknowledgment)
	group.POST("acknowledgment", ac.CreateAcknowledgment)
}
