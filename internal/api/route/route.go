package route

import (
	"github.com/bassista/manifest_alert/internal/api/controller"
	"github.com/bassista/manifest_alert/internal/api/middleware"
	"github.com/bassista/manifest_alert/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SetupRoutes builds the HTTP engine with middleware and every API route.
func SetupRoutes(appCtx *app.App, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.HoneybadgerMiddleware(log))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(appCtx.Config.Server.CORSAllowedOrigins))

	hc := controller.NewHealthController(appCtx.Accessor, appCtx.Config.Network.Timeout)
	r.GET("/health", hc.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	publicRouter := r.Group("")

	// All Public APIs
	timeout := appCtx.Config.Server.RequestTimeout

	NewMuteRouter(timeout, publicRouter.Group(""), appCtx)
	NewAckRouter(timeout, publicRouter.Group(""), appCtx)
	NewManifestRouter(timeout, publicRouter.Group(""), appCtx)
	NewConfigurationRouter(timeout, publicRouter.Group(""), appCtx)
	NewCacheRouter(publicRouter.Group("cache"), appCtx)

	return r
}
