// internal/api/routes/routes.go
// Gin 路由註冊

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mail-dispatch/internal/api/handlers"
	"mail-dispatch/internal/api/middlewares"
	"mail-dispatch/internal/services"
)

// Dependencies 路由依賴
type Dependencies struct {
	Version   string
	JWTSecret string
	Live      handlers.SummaryProvider // 可選
	Store     services.StatusStore     // 可選
	KeyDB     handlers.Pinger          // 可選
}

// RegisterRoutes 註冊所有路由
func RegisterRoutes(router *gin.Engine, deps *Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.Version, deps.KeyDB)
	statusHandler := handlers.NewStatusHandler(deps.Live, deps.Store)

	// 公開路由
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		dispatch := v1.Group("/dispatch")
		dispatch.Use(middlewares.JWTAuth(deps.JWTSecret))
		dispatch.Use(middlewares.RequirePermission(middlewares.PermissionStatusRead))
		{
			dispatch.GET("/status", statusHandler.Current)
			dispatch.GET("/status/:id", statusHandler.Get)
		}
	}
}
