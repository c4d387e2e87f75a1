package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"market_backend/admin"
	"market_backend/controllers"
	"market_backend/middleware"
)

type Deps struct {
	Market         *controllers.MarketController
	MarketAdmin    *admin.MarketAdminController
	AdminJWTSecret string
	// PublicLimiter throttles the public market endpoints; nil disables it
	PublicLimiter *middleware.RateLimiter
	Logger        logrus.FieldLogger
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Deps) {
	api := router.Group("/api/v1")
	{
		market := api.Group("/market")
		if deps.PublicLimiter != nil {
			market.Use(middleware.RateLimit(deps.PublicLimiter))
		}
		{
			market.GET("/indices", deps.Market.GetIndices)
			market.GET("/crypto", deps.Market.GetCrypto)
			market.GET("/currencies", deps.Market.GetCurrencies)
			market.GET("/commodities", deps.Market.GetCommodities)
			market.GET("/config/:category", deps.Market.GetConfig)
			market.GET("/ws", deps.Market.Stream)
		}
	}

	adminAPI := router.Group("/admin/api/market")
	adminAPI.Use(middleware.AdminAuth(deps.AdminJWTSecret, deps.Logger))
	{
		adminAPI.GET("/preferences", deps.MarketAdmin.ListPreferences)
		adminAPI.GET("/preferences/:category", deps.MarketAdmin.GetPreference)
		adminAPI.PUT("/preferences/:category", deps.MarketAdmin.UpdatePreference)
		adminAPI.POST("/cache/clear", deps.MarketAdmin.ClearCache)

		adminAPI.GET("/scheduler", deps.MarketAdmin.SchedulerStatus)
		adminAPI.PUT("/scheduler/intervals", deps.MarketAdmin.UpdateIntervals)
		adminAPI.POST("/scheduler/start", deps.MarketAdmin.StartScheduler)
		adminAPI.POST("/scheduler/stop", deps.MarketAdmin.StopScheduler)
		adminAPI.POST("/scheduler/restart", deps.MarketAdmin.RestartScheduler)

		adminAPI.POST("/refresh/:category", deps.MarketAdmin.TriggerRefresh)
	}
}
