// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/AtRiskMedia/launchtrack-go/internal/application/container"
	"github.com/AtRiskMedia/launchtrack-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/launchtrack-go/internal/presentation/http/middleware"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.RequestMetrics(container.PerfTracker))
	r.Use(middleware.RequestTimeout(config.RequestTimeout))
	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	healthHandlers := handlers.NewHealthHandlers(container.DB, container.Cache)
	trackingHandlers := handlers.NewTrackingHandlers(container.IdentityService, container.Logger)
	purchaseHandlers := handlers.NewPurchaseHandlers(container.AttributionService, container.JobService, container.Logger)
	launchHandlers := handlers.NewLaunchHandlers(container.LaunchService, container.MetricsService, container.Logger, container.PerfTracker)
	analyticsHandlers := handlers.NewAnalyticsHandlers(container.MetricsService, container.Clock, container.Logger)

	r.GET("/health", healthHandlers.GetHealth)
	r.GET("/metrics", gin.WrapH(container.PerfTracker.Handler()))

	// Public share links
	r.GET("/api/v1/share/:token", launchHandlers.GetSharedLaunch)

	api := r.Group("/api/v1")
	api.Use(middleware.AccountAuthMiddleware(config.JWTSecret, container.Logger))
	{
		track := api.Group("/track")
		{
			track.POST("/visit", trackingHandlers.PostVisit)
			track.POST("/identify", trackingHandlers.PostIdentify)
		}

		purchases := api.Group("/purchases")
		{
			purchases.POST("", purchaseHandlers.PostPurchase)
			purchases.POST("/refund", purchaseHandlers.PostRefund)
			purchases.POST("/reattribute", purchaseHandlers.PostReattributeAll)
			purchases.POST("/:id/reattribute", purchaseHandlers.PostReattribute)
		}

		api.GET("/jobs/:id", purchaseHandlers.GetJob)
		api.GET("/attribution/match-rate", purchaseHandlers.GetMatchRate)

		launches := api.Group("/launches")
		{
			launches.GET("", launchHandlers.ListLaunches)
			launches.POST("", launchHandlers.CreateLaunch)
			launches.GET("/compare", launchHandlers.CompareLaunches)
			launches.GET("/:id", launchHandlers.GetLaunch)
			launches.PATCH("/:id", launchHandlers.UpdateLaunch)
			launches.DELETE("/:id", launchHandlers.DeleteLaunch)
			launches.POST("/:id/archive", launchHandlers.ArchiveLaunch)
			launches.POST("/:id/duplicate", launchHandlers.DuplicateLaunch)
			launches.POST("/:id/share", launchHandlers.EnableShare)
			launches.DELETE("/:id/share", launchHandlers.DisableShare)
			launches.POST("/:id/recap", launchHandlers.SendRecap)
			launches.GET("/:id/metrics", launchHandlers.GetLaunchMetrics)
			launches.GET("/:id/live", launchHandlers.GetLiveStats)
			launches.GET("/:id/views", launchHandlers.GetShareViews)
		}

		analytics := api.Group("/analytics")
		{
			analytics.GET("/summary", analyticsHandlers.GetSummary)
			analytics.GET("/sources", analyticsHandlers.GetSources)
			analytics.GET("/recent", analyticsHandlers.GetRecent)
			analytics.GET("/drilldown", analyticsHandlers.GetDrillDown)
			analytics.GET("/export", analyticsHandlers.GetExport)
		}
	}

	return r
}
