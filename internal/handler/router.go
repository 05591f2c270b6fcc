package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/middleware"
)

type RouterDeps struct {
	Businesses    *BusinessHandler
	Crawls        *CrawlHandler
	Agent         *AgentHandler
	Tiers         *TierHandler
	AskRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/webhooks/business-created", deps.Businesses.Created)
	api.GET("/businesses/:id", deps.Businesses.Get)
	api.PUT("/businesses/:id/tier", deps.Businesses.UpdateTier)

	api.POST("/crawl/trigger", deps.Crawls.Trigger)
	api.POST("/scheduled/crawl-all", deps.Crawls.CrawlAll)
	api.GET("/crawl/jobs", deps.Crawls.ListJobs)
	api.GET("/crawl/jobs/:id", deps.Crawls.GetJob)

	askGroup := api.Group("")
	askGroup.Use(middleware.RateLimit(deps.AskRateWindow))
	askGroup.POST("/agent/ask", deps.Agent.Ask)
	api.GET("/agent/history", deps.Agent.History)

	api.GET("/tiers/list", deps.Tiers.List)
	api.GET("/tiers/limits/:business_id", deps.Businesses.Limits)
}
