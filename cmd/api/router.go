package api

import (
	"net/http"

	"mailpilot-backend/internal/auth/delivery"
	ruleDelivery "mailpilot-backend/internal/rule/delivery"
	"mailpilot-backend/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(r *gin.Engine, ruleHandler *ruleDelivery.RuleHandler, cfg *config.Config) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Rule routes (protected)
		rules := api.Group("/rules")
		rules.Use(delivery.AuthMiddleware(cfg.JWTSecret))
		{
			rules.GET("", ruleHandler.GetRules)
			rules.POST("", ruleHandler.CreateRule)
			rules.GET("/stats", ruleHandler.GetStats)
			rules.POST("/test", ruleHandler.TestRule)
			rules.POST("/process", ruleHandler.ProcessEmail)
			rules.GET("/:id", ruleHandler.GetRule)
			rules.PUT("/:id", ruleHandler.UpdateRule)
			rules.DELETE("/:id", ruleHandler.DeleteRule)
		}
	}
}
