package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/element-scan/holders-indexer/internal/api/middleware"
)

// SetupRoutes registers all REST endpoints on the router. Reads are open;
// the populate trigger requires an API key.
func SetupRoutes(router *gin.Engine, handler *Handler, authCfg middleware.AuthConfig) {
	router.GET("/health", handler.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/contracts", handler.ListContracts)
		v1.GET("/holders/:contract", handler.ListHolders)
		v1.GET("/holders/:contract/progress", handler.GetProgress)
		v1.POST("/holders/:contract", middleware.Auth(authCfg), handler.TriggerPopulation)
	}
}
