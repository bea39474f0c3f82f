package httpapi

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the experiment endpoints on rg:
//
//	GET  /experiments/:id/weights
//	POST /experiments/:id/weights
//	GET  /experiments/:id/observations?start=&end=
//	POST /experiments/:id/run
//	GET  /health
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.GET("/health", h.HandleHealth)

	exp := rg.Group("/experiments/:id")
	exp.GET("/weights", h.HandleReadWeights)
	exp.POST("/weights", h.HandleWriteWeights)
	exp.GET("/observations", h.HandleReadObservations)
	exp.POST("/run", h.HandleRun)
}

// NewRouter returns a gin engine with recovery and the experiment routes at
// the root.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(&router.RouterGroup, h)
	return router
}
