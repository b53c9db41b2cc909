package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/deckbot/internal/metrics"
)

// RegisterRoutes registers the v1 endpoints on rg.
//
//	POST /users/:user/decks/:deck/cards/:card/review
//	POST /users/:user/decks/:deck/cards/:card/reset
//	GET  /users/:user/decks/:deck/due
//	GET  /users/:user/decks/:deck/stats
//	GET  /users/:user/cards/:card/stats
//	GET  /users/:user/overview
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	user := rg.Group("/users/:user")
	{
		deck := user.Group("/decks/:deck")
		deck.GET("/due", h.HandleDue)
		deck.GET("/stats", h.HandleDeckStats)
		deck.POST("/cards/:card/review", h.HandleReview)
		deck.POST("/cards/:card/reset", h.HandleReset)

		user.GET("/cards/:card/stats", h.HandleCardStats)
		user.GET("/overview", h.HandleOverview)
	}
}

// NewRouter builds the engine with recovery, health and, when m is set, /metrics
func NewRouter(h *Handlers, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID())

	router.GET("/healthz", h.HandleHealth)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}
	RegisterRoutes(router.Group("/v1"), h)
	return router
}

const requestIDKey = "request_id"

// requestID propagates X-Request-ID, generating one when the client sent none
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set(requestIDKey, id)
		c.Next()
	}
}
