package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"parking-access-backend/config"
	"parking-access-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheStore := cache.New(cfg.CacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Invalidate(cacheStore))
	{
		season := api.Group("/season-tickets")
		season.POST("", h.PurchaseSeasonTicket)
		season.POST("/entry", h.SeasonEntry)
		season.POST("/exit", h.SeasonExit)
		season.GET("/:id/parked-minutes", h.ParkedMinutes)

		occasional := api.Group("/occasional-tickets")
		occasional.POST("/entry", h.OccasionalEntry)
		occasional.GET("/pricing", h.OccasionalPricing)
		occasional.POST("/payment", h.OccasionalPayment)
		occasional.POST("/exit", h.OccasionalExit)

		api.GET("/slots/available", h.AvailableSlots)
		api.GET("/occupancy", caching, h.Occupancy)
		api.GET("/movements", h.Movements)
	}

	return r
}
