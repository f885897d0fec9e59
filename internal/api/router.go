package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"equipment-tracker-backend/config"
	"equipment-tracker-backend/internal/engine"
	"equipment-tracker-backend/internal/hub"
	"equipment-tracker-backend/internal/mw"
	"equipment-tracker-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, svc engine.Service, s store.Store, h *hub.Hub, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(svc, s, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// History tolerates slightly stale reads, so it sits behind a short-lived
	// response cache. Equipment reads must always hit the store.
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// GET /api/equipment
		api.GET("/equipment", handler.GetAllEquipment)

		// GET /api/equipment/{id}
		api.GET("/equipment/:id", handler.GetEquipmentByID)

		// PUT /api/equipment/{id}/state
		api.PUT("/equipment/:id/state", handler.UpdateState)

		// GET /api/history?equipmentId=&from=&to=
		api.GET("/history", caching, handler.GetHistory)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	// WebSocket endpoint for live equipment updates; not rate limited since
	// the connection is long-lived.
	r.GET("/ws", func(c *gin.Context) {
		h.ServeWS(c.Writer, c.Request)
	})

	return r
}
