package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"equipment-tracker-backend/internal/engine"
	"equipment-tracker-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  engine.Service
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(svc engine.Service, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		engine:  svc,
		store:   s,
		webpush: webpushOptions,
	}
}
