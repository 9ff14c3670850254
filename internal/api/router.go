package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/reelscribe/internal/api/handler"
	mw "github.com/iconidentify/reelscribe/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	transcribeHandler *handler.TranscribeHandler,
	healthHandler *handler.HealthHandler,
	uiHandler *handler.UIHandler,
	requestTimeout time.Duration,
	logger *slog.Logger,
) *chi.Mux {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Minute
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))

	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/stats", healthHandler.Stats)

	r.Get("/", uiHandler.Index)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Post("/transcribe", transcribeHandler.Transcribe)
	})

	return r
}
