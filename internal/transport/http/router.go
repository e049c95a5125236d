// Package http exposes the chat command surface and the strategy lookup API
// over HTTP, plus health and metrics endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qcsync/internal/strategy"
)

// ChatService handles free-text bot commands.
type ChatService interface {
	HandleCommand(ctx context.Context, content string) (string, bool)
}

// StrategyService fetches strategy selections.
type StrategyService interface {
	Fetch(ctx context.Context, strategy, period string, count int) (*strategy.Selection, error)
}

// NewRouter builds the HTTP router for the chat front end.
func NewRouter(chat ChatService, strategies StrategyService, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	chatHandler := NewChatHandler(chat, logger)
	strategyHandler := NewStrategyHandler(strategies, logger)
	healthHandler := NewHealthHandler()

	r.Mount("/api/chat", chatHandler.Routes())
	r.Mount("/api/strategy", strategyHandler.Routes())
	r.Get("/healthz", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
