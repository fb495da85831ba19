package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"focusvault-backend/internal/handlers"
	"focusvault-backend/internal/middleware"
	"focusvault-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	sessionHandler *handlers.SessionHandler,
	chatHandler *handlers.ChatHandler,
	statsHandler *handlers.StatsHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Handshake limiter (20 req/min per IP): reconnect loops should back off.
	wsLimiter := middleware.NewRateLimiter(20, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Study Session Routes ────
		r.Route("/study-sessions", func(r chi.Router) {
			// Beacon authenticates via query token: sendBeacon cannot set headers.
			r.Post("/{id}/beacon", sessionHandler.Beacon)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/start", sessionHandler.Start)
				r.Get("/", sessionHandler.List)
				r.Put("/{id}", sessionHandler.Update)
				r.Post("/{id}/end", sessionHandler.End)
				r.Delete("/{id}", sessionHandler.Cancel)
			})
		})

		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/rooms/{roomID}/messages", chatHandler.History)
		})

		// ──── Stats Routes ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/stats", statsHandler.Stats)
			r.Get("/stats/history", statsHandler.History)
		})

		// ──── WebSocket ────
		r.Group(func(r chi.Router) {
			r.Use(wsLimiter.Middleware)
			r.Get("/ws", wsHub.HandleWebSocket)
		})
	})

	return r
}
