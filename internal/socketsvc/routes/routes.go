package routes

import (
	"github.com/avvvet/expiry-services/internal/socketsvc/handlers"
	"github.com/avvvet/expiry-services/internal/socketsvc/ws"
	"github.com/go-chi/chi"
)

func SetRoutes(r chi.Router, ws *ws.Ws) {
	h := handlers.NewHandler(ws)
	r.Get("/health", h.HealthHandler)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/ws", h.HandleWebSocket)
	})
}
