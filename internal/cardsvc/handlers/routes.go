package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Get("/health", h.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if h.tokenAuth != nil {
			r.Use(jwtauth.Verifier(h.tokenAuth))
		}

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Post("/", h.CreateCard)
			r.Get("/status/{status}", h.ListCardsByStatus)
			r.Get("/category/{category}", h.ListCardsByCategory)
			r.Get("/user/{userId}", h.ListCardsByUser)
			r.Get("/expiring-soon", h.ExpiringSoon)
			r.Get("/expired", h.Expired)
			r.Get("/stats", h.Stats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCard)
				r.Put("/", h.UpdateCard)
				r.Delete("/", h.DeleteCard)
				r.Put("/use", h.MarkUsed)
			})
		})

		r.Route("/ocr", func(r chi.Router) {
			r.Post("/process", h.ProcessImage)
			r.Get("/scans", h.RecentScans)
		})
	})
}

// InitAuth enables bearer token parsing. Tokens are optional: a valid one
// only supplies the default owner of newly created cards.
func (h *Handler) InitAuth(secret string) {
	if secret == "" {
		log.Warn("JWT_SECRET_KEY is not set, bearer tokens are ignored")
		return
	}
	h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)
}

// userFromToken returns the user_id claim of a verified token, if any.
func (h *Handler) userFromToken(r *http.Request) (string, bool) {
	if h.tokenAuth == nil {
		return "", false
	}
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || token == nil {
		return "", false
	}

	switch v := claims["user_id"].(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case float64:
		return fmt.Sprintf("%.0f", v), true
	default:
		return fmt.Sprint(v), true
	}
}
