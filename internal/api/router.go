package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Recovery)
	r.Use(RequestID)
	r.Use(Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, NotFound(""))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		if h.Pricer != nil {
			r.Get("/prices/{sku}", h.GetPrice)
			r.Get("/pricelist", h.GetPricelist)
			r.Post("/catalog/refresh", h.RefreshCatalog)
		}
		if h.Autokeys != nil {
			r.Post("/autokeys/{direction}", h.SubmitAutokeys)
		}
		if h.Store != nil {
			r.Get("/stored/{sku}", h.GetStored)
		}
	})

	return r
}
