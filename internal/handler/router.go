package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/avoronin/picmarket/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware маркетплейса изображений.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/user/profile", h.GetProfile)

			r.Route("/images", func(r chi.Router) {
				r.Get("/", h.GetCatalog)
				r.Post("/", h.CreateImage)

				r.Get("/{id}", h.GetImage)
				r.Patch("/{id}", h.UpdateImage)
				r.Delete("/{id}", h.DeleteImage)

				r.Get("/{id}/file", h.GetImageFile)
				r.Post("/{id}/buy", h.BuyImage)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
