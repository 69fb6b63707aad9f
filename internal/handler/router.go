package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/RaifayoussefDev/Backend-DabApp-sub000/internal/middleware"
)

// pathParam извлекает именованный параметр маршрута chi.
func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса торгов SOOM.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Route("/listings/{listingID}", func(r chi.Router) {
			r.Get("/sooms", h.ListSooms)
			r.Get("/minimum-soom", h.MinimumSoom)
			r.Get("/last-soom", h.LastSoom)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Post("/soom", h.CreateSoom)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Patch("/submissions/{soomID}/accept", h.AcceptSoom)
			r.Patch("/submissions/{soomID}/reject", h.RejectSoom)
			r.Delete("/submissions/{soomID}/cancel", h.CancelSoom)
			r.Put("/submissions/{soomID}/edit", h.EditSoom)

			r.Get("/my-listings-sooms", h.SellerInbox)
			r.Get("/my-sooms", h.BuyerOutbox)
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
