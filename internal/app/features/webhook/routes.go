package webhook

import "github.com/go-chi/chi/v5"

// Routes returns the router for the webhook endpoint.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.ServeWebhook)
	return r
}
