package controller

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/offerhub/internal/handler"
)

// NewRouter mounts every HTTP route of the service.
func NewRouter(tenants *TenantController, campaigns *CampaignController, reports *handler.CampaignHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(handler.Identity)
	r.Use(handler.RequestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/tenants", tenants.CreateTenant)
	r.Route("/tenants/{tenant}", func(r chi.Router) {
		r.Get("/", tenants.GetTenant)
		r.Post("/roles", tenants.AssignRole)

		r.Post("/offers", tenants.CreateOffer)
		r.Get("/offers/{id}", tenants.GetOffer)

		// Campaign routes
		r.Post("/campaigns", campaigns.CreateCampaign)
		r.Get("/campaigns", campaigns.ListCampaigns)
		r.Get("/campaigns/{id}", campaigns.GetCampaignDetails)
		r.Patch("/campaigns/{id}", campaigns.UpdateCampaign)
		r.Post("/campaigns/{id}/materialize", campaigns.Materialize)
		r.Post("/campaigns/{id}/notify", campaigns.Notify)
		r.Get("/campaigns/{id}/stats", reports.GetCampaignStats)
		r.Get("/campaigns/{id}/customers", reports.ListCampaignCustomers)
		r.Post("/campaigns/{id}/customers/{customer_id}/response", campaigns.RecordResponse)
	})
	return r
}
