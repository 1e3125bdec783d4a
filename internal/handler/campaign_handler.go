// internal/handler/campaign_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/service"
)

// ReportService is the read side used by the reporting endpoints.
type ReportService interface {
	GetCampaignDetailsWithStats(ctx context.Context, username, tenant string, id int64) (*service.CampaignDetails, error)
	ListCampaignCustomers(ctx context.Context, username, tenant string, id int64, page, pageSize int, status string) ([]model.CampaignCustomer, map[string]int, error)
}

// CampaignHandler serves delivery reporting for campaigns.
type CampaignHandler struct {
	Service ReportService
}

func NewCampaignHandler(svc ReportService) *CampaignHandler {
	return &CampaignHandler{Service: svc}
}

// GetCampaignStats returns the campaign with association counts per delivery status.
func (h *CampaignHandler) GetCampaignStats(w http.ResponseWriter, r *http.Request) {
	id, err := Int64Param(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), Username(r.Context()), chi.URLParam(r, "tenant"), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, details)
}

// ListCampaignCustomers pages through a campaign's associations,
// optionally filtered by ?delivery_status=.
func (h *CampaignHandler) ListCampaignCustomers(w http.ResponseWriter, r *http.Request) {
	id, err := Int64Param(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	page, pageSize := Page(r)

	rows, pagination, err := h.Service.ListCampaignCustomers(r.Context(), Username(r.Context()),
		chi.URLParam(r, "tenant"), id, page, pageSize, r.URL.Query().Get("delivery_status"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": pagination,
	})
}
