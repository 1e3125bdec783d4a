// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/handler"
	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/queue"
	"github.com/unclebandit/offerhub/internal/service"
)

// CampaignAPI is the service surface behind the campaign endpoints.
type CampaignAPI interface {
	CreateCampaign(ctx context.Context, username, tenant string, in service.CampaignInput) (*model.Campaign, error)
	GetCampaign(ctx context.Context, username, tenant string, id int64) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, username, tenant string, page, pageSize int, status string) ([]model.Campaign, map[string]int, error)
	UpdateCampaign(ctx context.Context, username, tenant string, id int64, upd model.CampaignUpdate) (*service.UpdateResult, error)
	Reprocess(ctx context.Context, username, tenant string, id int64, kind queue.JobKind) (*service.StageResult, error)
	RecordResponse(ctx context.Context, username, tenant string, id int64, customerID uuid.UUID, status model.DeliveryStatus) (*model.CampaignCustomer, error)
}

type CampaignController struct {
	CampaignService CampaignAPI
	Validate        *validator.Validate
}

func NewCampaignController(svc CampaignAPI) *CampaignController {
	return &CampaignController{CampaignService: svc, Validate: newValidator()}
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body createCampaignRequest
	if err := decode(r, c.Validate, &body); err != nil {
		handler.WriteError(w, r, err)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), handler.Username(r.Context()), chi.URLParam(r, "tenant"), body.input())
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, pageSize := handler.Page(r)
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), handler.Username(r.Context()),
		chi.URLParam(r, "tenant"), page, pageSize, status)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination, // already contains total_count, total_pages, page, page_size
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, err := handler.Int64Param(r, "id")
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	campaign, err := c.CampaignService.GetCampaign(r.Context(), handler.Username(r.Context()), chi.URLParam(r, "tenant"), id)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, campaign)
}

// UpdateCampaign edits a draft and/or moves the campaign through its lifecycle.
// When the status was committed but its side effect failed, the response
// carries both the error and the committed result.
func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := handler.Int64Param(r, "id")
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	var body updateCampaignRequest
	if err := decode(r, c.Validate, &body); err != nil {
		handler.WriteError(w, r, err)
		return
	}

	result, err := c.CampaignService.UpdateCampaign(r.Context(), handler.Username(r.Context()), chi.URLParam(r, "tenant"), id, body.update())
	if err != nil {
		var side *appErrors.SideEffectError
		if errors.As(err, &side) && result != nil {
			handler.WriteErrorWith(w, r, err, result)
			return
		}
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, result)
}

func (c *CampaignController) Materialize(w http.ResponseWriter, r *http.Request) {
	c.reprocess(w, r, queue.JobMaterialize)
}

func (c *CampaignController) Notify(w http.ResponseWriter, r *http.Request) {
	c.reprocess(w, r, queue.JobNotify)
}

func (c *CampaignController) reprocess(w http.ResponseWriter, r *http.Request, kind queue.JobKind) {
	id, err := handler.Int64Param(r, "id")
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	result, err := c.CampaignService.Reprocess(r.Context(), handler.Username(r.Context()), chi.URLParam(r, "tenant"), id, kind)
	if err != nil {
		if result != nil {
			handler.WriteErrorWith(w, r, err, result)
			return
		}
		handler.WriteError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	handler.WriteJSON(w, status, result)
}

func (c *CampaignController) RecordResponse(w http.ResponseWriter, r *http.Request) {
	id, err := handler.Int64Param(r, "id")
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	customerID, err := uuid.Parse(chi.URLParam(r, "customer_id"))
	if err != nil {
		handler.WriteError(w, r, appErrors.NewValidation("customer_id", "must be a UUID"))
		return
	}
	var body responseRequest
	if err := decode(r, c.Validate, &body); err != nil {
		handler.WriteError(w, r, err)
		return
	}

	row, err := c.CampaignService.RecordResponse(r.Context(), handler.Username(r.Context()), chi.URLParam(r, "tenant"),
		id, customerID, model.DeliveryStatus(body.Response))
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, row)
}
