package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/unclebandit/offerhub/internal/handler"
	"github.com/unclebandit/offerhub/internal/model"
)

// TenantAPI is the service surface behind tenant, role and offer endpoints.
type TenantAPI interface {
	CreateTenant(ctx context.Context, username, name, description string) (*model.Tenant, error)
	GetTenant(ctx context.Context, username, name string) (*model.Tenant, error)
	AssignRole(ctx context.Context, username, tenant, member string, role model.Role) error
	CreateOffer(ctx context.Context, username, tenant string, o *model.Offer) (*model.Offer, error)
	GetOffer(ctx context.Context, username, tenant string, id int64) (*model.Offer, error)
}

type TenantController struct {
	TenantService TenantAPI
	Validate      *validator.Validate
}

func NewTenantController(svc TenantAPI) *TenantController {
	return &TenantController{TenantService: svc, Validate: newValidator()}
}

func (c *TenantController) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var body createTenantRequest
	if err := decode(r, c.Validate, &body); err != nil {
		handler.WriteError(w, r, err)
		return
	}
	t, err := c.TenantService.CreateTenant(r.Context(), handler.Username(r.Context()), body.Name, body.Description)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, t)
}

func (c *TenantController) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := c.TenantService.GetTenant(r.Context(), handler.Username(r.Context()), chi.URLParam(r, "tenant"))
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, t)
}

func (c *TenantController) AssignRole(w http.ResponseWriter, r *http.Request) {
	var body assignRoleRequest
	if err := decode(r, c.Validate, &body); err != nil {
		handler.WriteError(w, r, err)
		return
	}
	tenant := chi.URLParam(r, "tenant")
	if err := c.TenantService.AssignRole(r.Context(), handler.Username(r.Context()), tenant, body.Username, model.Role(body.Role)); err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, map[string]string{
		"tenant":   tenant,
		"username": body.Username,
		"role":     body.Role,
	})
}

func (c *TenantController) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var body createOfferRequest
	if err := decode(r, c.Validate, &body); err != nil {
		handler.WriteError(w, r, err)
		return
	}
	o, err := c.TenantService.CreateOffer(r.Context(), handler.Username(r.Context()), chi.URLParam(r, "tenant"), &model.Offer{
		OfferType:   body.OfferType,
		Data:        model.Attributes(body.Data),
		Description: body.Description,
		Comments:    body.Comments,
	})
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, o)
}

func (c *TenantController) GetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := handler.Int64Param(r, "id")
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	o, err := c.TenantService.GetOffer(r.Context(), handler.Username(r.Context()), chi.URLParam(r, "tenant"), id)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, o)
}
