package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/unclebandit/offerhub/internal/criteria"
	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/service"
)

type createTenantRequest struct {
	Name        string `json:"name" validate:"required,max=63"`
	Description string `json:"description" validate:"max=500"`
}

type assignRoleRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Role     string `json:"role" validate:"required,oneof=admin create approver read_only"`
}

type createOfferRequest struct {
	OfferType   string         `json:"offer_type" validate:"required,max=100"`
	Data        map[string]any `json:"data"`
	Description string         `json:"description" validate:"max=2000"`
	Comments    string         `json:"comments" validate:"max=2000"`
}

type createCampaignRequest struct {
	Name              string            `json:"name" validate:"required,max=200"`
	Description       string            `json:"description" validate:"max=2000"`
	SelectionCriteria map[string]string `json:"selection_criteria" validate:"required,min=1,dive,keys,required,endkeys,required"`
	StartDate         time.Time         `json:"start_date" validate:"required"`
	EndDate           time.Time         `json:"end_date" validate:"required,gtefield=StartDate"`
	OfferID           *int64            `json:"offer_id" validate:"omitempty,gt=0"`
}

func (req createCampaignRequest) input() service.CampaignInput {
	return service.CampaignInput{
		Name:              req.Name,
		Description:       req.Description,
		SelectionCriteria: criteria.Criteria(req.SelectionCriteria),
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		OfferID:           req.OfferID,
	}
}

type updateCampaignRequest struct {
	Status            *string           `json:"status" validate:"omitempty,oneof=draft approved active paused completed"`
	Name              *string           `json:"name" validate:"omitempty,min=1,max=200"`
	Description       *string           `json:"description" validate:"omitempty,max=2000"`
	SelectionCriteria map[string]string `json:"selection_criteria" validate:"omitempty,min=1"`
	StartDate         *time.Time        `json:"start_date"`
	EndDate           *time.Time        `json:"end_date"`
	OfferID           *int64            `json:"offer_id" validate:"omitempty,gt=0"`
}

func (req updateCampaignRequest) update() model.CampaignUpdate {
	u := model.CampaignUpdate{
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		OfferID:     req.OfferID,
	}
	if req.Status != nil {
		s := model.CampaignStatus(*req.Status)
		u.Status = &s
	}
	if req.SelectionCriteria != nil {
		u.SelectionCriteria = criteria.Criteria(req.SelectionCriteria)
	}
	return u
}

type responseRequest struct {
	Response string `json:"response" validate:"required,oneof=accepted declined"`
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return appErrors.NewValidation("body", err.Error())
	}
	if err := v.Struct(dst); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 {
			fe := ves[0]
			return appErrors.NewValidation(fe.Field(), "failed "+fe.Tag()+" check")
		}
		return appErrors.NewValidation("body", err.Error())
	}
	return nil
}
