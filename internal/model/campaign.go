// internal/model/campaign.go
package model

import (
	"time"

	"github.com/unclebandit/offerhub/internal/criteria"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignApproved  CampaignStatus = "approved"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignApproved, CampaignActive, CampaignPaused, CampaignCompleted:
		return true
	}
	return false
}

type Campaign struct {
	ID                int64             `db:"id" json:"id"`
	TenantName        string            `db:"tenant_name" json:"tenant_name"`
	OfferID           *int64            `db:"offer_id" json:"offer_id,omitempty"`
	Name              string            `db:"name" json:"name"`
	Description       string            `db:"description" json:"description,omitempty"`
	SelectionCriteria criteria.Criteria `db:"selection_criteria" json:"selection_criteria"`
	StartDate         time.Time         `db:"start_date" json:"start_date"`
	EndDate           time.Time         `db:"end_date" json:"end_date"`
	Status            CampaignStatus    `db:"status" json:"status"`
	CreatedBy         string            `db:"created_by_username" json:"created_by_username,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time        `db:"updated_at" json:"updated_at,omitempty"`
}

// CampaignUpdate carries the optional fields of a status-update request.
// Nil fields are left untouched.
type CampaignUpdate struct {
	Status            *CampaignStatus
	Name              *string
	Description       *string
	SelectionCriteria criteria.Criteria
	StartDate         *time.Time
	EndDate           *time.Time
	OfferID           *int64
}

// Apply copies the set fields of u onto c.
func (u CampaignUpdate) Apply(c *Campaign) {
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.SelectionCriteria != nil {
		c.SelectionCriteria = u.SelectionCriteria
	}
	if u.StartDate != nil {
		c.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		c.EndDate = *u.EndDate
	}
	if u.OfferID != nil {
		c.OfferID = u.OfferID
	}
}
