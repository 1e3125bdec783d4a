// internal/model/campaign_customer.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySent     DeliveryStatus = "sent"
	DeliveryAccepted DeliveryStatus = "accepted"
	DeliveryDeclined DeliveryStatus = "declined"
)

// CanMoveTo is forward-only: pending -> sent -> accepted | declined.
func (s DeliveryStatus) CanMoveTo(next DeliveryStatus) bool {
	switch s {
	case DeliveryPending:
		return next == DeliverySent
	case DeliverySent:
		return next == DeliveryAccepted || next == DeliveryDeclined
	}
	return false
}

// CampaignCustomer is keyed by (CampaignID, CustomerID).
type CampaignCustomer struct {
	CampaignID     int64          `db:"campaign_id" json:"campaign_id"`
	CustomerID     uuid.UUID      `db:"customer_id" json:"customer_id"`
	OfferID        *int64         `db:"offer_id" json:"offer_id,omitempty"`
	TenantName     string         `db:"tenant_name" json:"tenant_name"`
	DeliveryStatus DeliveryStatus `db:"delivery_status" json:"delivery_status"`
	SentAt         *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	RespondedAt    *time.Time     `db:"responded_at" json:"responded_at,omitempty"`
}

// Recipient is a pending association joined with the customer's contact data.
type Recipient struct {
	CustomerID uuid.UUID
	Email      string
	FullName   string
}
