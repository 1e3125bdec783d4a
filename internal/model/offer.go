// internal/model/offer.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type OfferStatus string

const (
	OfferDraft         OfferStatus = "draft"
	OfferPendingReview OfferStatus = "pending_review"
	OfferApproved      OfferStatus = "approved"
	OfferRejected      OfferStatus = "rejected"
	OfferRetired       OfferStatus = "retired"
)

// Attributes is the open-ended business data of an offer (interest_rate, product_name, ...).
type Attributes map[string]any

func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *Attributes) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Attributes{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("attributes: cannot scan %T", src)
	}
	out := Attributes{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	*a = out
	return nil
}

type Offer struct {
	ID          int64       `db:"id" json:"id"`
	TenantName  string      `db:"tenant_name" json:"tenant_name"`
	OfferType   string      `db:"offer_type" json:"offer_type,omitempty"`
	Status      OfferStatus `db:"status" json:"status"`
	Data        Attributes  `db:"data" json:"data"`
	Description string      `db:"description" json:"description,omitempty"`
	Comments    string      `db:"comments" json:"comments,omitempty"`
	CreatedBy   string      `db:"created_by_username" json:"created_by_username,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}
