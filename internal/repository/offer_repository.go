package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/model"
)

type OfferRepositoryInterface interface {
	Create(ctx context.Context, o *model.Offer) error
	GetByID(ctx context.Context, tenant string, id int64) (*model.Offer, error)
}

type OfferRepository struct {
	DB *sql.DB
}

func (r *OfferRepository) Create(ctx context.Context, o *model.Offer) error {
	o.CreatedAt = time.Now()
	if o.Status == "" {
		o.Status = model.OfferDraft
	}
	return r.DB.QueryRowContext(ctx, `
        INSERT INTO offers (tenant_name, offer_type, status, data, description, comments, created_by_username, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `, o.TenantName, o.OfferType, o.Status, o.Data, o.Description, o.Comments, o.CreatedBy, o.CreatedAt).Scan(&o.ID)
}

func (r *OfferRepository) GetByID(ctx context.Context, tenant string, id int64) (*model.Offer, error) {
	var o model.Offer
	err := r.DB.QueryRowContext(ctx, `
        SELECT id, tenant_name, offer_type, status, data, description, comments, created_by_username, created_at
        FROM offers WHERE tenant_name=$1 AND id=$2
    `, tenant, id).Scan(&o.ID, &o.TenantName, &o.OfferType, &o.Status, &o.Data, &o.Description, &o.Comments, &o.CreatedBy, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("offer", strconv.FormatInt(id, 10))
		}
		return nil, err
	}
	return &o, nil
}

var _ OfferRepositoryInterface = (*OfferRepository)(nil)
