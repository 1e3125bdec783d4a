package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, tenant string, id int64) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, tenant string, offset, limit int, status string) ([]*model.Campaign, int, error)
	Update(ctx context.Context, c *model.Campaign, from model.CampaignStatus) error
	GetCampaignStats(ctx context.Context, tenant string, campaignID int64) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, tenant_name, offer_id, name, description, selection_criteria,
        start_date, end_date, status, created_by_username, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }, c *model.Campaign) error {
	var offerID sql.NullInt64
	if err := row.Scan(&c.ID, &c.TenantName, &offerID, &c.Name, &c.Description, &c.SelectionCriteria,
		&c.StartDate, &c.EndDate, &c.Status, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}
	if offerID.Valid {
		id := offerID.Int64
		c.OfferID = &id
	}
	return nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	query := `
        INSERT INTO campaigns (tenant_name, offer_id, name, description, selection_criteria,
                               start_date, end_date, status, created_by_username, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query, c.TenantName, c.OfferID, c.Name, c.Description, c.SelectionCriteria,
		c.StartDate, c.EndDate, c.Status, c.CreatedBy, c.CreatedAt).Scan(&c.ID)
}

// Update persists the editable fields and the status in one statement. The
// row must still be in status from; a concurrent change loses with an
// InvalidTransitionError.
func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign, from model.CampaignStatus) error {
	now := time.Now()
	query := `
        UPDATE campaigns
        SET name=$1, description=$2, selection_criteria=$3, start_date=$4, end_date=$5,
            offer_id=$6, status=$7, updated_at=$8
        WHERE tenant_name=$9 AND id=$10 AND status=$11
    `
	res, err := r.DB.ExecContext(ctx, query, c.Name, c.Description, c.SelectionCriteria, c.StartDate, c.EndDate,
		c.OfferID, c.Status, now, c.TenantName, c.ID, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := r.DB.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE tenant_name=$1 AND id=$2`,
			c.TenantName, c.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.NewCampaignNotFound(c.TenantName, c.ID)
		}
		if err != nil {
			return err
		}
		return appErrors.NewInvalidTransition("campaign", current, string(c.Status))
	}
	c.UpdatedAt = &now
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, tenant string, id int64) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE tenant_name=$1 AND id=$2`
	var c model.Campaign
	if err := scanCampaign(r.DB.QueryRowContext(ctx, query, tenant, id), &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(tenant, id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, tenant string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	where := ` WHERE tenant_name=$1`
	args := []any{tenant}
	if status != "" {
		where += ` AND status=$2`
		args = append(args, status)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		if err := scanCampaign(rows, c); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// GetCampaignStats counts associations per delivery status.
func (r *CampaignRepository) GetCampaignStats(ctx context.Context, tenant string, campaignID int64) (map[string]int, error) {
	query := `
        SELECT delivery_status, COUNT(*)
        FROM campaign_customers
        WHERE tenant_name=$1 AND campaign_id=$2
        GROUP BY delivery_status
    `
	rows, err := r.DB.QueryContext(ctx, query, tenant, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"total":                          0,
		string(model.DeliveryPending):  0,
		string(model.DeliverySent):     0,
		string(model.DeliveryAccepted): 0,
		string(model.DeliveryDeclined): 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
