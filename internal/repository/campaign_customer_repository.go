package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/model"
)

// CampaignCustomerRepositoryInterface is the storage side of the materializer,
// the activation notifier and delivery reporting. Every statement is scoped by
// tenant_name.
type CampaignCustomerRepositoryInterface interface {
	InsertPending(ctx context.Context, tenant string, campaignID int64, offerID *int64, customerIDs []uuid.UUID) (int, error)
	ListDeliverable(ctx context.Context, tenant string, campaignID int64) ([]model.Recipient, error)
	MarkSent(ctx context.Context, tenant string, campaignID int64, customerIDs []uuid.UUID, sentAt time.Time) (int, error)
	List(ctx context.Context, tenant string, campaignID int64, offset, limit int, status string) ([]model.CampaignCustomer, error)
	Get(ctx context.Context, tenant string, campaignID int64, customerID uuid.UUID) (*model.CampaignCustomer, error)
	RecordResponse(ctx context.Context, tenant string, campaignID int64, customerID uuid.UUID, status model.DeliveryStatus, at time.Time) error
	LockCampaign(ctx context.Context, campaignID int64) (release func(), err error)
}

type CampaignCustomerRepository struct {
	DB *sql.DB
}

// InsertPending creates a pending association for each customer that does not
// have one yet. A conflicting (campaign_id, customer_id) row is skipped, which
// also covers two materializer runs racing on the same campaign. The batch is
// committed once; the returned count only includes new rows.
func (r *CampaignCustomerRepository) InsertPending(ctx context.Context, tenant string, campaignID int64, offerID *int64, customerIDs []uuid.UUID) (int, error) {
	if len(customerIDs) == 0 {
		return 0, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO campaign_customers (campaign_id, customer_id, offer_id, tenant_name, delivery_status)
        VALUES ($1, $2, $3, $4, 'pending')
        ON CONFLICT (campaign_id, customer_id) DO NOTHING
    `)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	added := 0
	for _, customerID := range customerIDs {
		res, err := stmt.ExecContext(ctx, campaignID, customerID, offerID, tenant)
		if err != nil {
			return 0, fmt.Errorf("insert association for customer %s: %w", customerID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// ListDeliverable returns the pending associations whose customer has an email.
func (r *CampaignCustomerRepository) ListDeliverable(ctx context.Context, tenant string, campaignID int64) ([]model.Recipient, error) {
	query := `
        SELECT cc.customer_id, c.email, c.full_name
        FROM campaign_customers cc
        JOIN customers c ON c.id = cc.customer_id
        WHERE cc.tenant_name=$1 AND cc.campaign_id=$2
          AND cc.delivery_status='pending'
          AND c.email IS NOT NULL AND c.email <> ''
        ORDER BY cc.customer_id
    `
	rows, err := r.DB.QueryContext(ctx, query, tenant, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var rc model.Recipient
		if err := rows.Scan(&rc.CustomerID, &rc.Email, &rc.FullName); err != nil {
			return nil, err
		}
		recipients = append(recipients, rc)
	}
	return recipients, rows.Err()
}

// MarkSent advances the given pending rows to sent in a single transaction.
func (r *CampaignCustomerRepository) MarkSent(ctx context.Context, tenant string, campaignID int64, customerIDs []uuid.UUID, sentAt time.Time) (int, error) {
	if len(customerIDs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(customerIDs))
	for i, id := range customerIDs {
		ids[i] = id.String()
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        UPDATE campaign_customers
        SET delivery_status='sent', sent_at=$1
        WHERE tenant_name=$2 AND campaign_id=$3
          AND customer_id = ANY($4::uuid[])
          AND delivery_status='pending'
    `, sentAt, tenant, campaignID, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *CampaignCustomerRepository) List(ctx context.Context, tenant string, campaignID int64, offset, limit int, status string) ([]model.CampaignCustomer, error) {
	query := `
        SELECT campaign_id, customer_id, offer_id, tenant_name, delivery_status, sent_at, responded_at
        FROM campaign_customers
        WHERE tenant_name=$1 AND campaign_id=$2`
	args := []any{tenant, campaignID}
	if status != "" {
		query += ` AND delivery_status=$3`
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY customer_id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CampaignCustomer{}
	for rows.Next() {
		cc, err := scanAssociation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cc)
	}
	return out, rows.Err()
}

func (r *CampaignCustomerRepository) Get(ctx context.Context, tenant string, campaignID int64, customerID uuid.UUID) (*model.CampaignCustomer, error) {
	row := r.DB.QueryRowContext(ctx, `
        SELECT campaign_id, customer_id, offer_id, tenant_name, delivery_status, sent_at, responded_at
        FROM campaign_customers
        WHERE tenant_name=$1 AND campaign_id=$2 AND customer_id=$3
    `, tenant, campaignID, customerID)
	cc, err := scanAssociation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("campaign customer", fmt.Sprintf("%d/%s", campaignID, customerID))
		}
		return nil, err
	}
	return cc, nil
}

// RecordResponse moves a sent row to accepted or declined. The WHERE clause
// keeps the move forward-only even if two responses race.
func (r *CampaignCustomerRepository) RecordResponse(ctx context.Context, tenant string, campaignID int64, customerID uuid.UUID, status model.DeliveryStatus, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE campaign_customers
        SET delivery_status=$1, responded_at=$2
        WHERE tenant_name=$3 AND campaign_id=$4 AND customer_id=$5 AND delivery_status='sent'
    `, status, at, tenant, campaignID, customerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewInvalidTransition("delivery status", "not sent", string(status))
	}
	return nil
}

// LockCampaign takes a session advisory lock keyed by the campaign id and
// blocks until it is granted, so only one activation run per campaign
// dispatches at a time, across processes. release must be called once.
func (r *CampaignCustomerRepository) LockCampaign(ctx context.Context, campaignID int64) (func(), error) {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, campaignID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("lock campaign %d: %w", campaignID, err)
	}
	return func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, campaignID); err != nil {
			// a pooled session must not keep the lock; drop the connection
			conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		conn.Close()
	}, nil
}

func scanAssociation(row interface{ Scan(...any) error }) (*model.CampaignCustomer, error) {
	var (
		cc      model.CampaignCustomer
		offerID sql.NullInt64
	)
	if err := row.Scan(&cc.CampaignID, &cc.CustomerID, &offerID, &cc.TenantName, &cc.DeliveryStatus, &cc.SentAt, &cc.RespondedAt); err != nil {
		return nil, err
	}
	if offerID.Valid {
		id := offerID.Int64
		cc.OfferID = &id
	}
	return &cc, nil
}

// isUniqueViolation matches postgres error 23505.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var _ CampaignCustomerRepositoryInterface = (*CampaignCustomerRepository)(nil)
