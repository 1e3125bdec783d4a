package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/query"
)

// CustomerRepositoryInterface defines methods used by service
type CustomerRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	MatchIDs(ctx context.Context, q *query.Query) ([]uuid.UUID, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sql.DB
}

// GetByID fetches a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	query := `
        SELECT id, full_name, email, COALESCE(segment, ''), COALESCE(occupation, ''),
               COALESCE(marital_status, ''), COALESCE(gender, ''), COALESCE(kyc_status, ''),
               COALESCE(credit_score, 0), delinquency, is_active
        FROM customers
        WHERE id = $1
    `
	var c model.Customer
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.FullName, &c.Email, &c.Segment, &c.Occupation,
		&c.MaritalStatus, &c.Gender, &c.KYCStatus, &c.CreditScore, &c.Delinquency, &c.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("customer", id.String())
		}
		return nil, err
	}
	return &c, nil
}

// MatchIDs runs a built targeting query. The query is read-only by
// construction, so it runs in a read-only transaction as well.
func (r *CustomerRepository) MatchIDs(ctx context.Context, q *query.Query) ([]uuid.UUID, error) {
	tx, err := r.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
