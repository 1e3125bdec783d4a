package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/offerhub/internal/query"
)

// CatalogRepository reads table layouts from information_schema.
type CatalogRepository struct {
	DB *sql.DB
}

func (r *CatalogRepository) TableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT column_name
        FROM information_schema.columns
        WHERE table_schema = current_schema() AND table_name = $1
    `, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

var _ query.Catalog = (*CatalogRepository)(nil)
