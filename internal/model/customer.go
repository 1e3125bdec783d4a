// internal/model/customer.go
package model

import "github.com/google/uuid"

// Customer belongs to the global pool shared by all tenants.
type Customer struct {
	ID            uuid.UUID `db:"id" json:"id"`
	FullName      string    `db:"full_name" json:"full_name"`
	Email         *string   `db:"email" json:"email,omitempty"`
	Segment       string    `db:"segment" json:"segment"`
	Occupation    string    `db:"occupation" json:"occupation"`
	MaritalStatus string    `db:"marital_status" json:"marital_status"`
	Gender        string    `db:"gender" json:"gender"`
	KYCStatus     string    `db:"kyc_status" json:"kyc_status"`
	CreditScore   int       `db:"credit_score" json:"credit_score"`
	Delinquency   bool      `db:"delinquency" json:"delinquency"`
	IsActive      bool      `db:"is_active" json:"is_active"`
}

// ColumnKind is how a targeting column is compared.
type ColumnKind int

const (
	ColumnText ColumnKind = iota
	ColumnNumber
	ColumnBool
	ColumnDate
)

// Entity describes a table the targeting query may run against.
type Entity struct {
	Table    string
	IDColumn string
	Columns  map[string]ColumnKind
}

// CustomerEntity lists every customers column usable in selection criteria.
var CustomerEntity = Entity{
	Table:    "customers",
	IDColumn: "id",
	Columns: map[string]ColumnKind{
		"full_name":               ColumnText,
		"email":                   ColumnText,
		"mobile":                  ColumnText,
		"dob":                     ColumnDate,
		"gender":                  ColumnText,
		"kyc_status":              ColumnText,
		"segment":                 ColumnText,
		"occupation":              ColumnText,
		"annual_income":           ColumnNumber,
		"credit_score":            ColumnNumber,
		"state":                   ColumnText,
		"city":                    ColumnText,
		"marital_status":          ColumnText,
		"account_age_months":      ColumnNumber,
		"preferred_language":      ColumnText,
		"is_active":               ColumnBool,
		"account_status":          ColumnText,
		"credit_limit":            ColumnNumber,
		"account_current_balance": ColumnNumber,
		"available_credit":        ColumnNumber,
		"delinquency":             ColumnBool,
	},
}
