// internal/errors/errors.go
package appErrors

import (
	"fmt"
	"strings"
)

// ErrCampaignNotFound is returned when a campaign does not exist in the tenant
type ErrCampaignNotFound struct {
	Tenant     string
	CampaignID int64
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found in tenant %q", e.CampaignID, e.Tenant)
}

// Helper constructor
func NewCampaignNotFound(tenant string, id int64) error {
	return &ErrCampaignNotFound{Tenant: tenant, CampaignID: id}
}

// ErrNotFound covers the remaining entities (tenant, offer, association)
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func NewNotFound(entity, key string) error {
	return &ErrNotFound{Entity: entity, Key: key}
}

// CompileError reports a selection criteria entry that cannot be compiled.
type CompileError struct {
	Field  string
	Value  string
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("criteria %q=%q: %s", e.Field, e.Value, e.Reason)
}

func NewCompileError(field, value, reason string) error {
	return &CompileError{Field: field, Value: value, Reason: reason}
}

// SchemaMismatchError means the target table or one of its columns is missing.
// Column is empty when the table itself was not found.
type SchemaMismatchError struct {
	Table  string
	Column string
}

func (e *SchemaMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("schema mismatch: table %q does not exist", e.Table)
	}
	return fmt.Sprintf("schema mismatch: column %q is not a known column of %q", e.Column, e.Table)
}

func NewSchemaMismatch(table, column string) error {
	return &SchemaMismatchError{Table: table, Column: column}
}

// ResolutionError wraps a failure to execute the customer query.
// It is never the same thing as "zero customers matched".
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string {
	return "customer resolution failed: " + e.Err.Error()
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func NewResolutionError(err error) error {
	return &ResolutionError{Err: err}
}

// DispatchError is a per-recipient notification failure.
type DispatchError struct {
	CustomerID string
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to customer %s failed: %v", e.CustomerID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// AuthorizationDeniedError is returned before any pipeline stage runs.
type AuthorizationDeniedError struct {
	Username string
	Tenant   string
	Required []string
}

func (e *AuthorizationDeniedError) Error() string {
	return fmt.Sprintf("user %q needs one of [%s] in tenant %q",
		e.Username, strings.Join(e.Required, ", "), e.Tenant)
}

func NewAuthorizationDenied(username, tenant string, required []string) error {
	return &AuthorizationDeniedError{Username: username, Tenant: tenant, Required: required}
}

// InvalidTransitionError rejects a status change the lifecycle does not allow.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %q to %q", e.Entity, e.From, e.To)
}

func NewInvalidTransition(entity, from, to string) error {
	return &InvalidTransitionError{Entity: entity, From: from, To: to}
}

// ValidationError is a bad request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// SideEffectError reports a pipeline stage that failed after the campaign
// status was already committed. The status is not rolled back.
type SideEffectError struct {
	Stage  string
	Status string
	Err    error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("status %q committed but %s failed: %v", e.Status, e.Stage, e.Err)
}

func (e *SideEffectError) Unwrap() error { return e.Err }

func NewSideEffectError(stage, status string, err error) error {
	return &SideEffectError{Stage: stage, Status: status, Err: err}
}
