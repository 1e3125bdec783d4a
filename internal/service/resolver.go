package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/query"
	"github.com/unclebandit/offerhub/internal/repository"
)

// Resolver executes a built targeting query.
type Resolver struct {
	Customers repository.CustomerRepositoryInterface
}

// Resolve returns the matching customer ids. Zero matches is an empty,
// non-nil slice; any execution failure is a ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, q *query.Query) ([]uuid.UUID, error) {
	ids, err := r.Customers.MatchIDs(ctx, q)
	if err != nil {
		var re *appErrors.ResolutionError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, appErrors.NewResolutionError(err)
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}
