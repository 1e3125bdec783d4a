// Package query turns compiled selection criteria into a read-only,
// parameterized id query against a targeting entity.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/unclebandit/offerhub/internal/criteria"
	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/model"
)

// Catalog reports the columns a table has in the live schema.
// An empty result means the table does not exist.
type Catalog interface {
	TableColumns(ctx context.Context, table string) (map[string]bool, error)
}

// Query is a built, not yet executed, id lookup.
type Query struct {
	Entity     string
	SQL        string
	Args       []any
	Predicates []criteria.Predicate
}

type Builder struct {
	Catalog Catalog
}

func NewBuilder(c Catalog) *Builder {
	return &Builder{Catalog: c}
}

// Build checks entity against the catalog and renders preds as a single
// AND-ed WHERE clause. Operand text only ever travels as a bind argument.
func (b *Builder) Build(ctx context.Context, entity model.Entity, preds []criteria.Predicate) (*Query, error) {
	live, err := b.Catalog.TableColumns(ctx, entity.Table)
	if err != nil {
		return nil, appErrors.NewResolutionError(fmt.Errorf("read catalog for %s: %w", entity.Table, err))
	}
	if len(live) == 0 {
		return nil, appErrors.NewSchemaMismatch(entity.Table, "")
	}
	if !live[entity.IDColumn] {
		return nil, appErrors.NewSchemaMismatch(entity.Table, entity.IDColumn)
	}

	var (
		where []string
		args  []any
	)
	for _, p := range preds {
		kind, known := entity.Columns[p.Field]
		if !known || !live[p.Field] {
			return nil, appErrors.NewSchemaMismatch(entity.Table, p.Field)
		}
		clause, arg, err := render(p, kind, len(args)+1)
		if err != nil {
			return nil, err
		}
		where = append(where, clause)
		args = append(args, arg)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", pq.QuoteIdentifier(entity.IDColumn), pq.QuoteIdentifier(entity.Table))
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&sb, " ORDER BY %s", pq.QuoteIdentifier(entity.IDColumn))

	return &Query{Entity: entity.Table, SQL: sb.String(), Args: args, Predicates: preds}, nil
}

// Check validates preds against entity's static column set without touching
// the database. Build repeats these checks against the live schema.
func Check(entity model.Entity, preds []criteria.Predicate) error {
	for i, p := range preds {
		kind, known := entity.Columns[p.Field]
		if !known {
			return appErrors.NewSchemaMismatch(entity.Table, p.Field)
		}
		if _, _, err := render(p, kind, i+1); err != nil {
			return err
		}
	}
	return nil
}

// render produces one clause using placeholder $n and the value bound to it.
func render(p criteria.Predicate, kind model.ColumnKind, n int) (string, any, error) {
	col := pq.QuoteIdentifier(p.Field)
	ph := fmt.Sprintf("$%d", n)

	mismatch := func(reason string) error {
		return appErrors.NewCompileError(p.Field, p.String(), reason)
	}

	switch kind {
	case model.ColumnNumber:
		for _, o := range p.Operands {
			if !o.Numeric() {
				return "", nil, mismatch("numeric column needs a numeric operand")
			}
		}
		if p.Op == criteria.OpIn {
			return fmt.Sprintf("%s = ANY(%s::numeric[])", col, ph), pq.Array(numbers(p.Operands)), nil
		}
		return fmt.Sprintf("%s %s %s::numeric", col, p.Op, ph), p.Operand().Number, nil

	case model.ColumnBool:
		if p.Op == criteria.OpGreaterThan || p.Op == criteria.OpLessThan {
			return "", nil, mismatch("boolean column cannot be ordered")
		}
		vals := make([]bool, len(p.Operands))
		for i, o := range p.Operands {
			v, ok := o.Truth()
			if !ok {
				return "", nil, mismatch("boolean column needs true or false")
			}
			vals[i] = v
		}
		if p.Op == criteria.OpIn {
			return fmt.Sprintf("%s = ANY(%s::boolean[])", col, ph), pq.Array(vals), nil
		}
		return fmt.Sprintf("%s %s %s", col, p.Op, ph), vals[0], nil

	case model.ColumnDate:
		if p.Op == criteria.OpIn {
			return fmt.Sprintf("%s = ANY(%s::date[])", col, ph), pq.Array(texts(p.Operands)), nil
		}
		return fmt.Sprintf("%s %s %s::date", col, p.Op, ph), p.Operand().Text, nil
	}

	// text and enum columns compare on their text form
	if p.Op == criteria.OpIn {
		return fmt.Sprintf("%s::text = ANY(%s)", col, ph), pq.Array(texts(p.Operands)), nil
	}
	return fmt.Sprintf("%s::text %s %s", col, p.Op, ph), p.Operand().Text, nil
}

func texts(ops []criteria.Operand) []string {
	out := make([]string, len(ops))
	for i, o := range ops {
		out[i] = o.Text
	}
	return out
}

func numbers(ops []criteria.Operand) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ops))
	for i, o := range ops {
		out[i] = o.Number
	}
	return out
}
