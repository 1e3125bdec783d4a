package criteria

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	appErrors "github.com/unclebandit/offerhub/internal/errors"
)

// Compile parses every entry of c into a predicate.
// Output is ordered by field name so the same criteria always compile to the
// same list. The first malformed entry aborts compilation with a CompileError.
func Compile(c Criteria) ([]Predicate, error) {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	preds := make([]Predicate, 0, len(fields))
	for _, f := range fields {
		p, err := Parse(f, c[f])
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// Validate reports the first entry of c that does not compile.
func Validate(c Criteria) error {
	_, err := Compile(c)
	return err
}

// Parse compiles a single field/value entry.
func Parse(field, value string) (Predicate, error) {
	if strings.TrimSpace(field) == "" {
		return Predicate{}, appErrors.NewCompileError(field, value, "empty field name")
	}
	if strings.TrimSpace(value) == "" {
		return Predicate{}, appErrors.NewCompileError(field, value, "empty value")
	}

	switch value[0] {
	case '=':
		rest := value[1:]
		if strings.TrimSpace(rest) == "" {
			return Predicate{}, appErrors.NewCompileError(field, value, "missing operand after '='")
		}
		if strings.Contains(rest, ",") {
			return parseList(field, value, rest)
		}
		return Predicate{Field: field, Op: OpEquals, Operands: []Operand{boolOrString(rest)}}, nil

	case '!':
		rest := value[1:]
		if strings.TrimSpace(rest) == "" {
			return Predicate{}, appErrors.NewCompileError(field, value, "missing operand after '!'")
		}
		return Predicate{Field: field, Op: OpNotEquals, Operands: []Operand{boolOrString(rest)}}, nil

	case '>', '<':
		op := OpGreaterThan
		if value[0] == '<' {
			op = OpLessThan
		}
		rest := value[1:]
		if strings.TrimSpace(rest) == "" {
			return Predicate{}, appErrors.NewCompileError(field, value, "missing operand after '"+value[:1]+"'")
		}
		return Predicate{Field: field, Op: op, Operands: []Operand{numberOrString(rest)}}, nil
	}

	return Predicate{Field: field, Op: OpEquals, Operands: []Operand{withNumber(Operand{Text: value, Kind: KindString})}}, nil
}

func parseList(field, value, rest string) (Predicate, error) {
	parts := strings.Split(rest, ",")
	operands := make([]Operand, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Predicate{}, appErrors.NewCompileError(field, value, "empty member in list")
		}
		operands = append(operands, boolOrString(part))
	}
	return Predicate{Field: field, Op: OpIn, Operands: operands}, nil
}

func boolOrString(s string) Operand {
	t := strings.TrimSpace(s)
	if strings.EqualFold(t, "true") || strings.EqualFold(t, "false") {
		b := strings.EqualFold(t, "true")
		return Operand{Text: strings.ToLower(t), Kind: KindBool, Bool: b}
	}
	return withNumber(Operand{Text: s, Kind: KindString})
}

func numberOrString(s string) Operand {
	o := withNumber(Operand{Text: s, Kind: KindString})
	if o.Numeric() && isDecimalLiteral(s) {
		o.Kind = KindNumber
	}
	return o
}

// withNumber parses a string operand that reads as a decimal literal into
// Number. Its kind stays string so the predicate keeps rendering quoted.
func withNumber(o Operand) Operand {
	t := strings.TrimSpace(o.Text)
	if !isDecimalLiteral(t) {
		return o
	}
	if d, err := decimal.NewFromString(t); err == nil {
		o.Number = d
		o.numeric = true
	}
	return o
}

// isDecimalLiteral accepts an optional leading minus, digits and at most one
// decimal point with at least one digit on each side.
func isDecimalLiteral(s string) bool {
	s = strings.TrimPrefix(s, "-")
	whole, frac, hasDot := strings.Cut(s, ".")
	if !allDigits(whole) {
		return false
	}
	return !hasDot || allDigits(frac)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
