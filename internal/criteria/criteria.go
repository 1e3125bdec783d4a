// Package criteria holds the campaign selection criteria mini-language.
//
// A stored criteria set maps a customer field to a single string that carries
// both the operator and the operand:
//
//	=value        equality, or list membership when value contains commas
//	!value        inequality
//	>value <value comparison, numeric when value is a number
//	value         implicit equality against a string literal
//
// Stored strings are a compatibility surface: they must keep compiling to the
// same predicates. Parsing happens once, into Predicate values, and nothing
// downstream looks at the prefix strings again.
package criteria

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Operator is the comparison a predicate applies.
type Operator string

const (
	OpEquals      Operator = "="
	OpNotEquals   Operator = "!="
	OpGreaterThan Operator = ">"
	OpLessThan    Operator = "<"
	OpIn          Operator = "IN"
)

// Kind is the inferred literal type of an operand.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// Operand is one literal of a predicate.
type Operand struct {
	Text   string // canonical text: booleans lowercased, strings untouched
	Kind   Kind
	Number decimal.Decimal // set whenever Numeric reports true
	Bool   bool

	numeric bool
}

// Unquoted reports whether the literal renders without quotes.
func (o Operand) Unquoted() bool {
	return o.Kind == KindNumber || o.Kind == KindBool
}

// Numeric reports whether the operand can be compared against a numeric
// column. Equality operands like =700 are strings by syntax but still qualify.
func (o Operand) Numeric() bool {
	return o.numeric
}

// Truth reports the boolean an operand stands for. Unprefixed values such as
// "true" are strings by syntax but still compare against boolean columns.
func (o Operand) Truth() (value, ok bool) {
	switch {
	case o.Kind == KindBool:
		return o.Bool, true
	case strings.EqualFold(strings.TrimSpace(o.Text), "true"):
		return true, true
	case strings.EqualFold(strings.TrimSpace(o.Text), "false"):
		return false, true
	}
	return false, false
}

// Literal renders the operand the way it appears in a predicate string.
func (o Operand) Literal() string {
	if o.Unquoted() {
		return o.Text
	}
	return "'" + strings.ReplaceAll(o.Text, "'", "''") + "'"
}

// Predicate is one compiled condition. Predicates of a campaign are AND-ed.
type Predicate struct {
	Field    string
	Op       Operator
	Operands []Operand // exactly one, except for OpIn
}

// Operand returns the single operand of a non-list predicate.
func (p Predicate) Operand() Operand {
	if len(p.Operands) == 0 {
		return Operand{}
	}
	return p.Operands[0]
}

// String renders the predicate in its canonical text form, e.g.
// segment = 'premium', credit_score > 700, kyc_status IN('verified','pending').
// It is used for logging and tests only; queries are always parameterized.
func (p Predicate) String() string {
	if p.Op == OpIn {
		parts := make([]string, len(p.Operands))
		for i, o := range p.Operands {
			parts[i] = o.Literal()
		}
		return fmt.Sprintf("%s IN(%s)", p.Field, strings.Join(parts, ","))
	}
	return fmt.Sprintf("%s %s %s", p.Field, p.Op, p.Operand().Literal())
}

// Criteria is the stored field -> operator-prefixed value mapping.
type Criteria map[string]string

// Value stores criteria as jsonb.
func (c Criteria) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

// Scan reads criteria from a jsonb column.
func (c *Criteria) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = Criteria{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("criteria: cannot scan %T", src)
	}
	out := Criteria{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("criteria: %w", err)
	}
	*c = out
	return nil
}
