// Package query holds what a search is made of: the predicate clause,
// the limits, the read timestamp, the optional base-level continuation
// slice and the query options parsed off the reserved pseudo-column.
package query

import (
	"fmt"
	"time"

	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/schema"
)

type Operator byte

const (
	EQ  Operator = '='
	GT  Operator = '>'
	GTE Operator = 'g'
	LT  Operator = '<'
	LTE Operator = 'l'
)

func (op Operator) String() string {
	switch op {
	case EQ:
		return "="
	case GT:
		return ">"
	case GTE:
		return ">="
	case LT:
		return "<"
	case LTE:
		return "<="
	}
	return fmt.Sprintf("op(%c)", byte(op))
}

// ParseOperator accepts the textual forms produced by String.
func ParseOperator(s string) (Operator, bool) {
	for _, op := range []Operator{EQ, GT, GTE, LT, LTE} {
		if op.String() == s {
			return op, true
		}
	}
	return 0, false
}

// Strict operators exclude the value itself.
func (op Operator) Strict() bool {
	return op == GT || op == LT
}

// LowerSide operators restrict the start of a range.
func (op Operator) LowerSide() bool {
	return op == EQ || op == GT || op == GTE
}

// UpperSide operators restrict the end of a range.
func (op Operator) UpperSide() bool {
	return op == EQ || op == LT || op == LTE
}

// Accepts tells whether cmp = compare(actual, expected) satisfies op.
func (op Operator) Accepts(cmp int) bool {
	switch op {
	case EQ:
		return cmp == 0
	case GT:
		return cmp > 0
	case GTE:
		return cmp >= 0
	case LT:
		return cmp < 0
	case LTE:
		return cmp <= 0
	}
	return false
}

type Expression struct {
	Column string
	Op     Operator
	Value  []byte
}

func (e Expression) String() string {
	return fmt.Sprintf("%s %s %x", e.Column, e.Op, e.Value)
}

type Filter struct {
	// the single base partition being resolved
	Partition []byte
	Clause    []Expression
	// Base-level clustering boundary in ascending order, used by outer
	// pagination to resume inside the partition.
	Slice       composite.Slice
	RowLimit    int
	ColumnLimit int
	Timestamp   time.Time
}

// IsSatisfiedBy re-checks every expression of the clause against the
// live data of the row identified by prefix.
func (f *Filter) IsSatisfiedBy(t *schema.Table, data *cells.Row, prefix composite.Builder) bool {
	for _, e := range f.Clause {
		col := t.Column(e.Column)
		if col == nil {
			return false
		}
		v, ok := t.ValueOf(e.Column, f.Partition, prefix, data, f.Timestamp)
		if !ok {
			return false
		}
		if !e.Op.Accepts(col.Type.Compare(v, e.Value)) {
			return false
		}
	}
	return true
}

// Without returns a copy of the filter whose clause lacks the
// expressions on the given column.
func (f *Filter) Without(column string) *Filter {
	ret := *f
	ret.Clause = nil
	for _, e := range f.Clause {
		if e.Column != column {
			ret.Clause = append(ret.Clause, e)
		}
	}
	return &ret
}
