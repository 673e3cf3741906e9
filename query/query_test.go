package query

import (
	"testing"
	"time"

	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/drpcorg/lsindex/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		in       string
		reversed bool
		err      error
	}{
		{"", false, nil},
		{"ORDER:ASC", false, nil},
		{"ORDER:DESC", true, nil},
		{" ORDER : DESC ;", true, nil},
		{";;ORDER:DESC;;", true, nil},
		{"ORDER:desc", false, lsindex_errors.ErrBadQueryOptionValue},
		{"order:DESC", false, lsindex_errors.ErrUnknownQueryOption},
		{"LIMIT:5", false, lsindex_errors.ErrUnknownQueryOption},
		{"ORDER", false, lsindex_errors.ErrMalformedQueryOption},
		{"ORDER:DESC:ASC", false, lsindex_errors.ErrMalformedQueryOption},
		{"ORDER:DESC;ORDER:DESC", false, lsindex_errors.ErrDuplicateQueryOption},
		{"ORDER:ASC;ORDER:DESC", false, lsindex_errors.ErrDuplicateQueryOption},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			opts, err := ParseOptions(tt.in)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.reversed, opts.Reversed())
		})
	}
	assert.Equal(t, "ORDER:DESC", Options{Order: Descending}.String())
	assert.Equal(t, "ORDER:ASC", DefaultOptions.String())
}

func TestOperator(t *testing.T) {
	for _, op := range []Operator{EQ, GT, GTE, LT, LTE} {
		parsed, ok := ParseOperator(op.String())
		assert.True(t, ok)
		assert.Equal(t, op, parsed)
	}
	_, ok := ParseOperator("!=")
	assert.False(t, ok)

	assert.True(t, GT.Strict())
	assert.False(t, GTE.Strict())
	assert.True(t, EQ.LowerSide() && EQ.UpperSide())
	assert.False(t, LT.LowerSide())
	assert.False(t, GT.UpperSide())

	assert.True(t, LTE.Accepts(0))
	assert.False(t, LT.Accepts(0))
	assert.True(t, GT.Accepts(1))
	assert.False(t, EQ.Accepts(-1))
}

func TestFilter_IsSatisfiedBy(t *testing.T) {
	table, err := schema.NewTable("events",
		schema.Column{Name: "user", Type: schema.Text, Kind: schema.PartitionKey},
		schema.Column{Name: "seq", Type: schema.BigInt, Kind: schema.Clustering},
		schema.Column{Name: "color", Type: schema.Text, Kind: schema.Regular, Index: schema.LocalIndex},
		schema.Column{Name: "size", Type: schema.BigInt, Kind: schema.Regular},
	)
	require.NoError(t, err)
	now := time.Now()
	prefix := composite.NewBuilder(schema.Int(3))
	color, _ := table.CellName([][]byte{schema.Int(3)}, "color")
	size, _ := table.CellName([][]byte{schema.Int(3)}, "size")
	data := cells.NewRow([]byte("alice"),
		cells.NewCell(color, []byte("red"), 1),
		cells.NewCell(size, schema.Int(-2), 1),
	)
	filter := func(exprs ...Expression) *Filter {
		return &Filter{Partition: []byte("alice"), Clause: exprs, Timestamp: now}
	}

	assert.True(t, filter(
		Expression{Column: "color", Op: EQ, Value: []byte("red")},
		Expression{Column: "size", Op: LT, Value: schema.Int(0)},
		Expression{Column: "seq", Op: GTE, Value: schema.Int(3)},
		Expression{Column: "user", Op: EQ, Value: []byte("alice")},
	).IsSatisfiedBy(table, data, prefix))
	assert.False(t, filter(Expression{Column: "size", Op: GT, Value: schema.Int(-2)}).IsSatisfiedBy(table, data, prefix))
	assert.False(t, filter(Expression{Column: "nope", Op: EQ, Value: nil}).IsSatisfiedBy(table, data, prefix))
	assert.False(t, filter(Expression{Column: "color", Op: EQ, Value: []byte("red")}).
		IsSatisfiedBy(table, data, composite.NewBuilder(schema.Int(4))))

	f := filter(
		Expression{Column: "color", Op: EQ, Value: []byte("red")},
		Expression{Column: "size", Op: LT, Value: schema.Int(0)},
	)
	without := f.Without("color")
	assert.Len(t, without.Clause, 1)
	assert.Len(t, f.Clause, 2)
}
