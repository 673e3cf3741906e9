package indexes

import (
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/query"
)

// Range is an inclusive, ascending range of index entry names; an empty
// side is unbounded.
type Range struct {
	Lower composite.Key
	Upper composite.Key
}

// plan picks the bounds of the index scan. The first expression acting on
// a side decides it. A strict bound, or any bound with no base boundary on
// that side, excludes or includes every clustering key of the value. A
// non-strict bound with a base boundary continues from that clustering
// key inside the value.
func plan(exprs []query.Expression, base composite.Slice) Range {
	return Range{
		Lower: makePrefix(exprs, base.Start, true),
		Upper: makePrefix(exprs, base.Finish, false),
	}
}

func makePrefix(exprs []query.Expression, boundary composite.Key, lower bool) composite.Key {
	for _, e := range exprs {
		if lower && !e.Op.LowerSide() || !lower && !e.Op.UpperSide() {
			continue
		}
		b := composite.NewBuilder(e.Value)
		if !e.Op.Strict() && !boundary.IsEmpty() {
			return b.Build().Append(boundary)
		}
		switch {
		case e.Op == query.GT:
			return b.BuildForRelation(composite.GT)
		case e.Op == query.LT:
			return b.BuildForRelation(composite.LT)
		case lower:
			return b.BuildForRelation(composite.GTE)
		default:
			return b.BuildForRelation(composite.LTE)
		}
	}
	return nil
}
