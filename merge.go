package lsindex

import (
	"io"
	"slices"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/lsindex/cells"
)

const mergerName = "lsindex.cell.lww"

// CellMergeAdaptor resolves the merge operands of one cell key to the
// last-write-wins version. Every cell write is a merge, so a repeated or
// older write is absorbed whatever order pebble sees the operands in.
type CellMergeAdaptor struct {
	old  bool
	vals [][]byte
}

func (a *CellMergeAdaptor) MergeNewer(value []byte) error {
	target := make([]byte, len(value))
	copy(target, value)
	a.vals = append(a.vals, target)
	return nil
}

func (a *CellMergeAdaptor) MergeOlder(value []byte) error {
	target := make([]byte, len(value))
	copy(target, value)
	a.vals = append(a.vals, target)
	a.old = true
	return nil
}

func (a *CellMergeAdaptor) Finish(includesBase bool) (res []byte, cl io.Closer, err error) {
	if a.old {
		slices.Reverse(a.vals)
	}
	if len(a.vals) == 0 {
		return nil, nil, nil
	}
	res, err = cells.MergeTlv(a.vals)
	return res, nil, err
}

func merger(key, value []byte) (pebble.ValueMerger, error) {
	target := make([]byte, len(value))
	copy(target, value)
	return &CellMergeAdaptor{vals: [][]byte{target}}, nil
}

var cellMerger = &pebble.Merger{
	Name:  mergerName,
	Merge: merger,
}
