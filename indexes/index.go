package indexes

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash"
	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/host"
	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/drpcorg/lsindex/query"
	"github.com/drpcorg/lsindex/schema"
	"github.com/drpcorg/lsindex/utils"
	"github.com/pkg/errors"
)

// Maintainer keeps an index partition in step with base writes.
type Maintainer interface {
	Insert(w host.Writer, partition []byte, cell cells.Cell) error
	Update(w host.Writer, partition []byte, old, cell cells.Cell, now time.Time) error
	Delete(w host.Writer, partition []byte, cell cells.Cell, now time.Time) error
	IsStale(entry *IndexedEntry, data *cells.Row, now time.Time) (bool, error)
	DeleteEntry(w host.Writer, partition []byte, entry cells.Cell, now time.Time) error
}

// IndexSearcher answers a filter out of one partition.
type IndexSearcher interface {
	CanHandle(clause []query.Expression) bool
	HighestSelectivityPredicate(clause []query.Expression) *query.Expression
	Search(ctx context.Context, filter *query.Filter) ([]*cells.Row, error)
}

// IndexedEntry is a decoded index cell: the value it indexes and the
// clustering key of the base row holding that value.
type IndexedEntry struct {
	IndexValue []byte
	Prefix     composite.Builder
	Cell       cells.Cell
}

// RowSlice covers the base cells of the row the entry points at.
func (e *IndexedEntry) RowSlice() composite.Slice {
	return composite.PrefixSlice(e.Prefix)
}

// IndexID names the key space of the index on table.column.
func IndexID(table, column string) uint64 {
	return xxhash.Sum64String(table + "." + column)
}

type LocalIndex struct {
	table  *schema.Table
	column schema.Column
	id     uint64
	log    utils.Logger
	// live cells per confirmed hit, drives page sizes
	density *utils.AvgVal
}

var _ Maintainer = (*LocalIndex)(nil)

func NewLocalIndex(table *schema.Table, column schema.Column, log utils.Logger) *LocalIndex {
	regular := 0
	for _, c := range table.Columns {
		if c.Kind == schema.Regular {
			regular++
		}
	}
	return &LocalIndex{
		table:   table,
		column:  column,
		id:      IndexID(table.Name, column.Name),
		log:     log,
		density: utils.NewAvgVal(float64(max(regular, 1))),
	}
}

func (ix *LocalIndex) ID() uint64 {
	return ix.id
}

func (ix *LocalIndex) Name() string {
	return fmt.Sprintf("%s_%s_idx", ix.table.Name, ix.column.Name)
}

func (ix *LocalIndex) Table() *schema.Table {
	return ix.table
}

func (ix *LocalIndex) Column() schema.Column {
	return ix.column
}

// IsQueryOptions marks the pseudo-index of the reserved options column;
// it never stores anything.
func (ix *LocalIndex) IsQueryOptions() bool {
	return ix.column.Index == schema.QueryOptionsIndex
}

// Indexes tells whether a base cell name belongs to the indexed column.
func (ix *LocalIndex) Indexes(name composite.Key) bool {
	if name.IsStatic() {
		return false
	}
	comps, err := composite.Split(name)
	if err != nil {
		return false
	}
	pos := ix.table.ClusteringArity()
	return len(comps) == pos+1 && string(comps[pos]) == ix.column.Name
}

// MakeIndexName turns a base cell into the name of its index entry,
// enc(value) followed by the clustering components of the cell name.
func (ix *LocalIndex) MakeIndexName(cell cells.Cell) (composite.Key, error) {
	if ix.IsQueryOptions() {
		return nil, lsindex_errors.ErrUnsupportedOperation
	}
	comps, err := composite.Split(cell.Name)
	if err != nil {
		return nil, err
	}
	pos := ix.table.ClusteringArity()
	if len(comps) <= pos {
		return nil, errors.WithMessagef(lsindex_errors.ErrMalformedKey, "cell of %s", ix.Name())
	}
	return composite.NewBuilder(cell.Value).Add(comps[:pos]...).Build(), nil
}

func (ix *LocalIndex) write(w host.Writer, partition []byte, entry cells.Cell, kind string) error {
	if err := w.WriteIndex(ix.id, partition, entry); err != nil {
		return err
	}
	IndexWrites.WithLabelValues(ix.table.Name, ix.column.Name, kind).Inc()
	return nil
}

// Insert writes the marker entry of a new base cell. The entry copies
// the cell's timestamp and expiry so it lives exactly as long as the cell.
func (ix *LocalIndex) Insert(w host.Writer, partition []byte, cell cells.Cell) error {
	if ix.IsQueryOptions() {
		return nil
	}
	name, err := ix.MakeIndexName(cell)
	if err != nil {
		return err
	}
	entry := cells.NewCell(name, []byte{}, cell.Timestamp)
	if cell.Kind == cells.Expiring {
		entry.Kind = cells.Expiring
		entry.TTL = cell.TTL
		entry.LocalDeletionTime = cell.LocalDeletionTime
	}
	return ix.write(w, partition, entry, "insert")
}

// Update inserts the entry of the new cell, then deletes the entry of
// the old one unless both cells are the same version.
func (ix *LocalIndex) Update(w host.Writer, partition []byte, old, cell cells.Cell, now time.Time) error {
	if ix.IsQueryOptions() {
		return nil
	}
	if err := ix.Insert(w, partition, cell); err != nil {
		return err
	}
	if old.Name.Equal(cell.Name) && bytes.Equal(old.Value, cell.Value) && old.Timestamp == cell.Timestamp {
		return nil
	}
	return ix.Delete(w, partition, old, now)
}

// Delete tombstones the entry of a base cell being removed. A cell that
// is already deleted has no entry to remove.
func (ix *LocalIndex) Delete(w host.Writer, partition []byte, cell cells.Cell, now time.Time) error {
	if ix.IsQueryOptions() || cell.IsTombstone() {
		return nil
	}
	name, err := ix.MakeIndexName(cell)
	if err != nil {
		return err
	}
	tomb := cells.NewTombstone(name, cells.DeletionTimeOf(now), cell.Timestamp)
	return ix.write(w, partition, tomb, "delete")
}

// IsStale is true when the row of the entry no longer holds the indexed
// value as of now.
func (ix *LocalIndex) IsStale(entry *IndexedEntry, data *cells.Row, now time.Time) (bool, error) {
	if ix.IsQueryOptions() {
		return false, lsindex_errors.ErrUnsupportedOperation
	}
	name := entry.Prefix.Add([]byte(ix.column.Name)).Build()
	live, ok := data.Get(name)
	if !ok || live.IsMarkedForDelete(now) {
		return true, nil
	}
	return ix.column.Type.Compare(entry.IndexValue, live.Value) != 0, nil
}

func (ix *LocalIndex) DecodeEntry(cell cells.Cell) (*IndexedEntry, error) {
	if ix.IsQueryOptions() {
		return nil, lsindex_errors.ErrUnsupportedOperation
	}
	comps, err := composite.Split(cell.Name)
	if err != nil {
		return nil, err
	}
	pos := ix.table.ClusteringArity()
	if len(comps) != pos+1 {
		return nil, errors.WithMessagef(lsindex_errors.ErrMalformedKey, "entry of %s", ix.Name())
	}
	return &IndexedEntry{
		IndexValue: comps[0],
		Prefix:     composite.NewBuilder(comps[1:]...),
		Cell:       cell,
	}, nil
}

// DeleteEntry reclaims a stale entry. The tombstone carries the entry's
// own timestamp: it kills that version and nothing written later.
func (ix *LocalIndex) DeleteEntry(w host.Writer, partition []byte, entry cells.Cell, now time.Time) error {
	if ix.IsQueryOptions() {
		return lsindex_errors.ErrUnsupportedOperation
	}
	tomb := cells.NewTombstone(entry.Name, cells.DeletionTimeOf(now), entry.Timestamp)
	return ix.write(w, partition, tomb, "reclaim")
}
