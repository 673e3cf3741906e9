// Package schema describes base tables: which column is the partition
// key, which columns form the clustering key, which are regular or static
// and which of them carry a local secondary index.
//
// Cell names follow the wide-row layout: a regular cell of a row is named
// enc(ck1)..enc(ckN) enc(column), a static cell is named
// StaticMarker enc(column). So every row is a contiguous range of cell
// names and the static cells come first in a partition.
package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash"
	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/pkg/errors"
)

type ColumnKind byte

const (
	PartitionKey ColumnKind = 'P'
	Clustering   ColumnKind = 'C'
	Regular      ColumnKind = 'R'
	Static       ColumnKind = 'S'
)

var kindNames = map[ColumnKind]string{
	PartitionKey: "partition_key",
	Clustering:   "clustering",
	Regular:      "regular",
	Static:       "static",
}

func (k ColumnKind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, lsindex_errors.ErrBadTable
	}
	return []byte(name), nil
}

func (k *ColumnKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%w: column kind %q", lsindex_errors.ErrBadTable, text)
}

type IndexKind byte

const (
	NoIndex IndexKind = 0
	// LocalIndex keeps a per-partition projection value -> row.
	LocalIndex IndexKind = 'L'
	// QueryOptionsIndex marks the reserved pseudo-column whose
	// expressions carry scan directives instead of a restriction.
	QueryOptionsIndex IndexKind = 'Q'
)

var indexNames = map[IndexKind]string{
	NoIndex:           "",
	LocalIndex:        "local",
	QueryOptionsIndex: "query_options",
}

func (k IndexKind) MarshalText() ([]byte, error) {
	name, ok := indexNames[k]
	if !ok {
		return nil, lsindex_errors.ErrBadTable
	}
	return []byte(name), nil
}

func (k *IndexKind) UnmarshalText(text []byte) error {
	for kind, name := range indexNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%w: index kind %q", lsindex_errors.ErrBadTable, text)
}

type Column struct {
	Name  string     `json:"name"`
	Type  Type       `json:"type"`
	Kind  ColumnKind `json:"kind"`
	Index IndexKind  `json:"index,omitempty"`
}

func (c *Column) IsIndexed() bool {
	return c.Index != NoIndex
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// StaticEnd closes the range of static cell names; column names are
// UTF-8 so they never start with 0xFF.
var StaticEnd = composite.StaticMarker.Append(composite.Key{0xFF})

func NewTable(name string, columns ...Column) (*Table, error) {
	t := &Table{Name: name, Columns: columns}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseTable reads a JSON table definition.
func ParseTable(data []byte) (*Table, error) {
	t := &Table{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, errors.Wrap(err, "parse table")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

func (t *Table) Validate() error {
	if t.Name == "" {
		return errors.WithMessage(lsindex_errors.ErrBadTable, "no table name")
	}
	names := make(map[string]bool)
	pks, options := 0, 0
	for _, c := range t.Columns {
		if c.Name == "" || names[c.Name] {
			return errors.WithMessagef(lsindex_errors.ErrBadTable, "column name %q", c.Name)
		}
		names[c.Name] = true
		if !c.Type.Valid() {
			return errors.WithMessagef(lsindex_errors.ErrBadTable, "column %s type", c.Name)
		}
		if _, ok := kindNames[c.Kind]; !ok {
			return errors.WithMessagef(lsindex_errors.ErrBadTable, "column %s kind", c.Name)
		}
		if c.Kind == PartitionKey {
			pks++
		}
		switch c.Index {
		case NoIndex:
		case LocalIndex:
			if c.Kind != Regular {
				return errors.WithMessagef(lsindex_errors.ErrIndexNotAllowed, "column %s", c.Name)
			}
		case QueryOptionsIndex:
			options++
			if c.Kind != Regular || c.Type != Text {
				return errors.WithMessagef(lsindex_errors.ErrIndexNotAllowed, "query options column %s", c.Name)
			}
		default:
			return errors.WithMessagef(lsindex_errors.ErrBadTable, "column %s index", c.Name)
		}
	}
	if pks != 1 {
		return errors.WithMessage(lsindex_errors.ErrBadTable, "need exactly one partition key column")
	}
	if options > 1 {
		return errors.WithMessage(lsindex_errors.ErrBadTable, "more than one query options column")
	}
	return nil
}

// ID names the table's key space.
func (t *Table) ID() uint64 {
	return xxhash.Sum64String(t.Name)
}

func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

func (t *Table) PartitionKey() *Column {
	for i := range t.Columns {
		if t.Columns[i].Kind == PartitionKey {
			return &t.Columns[i]
		}
	}
	return nil
}

// Clustering lists the clustering columns in key order.
func (t *Table) Clustering() (cols []Column) {
	for _, c := range t.Columns {
		if c.Kind == Clustering {
			cols = append(cols, c)
		}
	}
	return
}

// ClusteringArity is also the position of the column name component in
// a regular cell name.
func (t *Table) ClusteringArity() int {
	return len(t.Clustering())
}

func (t *Table) clusteringPosition(name string) int {
	for i, c := range t.Clustering() {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) HasStaticColumns() bool {
	for _, c := range t.Columns {
		if c.Kind == Static {
			return true
		}
	}
	return false
}

// IndexedColumns lists every column carrying an index, the query options
// pseudo-column included.
func (t *Table) IndexedColumns() (cols []Column) {
	for _, c := range t.Columns {
		if c.IsIndexed() {
			cols = append(cols, c)
		}
	}
	return
}

// RowPrefix validates a clustering key and turns it into a builder.
func (t *Table) RowPrefix(clustering [][]byte) (composite.Builder, error) {
	cl := t.Clustering()
	if len(clustering) != len(cl) {
		return composite.Builder{}, lsindex_errors.ErrBadClustering
	}
	for i, c := range cl {
		if err := c.Type.Validate(clustering[i]); err != nil {
			return composite.Builder{}, errors.WithMessagef(err, "clustering column %s", c.Name)
		}
	}
	return composite.NewBuilder(clustering...), nil
}

// CellName names the cell of a column in the row with the given
// clustering key; static cells ignore the clustering key.
func (t *Table) CellName(clustering [][]byte, column string) (composite.Key, error) {
	col := t.Column(column)
	if col == nil {
		return nil, errors.WithMessagef(lsindex_errors.ErrColumnUnknown, "%s.%s", t.Name, column)
	}
	switch col.Kind {
	case Static:
		return StaticCellName(column), nil
	case Regular:
		prefix, err := t.RowPrefix(clustering)
		if err != nil {
			return nil, err
		}
		return prefix.Add([]byte(column)).Build(), nil
	default:
		return nil, errors.WithMessagef(lsindex_errors.ErrColumnUnknown, "%s is part of the primary key", column)
	}
}

func StaticCellName(column string) composite.Key {
	return composite.StaticMarker.Append(composite.Encode([]byte(column)))
}

// ParseCellName splits a cell name into its column and clustering key.
func (t *Table) ParseCellName(name composite.Key) (col *Column, clustering [][]byte, err error) {
	comps, err := composite.Split(name)
	if err != nil {
		return nil, nil, err
	}
	if name.IsStatic() {
		if len(comps) != 2 {
			return nil, nil, lsindex_errors.ErrMalformedKey
		}
		col = t.Column(string(comps[1]))
	} else {
		arity := t.ClusteringArity()
		if len(comps) != arity+1 {
			return nil, nil, lsindex_errors.ErrMalformedKey
		}
		col = t.Column(string(comps[arity]))
		clustering = comps[:arity]
	}
	if col == nil {
		return nil, nil, lsindex_errors.ErrColumnUnknown
	}
	return col, clustering, nil
}

// StaticSlice covers the static cells of a partition.
func (t *Table) StaticSlice() composite.Slice {
	return composite.Slice{Finish: StaticEnd}
}

// ValueOf resolves a column's live value for the row identified by
// prefix inside the partition's data.
func (t *Table) ValueOf(column string, partition []byte, prefix composite.Builder, data *cells.Row, now time.Time) ([]byte, bool) {
	col := t.Column(column)
	if col == nil {
		return nil, false
	}
	var name composite.Key
	switch col.Kind {
	case PartitionKey:
		return partition, true
	case Clustering:
		v := prefix.Component(t.clusteringPosition(column))
		return v, v != nil
	case Static:
		name = StaticCellName(column)
	default:
		name = prefix.Add([]byte(column)).Build()
	}
	c, ok := data.Get(name)
	if !ok || c.IsMarkedForDelete(now) {
		return nil, false
	}
	return c.Value, true
}
