// Package testutils has an in-memory storage host for index tests.
package testutils

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/host"
	"github.com/drpcorg/lsindex/schema"
	"github.com/drpcorg/lsindex/utils"
)

type partitionKey struct {
	space     uint64
	partition string
}

// IndexWrite is one index cell as seen by the writer.
type IndexWrite struct {
	Index     uint64
	Partition []byte
	Cell      cells.Cell
}

// ReadCall records the arguments of a ReadIndex call.
type ReadCall struct {
	Lower, Upper composite.Key
	Reversed     bool
	Limit        int
}

// MemHost keeps base and index partitions in sorted slices, merging
// writes last-write-wins. It records every index write and index read.
type MemHost struct {
	lock  sync.Mutex
	data  map[partitionKey]*cells.Row
	log   utils.Logger
	wlog  []IndexWrite
	reads []ReadCall

	// ReadIndexErr, when set, fails every index read after the first
	// ReadIndexErrAfter ones.
	ReadIndexErr      error
	ReadIndexErrAfter int
	// WriteIndexErr, when set, fails every index write.
	WriteIndexErr error
}

var _ host.Host = (*MemHost)(nil)

func NewMemHost() *MemHost {
	return &MemHost{
		data: make(map[partitionKey]*cells.Row),
		log:  utils.NewDefaultLogger(slog.LevelError),
	}
}

func (h *MemHost) Logger() utils.Logger {
	return h.log
}

func (h *MemHost) put(space uint64, partition []byte, c cells.Cell) {
	key := partitionKey{space, string(partition)}
	row, ok := h.data[key]
	if !ok {
		row = cells.NewRow(partition)
		h.data[key] = row
	}
	c.Name = c.Name.Clone()
	row.Add(c)
}

// PutBase stores a base cell of a table.
func (h *MemHost) PutBase(t *schema.Table, partition []byte, c cells.Cell) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.put(t.ID(), partition, c)
}

// GetBase returns the stored version of a base cell.
func (h *MemHost) GetBase(t *schema.Table, partition []byte, name composite.Key) (cells.Cell, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.data[partitionKey{t.ID(), string(partition)}].Get(name)
}

// IndexCells returns all stored cells of an index partition.
func (h *MemHost) IndexCells(index uint64, partition []byte) []cells.Cell {
	h.lock.Lock()
	defer h.lock.Unlock()
	row := h.data[partitionKey{index, string(partition)}]
	if row == nil {
		return nil
	}
	return slices.Clone(row.Cells)
}

// Writes returns the index writes seen so far, in order.
func (h *MemHost) Writes() []IndexWrite {
	h.lock.Lock()
	defer h.lock.Unlock()
	return slices.Clone(h.wlog)
}

func (h *MemHost) Reads() []ReadCall {
	h.lock.Lock()
	defer h.lock.Unlock()
	return slices.Clone(h.reads)
}

func (h *MemHost) ResetLog() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.wlog, h.reads = nil, nil
}

func (h *MemHost) WriteIndex(index uint64, partition []byte, cell cells.Cell) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.WriteIndexErr != nil {
		return h.WriteIndexErr
	}
	h.wlog = append(h.wlog, IndexWrite{Index: index, Partition: partition, Cell: cell})
	h.put(index, partition, cell)
	return nil
}

func (h *MemHost) IndexWriter() host.Writer {
	return h
}

func (h *MemHost) ReadIndex(ctx context.Context, index uint64, partition []byte, lower, upper composite.Key, reversed bool, limit int) ([]cells.Cell, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.reads = append(h.reads, ReadCall{Lower: lower, Upper: upper, Reversed: reversed, Limit: limit})
	if h.ReadIndexErr != nil && len(h.reads) > h.ReadIndexErrAfter {
		return nil, h.ReadIndexErr
	}
	row := h.data[partitionKey{index, string(partition)}]
	if row == nil {
		return nil, nil
	}
	from := sort.Search(len(row.Cells), func(i int) bool {
		return lower.IsEmpty() || row.Cells[i].Name.Compare(lower) >= 0
	})
	till := sort.Search(len(row.Cells), func(i int) bool {
		return !upper.IsEmpty() && row.Cells[i].Name.Compare(upper) > 0
	})
	if from >= till {
		return nil, nil
	}
	page := slices.Clone(row.Cells[from:till])
	if reversed {
		slices.Reverse(page)
	}
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

func (h *MemHost) ReadRow(ctx context.Context, t *schema.Table, partition []byte, ss []composite.Slice) (*cells.Row, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	row := h.data[partitionKey{t.ID(), string(partition)}]
	if row == nil {
		return nil, nil
	}
	ret := cells.NewRow(partition)
	for _, s := range ss {
		ret.Resolve(row.Slice(s))
	}
	if ret.IsEmpty() {
		return nil, nil
	}
	return ret, nil
}
