package cells

import (
	"slices"
	"time"

	"github.com/drpcorg/lsindex/composite"
)

// Row is a set of cells of one partition, kept sorted by name with at
// most one version per name.
type Row struct {
	Partition []byte
	Cells     []Cell
}

func NewRow(partition []byte, cells ...Cell) *Row {
	r := &Row{Partition: partition}
	for _, c := range cells {
		r.Add(c)
	}
	return r
}

func (r *Row) find(name composite.Key) (int, bool) {
	return slices.BinarySearchFunc(r.Cells, name, func(c Cell, n composite.Key) int {
		return c.Name.Compare(n)
	})
}

func (r *Row) Get(name composite.Key) (Cell, bool) {
	if r == nil {
		return Cell{}, false
	}
	i, ok := r.find(name)
	if !ok {
		return Cell{}, false
	}
	return r.Cells[i], true
}

// Add merges a cell in, reconciling with the version already present.
func (r *Row) Add(c Cell) {
	i, ok := r.find(c.Name)
	if ok {
		r.Cells[i] = r.Cells[i].Reconcile(c)
		return
	}
	r.Cells = slices.Insert(r.Cells, i, c)
}

// Resolve merges all the cells of another row in.
func (r *Row) Resolve(other *Row) {
	if other == nil {
		return
	}
	for _, c := range other.Cells {
		r.Add(c)
	}
}

// Live drops everything deleted or expired as of now.
func (r *Row) Live(now time.Time) *Row {
	ret := &Row{Partition: r.Partition}
	for _, c := range r.Cells {
		if c.IsLive(now) {
			ret.Cells = append(ret.Cells, c)
		}
	}
	return ret
}

// Slice keeps the cells whose names fall into s.
func (r *Row) Slice(s composite.Slice) *Row {
	ret := &Row{Partition: r.Partition}
	for _, c := range r.Cells {
		if s.Contains(c.Name) {
			ret.Cells = append(ret.Cells, c)
		}
	}
	return ret
}

// Truncate keeps the first n cells.
func (r *Row) Truncate(n int) {
	if n < len(r.Cells) {
		r.Cells = r.Cells[:n]
	}
}

func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Cells)
}

func (r *Row) IsEmpty() bool {
	return r.Len() == 0
}
