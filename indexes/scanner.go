package indexes

import (
	"context"
	"math"

	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/host"
	"github.com/drpcorg/lsindex/query"
	"github.com/drpcorg/lsindex/utils"
)

const (
	// MaxRowsDefault caps the rows of a search with no row limit.
	MaxRowsDefault = 10000
	// DefaultMaxPageSize caps index pages when the manager has no limit.
	DefaultMaxPageSize = 10000
	minPageSize        = 2
)

type scanState byte

const (
	stateFetching scanState = 'F'
	stateDraining scanState = 'R'
	stateDone     scanState = 'D'
)

func (s scanState) String() string {
	switch s {
	case stateFetching:
		return "FETCHING"
	case stateDraining:
		return "DRAINING"
	default:
		return "DONE"
	}
}

// Scanner walks one index partition page by page, joining every entry to
// its live base row. It is single use: Next yields at most one merged row,
// then nil.
type Scanner struct {
	index    *LocalIndex
	host     host.Host
	filter   *query.Filter
	rng      Range
	reversed bool
	maxPage  int
	log      utils.Logger

	state    scanState
	lastSeen composite.Key
	buffer   []cells.Cell
	// requested and fetched tell a short page, the sign of the end
	requested int
	fetched   int

	rowLimit    int
	columnLimit int
	rows        int
	data        *cells.Row

	Pages     int
	Scanned   int
	Reclaimed int
}

func newScanner(ix *LocalIndex, h host.Host, filter *query.Filter, rng Range, reversed bool, maxPage int) *Scanner {
	s := &Scanner{
		index:       ix,
		host:        h,
		filter:      filter,
		rng:         rng,
		reversed:    reversed,
		maxPage:     maxPage,
		log:         h.Logger(),
		state:       stateFetching,
		rowLimit:    MaxRowsDefault,
		columnLimit: math.MaxInt32,
	}
	if filter.RowLimit > 0 {
		s.rowLimit = min(filter.RowLimit, MaxRowsDefault)
	}
	if filter.ColumnLimit > 0 {
		s.columnLimit = filter.ColumnLimit
	}
	if s.maxPage <= 0 {
		s.maxPage = DefaultMaxPageSize
	}
	if reversed {
		s.lastSeen = rng.Upper
	} else {
		s.lastSeen = rng.Lower
	}
	return s
}

// Next runs the scan to completion and returns the merged row of every
// hit, nil when nothing matched or the row was already returned.
func (s *Scanner) Next(ctx context.Context) (*cells.Row, error) {
	for s.state != stateDone {
		var err error
		switch s.state {
		case stateFetching:
			err = s.fetch(ctx)
		case stateDraining:
			err = s.drain(ctx)
		}
		if err != nil {
			s.state = stateDone
			s.data = nil
			return nil, err
		}
	}
	data := s.data
	s.data = nil
	if data.IsEmpty() {
		return nil, nil
	}
	return data, nil
}

func (s *Scanner) columns() int {
	return s.data.Len()
}

// pageSize asks for what the remaining limits are likely to need, judged
// by the mean number of cells per hit seen so far.
func (s *Scanner) pageSize() int {
	rowsLeft := s.rowLimit - s.rows
	perHit := max(s.index.density.Val(), 1)
	byColumns := int(math.Min(float64(s.columnLimit-s.columns())/perHit, math.MaxInt32))
	return utils.Clamp(min(rowsLeft, byColumns), minPageSize, s.maxPage)
}

func (s *Scanner) fetch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.requested = s.pageSize()
	lower, upper := s.rng.Lower, s.rng.Upper
	if s.reversed {
		upper = s.lastSeen
	} else {
		lower = s.lastSeen
	}
	page, err := s.host.ReadIndex(ctx, s.index.ID(), s.filter.Partition, lower, upper, s.reversed, s.requested)
	if err != nil {
		return err
	}
	s.Pages++
	PagesFetched.WithLabelValues(s.index.table.Name, s.index.column.Name).Inc()
	s.fetched = len(page)
	if len(page) == 0 {
		s.state = stateDone
		return nil
	}
	s.buffer = page
	s.state = stateDraining
	return nil
}

func (s *Scanner) drain(ctx context.Context) error {
	for len(s.buffer) > 0 {
		entry := s.buffer[0]
		s.buffer = s.buffer[1:]
		s.lastSeen = entry.Name
		s.Scanned++
		EntriesScanned.WithLabelValues(s.index.table.Name, s.index.column.Name).Inc()
		if entry.IsMarkedForDelete(s.filter.Timestamp) {
			continue
		}
		done, err := s.consume(ctx, entry)
		if err != nil {
			return err
		}
		if done {
			s.state = stateDone
			return nil
		}
	}
	if s.fetched < s.requested {
		s.state = stateDone
		return nil
	}
	// resume strictly past the last entry seen
	if s.reversed {
		s.lastSeen = s.lastSeen.WithStart()
	} else {
		s.lastSeen = s.lastSeen.WithEnd()
	}
	s.state = stateFetching
	return nil
}

// consume joins one index entry to its base row; done reports a limit hit.
func (s *Scanner) consume(ctx context.Context, entryCell cells.Cell) (done bool, err error) {
	ix, now := s.index, s.filter.Timestamp
	entry, err := ix.DecodeEntry(entryCell)
	if err != nil {
		return false, err
	}
	slices := []composite.Slice{entry.RowSlice()}
	if ix.table.HasStaticColumns() {
		slices = append([]composite.Slice{ix.table.StaticSlice()}, slices...)
	}
	data, err := s.host.ReadRow(ctx, ix.table, s.filter.Partition, slices)
	if err != nil {
		return false, err
	}
	stale := true
	if data != nil {
		if stale, err = ix.IsStale(entry, data, now); err != nil {
			return false, err
		}
	}
	if stale {
		s.reclaim(entryCell)
		return false, nil
	}
	if !s.filter.IsSatisfiedBy(ix.table, data, entry.Prefix) {
		return false, nil
	}
	live := data.Live(now)
	ix.density.Add(float64(live.Len()))
	if s.data == nil {
		s.data = cells.NewRow(s.filter.Partition)
	}
	// static cells come first and repeat in every hit; only new cells
	// count against the column limit
	for _, c := range live.Cells {
		if _, seen := s.data.Get(c.Name); !seen && s.columns() >= s.columnLimit {
			break
		}
		s.data.Add(c)
	}
	s.rows++
	return s.rows >= s.rowLimit || s.columns() >= s.columnLimit, nil
}

// reclaim is best effort: a failed tombstone leaves the entry for the
// next scan to find.
func (s *Scanner) reclaim(entry cells.Cell) {
	ix := s.index
	err := ix.DeleteEntry(s.host.IndexWriter(), s.filter.Partition, entry, s.filter.Timestamp)
	if err != nil {
		s.log.Warn("stale entry reclaim failed", "index", ix.Name(), "entry", entry.Name, "err", err)
		EntriesReclaimed.WithLabelValues(ix.table.Name, ix.column.Name, "error").Inc()
		return
	}
	s.Reclaimed++
	s.log.Debug("stale entry reclaimed", "index", ix.Name(), "entry", entry.Name)
	EntriesReclaimed.WithLabelValues(ix.table.Name, ix.column.Name, "ok").Inc()
}
