package indexes

import (
	"context"
	"time"

	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/drpcorg/lsindex/query"
	"github.com/drpcorg/lsindex/utils"
	"github.com/pkg/errors"
)

// Searcher resolves filters through the indexes of one table.
type Searcher struct {
	im *IndexManager
}

var _ IndexSearcher = (*Searcher)(nil)

func (s *Searcher) CanHandle(clause []query.Expression) bool {
	return s.HighestSelectivityPredicate(clause) != nil
}

// HighestSelectivityPredicate picks the expression driving the scan: the
// first one on an indexed column. Options expressions never drive.
func (s *Searcher) HighestSelectivityPredicate(clause []query.Expression) *query.Expression {
	for i := range clause {
		ix := s.im.Index(clause[i].Column)
		if ix != nil && !ix.IsQueryOptions() {
			return &clause[i]
		}
	}
	return nil
}

// Scan plans a search and returns the scanner executing it. The returned
// scanner's filter lacks the options expressions.
func (s *Searcher) Scan(filter *query.Filter) (*Scanner, error) {
	opts := query.DefaultOptions
	var seenOptions bool
	f := *filter
	f.Clause = nil
	for _, e := range filter.Clause {
		ix := s.im.Index(e.Column)
		if ix == nil || !ix.IsQueryOptions() {
			f.Clause = append(f.Clause, e)
			continue
		}
		if seenOptions {
			return nil, lsindex_errors.ErrManyQueryOptions
		}
		seenOptions = true
		var err error
		if opts, err = s.im.ParseOptions(string(e.Value)); err != nil {
			return nil, err
		}
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	primary := s.HighestSelectivityPredicate(f.Clause)
	if primary == nil {
		return nil, errors.WithMessagef(lsindex_errors.ErrNoIndexedExpression, "table %s", s.im.table.Name)
	}
	ix := s.im.Index(primary.Column)
	var restrictions []query.Expression
	for _, e := range f.Clause {
		if e.Column == primary.Column {
			restrictions = append(restrictions, e)
		}
	}
	rng := plan(restrictions, f.Slice)
	return newScanner(ix, s.im.host, &f, rng, opts.Reversed(), s.im.maxPage), nil
}

// Search returns at most one row: the merge of the live data of every
// row matching the filter, up to its limits.
func (s *Searcher) Search(ctx context.Context, filter *query.Filter) ([]*cells.Row, error) {
	start := time.Now()
	sc, err := s.Scan(filter)
	if err != nil {
		SearchCount.WithLabelValues(s.im.table.Name, "", "error").Inc()
		return nil, err
	}
	table, column := s.im.table.Name, sc.index.column.Name
	row, err := sc.Next(ctx)
	SearchDuration.WithLabelValues(table, column).Observe(utils.Millis(time.Since(start)))
	if err != nil {
		SearchCount.WithLabelValues(table, column, "error").Inc()
		return nil, err
	}
	s.im.log.DebugCtx(ctx, "index search",
		"index", sc.index.Name(),
		"reversed", sc.reversed,
		"pages", sc.Pages,
		"scanned", sc.Scanned,
		"reclaimed", sc.Reclaimed,
		"cells", row.Len(),
	)
	if row == nil {
		SearchCount.WithLabelValues(table, column, "empty").Inc()
		return nil, nil
	}
	SearchCount.WithLabelValues(table, column, "ok").Inc()
	return []*cells.Row{row}, nil
}
