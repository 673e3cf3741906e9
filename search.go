package lsindex

import (
	"context"

	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/indexes"
	"github.com/drpcorg/lsindex/query"
	"github.com/drpcorg/lsindex/utils"
)

// Searcher returns the index searcher of a table.
func (s *Store) Searcher(table string) (*indexes.Searcher, error) {
	im, err := s.manager(table)
	if err != nil {
		return nil, err
	}
	return im.Searcher(), nil
}

// Search answers a filter on one partition of a table through the
// table's indexes. The result holds at most one row.
func (s *Store) Search(ctx context.Context, table string, filter *query.Filter) ([]*cells.Row, error) {
	searcher, err := s.Searcher(table)
	if err != nil {
		return nil, err
	}
	ctx = utils.WithDefaultArgs(ctx, "table", table)
	rows, err := searcher.Search(ctx, filter)
	if err != nil {
		s.log.WarnCtx(ctx, "search failed", "err", err)
		return nil, err
	}
	return rows, nil
}
