package lsindex

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/indexes"
	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/drpcorg/lsindex/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var RebuildCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lsindex",
	Subsystem: "store",
	Name:      "rebuilds",
}, []string{"table", "column"})

var RebuildResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lsindex",
	Subsystem: "store",
	Name:      "rebuild_results",
}, []string{"table", "column", "result", "type"})

var RebuildDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "lsindex",
	Subsystem: "store",
	Name:      "rebuild_duration_ms",
	Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
}, []string{"table", "column"})

// RebuildStats counts what a rebuild of one index did.
type RebuildStats struct {
	Column    string
	Inserted  int
	Reclaimed int
	Skipped   int
}

// RebuildIndex repairs the indexes of a table, all of them or the named
// columns only, against a snapshot of the base data: live cells missing
// an entry get one, entries pointing at a changed or missing value get
// reclaimed. Indexes are rebuilt in parallel. Concurrent writes are safe,
// every entry written carries the timestamp of the version it reflects.
func (s *Store) RebuildIndex(ctx context.Context, table string, columns ...string) ([]RebuildStats, error) {
	targets, err := s.indexTargets(table, columns)
	if err != nil {
		return nil, err
	}
	snap := s.db.NewSnapshot()
	defer snap.Close()
	stats := make([]RebuildStats, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, ix := range targets {
		i, ix := i, ix
		g.Go(func() error {
			st, err := s.rebuild(gctx, snap, ix)
			stats[i] = st
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// indexTargets picks the named indexes of a table, all of them when no
// column is named.
func (s *Store) indexTargets(table string, columns []string) ([]*indexes.LocalIndex, error) {
	im, err := s.manager(table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return im.Indexes(), nil
	}
	var targets []*indexes.LocalIndex
	for _, c := range columns {
		ix := im.Index(c)
		if ix == nil || ix.IsQueryOptions() {
			return nil, errors.WithMessagef(lsindex_errors.ErrNoIndex, "%s.%s", table, c)
		}
		targets = append(targets, ix)
	}
	return targets, nil
}

// TruncateIndex drops every entry of the named indexes of a table, or
// of all its indexes when no column is named. Searches find nothing
// through a truncated index until RebuildIndex repopulates it.
func (s *Store) TruncateIndex(ctx context.Context, table string, columns ...string) error {
	targets, err := s.indexTargets(table, columns)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, ix := range targets {
		space := spaceKey(indexSpace, ix.ID())
		if err := batch.DeleteRange(space, successor(space), nil); err != nil {
			return errors.Wrapf(err, "truncate %s", ix.Name())
		}
	}
	if err := batch.Commit(s.opts.PebbleWriteOptions); err != nil {
		return errors.Wrapf(err, "truncate %s", table)
	}
	for _, ix := range targets {
		s.log.InfoCtx(ctx, "index truncated", "table", table, "column", ix.Column().Name)
	}
	return nil
}

// IndexSize estimates the bytes on disk taken by an index.
func (s *Store) IndexSize(table, column string) (uint64, error) {
	targets, err := s.indexTargets(table, []string{column})
	if err != nil {
		return 0, err
	}
	space := spaceKey(indexSpace, targets[0].ID())
	size, err := s.db.EstimateDiskUsage(space, successor(space))
	if err != nil {
		return 0, errors.Wrapf(err, "size of %s", targets[0].Name())
	}
	return size, nil
}

func (s *Store) rebuild(ctx context.Context, snap *pebble.Snapshot, ix *indexes.LocalIndex) (st RebuildStats, err error) {
	t := ix.Table()
	column := ix.Column().Name
	st.Column = column
	start := time.Now()
	RebuildCount.WithLabelValues(t.Name, column).Inc()
	defer func() {
		RebuildDuration.WithLabelValues(t.Name, column).Observe(utils.Millis(time.Since(start)))
	}()
	ctx = utils.WithDefaultArgs(ctx, "table", t.Name, "column", column, "process", "rebuild")
	fail := func(err error, kind string) (RebuildStats, error) {
		RebuildResults.WithLabelValues(t.Name, column, "error", kind).Inc()
		s.log.ErrorCtx(ctx, "rebuild failed", "type", kind, "err", err)
		return st, err
	}
	now := time.Now()
	w := &rebuildWriter{s: s, batch: s.db.NewBatch()}
	defer w.close()

	// repair missing entries
	base := spaceKey(baseSpace, t.ID())
	it, err := snap.NewIter(&pebble.IterOptions{LowerBound: base, UpperBound: successor(base)})
	if err != nil {
		return fail(err, "fail_to_open_base")
	}
	defer it.Close()
	for valid := it.First(); valid; valid = it.Next() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		partition, name, ok := partitionOf(it.Key())
		if !ok || !ix.Indexes(name) {
			continue
		}
		cell, err := cells.ParseCell(name.Clone(), it.Value())
		if err != nil {
			st.Skipped++
			s.log.WarnCtx(ctx, "unreadable base cell skipped", "key", it.Key(), "err", err)
			continue
		}
		if !cell.IsLive(now) {
			continue
		}
		if err := ix.Insert(w, partition, cell); err != nil {
			return fail(err, "fail_to_insert_entry")
		}
		st.Inserted++
	}

	// repair entries that are no longer needed
	index := spaceKey(indexSpace, ix.ID())
	iit, err := snap.NewIter(&pebble.IterOptions{LowerBound: index, UpperBound: successor(index)})
	if err != nil {
		return fail(err, "fail_to_open_index")
	}
	defer iit.Close()
	for valid := iit.First(); valid; valid = iit.Next() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		partition, name, ok := partitionOf(iit.Key())
		if !ok {
			continue
		}
		entryCell, err := cells.ParseCell(name.Clone(), iit.Value())
		if err != nil || entryCell.IsMarkedForDelete(now) {
			continue
		}
		entry, err := ix.DecodeEntry(entryCell)
		if err != nil {
			st.Skipped++
			continue
		}
		data, err := readRow(snap, t, partition, []composite.Slice{entry.RowSlice()})
		if err != nil {
			return fail(err, "fail_to_read_row")
		}
		stale := true
		if data != nil {
			if stale, err = ix.IsStale(entry, data, now); err != nil {
				return fail(err, "fail_to_check_entry")
			}
		}
		if !stale {
			continue
		}
		if err := ix.DeleteEntry(w, partition, entryCell, now); err != nil {
			return fail(err, "fail_to_reclaim_entry")
		}
		st.Reclaimed++
	}
	if err := w.flush(); err != nil {
		return fail(err, "fail_to_commit")
	}
	RebuildResults.WithLabelValues(t.Name, column, "success", "rebuilt").Inc()
	s.log.InfoCtx(ctx, "index rebuilt", "inserted", st.Inserted, "reclaimed", st.Reclaimed, "skipped", st.Skipped)
	return st, nil
}

// rebuildWriter commits index writes in batches of RebuildBatchSize.
type rebuildWriter struct {
	s     *Store
	batch *pebble.Batch
	n     int
}

func (w *rebuildWriter) WriteIndex(index uint64, partition []byte, cell cells.Cell) error {
	if err := w.batch.Merge(cellKey(indexSpace, index, partition, cell.Name), cell.Tlv(), nil); err != nil {
		return err
	}
	w.n++
	if w.n >= w.s.opts.RebuildBatchSize {
		return w.flush()
	}
	return nil
}

func (w *rebuildWriter) flush() error {
	if w.n == 0 {
		return nil
	}
	err := w.batch.Commit(w.s.opts.PebbleWriteOptions)
	_ = w.batch.Close()
	w.batch = w.s.db.NewBatch()
	w.n = 0
	return err
}

func (w *rebuildWriter) close() {
	_ = w.batch.Close()
}
