package lsindex

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/indexes"
	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/pkg/errors"
)

// Op changes one cell, or deletes a whole row when Delete is set and
// Column is empty. Static columns ignore Clustering.
type Op struct {
	Clustering [][]byte
	Column     string
	Value      []byte
	Delete     bool
}

// Mutation is a set of changes to one partition sharing a write
// timestamp and TTL.
type Mutation struct {
	Table     string
	Partition []byte
	// zero means now
	Timestamp time.Time
	// zero means no expiry
	TTL time.Duration
	Ops []Op
}

func (m *Mutation) Put(clustering [][]byte, column string, value []byte) *Mutation {
	m.Ops = append(m.Ops, Op{Clustering: clustering, Column: column, Value: value})
	return m
}

func (m *Mutation) Delete(clustering [][]byte, column string) *Mutation {
	m.Ops = append(m.Ops, Op{Clustering: clustering, Column: column, Delete: true})
	return m
}

func (m *Mutation) DeleteRow(clustering [][]byte) *Mutation {
	return m.Delete(clustering, "")
}

// Apply writes a mutation and the index changes it causes in one batch.
// Cells losing to the stored version are dropped along with their index
// changes.
func (s *Store) Apply(ctx context.Context, m *Mutation) error {
	im, err := s.manager(m.Table)
	if err != nil {
		return err
	}
	t := im.Table()
	if err := t.PartitionKey().Type.Validate(m.Partition); err != nil {
		return errors.WithMessage(err, "partition key")
	}
	now := time.Now()
	ts := m.Timestamp
	if ts.IsZero() {
		ts = now
	}
	unlock := s.lockPartition(t, m.Partition)
	defer unlock()

	batch := s.db.NewIndexedBatch()
	defer batch.Close()
	for _, op := range m.Ops {
		if op.Delete && op.Column == "" {
			err = s.deleteRow(batch, im, m.Partition, op.Clustering, cells.TimestampOf(ts), now)
		} else {
			err = s.applyOp(batch, im, m, op, ts, now)
		}
		if err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := batch.Commit(s.opts.PebbleWriteOptions); err != nil {
		return errors.Wrap(err, "commit mutation")
	}
	s.log.DebugCtx(ctx, "mutation applied", "table", t.Name, "ops", len(m.Ops))
	return nil
}

func (s *Store) applyOp(batch *pebble.Batch, im *indexes.IndexManager, m *Mutation, op Op, ts, now time.Time) error {
	t := im.Table()
	name, err := t.CellName(op.Clustering, op.Column)
	if err != nil {
		return err
	}
	var cell cells.Cell
	if op.Delete {
		cell = cells.NewTombstone(name, cells.DeletionTimeOf(now), cells.TimestampOf(ts))
	} else {
		col := t.Column(op.Column)
		if err := col.Type.Validate(op.Value); err != nil {
			return errors.WithMessagef(err, "column %s", op.Column)
		}
		cell = cells.NewExpiringCell(name, op.Value, cells.TimestampOf(ts), int32(m.TTL/time.Second), now)
	}
	return s.applyCell(batch, im, m.Partition, cell, now)
}

// applyCell reconciles a cell with the stored version and tells the index
// manager what happened to the live value.
func (s *Store) applyCell(batch *pebble.Batch, im *indexes.IndexManager, partition []byte, cell cells.Cell, now time.Time) error {
	key := cellKey(baseSpace, im.Table().ID(), partition, cell.Name)
	old, had, err := getCell(batch, key, cell.Name)
	if err != nil {
		return err
	}
	if had && !old.Reconcile(cell).Equal(cell) {
		return nil
	}
	if err := batch.Merge(key, cell.Tlv(), nil); err != nil {
		return err
	}
	live := had && old.IsLive(now)
	w := batchWriter{batch}
	switch {
	case cell.IsTombstone():
		if live {
			return im.OnDelete(w, partition, old, now)
		}
		return nil
	case live:
		return im.OnUpdate(w, partition, old, cell, now)
	default:
		return im.OnInsert(w, partition, cell)
	}
}

func (s *Store) deleteRow(batch *pebble.Batch, im *indexes.IndexManager, partition []byte, clustering [][]byte, ts int64, now time.Time) error {
	t := im.Table()
	prefix, err := t.RowPrefix(clustering)
	if err != nil {
		return err
	}
	row, err := readRow(batch, t, partition, []composite.Slice{composite.PrefixSlice(prefix)})
	if err != nil || row == nil {
		return err
	}
	for _, old := range row.Live(now).Cells {
		tomb := cells.NewTombstone(old.Name, cells.DeletionTimeOf(now), ts)
		if err := s.applyCell(batch, im, partition, tomb, now); err != nil {
			return err
		}
	}
	return nil
}

func getCell(reader pebble.Reader, key []byte, name composite.Key) (cells.Cell, bool, error) {
	val, closer, err := reader.Get(key)
	if err == pebble.ErrNotFound {
		return cells.Cell{}, false, nil
	}
	if err != nil {
		return cells.Cell{}, false, err
	}
	defer closer.Close()
	c, err := cells.ParseCell(name, val)
	if err != nil {
		return c, false, errors.WithMessagef(lsindex_errors.ErrMalformedCell, "key %x", key)
	}
	return c, true, nil
}

// Get returns the live cells of one row, static cells included.
func (s *Store) Get(ctx context.Context, table string, partition []byte, clustering [][]byte) (*cells.Row, error) {
	im, err := s.manager(table)
	if err != nil {
		return nil, err
	}
	t := im.Table()
	prefix, err := t.RowPrefix(clustering)
	if err != nil {
		return nil, err
	}
	slices := []composite.Slice{composite.PrefixSlice(prefix)}
	if t.HasStaticColumns() {
		slices = append([]composite.Slice{t.StaticSlice()}, slices...)
	}
	row, err := s.ReadRow(ctx, t, partition, slices)
	if err != nil || row == nil {
		return nil, err
	}
	live := row.Live(time.Now())
	if live.IsEmpty() {
		return nil, nil
	}
	return live, nil
}
