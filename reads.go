package lsindex

import (
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/host"
	"github.com/drpcorg/lsindex/schema"
	"github.com/drpcorg/lsindex/utils"
	"github.com/pkg/errors"
)

var _ host.Host = (*Store)(nil)

func (s *Store) Logger() utils.Logger {
	return s.log
}

// scan reads the cells of one partition within [lower, upper].
func scan(reader pebble.Reader, prefix []byte, lower, upper composite.Key, reversed bool, limit int) ([]cells.Cell, error) {
	lo, hi := bounds(prefix, lower, upper)
	it, err := reader.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var ret []cells.Cell
	valid := it.First()
	if reversed {
		valid = it.Last()
	}
	for ; valid && (limit <= 0 || len(ret) < limit); valid = step(it, reversed) {
		name := composite.Key(it.Key()[len(prefix):]).Clone()
		c, err := cells.ParseCell(name, it.Value())
		if err != nil {
			return nil, errors.WithMessagef(err, "key %x", it.Key())
		}
		ret = append(ret, c)
	}
	return ret, it.Error()
}

func step(it *pebble.Iterator, reversed bool) bool {
	if reversed {
		return it.Prev()
	}
	return it.Next()
}

func (s *Store) ReadIndex(ctx context.Context, index uint64, partition []byte, lower, upper composite.Key, reversed bool, limit int) ([]cells.Cell, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return scan(s.db, partitionKey(indexSpace, index, partition), lower, upper, reversed, limit)
}

func (s *Store) ReadRow(ctx context.Context, t *schema.Table, partition []byte, slices []composite.Slice) (*cells.Row, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return readRow(s.db, t, partition, slices)
}

func readRow(reader pebble.Reader, t *schema.Table, partition []byte, slices []composite.Slice) (*cells.Row, error) {
	prefix := partitionKey(baseSpace, t.ID(), partition)
	row := cells.NewRow(partition)
	for _, sl := range slices {
		found, err := scan(reader, prefix, sl.Start, sl.Finish, false, 0)
		if err != nil {
			return nil, err
		}
		for _, c := range found {
			row.Add(c)
		}
	}
	if row.IsEmpty() {
		return nil, nil
	}
	return row, nil
}

// directWriter puts reclaims straight into the database.
type directWriter struct {
	s *Store
}

func (w directWriter) WriteIndex(index uint64, partition []byte, cell cells.Cell) error {
	if err := w.s.check(); err != nil {
		return err
	}
	return w.s.db.Merge(cellKey(indexSpace, index, partition, cell.Name), cell.Tlv(), w.s.opts.PebbleWriteOptions)
}

// batchWriter adds index writes to the batch of a base mutation.
type batchWriter struct {
	batch *pebble.Batch
}

func (w batchWriter) WriteIndex(index uint64, partition []byte, cell cells.Cell) error {
	return w.batch.Merge(cellKey(indexSpace, index, partition, cell.Name), cell.Tlv(), nil)
}

func (s *Store) IndexWriter() host.Writer {
	return directWriter{s}
}
