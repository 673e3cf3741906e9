package lsindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/indexes"
	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/drpcorg/lsindex/query"
	"github.com/drpcorg/lsindex/schema"
	"github.com/drpcorg/lsindex/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func openStore(t *testing.T, dir string) *Store {
	s, err := Open(dir, Options{
		Logger:      utils.NewDefaultLogger(slog.LevelError),
		MaxPageSize: 4,
	})
	require.NoError(t, err)
	return s
}

func eventsTable() *schema.Table {
	return &schema.Table{
		Name: "events",
		Columns: []schema.Column{
			{Name: "user", Type: schema.Text, Kind: schema.PartitionKey},
			{Name: "seq", Type: schema.BigInt, Kind: schema.Clustering},
			{Name: "color", Type: schema.Text, Kind: schema.Regular, Index: schema.LocalIndex},
			{Name: "size", Type: schema.BigInt, Kind: schema.Regular, Index: schema.LocalIndex},
			{Name: "note", Type: schema.Text, Kind: schema.Regular},
			{Name: "owner", Type: schema.Text, Kind: schema.Static},
			{Name: "opts", Type: schema.Text, Kind: schema.Regular, Index: schema.QueryOptionsIndex},
		},
	}
}

func newStore(t *testing.T) *Store {
	s := openStore(t, t.TempDir())
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.CreateTable(context.Background(), eventsTable()))
	return s
}

var clock atomic.Int64

// tick hands out strictly increasing write timestamps.
func tick() time.Time {
	clock.CompareAndSwap(0, time.Now().UnixMicro())
	return time.UnixMicro(clock.Add(1))
}

func ck(seq int64) [][]byte {
	return [][]byte{schema.Int(seq)}
}

func put(t *testing.T, s *Store, user string, seq int64, column string, value []byte) {
	m := &Mutation{Table: "events", Partition: []byte(user), Timestamp: tick()}
	require.NoError(t, s.Apply(context.Background(), m.Put(ck(seq), column, value)))
}

func colors(t *testing.T, s *Store, user string, rows map[int64]string) {
	for seq, color := range rows {
		put(t, s, user, seq, "color", []byte(color))
	}
}

func where(user string, exprs ...query.Expression) *query.Filter {
	return &query.Filter{Partition: []byte(user), Clause: exprs}
}

func eq(column string, value []byte) query.Expression {
	return query.Expression{Column: column, Op: query.EQ, Value: value}
}

func find(t *testing.T, s *Store, filter *query.Filter) *cells.Row {
	rows, err := s.Search(context.Background(), "events", filter)
	require.NoError(t, err)
	require.LessOrEqual(t, len(rows), 1)
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

// hits lists the clustering keys of the rows holding a color cell.
func hits(t *testing.T, row *cells.Row) (seqs []int64) {
	table := eventsTable()
	for _, c := range row.Cells {
		if c.Name.IsStatic() {
			continue
		}
		col, clustering, err := table.ParseCellName(c.Name)
		require.NoError(t, err)
		if col.Name == "color" {
			seqs = append(seqs, int64(binary.BigEndian.Uint64(clustering[0])^(1<<63)))
		}
	}
	return
}

func indexEntries(t *testing.T, s *Store, column, user string) []cells.Cell {
	found, err := s.ReadIndex(context.Background(), indexes.IndexID("events", column), []byte(user), nil, nil, false, 0)
	require.NoError(t, err)
	return found
}

func TestStore_Equality(t *testing.T) {
	s := newStore(t)
	colors(t, s, "alice", map[int64]string{1: "red", 2: "blue", 3: "red"})
	colors(t, s, "bob", map[int64]string{1: "red"})

	row := find(t, s, where("alice", eq("color", []byte("red"))))
	require.NotNil(t, row)
	assert.Equal(t, []int64{1, 3}, hits(t, row))

	row = find(t, s, where("bob", eq("color", []byte("red"))))
	require.NotNil(t, row)
	assert.Equal(t, []int64{1}, hits(t, row))

	assert.Nil(t, find(t, s, where("alice", eq("color", []byte("green")))))
}

func TestStore_RangeOnBigInt(t *testing.T) {
	s := newStore(t)
	for seq, size := range map[int64]int64{1: -5, 2: 0, 3: 7, 4: 100} {
		put(t, s, "alice", seq, "color", []byte("red"))
		put(t, s, "alice", seq, "size", schema.Int(size))
	}
	row := find(t, s, where("alice",
		query.Expression{Column: "size", Op: query.GTE, Value: schema.Int(0)},
		query.Expression{Column: "size", Op: query.LT, Value: schema.Int(100)},
	))
	require.NotNil(t, row)
	assert.Equal(t, []int64{2, 3}, hits(t, row))
}

func TestStore_UpdateMovesEntry(t *testing.T) {
	s := newStore(t)
	put(t, s, "alice", 1, "color", []byte("red"))
	put(t, s, "alice", 1, "color", []byte("blue"))

	assert.Nil(t, find(t, s, where("alice", eq("color", []byte("red")))))
	row := find(t, s, where("alice", eq("color", []byte("blue"))))
	require.NotNil(t, row)
	assert.Equal(t, []int64{1}, hits(t, row))

	entries := indexEntries(t, s, "color", "alice")
	require.Len(t, entries, 2)
	assert.False(t, entries[0].IsTombstone(), "blue")
	assert.True(t, entries[1].IsTombstone(), "red")
}

func TestStore_OlderWriteLoses(t *testing.T) {
	s := newStore(t)
	now := time.Now()
	m := &Mutation{Table: "events", Partition: []byte("alice"), Timestamp: now}
	require.NoError(t, s.Apply(context.Background(), m.Put(ck(1), "color", []byte("red"))))
	old := &Mutation{Table: "events", Partition: []byte("alice"), Timestamp: now.Add(-time.Second)}
	require.NoError(t, s.Apply(context.Background(), old.Put(ck(1), "color", []byte("blue"))))

	assert.Nil(t, find(t, s, where("alice", eq("color", []byte("blue")))))
	assert.NotNil(t, find(t, s, where("alice", eq("color", []byte("red")))))
	assert.Len(t, indexEntries(t, s, "color", "alice"), 1)
}

func TestStore_Deletes(t *testing.T) {
	s := newStore(t)
	colors(t, s, "alice", map[int64]string{1: "red", 2: "red", 3: "red"})
	put(t, s, "alice", 3, "note", []byte("keep me"))

	m := &Mutation{Table: "events", Partition: []byte("alice"), Timestamp: tick()}
	m.Delete(ck(1), "color").DeleteRow(ck(3))
	require.NoError(t, s.Apply(context.Background(), m))

	row := find(t, s, where("alice", eq("color", []byte("red"))))
	require.NotNil(t, row)
	assert.Equal(t, []int64{2}, hits(t, row))

	got, err := s.Get(context.Background(), "events", []byte("alice"), ck(3))
	assert.NoError(t, err)
	assert.Nil(t, got)

	for _, e := range indexEntries(t, s, "color", "alice") {
		assert.Equal(t, !composite.Encode([]byte("red"), schema.Int(2)).Equal(e.Name), e.IsTombstone())
	}
}

func TestStore_TTL(t *testing.T) {
	s := newStore(t)
	m := &Mutation{Table: "events", Partition: []byte("alice"), TTL: time.Minute}
	require.NoError(t, s.Apply(context.Background(), m.Put(ck(1), "color", []byte("red"))))

	assert.NotNil(t, find(t, s, where("alice", eq("color", []byte("red")))))

	later := where("alice", eq("color", []byte("red")))
	later.Timestamp = time.Now().Add(time.Hour)
	assert.Nil(t, find(t, s, later))

	entries := indexEntries(t, s, "color", "alice")
	require.Len(t, entries, 1)
	assert.Equal(t, cells.Expiring, entries[0].Kind)
	assert.Equal(t, int32(60), entries[0].TTL)
}

func TestStore_StaleEntryReclaim(t *testing.T) {
	s := newStore(t)
	table := eventsTable()
	colors(t, s, "alice", map[int64]string{1: "red", 2: "red"})

	// the base cell changes with no index maintenance
	name, err := table.CellName(ck(1), "color")
	require.NoError(t, err)
	blue := cells.NewCell(name, []byte("blue"), cells.TimestampOf(tick()))
	require.NoError(t, s.db.Merge(cellKey(baseSpace, table.ID(), []byte("alice"), name), blue.Tlv(), nil))

	row := find(t, s, where("alice", eq("color", []byte("red"))))
	require.NotNil(t, row)
	assert.Equal(t, []int64{2}, hits(t, row))

	entries := indexEntries(t, s, "color", "alice")
	require.Len(t, entries, 2)
	assert.True(t, entries[0].IsTombstone())

	// repeated reclaims change nothing
	ix := indexes.NewLocalIndex(table, *table.Column("color"), s.log)
	live := cells.NewCell(entries[0].Name, []byte{}, entries[0].Timestamp)
	require.NoError(t, ix.DeleteEntry(s.IndexWriter(), []byte("alice"), live, time.Now()))
	again := indexEntries(t, s, "color", "alice")
	assert.Equal(t, entries[0].Timestamp, again[0].Timestamp)
	assert.True(t, again[0].IsTombstone())

	// and never mask a newer entry
	put(t, s, "alice", 1, "color", []byte("red"))
	row = find(t, s, where("alice", eq("color", []byte("red"))))
	require.NotNil(t, row)
	assert.Equal(t, []int64{1, 2}, hits(t, row))
}

func TestStore_OrderAndLimits(t *testing.T) {
	s := newStore(t)
	rows := make(map[int64]string)
	for seq := int64(1); seq <= 20; seq++ {
		rows[seq] = "red"
	}
	colors(t, s, "alice", rows)

	all := find(t, s, where("alice", eq("color", []byte("red"))))
	require.NotNil(t, all)
	assert.Len(t, hits(t, all), 20)

	first := where("alice", eq("color", []byte("red")))
	first.RowLimit = 3
	row := find(t, s, first)
	require.NotNil(t, row)
	assert.Equal(t, []int64{1, 2, 3}, hits(t, row))

	last := where("alice", eq("opts", []byte("ORDER:DESC")), eq("color", []byte("red")))
	last.RowLimit = 3
	row = find(t, s, last)
	require.NotNil(t, row)
	assert.Equal(t, []int64{18, 19, 20}, hits(t, row))

	_, err := s.Search(context.Background(), "events",
		where("alice", eq("opts", []byte("ORDER:DESC;ORDER:DESC")), eq("color", []byte("red"))))
	assert.ErrorIs(t, err, lsindex_errors.ErrDuplicateQueryOption)
}

func TestStore_StaticCells(t *testing.T) {
	s := newStore(t)
	colors(t, s, "alice", map[int64]string{1: "red"})
	m := &Mutation{Table: "events", Partition: []byte("alice")}
	require.NoError(t, s.Apply(context.Background(), m.Put(nil, "owner", []byte("bob"))))

	row := find(t, s, where("alice", eq("color", []byte("red")), eq("owner", []byte("bob"))))
	require.NotNil(t, row)
	owner, ok := row.Get(schema.StaticCellName("owner"))
	assert.True(t, ok)
	assert.Equal(t, []byte("bob"), owner.Value)

	got, err := s.Get(context.Background(), "events", []byte("alice"), ck(1))
	assert.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Len())
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	require.NoError(t, s.CreateTable(context.Background(), eventsTable()))
	colors(t, s, "alice", map[int64]string{1: "red"})
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), lsindex_errors.ErrClosed)
	_, err := s.Search(context.Background(), "events", where("alice", eq("color", []byte("red"))))
	assert.ErrorIs(t, err, lsindex_errors.ErrClosed)

	s = openStore(t, dir)
	defer s.Close()
	tables := s.Tables()
	require.Len(t, tables, 1)
	assert.Equal(t, eventsTable(), tables[0])
	row := find(t, s, where("alice", eq("color", []byte("red"))))
	require.NotNil(t, row)
	assert.Equal(t, []int64{1}, hits(t, row))
}

func TestStore_Rebuild(t *testing.T) {
	s := newStore(t)
	colors(t, s, "alice", map[int64]string{1: "red", 2: "red"})
	colors(t, s, "bob", map[int64]string{1: "red"})
	put(t, s, "alice", 1, "size", schema.Int(3))

	// lose the color index, plant a stale entry
	color := spaceKey(indexSpace, indexes.IndexID("events", "color"))
	require.NoError(t, s.db.DeleteRange(color, successor(color), nil))
	ghost := cells.NewCell(composite.Encode([]byte("green"), schema.Int(2)), []byte{}, 1)
	require.NoError(t, s.IndexWriter().WriteIndex(indexes.IndexID("events", "color"), []byte("alice"), ghost))
	assert.Nil(t, find(t, s, where("alice", eq("color", []byte("red")))))

	stats, err := s.RebuildIndex(context.Background(), "events")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	byColumn := map[string]RebuildStats{}
	for _, st := range stats {
		byColumn[st.Column] = st
	}
	assert.Equal(t, 3, byColumn["color"].Inserted)
	assert.Equal(t, 1, byColumn["color"].Reclaimed)
	assert.Equal(t, 1, byColumn["size"].Inserted)

	row := find(t, s, where("alice", eq("color", []byte("red"))))
	require.NotNil(t, row)
	assert.Equal(t, []int64{1, 2}, hits(t, row))
	assert.Nil(t, find(t, s, where("alice", eq("color", []byte("green")))))

	_, err = s.RebuildIndex(context.Background(), "events", "note")
	assert.ErrorIs(t, err, lsindex_errors.ErrNoIndex)
}

func TestStore_TruncateIndex(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	colors(t, s, "alice", map[int64]string{1: "red", 2: "red"})
	put(t, s, "alice", 1, "size", schema.Int(3))
	require.NoError(t, s.db.Flush())
	size, err := s.IndexSize("events", "color")
	require.NoError(t, err)
	assert.Positive(t, size)

	require.NoError(t, s.TruncateIndex(ctx, "events", "color"))
	assert.Empty(t, indexEntries(t, s, "color", "alice"))
	assert.NotEmpty(t, indexEntries(t, s, "size", "alice"))
	assert.Nil(t, find(t, s, where("alice", eq("color", []byte("red")))))

	_, err = s.RebuildIndex(ctx, "events", "color")
	require.NoError(t, err)
	row := find(t, s, where("alice", eq("color", []byte("red"))))
	require.NotNil(t, row)
	assert.Equal(t, []int64{1, 2}, hits(t, row))

	require.NoError(t, s.TruncateIndex(ctx, "events"))
	assert.Empty(t, indexEntries(t, s, "color", "alice"))
	assert.Empty(t, indexEntries(t, s, "size", "alice"))

	assert.ErrorIs(t, s.TruncateIndex(ctx, "events", "note"), lsindex_errors.ErrNoIndex)
	_, err = s.IndexSize("nope", "color")
	assert.ErrorIs(t, err, lsindex_errors.ErrTableUnknown)
}

func TestStore_ConcurrentSearches(t *testing.T) {
	s := newStore(t)
	rows := make(map[int64]string)
	for seq := int64(1); seq <= 50; seq++ {
		rows[seq] = "red"
	}
	colors(t, s, "alice", rows)

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		for seq := int64(51); seq <= 100; seq++ {
			m := &Mutation{Table: "events", Partition: []byte("alice")}
			if err := s.Apply(ctx, m.Put(ck(seq), "color", []byte("red"))); err != nil {
				return err
			}
		}
		return nil
	})
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < 10; j++ {
				rows, err := s.Search(ctx, "events", where("alice", eq("color", []byte("red"))))
				if err != nil {
					return err
				}
				if len(rows) != 1 || len(hits(t, rows[0])) < 50 {
					return fmt.Errorf("search %d/%d saw %d rows", i, j, len(rows))
				}
			}
			return nil
		})
	}
	assert.NoError(t, g.Wait())
	row := find(t, s, where("alice", eq("color", []byte("red"))))
	require.NotNil(t, row)
	assert.Len(t, hits(t, row), 100)
}

func TestStore_ConcurrentCreateTable(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	ctx := context.Background()

	var created atomic.Int32
	var winner atomic.Pointer[schema.Table]
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			table := eventsTable()
			table.Columns[4].Name = fmt.Sprintf("note%d", i)
			err := s.CreateTable(ctx, table)
			if errors.Is(err, lsindex_errors.ErrTableExists) {
				return nil
			}
			if err == nil {
				created.Add(1)
				winner.Store(table)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), created.Load())
	want := winner.Load().Columns[4].Name

	require.NoError(t, s.Close())
	s = openStore(t, dir)
	defer s.Close()
	table, err := s.Table("events")
	require.NoError(t, err)
	assert.Equal(t, want, table.Columns[4].Name)
}

func TestStore_PartitionLocks(t *testing.T) {
	s := newStore(t)
	table, err := s.Table("events")
	require.NoError(t, err)

	assert.Same(t, s.partitionLock(table, []byte("alice")), s.partitionLock(table, []byte("alice")))
	distinct := make(map[*sync.Mutex]bool)
	for i := 0; i < 10000; i++ {
		lock := s.partitionLock(table, []byte(fmt.Sprintf("user%d", i)))
		distinct[lock] = true
	}
	assert.Greater(t, len(distinct), 1)
	assert.LessOrEqual(t, len(distinct), lockStripes)

	unlock := s.lockPartition(table, []byte("alice"))
	assert.False(t, s.partitionLock(table, []byte("alice")).TryLock())
	unlock()
}

func TestStore_Errors(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.CreateTable(ctx, eventsTable()), lsindex_errors.ErrTableExists)
	bad := eventsTable()
	bad.Name = "bad"
	bad.Columns[3].Kind = schema.Static
	assert.ErrorIs(t, s.CreateTable(ctx, bad), lsindex_errors.ErrIndexNotAllowed)

	_, err := s.Table("nope")
	assert.ErrorIs(t, err, lsindex_errors.ErrTableUnknown)
	_, err = s.Search(ctx, "nope", where("alice", eq("color", []byte("red"))))
	assert.ErrorIs(t, err, lsindex_errors.ErrTableUnknown)

	m := &Mutation{Table: "events", Partition: []byte("alice")}
	assert.ErrorIs(t, s.Apply(ctx, m.Put(ck(1), "size", []byte("seven"))), lsindex_errors.ErrBadValue)
	m = &Mutation{Table: "events", Partition: []byte("alice")}
	assert.ErrorIs(t, s.Apply(ctx, m.Put(ck(1), "nope", []byte("x"))), lsindex_errors.ErrColumnUnknown)
	m = &Mutation{Table: "events", Partition: []byte("alice")}
	assert.ErrorIs(t, s.Apply(ctx, m.Put(nil, "color", []byte("x"))), lsindex_errors.ErrBadClustering)

	_, err = s.Search(ctx, "events", where("alice", eq("note", []byte("x"))))
	assert.ErrorIs(t, err, lsindex_errors.ErrNoIndexedExpression)
}

func TestStore_Metrics(t *testing.T) {
	s := newStore(t)
	colors(t, s, "alice", map[int64]string{1: "red"})
	find(t, s, where("alice", eq("color", []byte("red"))))

	reg := prometheus.NewRegistry()
	assert.NoError(t, s.RegisterMetrics(reg))
	assert.NoError(t, s.RegisterMetrics(reg))
	families, err := reg.Gather()
	assert.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["lsindex_pebble_wal_files"])
	assert.True(t, names["lsindex_searcher_searches"])
}
