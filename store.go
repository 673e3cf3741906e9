// Package lsindex is a wide-column store on pebble with local secondary
// indexes: every base partition keeps a private index partition per
// indexed column, maintained on the write path and repaired by searches.
package lsindex

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/lsindex/indexes"
	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/drpcorg/lsindex/schema"
	"github.com/drpcorg/lsindex/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

const lockStripes = 256

type Options struct {
	pebble.Options

	Logger             utils.Logger
	PebbleWriteOptions *pebble.WriteOptions
	// MaxPageSize caps the entries read from an index per page.
	MaxPageSize int
	// OptionsCacheSize is the number of parsed query option strings kept
	// per table.
	OptionsCacheSize int
	// RebuildBatchSize is the number of index writes committed at once
	// by RebuildIndex.
	RebuildBatchSize int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	if o.PebbleWriteOptions == nil {
		o.PebbleWriteOptions = pebble.NoSync
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = indexes.DefaultMaxPageSize
	}
	if o.OptionsCacheSize <= 0 {
		o.OptionsCacheSize = indexes.DefaultOptionsCacheSize
	}
	if o.RebuildBatchSize <= 0 {
		o.RebuildBatchSize = 1024
	}
	o.Merger = cellMerger
}

// Store owns one pebble database. It is safe for concurrent use.
type Store struct {
	db     *pebble.DB
	dir    string
	opts   Options
	log    utils.Logger
	closed atomic.Bool

	tables *xsync.MapOf[string, *indexes.IndexManager]
	// partition write locks, striped by key hash, for read-modify-write
	// of cells
	locks [lockStripes]sync.Mutex
}

// Open opens or creates the store in dir and loads the table definitions.
func Open(dir string, opts Options) (*Store, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &opts.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dir)
	}
	s := &Store{
		db:     db,
		dir:    dir,
		opts:   opts,
		log:    opts.Logger,
		tables: xsync.NewMapOf[string, *indexes.IndexManager](),
	}
	if err := s.loadTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info("store open", "dir", dir, "tables", s.tables.Size())
	return s, nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return lsindex_errors.ErrClosed
	}
	s.log.Info("store closed", "dir", s.dir)
	return s.db.Close()
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) check() error {
	if s.closed.Load() {
		return lsindex_errors.ErrClosed
	}
	return nil
}

func (s *Store) newManager(t *schema.Table) *indexes.IndexManager {
	return indexes.NewIndexManager(s, t, indexes.Config{
		MaxPageSize:      s.opts.MaxPageSize,
		OptionsCacheSize: s.opts.OptionsCacheSize,
	})
}

func (s *Store) register(t *schema.Table) {
	s.tables.Store(t.Name, s.newManager(t))
}

func (s *Store) loadTables() error {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{schemaSpace},
		UpperBound: []byte{schemaSpace + 1},
	})
	if err != nil {
		return err
	}
	defer it.Close()
	for valid := it.First(); valid; valid = it.Next() {
		t, err := schema.ParseTable(it.Value())
		if err != nil {
			return errors.WithMessagef(err, "table %s", it.Key()[1:])
		}
		s.register(t)
	}
	return it.Error()
}

// CreateTable validates and persists a table definition.
func (s *Store) CreateTable(ctx context.Context, t *schema.Table) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	data, err := t.Marshal()
	if err != nil {
		return err
	}
	im := s.newManager(t)
	if _, loaded := s.tables.LoadOrStore(t.Name, im); loaded {
		return errors.WithMessagef(lsindex_errors.ErrTableExists, "table %s", t.Name)
	}
	if err := s.db.Set(schemaKey(t.Name), data, s.opts.PebbleWriteOptions); err != nil {
		s.tables.Delete(t.Name)
		return errors.Wrapf(err, "save table %s", t.Name)
	}
	s.log.InfoCtx(ctx, "table created", "table", t.Name, "indexes", len(t.IndexedColumns()))
	return nil
}

func (s *Store) manager(name string) (*indexes.IndexManager, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	im, ok := s.tables.Load(name)
	if !ok {
		return nil, errors.WithMessagef(lsindex_errors.ErrTableUnknown, "table %s", name)
	}
	return im, nil
}

func (s *Store) Table(name string) (*schema.Table, error) {
	im, err := s.manager(name)
	if err != nil {
		return nil, err
	}
	return im.Table(), nil
}

// Tables lists the known tables by name.
func (s *Store) Tables() []*schema.Table {
	var ret []*schema.Table
	s.tables.Range(func(_ string, im *indexes.IndexManager) bool {
		ret = append(ret, im.Table())
		return true
	})
	slices.SortFunc(ret, func(a, b *schema.Table) int {
		if a.Name < b.Name {
			return -1
		} else if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return ret
}

func (s *Store) partitionLock(t *schema.Table, partition []byte) *sync.Mutex {
	return &s.locks[xxhash.Sum64(partitionKey(baseSpace, t.ID(), partition))%lockStripes]
}

func (s *Store) lockPartition(t *schema.Table, partition []byte) func() {
	lock := s.partitionLock(t, partition)
	lock.Lock()
	return lock.Unlock
}

// Collector exposes pebble internals to prometheus.
func (s *Store) Collector() prometheus.Collector {
	return NewPebbleCollector(s.db)
}

// RegisterMetrics registers the pebble collector and the package level
// metrics; the latter may already be there from another store.
func (s *Store) RegisterMetrics(reg prometheus.Registerer) error {
	collectors := append([]prometheus.Collector{s.Collector()}, indexes.Collectors()...)
	collectors = append(collectors, RebuildCount, RebuildResults, RebuildDuration)
	for _, c := range collectors {
		err := reg.Register(c)
		var already prometheus.AlreadyRegisteredError
		if err != nil && !errors.As(err, &already) {
			return err
		}
	}
	return nil
}
