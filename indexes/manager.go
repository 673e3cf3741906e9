package indexes

import (
	"time"

	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/host"
	"github.com/drpcorg/lsindex/query"
	"github.com/drpcorg/lsindex/schema"
	"github.com/drpcorg/lsindex/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

const DefaultOptionsCacheSize = 1024

type Config struct {
	// MaxPageSize caps the entries read from an index per page.
	MaxPageSize int
	// OptionsCacheSize is the number of parsed query option strings kept.
	OptionsCacheSize int
}

// IndexManager owns the indexes of one table: it routes base writes to
// them and builds searchers over them.
type IndexManager struct {
	host    host.Host
	table   *schema.Table
	indexes *xsync.MapOf[string, *LocalIndex]
	options *lru.Cache[string, query.Options]
	maxPage int
	log     utils.Logger
}

func NewIndexManager(h host.Host, table *schema.Table, cfg Config) *IndexManager {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}
	if cfg.OptionsCacheSize <= 0 {
		cfg.OptionsCacheSize = DefaultOptionsCacheSize
	}
	cache, _ := lru.New[string, query.Options](cfg.OptionsCacheSize)
	im := &IndexManager{
		host:    h,
		table:   table,
		indexes: xsync.NewMapOf[string, *LocalIndex](),
		options: cache,
		maxPage: cfg.MaxPageSize,
		log:     h.Logger(),
	}
	for _, c := range table.IndexedColumns() {
		im.indexes.Store(c.Name, NewLocalIndex(table, c, im.log))
	}
	return im
}

func (im *IndexManager) Table() *schema.Table {
	return im.table
}

// Index returns the index of a column, nil if it has none.
func (im *IndexManager) Index(column string) *LocalIndex {
	ix, _ := im.indexes.Load(column)
	return ix
}

// Indexes lists the real indexes, the options pseudo-index excluded.
func (im *IndexManager) Indexes() (ret []*LocalIndex) {
	for _, c := range im.table.IndexedColumns() {
		if ix := im.Index(c.Name); ix != nil && !ix.IsQueryOptions() {
			ret = append(ret, ix)
		}
	}
	return
}

// IndexFor finds the index covering a base cell, nil when the cell is not
// indexed.
func (im *IndexManager) IndexFor(cell cells.Cell) *LocalIndex {
	col, _, err := im.table.ParseCellName(cell.Name)
	if err != nil || col.Kind != schema.Regular {
		return nil
	}
	ix := im.Index(col.Name)
	if ix == nil || ix.IsQueryOptions() || !ix.Indexes(cell.Name) {
		return nil
	}
	return ix
}

// OnInsert is called for a base cell written where no live version was.
func (im *IndexManager) OnInsert(w host.Writer, partition []byte, cell cells.Cell) error {
	if ix := im.IndexFor(cell); ix != nil {
		return ix.Insert(w, partition, cell)
	}
	return nil
}

// OnUpdate is called for a base cell superseding a live version.
func (im *IndexManager) OnUpdate(w host.Writer, partition []byte, old, cell cells.Cell, now time.Time) error {
	if ix := im.IndexFor(cell); ix != nil {
		return ix.Update(w, partition, old, cell, now)
	}
	return nil
}

// OnDelete is called for a live base cell being removed.
func (im *IndexManager) OnDelete(w host.Writer, partition []byte, old cells.Cell, now time.Time) error {
	if ix := im.IndexFor(old); ix != nil {
		return ix.Delete(w, partition, old, now)
	}
	return nil
}

// ParseOptions parses the value of an options expression. Valid strings
// are cached, errors are not.
func (im *IndexManager) ParseOptions(s string) (query.Options, error) {
	if opts, ok := im.options.Get(s); ok {
		return opts, nil
	}
	opts, err := query.ParseOptions(s)
	if err != nil {
		return opts, err
	}
	im.options.Add(s, opts)
	return opts, nil
}

func (im *IndexManager) Searcher() *Searcher {
	return &Searcher{im: im}
}
