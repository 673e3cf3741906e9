// Defines the storage Host interfaces consumed by the index core
package host

import (
	"context"

	"github.com/drpcorg/lsindex/cells"
	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/schema"
	"github.com/drpcorg/lsindex/utils"
)

// Writer accepts index cells. On the base write path it is the batch of
// the base mutation, for reclaims it writes straight to storage.
// Writing an older or equal version of a stored cell is a no-op.
type Writer interface {
	WriteIndex(index uint64, partition []byte, cell cells.Cell) error
}

type Host interface {
	Logger() utils.Logger
	// ReadIndex returns the stored cells of one index partition with
	// lower <= name <= upper (empty bounds are open), tombstones and
	// expired cells included, in name order or reversed, at most limit.
	ReadIndex(ctx context.Context, index uint64, partition []byte, lower, upper composite.Key, reversed bool, limit int) ([]cells.Cell, error)
	// ReadRow returns the stored base cells of a partition falling into
	// any of the slices, nil when there are none.
	ReadRow(ctx context.Context, table *schema.Table, partition []byte, slices []composite.Slice) (*cells.Row, error)
	IndexWriter() Writer
}
