// Provides common lsindex errors definitions.
package lsindex_errors

import "errors"

var (
	ErrClosed        = errors.New("lsindex: store is not open")
	ErrMalformedKey  = errors.New("lsindex: malformed composite key")
	ErrMalformedCell = errors.New("lsindex: malformed cell")

	ErrTableUnknown    = errors.New("lsindex: unknown table")
	ErrTableExists     = errors.New("lsindex: table already exists")
	ErrColumnUnknown   = errors.New("lsindex: unknown column")
	ErrBadTable        = errors.New("lsindex: bad table definition")
	ErrBadValue        = errors.New("lsindex: bad value for the column type")
	ErrBadClustering   = errors.New("lsindex: clustering key does not match the table")
	ErrIndexNotAllowed = errors.New("lsindex: column can't carry an index")

	ErrUnsupportedOperation = errors.New("lsindex: operation not supported by the query options index")
	ErrNoIndex              = errors.New("lsindex: no index covers the clause")
	ErrNoIndexedExpression  = errors.New("lsindex: clause has no expression on an indexed column")
	ErrManyQueryOptions     = errors.New("lsindex: more than one query options expression")

	ErrUnknownQueryOption   = errors.New("lsindex: unknown query option")
	ErrMalformedQueryOption = errors.New("lsindex: malformed query option")
	ErrDuplicateQueryOption = errors.New("lsindex: duplicate query option")
	ErrBadQueryOptionValue  = errors.New("lsindex: bad query option value")
)
