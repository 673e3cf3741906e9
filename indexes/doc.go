// Package indexes provides the local secondary index of lsindex tables.
//
// # Overview
//
// A LocalIndex covers one regular column of a table. For every base
// partition it keeps an index partition: a sorted projection holding one
// entry per (indexed value, clustering key) pair ever written. An entry
// is an empty-valued cell named
//
//	enc(value) enc(ck1) .. enc(ckN)
//
// in the composite format, so entries sort by value first and a value
// range is a contiguous range of names. The entry carries the timestamp
// and TTL of the base cell that produced it.
//
// # Maintenance
//
// IndexManager hooks the base write path:
//
//   - OnInsert writes the marker entry for a new cell.
//   - OnUpdate writes the new entry first, then tombstones the old one
//     unless old and new cells only differ by the TTL countdown. Inserting
//     first means a concurrent scan never misses both entries.
//   - OnDelete tombstones the entry of a deleted cell at the cell's own
//     timestamp.
//
// Entries are never rewritten in place. Writes go through host.Writer, so
// the host may commit them along with the base mutation.
//
// # Search
//
// Searcher resolves one indexed column per search. Expressions on the
// query options pseudo-column are parsed (see query.ParseOptions) and
// dropped from the clause first. The planner turns the remaining
// expressions on the indexed column into an ascending [Lower, Upper]
// range of entry names; a base-level clustering slice given by outer
// pagination extends non-strict bounds.
//
// The Scanner is an explicit state machine:
//
//	FETCHING --page read--> DRAINING --buffer empty, page full--> FETCHING
//	    |                       |
//	    +--empty page--> DONE <-+--limit reached / short page
//
// Every entry it drains is joined back to the live base row. Entries whose
// row is gone or holds another value are stale: they get tombstoned on the
// spot (reclaim) and skipped. The clause is re-checked against the live
// row, then the row is merged into the single result row.
//
// # Consistency
//
// Nothing here takes locks. Every hit is re-validated against the live
// row, and reclaims are tombstones at the entry's own timestamp, so a
// repeated reclaim is absorbed by the store and a newer re-insert is
// never masked.
//
// # Metrics
//
// Prometheus metrics report searches, pages, scanned and reclaimed
// entries, index writes and search durations.
package indexes
