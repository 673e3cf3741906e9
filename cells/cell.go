// Package cells defines the unit of storage: a named, timestamped value
// that may expire or be a tombstone, plus the row accumulator built out
// of cells.
package cells

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/drpcorg/lsindex/composite"
	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/learn-decentralized-systems/toytlv"
)

type Kind byte

const (
	Live      Kind = 'L'
	Expiring  Kind = 'X'
	Tombstone Kind = 'D'
)

// Cell timestamps are microseconds, deletion and expiration times are
// unix seconds.
type Cell struct {
	Name      composite.Key
	Value     []byte
	Timestamp int64
	// expiration time for Expiring, deletion time for Tombstone
	LocalDeletionTime int32
	TTL               int32
	Kind              Kind
}

func NewCell(name composite.Key, value []byte, ts int64) Cell {
	return Cell{Name: name, Value: value, Timestamp: ts, Kind: Live}
}

// NewExpiringCell expires ttl seconds after now. A zero ttl makes a
// plain live cell.
func NewExpiringCell(name composite.Key, value []byte, ts int64, ttl int32, now time.Time) Cell {
	if ttl <= 0 {
		return NewCell(name, value, ts)
	}
	return Cell{
		Name:              name,
		Value:             value,
		Timestamp:         ts,
		TTL:               ttl,
		LocalDeletionTime: int32(now.Unix()) + ttl,
		Kind:              Expiring,
	}
}

func NewTombstone(name composite.Key, localDeletionTime int32, ts int64) Cell {
	return Cell{Name: name, Timestamp: ts, LocalDeletionTime: localDeletionTime, Kind: Tombstone}
}

// TimestampOf converts wall clock time to a cell timestamp.
func TimestampOf(t time.Time) int64 {
	return t.UnixMicro()
}

// DeletionTimeOf converts wall clock time to a local deletion time.
func DeletionTimeOf(t time.Time) int32 {
	return int32(t.Unix())
}

func (c Cell) IsTombstone() bool {
	return c.Kind == Tombstone
}

// IsMarkedForDelete is true for tombstones and for expiring cells whose
// time has come.
func (c Cell) IsMarkedForDelete(now time.Time) bool {
	switch c.Kind {
	case Tombstone:
		return true
	case Expiring:
		return now.Unix() >= int64(c.LocalDeletionTime)
	default:
		return false
	}
}

func (c Cell) IsLive(now time.Time) bool {
	return !c.IsMarkedForDelete(now)
}

// Reconcile picks the winner of two versions of the same cell: the higher
// timestamp wins, on a tie a tombstone beats a value and a greater value
// beats a smaller one.
func (c Cell) Reconcile(other Cell) Cell {
	if c.Timestamp != other.Timestamp {
		if c.Timestamp > other.Timestamp {
			return c
		}
		return other
	}
	if c.IsTombstone() != other.IsTombstone() {
		if c.IsTombstone() {
			return c
		}
		return other
	}
	if bytes.Compare(c.Value, other.Value) < 0 {
		return other
	}
	return c
}

// Equal compares everything but the name.
func (c Cell) Equal(other Cell) bool {
	return c.Kind == other.Kind &&
		c.Timestamp == other.Timestamp &&
		c.LocalDeletionTime == other.LocalDeletionTime &&
		c.TTL == other.TTL &&
		bytes.Equal(c.Value, other.Value)
}

// Tlv is the stored form of a cell; the name lives in the key.
//
//	L: T(ts) V(value)
//	X: T(ts) E(expires, ttl) V(value)
//	D: T(ts) E(deleted)
func (c Cell) Tlv() []byte {
	ts := binary.BigEndian.AppendUint64(nil, uint64(c.Timestamp))
	var body [][]byte
	body = append(body, toytlv.Record('T', ts))
	switch c.Kind {
	case Expiring:
		ext := binary.BigEndian.AppendUint32(nil, uint32(c.LocalDeletionTime))
		ext = binary.BigEndian.AppendUint32(ext, uint32(c.TTL))
		body = append(body, toytlv.Record('E', ext), toytlv.Record('V', c.Value))
	case Tombstone:
		ext := binary.BigEndian.AppendUint32(nil, uint32(c.LocalDeletionTime))
		body = append(body, toytlv.Record('E', ext))
	default:
		body = append(body, toytlv.Record('V', c.Value))
	}
	return toytlv.Record(byte(c.Kind), toytlv.Concat(body...))
}

func ParseCell(name composite.Key, tlv []byte) (c Cell, err error) {
	if len(tlv) == 0 {
		return c, lsindex_errors.ErrMalformedCell
	}
	c.Name = name
	c.Kind = Kind(toytlv.Lit(tlv))
	if c.Kind != Live && c.Kind != Expiring && c.Kind != Tombstone {
		return c, lsindex_errors.ErrMalformedCell
	}
	body, _ := toytlv.Take(byte(c.Kind), tlv)
	tsb, rest := toytlv.Take('T', body)
	if len(tsb) != 8 {
		return c, lsindex_errors.ErrMalformedCell
	}
	c.Timestamp = int64(binary.BigEndian.Uint64(tsb))
	if c.Kind != Live {
		var ext []byte
		ext, rest = toytlv.Take('E', rest)
		if len(ext) < 4 {
			return c, lsindex_errors.ErrMalformedCell
		}
		c.LocalDeletionTime = int32(binary.BigEndian.Uint32(ext))
		if c.Kind == Expiring {
			if len(ext) != 8 {
				return c, lsindex_errors.ErrMalformedCell
			}
			c.TTL = int32(binary.BigEndian.Uint32(ext[4:]))
		}
	}
	if c.Kind != Tombstone {
		val, _ := toytlv.Take('V', rest)
		if val == nil {
			return c, lsindex_errors.ErrMalformedCell
		}
		c.Value = append([]byte{}, val...)
	}
	return c, nil
}

// MergeTlv reconciles stored versions of one cell, in any order.
func MergeTlv(inputs [][]byte) ([]byte, error) {
	var winner Cell
	var winnerTlv []byte
	for i, in := range inputs {
		c, err := ParseCell(nil, in)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			winner, winnerTlv = c, in
			continue
		}
		if !winner.Reconcile(c).Equal(winner) {
			winner, winnerTlv = c, in
		}
	}
	return winnerTlv, nil
}
