package lsindex

import (
	"encoding/binary"

	"github.com/drpcorg/lsindex/composite"
)

// Key spaces, by the first byte of a pebble key:
//
//	S name                          -> table definition, JSON
//	D be64(table) enc(pk) cellname  -> base cell TLV
//	I be64(index) enc(pk) entryname -> index entry TLV
const (
	schemaSpace byte = 'S'
	baseSpace   byte = 'D'
	indexSpace  byte = 'I'
)

func schemaKey(name string) []byte {
	return append([]byte{schemaSpace}, name...)
}

func spaceKey(space byte, id uint64) []byte {
	var ret = [16]byte{space}
	return binary.BigEndian.AppendUint64(ret[:1], id)
}

func partitionKey(space byte, id uint64, partition []byte) []byte {
	return append(spaceKey(space, id), composite.Encode(partition)...)
}

func cellKey(space byte, id uint64, partition []byte, name composite.Key) []byte {
	return append(partitionKey(space, id, partition), name...)
}

// partitionOf recovers the partition key out of a full cell key.
func partitionOf(key []byte) (partition []byte, name composite.Key, ok bool) {
	if len(key) < 1+8 {
		return nil, nil, false
	}
	rest := composite.Key(key[1+8:])
	for i := 0; i+1 < len(rest); i++ {
		if rest[i] != 0 {
			continue
		}
		if rest[i+1] == 0xFF {
			i++
			continue
		}
		comps, err := composite.Split(rest[:i+2])
		if err != nil || len(comps) != 1 {
			return nil, nil, false
		}
		return comps[0], rest[i+2:], true
	}
	return nil, nil, false
}

// successor is the smallest key greater than every key prefixed by p.
func successor(p []byte) []byte {
	end := make([]byte, len(p))
	copy(end, p)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// bounds turns an inclusive name range inside a partition into pebble's
// [lower, upper) key bounds. Empty names leave a side open.
func bounds(prefix []byte, lower, upper composite.Key) (lo, hi []byte) {
	lo = append(append([]byte{}, prefix...), lower...)
	if upper.IsEmpty() {
		return lo, successor(prefix)
	}
	hi = append(append([]byte{}, prefix...), upper...)
	// every key > upper that extends it sorts at or after upper 0x00
	return lo, append(hi, 0)
}
