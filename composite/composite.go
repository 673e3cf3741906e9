// Package composite implements the byte-comparable composite key format
// shared by base cell names and index entry names.
//
// A key is a sequence of components. Each component is written as its
// bytes with every 0x00 escaped as 0x00 0xFF, followed by the two byte
// terminator 0x00 EOC. The end-of-component byte is EOCExact for keys
// that name real cells; bounds use EOCStart and EOCEnd to sort right
// before or right after every key sharing the same components.
//
// Consequences relied upon by range scans:
//
//   - bytewise order of two keys equals component-wise order;
//   - a key sorts before every longer key it is a prefix of;
//   - k.WithStart() <= every key prefixed by k <= k.WithEnd().
package composite

import (
	"bytes"

	"github.com/drpcorg/lsindex/lsindex_errors"
)

const (
	escape    byte = 0x00
	escapedFF byte = 0xFF

	EOCStart byte = 0x00
	EOCExact byte = 0x01
	EOCEnd   byte = 0x02
)

// StaticMarker is the first component of static cell names, it sorts
// before any clustering value (even an empty one).
var StaticMarker = Key{escape, EOCStart}

// Key is an encoded composite. Methods never modify the receiver.
type Key []byte

func appendComponent(into []byte, comp []byte, eoc byte) []byte {
	for {
		i := bytes.IndexByte(comp, escape)
		if i < 0 {
			into = append(into, comp...)
			break
		}
		into = append(into, comp[:i+1]...)
		into = append(into, escapedFF)
		comp = comp[i+1:]
	}
	return append(into, escape, eoc)
}

// Encode builds an exact key out of the indexed value and the components
// that follow it.
func Encode(value []byte, rest ...[]byte) Key {
	var key Key
	key = appendComponent(key, value, EOCExact)
	for _, c := range rest {
		key = appendComponent(key, c, EOCExact)
	}
	return key
}

// Split decodes all the components of a key. Bound markers are accepted
// and dropped.
func Split(key Key) (comps [][]byte, err error) {
	rest := []byte(key)
	for len(rest) > 0 {
		var comp []byte
		comp, _, rest, err = takeComponent(rest)
		if err != nil {
			return nil, err
		}
		comps = append(comps, comp)
	}
	return
}

func takeComponent(data []byte) (comp []byte, eoc byte, rest []byte, err error) {
	for {
		i := bytes.IndexByte(data, escape)
		if i < 0 || i+1 >= len(data) {
			return nil, 0, nil, lsindex_errors.ErrMalformedKey
		}
		comp = append(comp, data[:i]...)
		switch data[i+1] {
		case escapedFF:
			comp = append(comp, escape)
			data = data[i+2:]
		case EOCStart, EOCExact, EOCEnd:
			if comp == nil {
				comp = []byte{}
			}
			return comp, data[i+1], data[i+2:], nil
		default:
			return nil, 0, nil, lsindex_errors.ErrMalformedKey
		}
	}
}

// Count returns the number of components, -1 for a malformed key.
func (k Key) Count() int {
	n := 0
	rest := []byte(k)
	for len(rest) > 0 {
		var err error
		_, _, rest, err = takeComponent(rest)
		if err != nil {
			return -1
		}
		n++
	}
	return n
}

func (k Key) withEOC(eoc byte) Key {
	if len(k) == 0 {
		return Key{}
	}
	ret := make(Key, len(k))
	copy(ret, k)
	ret[len(ret)-1] = eoc
	return ret
}

// WithStart returns the bound sorting right before k and every key k is a
// prefix of.
func (k Key) WithStart() Key {
	return k.withEOC(EOCStart)
}

// WithEnd returns the bound sorting right after k and every key k is a
// prefix of.
func (k Key) WithEnd() Key {
	return k.withEOC(EOCEnd)
}

// Append concatenates two keys into a new one.
func (k Key) Append(more Key) Key {
	ret := make(Key, 0, len(k)+len(more))
	ret = append(ret, k...)
	return append(ret, more...)
}

// HasPrefix reports whether k starts with the components of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	return bytes.HasPrefix(k, prefix)
}

func (k Key) Compare(other Key) int {
	return bytes.Compare(k, other)
}

func (k Key) Equal(other Key) bool {
	return bytes.Equal(k, other)
}

func (k Key) IsEmpty() bool {
	return len(k) == 0
}

// IsStatic tells static cell names apart from clustering rows.
func (k Key) IsStatic() bool {
	return bytes.HasPrefix(k, StaticMarker)
}

func (k Key) Clone() Key {
	if k == nil {
		return nil
	}
	ret := make(Key, len(k))
	copy(ret, k)
	return ret
}
