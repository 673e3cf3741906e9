package schema

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/google/uuid"
)

// Type is the value type of a column. Every type has an order-preserving
// binary form, so comparing encoded values bytewise is comparing values.
type Type byte

const (
	Text      Type = 'S'
	BigInt    Type = 'I'
	UUID      Type = 'U'
	Blob      Type = 'B'
	Timestamp Type = 'T'
	Boolean   Type = 'O'
)

const signFlip uint64 = 1 << 63

var typeNames = map[Type]string{
	Text:      "text",
	BigInt:    "bigint",
	UUID:      "uuid",
	Blob:      "blob",
	Timestamp: "timestamp",
	Boolean:   "boolean",
}

func (t Type) String() string {
	name, ok := typeNames[t]
	if !ok {
		return fmt.Sprintf("type(%c)", t)
	}
	return name
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, lsindex_errors.ErrBadTable
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	for k, name := range typeNames {
		if name == strings.ToLower(string(text)) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("%w: type %q", lsindex_errors.ErrBadTable, text)
}

// Compare orders two encoded values.
func (t Type) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func (t Type) Validate(v []byte) error {
	ok := true
	switch t {
	case Text:
		ok = utf8.Valid(v)
	case BigInt, Timestamp:
		ok = len(v) == 8
	case UUID:
		ok = len(v) == 16
	case Boolean:
		ok = len(v) == 1 && v[0] <= 1
	}
	if !ok {
		return fmt.Errorf("%w: %s", lsindex_errors.ErrBadValue, t)
	}
	return nil
}

func encodeInt(i int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(i)^signFlip)
}

func decodeInt(v []byte) int64 {
	return int64(binary.BigEndian.Uint64(v) ^ signFlip)
}

func Int(i int64) []byte {
	return encodeInt(i)
}

func Time(t time.Time) []byte {
	return encodeInt(t.UnixMilli())
}

// Parse reads the textual form of a value.
func (t Type) Parse(s string) ([]byte, error) {
	switch t {
	case Text:
		return []byte(s), nil
	case BigInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", lsindex_errors.ErrBadValue, err)
		}
		return encodeInt(i), nil
	case Timestamp:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return encodeInt(i), nil
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", lsindex_errors.ErrBadValue, err)
		}
		return Time(ts), nil
	case UUID:
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", lsindex_errors.ErrBadValue, err)
		}
		return u[:], nil
	case Blob:
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", lsindex_errors.ErrBadValue, err)
		}
		return b, nil
	case Boolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", lsindex_errors.ErrBadValue, err)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}
	return nil, lsindex_errors.ErrBadValue
}

// Format is the inverse of Parse; bad values are shown as hex.
func (t Type) Format(v []byte) string {
	if t.Validate(v) != nil {
		return "0x" + hex.EncodeToString(v)
	}
	switch t {
	case Text:
		return string(v)
	case BigInt:
		return strconv.FormatInt(decodeInt(v), 10)
	case Timestamp:
		return time.UnixMilli(decodeInt(v)).UTC().Format(time.RFC3339Nano)
	case UUID:
		return uuid.UUID(v).String()
	case Boolean:
		return strconv.FormatBool(v[0] == 1)
	default:
		return "0x" + hex.EncodeToString(v)
	}
}
