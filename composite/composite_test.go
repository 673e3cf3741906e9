package composite

import (
	"bytes"
	"slices"
	"testing"

	"github.com/drpcorg/lsindex/lsindex_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compareComponents(a, b [][]byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := bytes.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func TestEncode_OrderMatchesComponents(t *testing.T) {
	keys := [][][]byte{
		{{}},
		{{}, {}},
		{{0}},
		{{0}, {1}},
		{{0, 0}},
		{{0, 0xFF}},
		{{0, 1}},
		{{1}},
		{{1}, {}},
		{{1}, {0}},
		{{1, 0}},
		{{0xFF}},
		{{0xFF, 0}},
		{[]byte("red")},
		{[]byte("red"), []byte("1")},
		{[]byte("redd")},
	}
	for _, a := range keys {
		for _, b := range keys {
			ka := Encode(a[0], a[1:]...)
			kb := Encode(b[0], b[1:]...)
			want := compareComponents(a, b)
			got := ka.Compare(kb)
			assert.Equal(t, sign(want), sign(got), "%x vs %x", a, b)
		}
	}
}

func sign(i int) int {
	switch {
	case i < 0:
		return -1
	case i > 0:
		return 1
	}
	return 0
}

func TestSplit(t *testing.T) {
	comps := [][]byte{{0, 0xFF, 0}, {}, []byte("x")}
	key := Encode(comps[0], comps[1:]...)
	got, err := Split(key)
	require.NoError(t, err)
	assert.Equal(t, comps, got)
	assert.Equal(t, 3, key.Count())

	got, err = Split(NewBuilder([]byte("a")).BuildAsEndOfRange())
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a")}, got)

	_, err = Split(Key{'a', 0})
	assert.ErrorIs(t, err, lsindex_errors.ErrMalformedKey)
	_, err = Split(Key{'a', 0, 7})
	assert.ErrorIs(t, err, lsindex_errors.ErrMalformedKey)
	assert.Equal(t, -1, Key("abc").Count())
}

func TestBounds(t *testing.T) {
	red := NewBuilder([]byte("red"))
	inside := []Key{
		red.Build(),
		red.Add([]byte{}).Build(),
		red.Add([]byte{0}).Build(),
		red.Add([]byte{0xFF, 0xFF}).Build(),
	}
	outside := []Key{
		Encode([]byte("re")),
		Encode([]byte("redd")),
		Encode([]byte("red\x00")),
		Encode([]byte("rec"), []byte("z")),
	}
	s := PrefixSlice(red)
	for _, k := range inside {
		assert.True(t, s.Contains(k), "%x", []byte(k))
		assert.True(t, k.Compare(red.Build().WithStart()) >= 0)
		assert.True(t, k.Compare(red.Build().WithEnd()) <= 0)
	}
	for _, k := range outside {
		assert.False(t, s.Contains(k), "%x", []byte(k))
	}

	assert.Equal(t, red.BuildAsEndOfRange(), red.BuildForRelation(GT))
	assert.Equal(t, red.BuildAsEndOfRange(), red.BuildForRelation(LTE))
	assert.Equal(t, red.BuildAsStartOfRange(), red.BuildForRelation(GTE))
	assert.Equal(t, red.BuildAsStartOfRange(), red.BuildForRelation(LT))

	assert.True(t, FullSlice.IsFull())
	assert.True(t, FullSlice.Contains(Key{}))
	assert.Empty(t, Key{}.WithEnd())
}

func TestStaticMarker(t *testing.T) {
	static := StaticMarker.Append(Encode([]byte("owner")))
	assert.True(t, static.IsStatic())
	rows := []Key{
		Encode([]byte{}, []byte("color")),
		Encode([]byte{0}, []byte("color")),
		Encode([]byte("a"), []byte("color")),
	}
	for _, r := range rows {
		assert.False(t, r.IsStatic())
		assert.Negative(t, static.Compare(r))
	}
}

func TestBuilder_ValueSemantics(t *testing.T) {
	b := NewBuilder([]byte("a"))
	c := b.Add([]byte("b"))
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 2, c.Len())
	assert.Nil(t, c.Component(2))

	src := []byte("x")
	d := NewBuilder(src)
	src[0] = 'y'
	assert.Equal(t, []byte("x"), d.Component(0))

	comps := d.Components()
	comps[0][0] = 'z'
	assert.Equal(t, []byte("x"), d.Component(0))

	keys := []Key{c.Build(), b.Build(), b.BuildAsEndOfRange(), b.BuildAsStartOfRange()}
	slices.SortFunc(keys, Key.Compare)
	assert.Equal(t, []Key{b.BuildAsStartOfRange(), b.Build(), c.Build(), b.BuildAsEndOfRange()}, keys)
}
