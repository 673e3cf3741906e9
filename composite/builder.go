package composite

// Relation selects which side of a prefix a bound falls on.
type Relation byte

const (
	GT  Relation = '>'
	GTE Relation = 'g'
	LT  Relation = '<'
	LTE Relation = 'l'
)

// Builder accumulates components. It has value semantics: Add returns an
// extended copy and leaves the receiver untouched.
type Builder struct {
	comps [][]byte
}

func NewBuilder(comps ...[]byte) Builder {
	return Builder{}.Add(comps...)
}

func (b Builder) Add(comps ...[]byte) Builder {
	next := make([][]byte, 0, len(b.comps)+len(comps))
	next = append(next, b.comps...)
	for _, c := range comps {
		cp := make([]byte, len(c))
		copy(cp, c)
		next = append(next, cp)
	}
	return Builder{comps: next}
}

func (b Builder) Copy() Builder {
	return Builder{}.Add(b.comps...)
}

func (b Builder) Len() int {
	return len(b.comps)
}

// Component returns the i-th component, nil when out of range.
func (b Builder) Component(i int) []byte {
	if i < 0 || i >= len(b.comps) {
		return nil
	}
	return b.comps[i]
}

func (b Builder) Components() [][]byte {
	return b.Copy().comps
}

func (b Builder) build(eoc byte) Key {
	var key Key
	for i, c := range b.comps {
		e := EOCExact
		if i == len(b.comps)-1 {
			e = eoc
		}
		key = appendComponent(key, c, e)
	}
	return key
}

// Build returns the exact key; an empty builder gives an empty key.
func (b Builder) Build() Key {
	return b.build(EOCExact)
}

// BuildAsStartOfRange sorts before every key having these components.
func (b Builder) BuildAsStartOfRange() Key {
	return b.build(EOCStart)
}

// BuildAsEndOfRange sorts after every key having these components.
func (b Builder) BuildAsEndOfRange() Key {
	return b.build(EOCEnd)
}

// BuildForRelation makes the bound admitting exactly the keys in the
// given relation to the builder's components.
func (b Builder) BuildForRelation(rel Relation) Key {
	switch rel {
	case GT, LTE:
		return b.BuildAsEndOfRange()
	default:
		return b.BuildAsStartOfRange()
	}
}

// Slice is an inclusive key range; an empty side is unbounded.
type Slice struct {
	Start  Key
	Finish Key
}

// FullSlice covers everything.
var FullSlice = Slice{}

func (s Slice) Contains(key Key) bool {
	if len(s.Start) > 0 && key.Compare(s.Start) < 0 {
		return false
	}
	if len(s.Finish) > 0 && key.Compare(s.Finish) > 0 {
		return false
	}
	return true
}

func (s Slice) IsFull() bool {
	return len(s.Start) == 0 && len(s.Finish) == 0
}

// PrefixSlice covers every key starting with the builder's components.
func PrefixSlice(b Builder) Slice {
	return Slice{Start: b.BuildAsStartOfRange(), Finish: b.BuildAsEndOfRange()}
}
