package graph

import (
	"math"

	"github.com/orneryd/loomdb/pkg/skiplist"
)

// typeEntry is one row of a type index: the node's indexed field tuple at
// its current values, with the id as tiebreaker.
type typeEntry struct {
	key []Value
	id  int64
}

// edgeEntry is one row of an edge index: parent id, the denormalized
// snapshot of the child's indexed fields at link time, child id.
type edgeEntry struct {
	parent int64
	key    []Value
	child  int64
}

func compareKeys(a, b []Value, fields []IndexField) int {
	for i := range fields {
		if c := compareDirected(a[i], b[i], fields[i].dir()); c != 0 {
			return c
		}
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// typeIndex is a live ordered set over the nodes of one type.
type typeIndex struct {
	def  *IndexDef
	list *skiplist.List[typeEntry]
}

func newTypeIndex(def *IndexDef) *typeIndex {
	fields := def.Fields
	return &typeIndex{
		def: def,
		list: skiplist.New[typeEntry](func(a, b typeEntry) int {
			if c := compareKeys(a.key, b.key, fields); c != 0 {
				return c
			}
			return compareInt64(a.id, b.id)
		}),
	}
}

// edgeIndex is a live ordered set over one edge's (parent, snapshot, child)
// rows.
type edgeIndex struct {
	def  *IndexDef
	list *skiplist.List[edgeEntry]
}

func newEdgeIndex(def *IndexDef) *edgeIndex {
	fields := def.Fields
	return &edgeIndex{
		def: def,
		list: skiplist.New[edgeEntry](func(a, b edgeEntry) int {
			if c := compareInt64(a.parent, b.parent); c != 0 {
				return c
			}
			if c := compareKeys(a.key, b.key, fields); c != 0 {
				return c
			}
			return compareInt64(a.child, b.child)
		}),
	}
}

// indexKey builds the field tuple of def for the given properties.
func indexKey(def *IndexDef, props map[string]Value) []Value {
	key := make([]Value, len(def.Fields))
	for i, f := range def.Fields {
		key[i] = props[f.Field]
	}
	return key
}

// indexKeyWith builds the tuple with one property substituted, which is how
// stale entries are located after a write has already landed.
func indexKeyWith(def *IndexDef, props map[string]Value, prop string, old Value) []Value {
	key := make([]Value, len(def.Fields))
	for i, f := range def.Fields {
		if f.Field == prop {
			key[i] = old
		} else {
			key[i] = props[f.Field]
		}
	}
	return key
}

// querySpec is a planned query: the chosen index plus the precomputed seek
// and stop parameters.
type querySpec struct {
	def *IndexDef
	pos int // position of def within the candidate slice it was chosen from

	eqVals []Value // values for the leading equality fields

	hasRange bool
	rangeOp  Op
	rangeVal Value

	// startVal/startStrict bound the seek position; when the range op
	// bounds the far end instead, stopCheck is set.
	startVal    *Value
	startStrict bool
	stopCheck   bool
}

// planSpec tries to satisfy filters+sort with a single index, applying the
// covering rules: every equality filter maps onto a prefix of the index
// fields, at most one range filter sits on the next field, and a requested
// sort rides the range field (or the next field) in the declared direction.
func planSpec(def *IndexDef, filters []Filter, srt *Sort) (*querySpec, bool) {
	eqs := make(map[string]Value)
	var rng *Filter
	for i := range filters {
		f := filters[i]
		op := f.Op
		if op == "" {
			op = OpEq
		}
		if op == OpEq {
			if _, dup := eqs[f.Field]; dup {
				return nil, false
			}
			eqs[f.Field] = f.Value
		} else if op.isRange() {
			if rng != nil {
				return nil, false
			}
			rng = &filters[i]
		} else {
			return nil, false
		}
	}

	qs := &querySpec{def: def}
	i := 0
	for ; i < len(def.Fields); i++ {
		v, ok := eqs[def.Fields[i].Field]
		if !ok {
			break
		}
		qs.eqVals = append(qs.eqVals, v)
		delete(eqs, def.Fields[i].Field)
	}
	if len(eqs) != 0 {
		return nil, false
	}

	if rng != nil {
		if i >= len(def.Fields) || def.Fields[i].Field != rng.Field {
			return nil, false
		}
		qs.hasRange = true
		qs.rangeOp = rng.Op
		qs.rangeVal = rng.Value

		d := def.Fields[i].dir()
		startward := (d == Asc && (rng.Op == OpGt || rng.Op == OpGte)) ||
			(d == Desc && (rng.Op == OpLt || rng.Op == OpLte))
		if startward {
			v := rng.Value
			qs.startVal = &v
			qs.startStrict = rng.Op == OpGt || rng.Op == OpLt
		} else {
			qs.stopCheck = true
		}
	}

	if srt != nil {
		switch {
		case rng != nil:
			if srt.Field != rng.Field || srt.dir() != def.Fields[i].dir() {
				return nil, false
			}
		case i < len(def.Fields) && def.Fields[i].Field == srt.Field && srt.dir() == def.Fields[i].dir():
			// sort rides the next free field
		default:
			return nil, false
		}
	}

	return qs, true
}

// chooseSpec walks the candidates in declared order and returns the first
// covering plan.
func chooseSpec(defs []*IndexDef, filters []Filter, srt *Sort) *querySpec {
	for pos, def := range defs {
		if qs, ok := planSpec(def, filters, srt); ok {
			qs.pos = pos
			return qs
		}
	}
	return nil
}

func chooseIndexDef(defs []*IndexDef, filters []Filter, srt *Sort) *IndexDef {
	if qs := chooseSpec(defs, filters, srt); qs != nil {
		return qs.def
	}
	return nil
}

// startKey builds the synthetic seek tuple. Sentinel padding places the
// seek position before the first qualifying entry (or, for strict start
// bounds, after the run of equal-valued entries).
func (qs *querySpec) startKey() []Value {
	key := make([]Value, 0, len(qs.def.Fields))
	key = append(key, qs.eqVals...)
	pad := minValue()
	if qs.startVal != nil {
		key = append(key, *qs.startVal)
		if qs.startStrict {
			pad = maxValue()
		}
	}
	for len(key) < len(qs.def.Fields) {
		key = append(key, pad)
		pad = minValue()
	}
	return key
}

// accepts reports whether an entry key is still inside the query's run:
// the equality prefix is intact and the range stop bound not yet crossed.
// For strict start bounds it also skips the run of boundary-equal entries.
func (qs *querySpec) accepts(key []Value) bool {
	for i, v := range qs.eqVals {
		if !key[i].Equal(v) {
			return false
		}
	}
	if !qs.hasRange {
		return true
	}
	fv := key[len(qs.eqVals)]
	c := compareValues(fv, qs.rangeVal)
	switch qs.rangeOp {
	case OpLt:
		if qs.stopCheck {
			return c < 0
		}
		return c != 0 // desc start bound: skip the equal run, prefix ends the rest
	case OpLte:
		if qs.stopCheck {
			return c <= 0
		}
		return true
	case OpGt:
		if qs.stopCheck {
			return c > 0
		}
		return c != 0
	case OpGte:
		if qs.stopCheck {
			return c >= 0
		}
		return true
	}
	return true
}

// startID is the synthetic seek tiebreaker: strict start bounds park the
// cursor after the boundary run even when the range field is the last
// index field.
func (qs *querySpec) startID() int64 {
	if qs.startStrict {
		return math.MaxInt64
	}
	return math.MinInt64
}

// iterTypeQuery yields node ids matching the spec in index order.
func (x *typeIndex) iterTypeQuery(qs *querySpec, emit func(id int64) bool) {
	start := typeEntry{key: qs.startKey(), id: qs.startID()}
	it := x.list.IterFrom(x.list.RankLowerBound(start))
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !qs.accepts(e.key) {
			// Strict start bounds can park the cursor inside the
			// boundary run; everything past the prefix is done.
			if !qs.prefixIntact(e.key) {
				return
			}
			continue
		}
		if !emit(e.id) {
			return
		}
	}
}

// iterEdgeQuery yields child ids of parent matching the spec, in index
// order.
func (x *edgeIndex) iterEdgeQuery(parent int64, qs *querySpec, emit func(child int64) bool) {
	start := edgeEntry{parent: parent, key: qs.startKey(), child: qs.startID()}
	it := x.list.IterFrom(x.list.RankLowerBound(start))
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.parent != parent {
			return
		}
		if !qs.accepts(e.key) {
			if !qs.prefixIntact(e.key) {
				return
			}
			continue
		}
		if !emit(e.child) {
			return
		}
	}
}

func (qs *querySpec) prefixIntact(key []Value) bool {
	for i, v := range qs.eqVals {
		if !key[i].Equal(v) {
			return false
		}
	}
	if !qs.hasRange || !qs.stopCheck {
		return true
	}
	// A crossed stop bound ends the run for good.
	fv := key[len(qs.eqVals)]
	c := compareValues(fv, qs.rangeVal)
	switch qs.rangeOp {
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	}
	return true
}
