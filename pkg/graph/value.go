// Package graph implements the LoomDB reactive in-memory graph store.
//
// The engine has three tightly coupled layers:
//   - a typed node/edge store with covering-index query planning,
//   - a rollup engine that keeps scalar aggregates, single-target
//     references and filtered collections in sync as edges and properties
//     mutate,
//   - a virtualized tree view that exposes paginated, expandable
//     projections with per-path change callbacks.
//
// A single property write fans out to type indexes, edge indexes, property
// rollups, derived edges, view expansion state and user subscriptions in a
// fixed order, so observers never see a partially updated invariant.
//
// Concurrency model: one logical writer. All mutations and all callback
// deliveries run on a single goroutine; callbacks may freely re-enter the
// engine and the nested mutation is processed to completion before control
// returns. The engine performs no locking of its own.
//
// Example Usage:
//
//	g, err := graph.New(schema)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	user, _ := g.Insert("User", graph.Props{"name": graph.String("Alice")})
//	post, _ := g.Insert("Post", graph.Props{"title": graph.String("hello")})
//	g.Link(user.ID(), "posts", post.ID())
//
//	count := user.Get("post_count") // maintained by the rollup engine
package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the scalar union stored in node properties.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString

	// internal sentinels used to build synthetic index-seek keys; they
	// compare below/above every real value and never appear in a node.
	kindMin Kind = 254
	kindMax Kind = 255
)

// Value is a tagged scalar: nil, bool, number (float64) or string.
//
// Values are immutable and compared by content. The zero Value is nil.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
}

// NIL is the patch sentinel: in an Update patch it means "set the property
// to nil", as opposed to leaving the key out of the patch entirely.
var NIL = Value{}

// Nil returns the nil value.
func Nil() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Int returns a numeric value from an int.
func Int(i int) Value { return Value{kind: KindNumber, num: float64(i)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

func minValue() Value { return Value{kind: kindMin} }
func maxValue() Value { return Value{kind: kindMax} }

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool { return v.kind == KindNil }

// AsBool returns the boolean content (false for non-bool values).
func (v Value) AsBool() bool { return v.kind == KindBool && v.b }

// AsNumber returns the numeric content (0 for non-number values).
func (v Value) AsNumber() float64 {
	if v.kind == KindNumber {
		return v.num
	}
	return 0
}

// AsString returns the string content ("" for non-string values).
func (v Value) AsString() string {
	if v.kind == KindString {
		return v.str
	}
	return ""
}

// Truthy reports whether the value counts as true for the any/all rollup
// computes: false for nil, false, 0 and "".
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.str != ""
	default:
		return false
	}
}

// Equal reports content equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	default:
		return true
	}
}

// String renders the value for error messages and logs.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	default:
		return "<sentinel>"
	}
}

// kindOrder positions kinds relative to each other so that the index order
// is total even across mixed-kind properties: bool < number < string.
func kindOrder(k Kind) int {
	switch k {
	case KindBool:
		return 1
	case KindNumber:
		return 2
	case KindString:
		return 3
	default:
		return 0
	}
}

// compareValues is the ascending base order over scalars. nil sorts after
// every non-nil value; the min/max sentinels sort below/above everything.
func compareValues(a, b Value) int {
	if a.kind == kindMin || b.kind == kindMax {
		if a.kind == b.kind {
			return 0
		}
		return -1
	}
	if a.kind == kindMax || b.kind == kindMin {
		if a.kind == b.kind {
			return 0
		}
		return 1
	}
	if a.kind == KindNil || b.kind == KindNil {
		switch {
		case a.kind == b.kind:
			return 0
		case a.kind == KindNil:
			return 1 // nil after non-nil ascending
		default:
			return -1
		}
	}
	if a.kind != b.kind {
		return kindOrder(a.kind) - kindOrder(b.kind)
	}
	switch a.kind {
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1 // false < true
		default:
			return 1
		}
	case KindNumber:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		default:
			return 0
		}
	default:
		return strings.Compare(a.str, b.str)
	}
}

// compareDirected compares under an index field direction. Descending
// inverts the base order, which also flips the nil rule to "nil first".
// Sentinels stay absolute so synthetic seek keys work in either direction.
func compareDirected(a, b Value, dir Direction) int {
	if a.kind >= kindMin || b.kind >= kindMin {
		return compareValues(a, b)
	}
	c := compareValues(a, b)
	if dir == Desc {
		return -c
	}
	return c
}

// Props is the property map passed to Insert and Update. In an Update patch
// a key that is absent is untouched, while a key set to NIL clears the
// property.
type Props map[string]Value

func formatFilters(filters []Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		op := f.Op
		if op == "" {
			op = OpEq
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", f.Field, op, f.Value))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
