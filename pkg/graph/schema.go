// Package graph schema descriptors.
//
// A Schema declares the closed property space, edges, indexes and rollups
// of every node type. Schemas are validated once at engine construction;
// there is no runtime schema evolution.
package graph

import "errors"

// Common errors returned by the engine.
var (
	ErrInvalidSchema    = errors.New("invalid schema")
	ErrUnknownType      = errors.New("unknown type")
	ErrUnknownEdge      = errors.New("unknown edge")
	ErrUnknownProperty  = errors.New("unknown property")
	ErrNotFound         = errors.New("not found")
	ErrReadOnlyEdge     = errors.New("derived edge is read-only")
	ErrReadOnlyProperty = errors.New("rollup property is read-only")
	ErrNoCoveringIndex  = errors.New("no covering index")
	ErrViewDestroyed    = errors.New("view destroyed")
)

// Direction orders an index field or sort expression.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Op is a filter operator. The zero value means OpEq.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

func (o Op) isRange() bool {
	return o == OpGt || o == OpGte || o == OpLt || o == OpLte
}

// Filter is a single predicate over a property field.
type Filter struct {
	Field string `yaml:"field"`
	Op    Op     `yaml:"op"`
	Value Value  `yaml:"value"`
}

// Matches evaluates the filter against a property value.
func (f Filter) Matches(v Value) bool {
	op := f.Op
	if op == "" {
		op = OpEq
	}
	if op == OpEq {
		return v.Equal(f.Value)
	}
	c := compareValues(v, f.Value)
	switch op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

// Sort is a sort expression over a property field.
type Sort struct {
	Field string    `yaml:"field"`
	Dir   Direction `yaml:"dir"`
}

func (s *Sort) dir() Direction {
	if s == nil || s.Dir == "" {
		return Asc
	}
	return s.Dir
}

// IndexField is one field of an index declaration.
type IndexField struct {
	Field string    `yaml:"field"`
	Dir   Direction `yaml:"dir"`
}

func (f IndexField) dir() Direction {
	if f.Dir == "" {
		return Asc
	}
	return f.Dir
}

// IndexDef declares an ordered index over a tuple of property fields.
// Entries are ordered by the field tuple in the declared directions, with
// the node (or edge child) id as the final tiebreaker.
type IndexDef struct {
	Name   string       `yaml:"name"`
	Fields []IndexField `yaml:"fields"`
}

// EdgeDef declares a typed edge. Target names another type in the schema.
// Reverse, when set, materializes an implicit reverse edge of that name on
// the target type. Indexes order the edge's children by denormalized
// snapshots of their property fields.
type EdgeDef struct {
	Name    string     `yaml:"name"`
	Target  string     `yaml:"target"`
	Reverse string     `yaml:"reverse"`
	Indexes []IndexDef `yaml:"indexes"`
}

// RollupKind selects the rollup flavor.
type RollupKind string

const (
	// RollupProperty stores a scalar aggregate as a pseudo-property on
	// the owner node.
	RollupProperty RollupKind = "property"
	// RollupReference materializes a derived edge with at most one
	// target: the first element of the sorted/filtered base iteration.
	RollupReference RollupKind = "reference"
	// RollupCollection materializes a derived edge holding every base
	// target that passes the rollup's filters.
	RollupCollection RollupKind = "collection"
)

// Compute is the aggregate function of a property rollup.
type Compute string

const (
	ComputeCount Compute = "count"
	ComputeSum   Compute = "sum"
	ComputeAvg   Compute = "avg"
	ComputeMin   Compute = "min"
	ComputeMax   Compute = "max"
	ComputeFirst Compute = "first"
	ComputeLast  Compute = "last"
	ComputeAny   Compute = "any"
	ComputeAll   Compute = "all"
)

// RollupDef declares a materialized rollup over a base edge.
//
// Property rollups need a Compute and, except for count, a Property naming
// the target field being aggregated. Reference and collection rollups may
// carry a Sort; all kinds may carry Filters. A rollup with filters or sort
// must be coverable by one of the base edge's indexes.
type RollupDef struct {
	Name     string     `yaml:"name"`
	Kind     RollupKind `yaml:"kind"`
	Edge     string     `yaml:"edge"`
	Compute  Compute    `yaml:"compute"`
	Property string     `yaml:"property"`
	Filters  []Filter   `yaml:"filters"`
	Sort     *Sort      `yaml:"sort"`
}

// PropertyDef declares a property name. The property space of a type is
// closed: Insert and Update skip undeclared names, and Signal.Set rejects
// them with ErrUnknownProperty.
type PropertyDef struct {
	Name string `yaml:"name"`
}

// TypeDef declares a node type.
type TypeDef struct {
	Name       string        `yaml:"name"`
	Properties []PropertyDef `yaml:"properties"`
	Edges      []EdgeDef     `yaml:"edges"`
	Indexes    []IndexDef    `yaml:"indexes"`
	Rollups    []RollupDef   `yaml:"rollups"`
}

// Schema is the full declaration handed to New.
type Schema struct {
	Types []TypeDef `yaml:"types"`
}
