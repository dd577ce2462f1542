package graph

import (
	"fmt"
	"sort"
)

// primaryIndexName names the implicit id-ordered index every type and
// every edge carries. It covers filterless, sortless queries and gives
// deterministic iteration order.
const primaryIndexName = "_id"

// typeInfo is the resolved, validated form of a TypeDef.
type typeInfo struct {
	name    string
	def     *TypeDef
	propSet map[string]bool // declared properties plus rollup outputs

	// indexDefs[0] is the implicit primary index.
	indexDefs []*IndexDef

	edges    map[string]*edgeInfo // real, reverse and derived, by name
	edgeList []*edgeInfo          // declared order: real, then reverse, then derived

	rollups       map[string]*rollupInfo
	rollupList    []*rollupInfo
	rollupsByEdge map[string][]*rollupInfo // base edge name -> rollups
}

// realEdges yields the forward, non-derived edges in declared order.
func (ti *typeInfo) realEdges() []*edgeInfo {
	out := make([]*edgeInfo, 0, len(ti.edgeList))
	for _, e := range ti.edgeList {
		if !e.isDerived && !e.isReverse {
			out = append(out, e)
		}
	}
	return out
}

// edgeInfo is the resolved form of an EdgeDef, a declared reverse edge or
// a rollup-derived edge.
type edgeInfo struct {
	owner       *typeInfo
	name        string
	target      *typeInfo
	reverseName string
	reverse     *edgeInfo // implicit reverse edge on the target type
	forward     *edgeInfo // for reverse edges, the declared counterpart
	isReverse   bool
	isDerived   bool
	rollup      *rollupInfo // for derived edges

	// indexDefs[0] is the implicit id index. Derived edges have none:
	// they iterate in stored rollup order.
	indexDefs []*IndexDef
}

func (e *edgeInfo) key() string { return e.owner.name + "." + e.name }

// rollupInfo is the resolved form of a RollupDef.
type rollupInfo struct {
	owner        *typeInfo
	def          *RollupDef
	edge         *edgeInfo  // base edge
	spec         *querySpec // covering base-edge plan for filters/sort
	derivedEdge  *edgeInfo  // for reference/collection kinds
	filterFields map[string]bool
}

func (r *rollupInfo) matches(props map[string]Value) bool {
	for _, f := range r.def.Filters {
		if !f.Matches(props[f.Field]) {
			return false
		}
	}
	return true
}

// matchesWith evaluates the filters with one property substituted, used to
// reconstruct pre-mutation membership.
func (r *rollupInfo) matchesWith(props map[string]Value, prop string, old Value) bool {
	for _, f := range r.def.Filters {
		v := props[f.Field]
		if f.Field == prop {
			v = old
		}
		if !f.Matches(v) {
			return false
		}
	}
	return true
}

type edgeIndexRef struct {
	edge *edgeInfo
	pos  int // position in edge.indexDefs
	def  *IndexDef
}

// catalog is the validated schema with every dependency table the mutation
// pipeline needs precomputed.
type catalog struct {
	types map[string]*typeInfo

	// edgeFieldDeps[targetType][prop] lists the edge indexes whose
	// denormalized snapshots must be re-keyed when prop changes on a
	// node of targetType.
	edgeFieldDeps map[string]map[string][]edgeIndexRef

	// rollupPropDeps[targetType][prop] lists the property rollups that
	// must re-evaluate when prop changes on a linked target.
	rollupPropDeps map[string]map[string][]*rollupInfo

	// derivedPropDeps is the mirror for reference/collection rollups.
	derivedPropDeps map[string]map[string][]*rollupInfo
}

func newCatalog(schema *Schema) (*catalog, error) {
	cat := &catalog{
		types:           make(map[string]*typeInfo),
		edgeFieldDeps:   make(map[string]map[string][]edgeIndexRef),
		rollupPropDeps:  make(map[string]map[string][]*rollupInfo),
		derivedPropDeps: make(map[string]map[string][]*rollupInfo),
	}

	// Pass 1: register types and their property spaces.
	for i := range schema.Types {
		td := &schema.Types[i]
		if td.Name == "" {
			return nil, fmt.Errorf("%w: type with empty name", ErrInvalidSchema)
		}
		if _, dup := cat.types[td.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate type %q", ErrInvalidSchema, td.Name)
		}
		ti := &typeInfo{
			name:          td.Name,
			def:           td,
			propSet:       make(map[string]bool),
			edges:         make(map[string]*edgeInfo),
			rollups:       make(map[string]*rollupInfo),
			rollupsByEdge: make(map[string][]*rollupInfo),
		}
		for _, p := range td.Properties {
			if p.Name == "" {
				return nil, fmt.Errorf("%w: type %q has a property with empty name", ErrInvalidSchema, td.Name)
			}
			if ti.propSet[p.Name] {
				return nil, fmt.Errorf("%w: type %q duplicates property %q", ErrInvalidSchema, td.Name, p.Name)
			}
			ti.propSet[p.Name] = true
		}
		ti.indexDefs = append(ti.indexDefs, &IndexDef{Name: primaryIndexName})
		for j := range td.Indexes {
			ti.indexDefs = append(ti.indexDefs, &td.Indexes[j])
		}
		cat.types[td.Name] = ti
	}

	// Pass 2: resolve edges.
	for _, td := range schemaTypesOrdered(schema) {
		ti := cat.types[td.Name]
		for j := range td.Edges {
			ed := &td.Edges[j]
			tgt, ok := cat.types[ed.Target]
			if !ok {
				return nil, fmt.Errorf("%w: edge %s.%s targets unknown type %q", ErrInvalidSchema, td.Name, ed.Name, ed.Target)
			}
			if err := checkNameFree(ti, ed.Name); err != nil {
				return nil, fmt.Errorf("%w (edge %s.%s)", err, td.Name, ed.Name)
			}
			e := &edgeInfo{
				owner:       ti,
				name:        ed.Name,
				target:      tgt,
				reverseName: ed.Reverse,
			}
			e.indexDefs = append(e.indexDefs, &IndexDef{Name: primaryIndexName})
			for k := range ed.Indexes {
				e.indexDefs = append(e.indexDefs, &ed.Indexes[k])
			}
			ti.edges[ed.Name] = e
			ti.edgeList = append(ti.edgeList, e)
		}
	}

	// Pass 3: materialize reverse edges on target types.
	for _, td := range schemaTypesOrdered(schema) {
		ti := cat.types[td.Name]
		for _, e := range ti.edgeList {
			if e.reverseName == "" {
				continue
			}
			if err := checkNameFree(e.target, e.reverseName); err != nil {
				return nil, fmt.Errorf("%w (reverse of %s.%s)", err, td.Name, e.name)
			}
			rev := &edgeInfo{
				owner:     e.target,
				name:      e.reverseName,
				target:    ti,
				isReverse: true,
				forward:   e,
				indexDefs: []*IndexDef{{Name: primaryIndexName}},
			}
			e.reverse = rev
			e.target.edges[rev.name] = rev
			e.target.edgeList = append(e.target.edgeList, rev)
		}
	}

	// Pass 4: resolve rollups, choose their covering indexes and
	// materialize derived edges.
	for _, td := range schemaTypesOrdered(schema) {
		ti := cat.types[td.Name]
		for j := range td.Rollups {
			rd := &td.Rollups[j]
			base, ok := ti.edges[rd.Edge]
			if !ok {
				return nil, fmt.Errorf("%w: rollup %s.%s over unknown edge %q", ErrInvalidSchema, td.Name, rd.Name, rd.Edge)
			}
			if base.isDerived {
				return nil, fmt.Errorf("%w: rollup %s.%s over derived edge %q", ErrInvalidSchema, td.Name, rd.Name, rd.Edge)
			}
			if err := checkNameFree(ti, rd.Name); err != nil {
				return nil, fmt.Errorf("%w (rollup %s.%s)", err, td.Name, rd.Name)
			}
			r := &rollupInfo{
				owner:        ti,
				def:          rd,
				edge:         base,
				filterFields: make(map[string]bool),
			}
			for _, f := range rd.Filters {
				r.filterFields[f.Field] = true
			}

			switch rd.Kind {
			case RollupProperty:
				if !validCompute(rd.Compute) {
					return nil, fmt.Errorf("%w: rollup %s.%s has unknown compute %q", ErrInvalidSchema, td.Name, rd.Name, rd.Compute)
				}
				if rd.Compute != ComputeCount && rd.Property == "" {
					return nil, fmt.Errorf("%w: rollup %s.%s compute %s needs a property", ErrInvalidSchema, td.Name, rd.Name, rd.Compute)
				}
				ti.propSet[rd.Name] = true
			case RollupReference, RollupCollection:
				de := &edgeInfo{
					owner:     ti,
					name:      rd.Name,
					target:    base.target,
					isDerived: true,
					rollup:    r,
				}
				r.derivedEdge = de
				ti.edges[rd.Name] = de
				ti.edgeList = append(ti.edgeList, de)
			default:
				return nil, fmt.Errorf("%w: rollup %s.%s has unknown kind %q", ErrInvalidSchema, td.Name, rd.Name, rd.Kind)
			}

			var srt *Sort
			if rd.Kind != RollupProperty {
				srt = rd.Sort
			}
			qs := chooseSpec(base.indexDefs, rd.Filters, srt)
			if qs == nil {
				return nil, fmt.Errorf("%w: rollup %s.%s: %v over edge %q",
					ErrInvalidSchema, td.Name, rd.Name, ErrNoCoveringIndex, rd.Edge)
			}
			r.spec = qs

			ti.rollups[rd.Name] = r
			ti.rollupList = append(ti.rollupList, r)
			ti.rollupsByEdge[rd.Edge] = append(ti.rollupsByEdge[rd.Edge], r)
		}
	}

	// Pass 5: validate type indexes against the (now complete) property
	// space and build the dependency tables.
	for _, ti := range cat.types {
		for _, idx := range ti.indexDefs[1:] {
			for _, f := range idx.Fields {
				if !ti.propSet[f.Field] {
					return nil, fmt.Errorf("%w: index %s.%s uses unknown field %q", ErrInvalidSchema, ti.name, idx.Name, f.Field)
				}
			}
		}
	}
	for _, ti := range cat.types {
		for _, e := range ti.edgeList {
			if e.isDerived || e.isReverse {
				continue
			}
			for pos, idx := range e.indexDefs {
				for _, f := range idx.Fields {
					if !e.target.propSet[f.Field] {
						return nil, fmt.Errorf("%w: edge index %s.%s.%s uses unknown target field %q",
							ErrInvalidSchema, ti.name, e.name, idx.Name, f.Field)
					}
					deps := cat.edgeFieldDeps[e.target.name]
					if deps == nil {
						deps = make(map[string][]edgeIndexRef)
						cat.edgeFieldDeps[e.target.name] = deps
					}
					deps[f.Field] = append(deps[f.Field], edgeIndexRef{edge: e, pos: pos, def: idx})
				}
			}
		}
		for _, r := range ti.rollupList {
			tgt := r.edge.target.name
			fields := make(map[string]bool, len(r.filterFields)+2)
			for f := range r.filterFields {
				fields[f] = true
			}
			if r.def.Kind == RollupProperty {
				if r.def.Property != "" {
					fields[r.def.Property] = true
				}
				for f := range fields {
					addDep(cat.rollupPropDeps, tgt, f, r)
				}
				continue
			}
			if r.def.Sort != nil {
				fields[r.def.Sort.Field] = true
			}
			for f := range fields {
				addDep(cat.derivedPropDeps, tgt, f, r)
			}
		}
	}

	return cat, nil
}

func addDep(m map[string]map[string][]*rollupInfo, typ, prop string, r *rollupInfo) {
	deps := m[typ]
	if deps == nil {
		deps = make(map[string][]*rollupInfo)
		m[typ] = deps
	}
	deps[prop] = append(deps[prop], r)
}

// checkNameFree guards the single namespace a type's properties, edges and
// rollups share.
func checkNameFree(ti *typeInfo, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name on type %q", ErrInvalidSchema, ti.name)
	}
	if ti.propSet[name] {
		return fmt.Errorf("%w: name %q collides with a property of %q", ErrInvalidSchema, name, ti.name)
	}
	if _, ok := ti.edges[name]; ok {
		return fmt.Errorf("%w: name %q collides with an edge of %q", ErrInvalidSchema, name, ti.name)
	}
	if _, ok := ti.rollups[name]; ok {
		return fmt.Errorf("%w: name %q collides with a rollup of %q", ErrInvalidSchema, name, ti.name)
	}
	return nil
}

func validCompute(c Compute) bool {
	switch c {
	case ComputeCount, ComputeSum, ComputeAvg, ComputeMin, ComputeMax,
		ComputeFirst, ComputeLast, ComputeAny, ComputeAll:
		return true
	}
	return false
}

func schemaTypesOrdered(schema *Schema) []*TypeDef {
	out := make([]*TypeDef, len(schema.Types))
	for i := range schema.Types {
		out[i] = &schema.Types[i]
	}
	return out
}

// typeNamesSorted is used by introspection output.
func (c *catalog) typeNamesSorted() []string {
	names := make([]string, 0, len(c.types))
	for n := range c.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
