package graph

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// adjacency is one side of an edge table: target (or source) ids in link
// order plus a membership set.
type adjacency struct {
	order []int64
	set   map[int64]bool
}

func newAdjacency() *adjacency {
	return &adjacency{set: make(map[int64]bool)}
}

func (a *adjacency) has(id int64) bool {
	return a != nil && a.set[id]
}

func (a *adjacency) add(id int64) {
	a.order = append(a.order, id)
	a.set[id] = true
}

func (a *adjacency) remove(id int64) {
	if !a.set[id] {
		return
	}
	delete(a.set, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i:i], a.order[i+1:]...)
			return
		}
	}
}

func (a *adjacency) count() int {
	if a == nil {
		return 0
	}
	return len(a.order)
}

func (a *adjacency) snapshot() []int64 {
	if a == nil {
		return nil
	}
	out := make([]int64, len(a.order))
	copy(out, a.order)
	return out
}

// derivedState is the flat ordered membership of one rollup-derived edge.
type derivedState struct {
	order []int64
	set   map[int64]bool
}

// nodeRecord is the store-owned state of one node.
type nodeRecord struct {
	id      int64
	typ     *typeInfo
	props   map[string]Value
	out     map[string]*adjacency    // forward edge name -> targets
	in      map[string]*adjacency    // forward edge name -> sources
	derived map[string]*derivedState // rollup name -> membership
}

func (rec *nodeRecord) ensureOut(edge string) *adjacency {
	a := rec.out[edge]
	if a == nil {
		a = newAdjacency()
		rec.out[edge] = a
	}
	return a
}

func (rec *nodeRecord) ensureIn(edge string) *adjacency {
	a := rec.in[edge]
	if a == nil {
		a = newAdjacency()
		rec.in[edge] = a
	}
	return a
}

// WatchFunc receives property changes for a watched node.
type WatchFunc func(n *Node, prop string, newV, oldV Value)

// Graph is the reactive in-memory graph store.
//
// A Graph owns all node records, edge tables and indexes. Handles (Node,
// Signal, EdgeHandle) and Views hold ids, not pointers, and are cached by
// the store so any two accesses via the same (id, name) observe the same
// subscription target.
//
// A Graph is single-writer and performs no locking: all mutations and all
// callback deliveries run on one goroutine, and callbacks may re-enter the
// engine freely.
type Graph struct {
	cat *catalog
	log *zap.Logger

	nextID int64
	nodes  map[int64]*nodeRecord

	typeIndexes map[string][]*typeIndex // type name -> per indexDefs pos
	edgeIndexes map[string][]*edgeIndex // edgeInfo.key() -> per indexDefs pos

	handles     map[int64]*Node
	signals     map[propKey]*Signal
	edgeHandles map[propKey]*EdgeHandle

	propSubs   map[propKey]*subscribers[func(newV, oldV Value)]
	nodeSubs   map[int64]*subscribers[WatchFunc]
	linkSubs   map[propKey]*subscribers[func(other *Node)]
	unlinkSubs map[propKey]*subscribers[func(other *Node)]
	refSubs    map[propKey]*subscribers[func(newT, oldT *Node)]

	views   map[int64]*View
	viewSeq int64
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the structured logger used for the callback exception
// barrier and engine breadcrumbs. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Graph) { g.log = l }
}

// New validates the schema and builds an empty graph with every index and
// dependency table precomputed.
func New(schema *Schema, opts ...Option) (*Graph, error) {
	cat, err := newCatalog(schema)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		cat:         cat,
		log:         zap.NewNop(),
		nodes:       make(map[int64]*nodeRecord),
		typeIndexes: make(map[string][]*typeIndex),
		edgeIndexes: make(map[string][]*edgeIndex),
		handles:     make(map[int64]*Node),
		signals:     make(map[propKey]*Signal),
		edgeHandles: make(map[propKey]*EdgeHandle),
		propSubs:    make(map[propKey]*subscribers[func(newV, oldV Value)]),
		nodeSubs:    make(map[int64]*subscribers[WatchFunc]),
		linkSubs:    make(map[propKey]*subscribers[func(other *Node)]),
		unlinkSubs:  make(map[propKey]*subscribers[func(other *Node)]),
		refSubs:     make(map[propKey]*subscribers[func(newT, oldT *Node)]),
		views:       make(map[int64]*View),
	}
	for _, opt := range opts {
		opt(g)
	}

	for name, ti := range cat.types {
		idxs := make([]*typeIndex, len(ti.indexDefs))
		for pos, def := range ti.indexDefs {
			idxs[pos] = newTypeIndex(def)
		}
		g.typeIndexes[name] = idxs

		for _, e := range ti.edgeList {
			if e.isDerived {
				continue
			}
			eidxs := make([]*edgeIndex, len(e.indexDefs))
			for pos, def := range e.indexDefs {
				eidxs[pos] = newEdgeIndex(def)
			}
			g.edgeIndexes[e.key()] = eidxs
		}
	}

	g.log.Debug("graph created", zap.Int("types", len(cat.types)))
	return g, nil
}

// handle returns the cached node handle for id. Handles stay valid as ids:
// operations on a deleted node's handle return zero values.
func (g *Graph) handle(id int64) *Node {
	n := g.handles[id]
	if n == nil {
		n = &Node{g: g, id: id}
		g.handles[id] = n
	}
	return n
}

func (g *Graph) snapshotViews() []*View {
	if len(g.views) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(g.views))
	for id := range g.views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*View, len(ids))
	for i, id := range ids {
		out[i] = g.views[id]
	}
	return out
}

// Insert creates a node of the given type. Undeclared property names are
// ignored; rollup outputs are initialized to their empty-set values.
func (g *Graph) Insert(typName string, props Props) (*Node, error) {
	ti, ok := g.cat.types[typName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typName)
	}

	g.nextID++
	rec := &nodeRecord{
		id:      g.nextID,
		typ:     ti,
		props:   make(map[string]Value),
		out:     make(map[string]*adjacency),
		in:      make(map[string]*adjacency),
		derived: make(map[string]*derivedState),
	}
	for k, v := range props {
		if !ti.propSet[k] {
			g.log.Debug("insert: ignoring unknown property", zap.String("type", typName), zap.String("prop", k))
			continue
		}
		if _, isRollup := ti.rollups[k]; isRollup {
			continue // rollup outputs are engine-owned
		}
		if !v.IsNil() {
			rec.props[k] = v
		}
	}
	for _, r := range ti.rollupList {
		if r.def.Kind == RollupProperty {
			if ev := emptyRollupValue(r.def.Compute); !ev.IsNil() {
				rec.props[r.def.Name] = ev
			}
		} else {
			rec.derived[r.def.Name] = &derivedState{set: make(map[int64]bool)}
		}
	}

	g.nodes[rec.id] = rec
	for pos, def := range ti.indexDefs {
		g.typeIndexes[ti.name][pos].list.Insert(typeEntry{key: indexKey(def, rec.props), id: rec.id})
	}

	for _, v := range g.snapshotViews() {
		v.handleInsert(rec)
	}
	return g.handle(rec.id), nil
}

// Get returns the node handle for id, or nil if no such node exists.
func (g *Graph) Get(id int64) *Node {
	if g.nodes[id] == nil {
		return nil
	}
	return g.handle(id)
}

// Update applies a property patch. Keys absent from the patch are left
// untouched; a key set to NIL clears the property. Returns false when the
// id is unknown. Writes that equal the stored value are skipped and fire
// nothing.
func (g *Graph) Update(id int64, patch Props) bool {
	rec := g.nodes[id]
	if rec == nil {
		return false
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !rec.typ.propSet[k] {
			g.log.Debug("update: ignoring unknown property", zap.String("type", rec.typ.name), zap.String("prop", k))
			continue
		}
		if _, isRollup := rec.typ.rollups[k]; isRollup {
			g.log.Debug("update: ignoring rollup property", zap.String("type", rec.typ.name), zap.String("prop", k))
			continue
		}
		g.setProperty(rec, k, patch[k])
	}
	return true
}

// ClearProp sets a property to nil.
func (g *Graph) ClearProp(id int64, prop string) bool {
	return g.Update(id, Props{prop: NIL})
}

// setProperty runs the full property-change pipeline: storage, type
// indexes, edge-index re-keying, rollups, derived edges, views, user
// subscribers. Rollup writes re-enter it recursively within the same
// mutation.
func (g *Graph) setProperty(rec *nodeRecord, prop string, newV Value) {
	old := rec.props[prop]
	if old.Equal(newV) {
		return
	}

	// 1. primary storage
	if newV.IsNil() {
		delete(rec.props, prop)
	} else {
		rec.props[prop] = newV
	}

	// 2. type indexes reading this field
	for pos, def := range rec.typ.indexDefs {
		if !indexUsesField(def, prop) {
			continue
		}
		x := g.typeIndexes[rec.typ.name][pos]
		x.list.Remove(typeEntry{key: indexKeyWith(def, rec.props, prop, old), id: rec.id})
		x.list.Insert(typeEntry{key: indexKey(def, rec.props), id: rec.id})
	}

	// 2b. re-key every edge entry whose denormalized snapshot used this
	// field, for every parent currently linking this node.
	for _, ref := range g.cat.edgeFieldDeps[rec.typ.name][prop] {
		adj := rec.in[ref.edge.name]
		if adj.count() == 0 {
			continue
		}
		x := g.edgeIndexes[ref.edge.key()][ref.pos]
		oldKey := indexKeyWith(ref.def, rec.props, prop, old)
		newKey := indexKey(ref.def, rec.props)
		for _, parent := range adj.snapshot() {
			x.list.Remove(edgeEntry{parent: parent, key: oldKey, child: rec.id})
			x.list.Insert(edgeEntry{parent: parent, key: newKey, child: rec.id})
		}
	}

	// 3. rollups: property rollups first, then derived edges
	for _, r := range g.cat.rollupPropDeps[rec.typ.name][prop] {
		for _, oid := range g.ownersOf(rec, r.edge) {
			if orec := g.nodes[oid]; orec != nil {
				g.rollupTargetChanged(orec, r, rec, prop, old, newV)
			}
		}
	}
	for _, r := range g.cat.derivedPropDeps[rec.typ.name][prop] {
		for _, oid := range g.ownersOf(rec, r.edge) {
			if orec := g.nodes[oid]; orec != nil {
				g.recomputeDerived(orec, r)
			}
		}
	}

	// 4. views
	for _, v := range g.snapshotViews() {
		v.handlePropChange(rec, prop, newV, old)
	}

	// 5-6. user subscribers: per-property signals, then node watchers
	for _, fn := range g.propSubs[propKey{rec.id, prop}].snapshot() {
		fn := fn
		g.safely(func() { fn(newV, old) })
	}
	node := g.handle(rec.id)
	for _, fn := range g.nodeSubs[rec.id].snapshot() {
		fn := fn
		g.safely(func() { fn(node, prop, newV, old) })
	}
}

// ownersOf returns the ids of nodes owning target through the given base
// edge (the reverse walk the rollup engine depends on).
func (g *Graph) ownersOf(target *nodeRecord, e *edgeInfo) []int64 {
	if e.isReverse {
		return target.out[e.forward.name].snapshot()
	}
	return target.in[e.name].snapshot()
}

// Link creates the edge (src, edge, tgt). Linking through a declared
// reverse name links the symmetric forward edge. Returns false for unknown
// endpoints or edges, type mismatches, derived edges and double links; a
// false return fires nothing.
func (g *Graph) Link(src int64, edgeName string, tgt int64) bool {
	srcRec, e, tgtRec := g.resolveEndpoints(src, edgeName, tgt)
	if e == nil {
		return false
	}
	return g.linkForward(srcRec, e, tgtRec)
}

// Unlink removes the edge (src, edge, tgt). Same resolution rules as Link.
func (g *Graph) Unlink(src int64, edgeName string, tgt int64) bool {
	srcRec, e, tgtRec := g.resolveEndpoints(src, edgeName, tgt)
	if e == nil {
		return false
	}
	return g.unlinkForward(srcRec, e, tgtRec)
}

// resolveEndpoints maps (src, edge, tgt) onto the canonical forward
// direction, rejecting derived edges and type mismatches.
func (g *Graph) resolveEndpoints(src int64, edgeName string, tgt int64) (*nodeRecord, *edgeInfo, *nodeRecord) {
	srcRec := g.nodes[src]
	if srcRec == nil {
		return nil, nil, nil
	}
	e := srcRec.typ.edges[edgeName]
	if e == nil || e.isDerived {
		return nil, nil, nil
	}
	if e.isReverse {
		src, tgt = tgt, src
		srcRec = g.nodes[src]
		e = e.forward
		if srcRec == nil || srcRec.typ != e.owner {
			return nil, nil, nil
		}
	}
	tgtRec := g.nodes[tgt]
	if tgtRec == nil || tgtRec.typ != e.target {
		return nil, nil, nil
	}
	return srcRec, e, tgtRec
}

func (g *Graph) linkForward(src *nodeRecord, e *edgeInfo, tgt *nodeRecord) bool {
	out := src.ensureOut(e.name)
	if out.has(tgt.id) {
		return false
	}

	// 1. edge tables, both directions
	out.add(tgt.id)
	tgt.ensureIn(e.name).add(src.id)

	// 2. edge indexes, forward then reverse
	for pos, def := range e.indexDefs {
		g.edgeIndexes[e.key()][pos].list.Insert(edgeEntry{parent: src.id, key: indexKey(def, tgt.props), child: tgt.id})
	}
	if e.reverse != nil {
		for pos, def := range e.reverse.indexDefs {
			g.edgeIndexes[e.reverse.key()][pos].list.Insert(edgeEntry{parent: tgt.id, key: indexKey(def, src.props), child: src.id})
		}
	}

	// 3. rollups, then derived edges
	g.applyEdgeRollups(src, e, tgt, true)
	if e.reverse != nil {
		g.applyEdgeRollups(tgt, e.reverse, src, true)
	}

	// 4. views
	for _, v := range g.snapshotViews() {
		v.handleLink(src, e, tgt)
		if e.reverse != nil {
			v.handleLink(tgt, e.reverse, src)
		}
	}

	// 5. user edge subscribers, forward then reverse
	tNode := g.handle(tgt.id)
	for _, fn := range g.linkSubs[propKey{src.id, e.name}].snapshot() {
		fn := fn
		g.safely(func() { fn(tNode) })
	}
	if e.reverse != nil {
		sNode := g.handle(src.id)
		for _, fn := range g.linkSubs[propKey{tgt.id, e.reverse.name}].snapshot() {
			fn := fn
			g.safely(func() { fn(sNode) })
		}
	}
	return true
}

func (g *Graph) unlinkForward(src *nodeRecord, e *edgeInfo, tgt *nodeRecord) bool {
	out := src.out[e.name]
	if !out.has(tgt.id) {
		return false
	}

	out.remove(tgt.id)
	tgt.in[e.name].remove(src.id)

	for pos, def := range e.indexDefs {
		g.edgeIndexes[e.key()][pos].list.Remove(edgeEntry{parent: src.id, key: indexKey(def, tgt.props), child: tgt.id})
	}
	if e.reverse != nil {
		for pos, def := range e.reverse.indexDefs {
			g.edgeIndexes[e.reverse.key()][pos].list.Remove(edgeEntry{parent: tgt.id, key: indexKey(def, src.props), child: src.id})
		}
	}

	g.applyEdgeRollups(src, e, tgt, false)
	if e.reverse != nil {
		g.applyEdgeRollups(tgt, e.reverse, src, false)
	}

	for _, v := range g.snapshotViews() {
		v.handleUnlink(src, e, tgt)
		if e.reverse != nil {
			v.handleUnlink(tgt, e.reverse, src)
		}
	}

	tNode := g.handle(tgt.id)
	for _, fn := range g.unlinkSubs[propKey{src.id, e.name}].snapshot() {
		fn := fn
		g.safely(func() { fn(tNode) })
	}
	if e.reverse != nil {
		sNode := g.handle(src.id)
		for _, fn := range g.unlinkSubs[propKey{tgt.id, e.reverse.name}].snapshot() {
			fn := fn
			g.safely(func() { fn(sNode) })
		}
	}
	return true
}

// applyEdgeRollups runs the owner-side rollups for a link or unlink of
// edge: property rollups first, then derived-edge recomputation.
func (g *Graph) applyEdgeRollups(owner *nodeRecord, e *edgeInfo, target *nodeRecord, linked bool) {
	rollups := owner.typ.rollupsByEdge[e.name]
	for _, r := range rollups {
		if r.def.Kind != RollupProperty {
			continue
		}
		if linked {
			g.rollupOnLink(owner, r, target)
		} else {
			g.rollupOnUnlink(owner, r, target)
		}
	}
	for _, r := range rollups {
		if r.def.Kind == RollupProperty {
			continue
		}
		g.recomputeDerived(owner, r)
	}
}

// Delete removes a node: every non-derived edge touching it is unlinked
// (cascading rollup and derived-edge updates), then the node leaves its
// type indexes, views fire their leave hooks, and all handles, caches and
// subscriptions for the id are dropped.
func (g *Graph) Delete(id int64) bool {
	rec := g.nodes[id]
	if rec == nil {
		return false
	}

	for _, e := range rec.typ.realEdges() {
		for _, tid := range rec.out[e.name].snapshot() {
			if t := g.nodes[tid]; t != nil {
				g.unlinkForward(rec, e, t)
			}
		}
	}
	inNames := make([]string, 0, len(rec.in))
	for name := range rec.in {
		inNames = append(inNames, name)
	}
	sort.Strings(inNames)
	for _, name := range inNames {
		for _, sid := range rec.in[name].snapshot() {
			s := g.nodes[sid]
			if s == nil {
				continue
			}
			if e := s.typ.edges[name]; e != nil && !e.isReverse && !e.isDerived {
				g.unlinkForward(s, e, rec)
			}
		}
	}

	for pos, def := range rec.typ.indexDefs {
		g.typeIndexes[rec.typ.name][pos].list.Remove(typeEntry{key: indexKey(def, rec.props), id: rec.id})
	}

	for _, v := range g.snapshotViews() {
		v.handleDelete(rec)
	}

	g.purgeNode(id)
	delete(g.nodes, id)
	return true
}

// purgeNode drops handles, signals and subscription lists for a deleted
// id.
func (g *Graph) purgeNode(id int64) {
	delete(g.handles, id)
	delete(g.nodeSubs, id)
	for k := range g.signals {
		if k.id == id {
			delete(g.signals, k)
		}
	}
	for k := range g.edgeHandles {
		if k.id == id {
			delete(g.edgeHandles, k)
		}
	}
	for k := range g.propSubs {
		if k.id == id {
			delete(g.propSubs, k)
		}
	}
	for k := range g.linkSubs {
		if k.id == id {
			delete(g.linkSubs, k)
		}
	}
	for k := range g.unlinkSubs {
		if k.id == id {
			delete(g.unlinkSubs, k)
		}
	}
	for k := range g.refSubs {
		if k.id == id {
			delete(g.refSubs, k)
		}
	}
}

// Watch subscribes to every property change of a node. The unsubscribe
// function removes only this registration.
func (g *Graph) Watch(id int64, fn WatchFunc) func() {
	if g.nodes[id] == nil {
		return func() {}
	}
	s := g.nodeSubs[id]
	if s == nil {
		s = &subscribers[WatchFunc]{}
		g.nodeSubs[id] = s
	}
	return s.add(fn)
}

// edgeAdjOrder returns the raw stored membership of an edge, in link order
// for real edges and rollup order for derived edges.
func (g *Graph) edgeAdjOrder(rec *nodeRecord, e *edgeInfo) []int64 {
	switch {
	case e.isDerived:
		if d := rec.derived[e.rollup.def.Name]; d != nil {
			out := make([]int64, len(d.order))
			copy(out, d.order)
			return out
		}
		return nil
	case e.isReverse:
		return rec.in[e.forward.name].snapshot()
	default:
		return rec.out[e.name].snapshot()
	}
}

func (g *Graph) edgeHas(rec *nodeRecord, e *edgeInfo, other int64) bool {
	switch {
	case e.isDerived:
		d := rec.derived[e.rollup.def.Name]
		return d != nil && d.set[other]
	case e.isReverse:
		return rec.in[e.forward.name].has(other)
	default:
		return rec.out[e.name].has(other)
	}
}

func (g *Graph) edgeCount(rec *nodeRecord, e *edgeInfo) int {
	switch {
	case e.isDerived:
		if d := rec.derived[e.rollup.def.Name]; d != nil {
			return len(d.order)
		}
		return 0
	case e.isReverse:
		return rec.in[e.forward.name].count()
	default:
		return rec.out[e.name].count()
	}
}

// edgeChildren yields an edge's members in planned order. A nil spec means
// a derived edge: stored order with the filters applied linearly.
func (g *Graph) edgeChildren(rec *nodeRecord, e *edgeInfo, qs *querySpec, linearFilters []Filter) []int64 {
	if e.isDerived || qs == nil {
		var out []int64
		for _, id := range g.edgeAdjOrder(rec, e) {
			t := g.nodes[id]
			if t == nil {
				continue
			}
			if matchFilters(linearFilters, t.props) {
				out = append(out, id)
			}
		}
		return out
	}
	var out []int64
	g.edgeIndexes[e.key()][qs.pos].iterEdgeQuery(rec.id, qs, func(child int64) bool {
		out = append(out, child)
		return true
	})
	return out
}

func matchFilters(filters []Filter, props map[string]Value) bool {
	for _, f := range filters {
		if !f.Matches(props[f.Field]) {
			return false
		}
	}
	return true
}

func matchFiltersWith(filters []Filter, props map[string]Value, prop string, old Value) bool {
	for _, f := range filters {
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

func indexUsesField(def *IndexDef, field string) bool {
	for _, f := range def.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// planEdge plans a filtered/sorted read over an edge. Real and reverse
// edges must be covered by one of their indexes; derived edges iterate
// their stored rollup order, accept linear filters, and accept a sort only
// when it restates the rollup's own sort.
func (g *Graph) planEdge(e *edgeInfo, filters []Filter, srt *Sort) (*querySpec, []Filter, error) {
	if e.isDerived {
		if srt != nil {
			rs := e.rollup.def.Sort
			if rs == nil || rs.Field != srt.Field || rs.dir() != srt.dir() {
				return nil, nil, fmt.Errorf("%w: derived edge %q orders by its rollup", ErrNoCoveringIndex, e.name)
			}
		}
		return nil, filters, nil
	}
	qs := chooseSpec(e.indexDefs, filters, srt)
	if qs == nil {
		return nil, nil, fmt.Errorf("no index covers query %s: %w", formatFilters(filters), ErrNoCoveringIndex)
	}
	return qs, nil, nil
}

// Targets returns the targets of (id, edge) in default order: id order for
// real and reverse edges, rollup order for derived edges.
func (g *Graph) Targets(id int64, edge string) []*Node {
	rec := g.nodes[id]
	if rec == nil {
		return nil
	}
	e := rec.typ.edges[edge]
	if e == nil {
		return nil
	}
	ids := g.defaultOrder(rec, e)
	out := make([]*Node, 0, len(ids))
	for _, tid := range ids {
		out = append(out, g.handle(tid))
	}
	return out
}

// defaultOrder is id order via the implicit index for indexed edges, and
// stored order for derived ones.
func (g *Graph) defaultOrder(rec *nodeRecord, e *edgeInfo) []int64 {
	if e.isDerived {
		return g.edgeAdjOrder(rec, e)
	}
	qs, _, _ := g.planEdge(e, nil, nil)
	return g.edgeChildren(rec, e, qs, nil)
}

// Sources returns the nodes linking into (id) through the given forward
// edge, in link order.
func (g *Graph) Sources(id int64, edge string) []*Node {
	rec := g.nodes[id]
	if rec == nil {
		return nil
	}
	ids := rec.in[edge].snapshot()
	out := make([]*Node, 0, len(ids))
	for _, sid := range ids {
		out = append(out, g.handle(sid))
	}
	return out
}

// TargetsCount returns the stored membership count of (id, edge).
func (g *Graph) TargetsCount(id int64, edge string) int {
	rec := g.nodes[id]
	if rec == nil {
		return 0
	}
	e := rec.typ.edges[edge]
	if e == nil {
		return 0
	}
	return g.edgeCount(rec, e)
}

// HasEdge reports whether (src, edge, tgt) exists. For a declared reverse
// name this is symmetric with the forward direction.
func (g *Graph) HasEdge(src int64, edge string, tgt int64) bool {
	rec := g.nodes[src]
	if rec == nil {
		return false
	}
	e := rec.typ.edges[edge]
	if e == nil {
		return false
	}
	return g.edgeHas(rec, e, tgt)
}

// Stats is a point-in-time summary of the store, used by introspection
// tooling.
type Stats struct {
	Nodes        map[string]int // per type
	IndexEntries map[string]int // per "type/index" and "type.edge/index"
	Views        int
}

// Stats returns counts of nodes, index entries and live views.
func (g *Graph) Stats() Stats {
	st := Stats{
		Nodes:        make(map[string]int),
		IndexEntries: make(map[string]int),
		Views:        len(g.views),
	}
	for _, rec := range g.nodes {
		st.Nodes[rec.typ.name]++
	}
	for name, idxs := range g.typeIndexes {
		for _, x := range idxs {
			st.IndexEntries[name+"/"+x.def.Name] = x.list.Len()
		}
	}
	for key, idxs := range g.edgeIndexes {
		for _, x := range idxs {
			st.IndexEntries[key+"/"+x.def.Name] = x.list.Len()
		}
	}
	return st
}

// Catalog introspection used by the CLI.

// TypeSummary describes one resolved type for introspection output.
type TypeSummary struct {
	Name    string
	Indexes []string
	Edges   []string
	Rollups []string
}

// Dependencies renders the precomputed dependency tables: which edge
// indexes re-key and which rollups re-evaluate when a property changes.
func (g *Graph) Dependencies() []string {
	var out []string
	for _, typ := range g.cat.typeNamesSorted() {
		props := make([]string, 0)
		seen := make(map[string]bool)
		for p := range g.cat.edgeFieldDeps[typ] {
			if !seen[p] {
				seen[p] = true
				props = append(props, p)
			}
		}
		for p := range g.cat.rollupPropDeps[typ] {
			if !seen[p] {
				seen[p] = true
				props = append(props, p)
			}
		}
		for p := range g.cat.derivedPropDeps[typ] {
			if !seen[p] {
				seen[p] = true
				props = append(props, p)
			}
		}
		sort.Strings(props)
		for _, p := range props {
			for _, ref := range g.cat.edgeFieldDeps[typ][p] {
				out = append(out, fmt.Sprintf("%s.%s -> edge index %s/%s", typ, p, ref.edge.key(), ref.def.Name))
			}
			for _, r := range g.cat.rollupPropDeps[typ][p] {
				out = append(out, fmt.Sprintf("%s.%s -> rollup %s.%s", typ, p, r.owner.name, r.def.Name))
			}
			for _, r := range g.cat.derivedPropDeps[typ][p] {
				out = append(out, fmt.Sprintf("%s.%s -> derived edge %s.%s", typ, p, r.owner.name, r.def.Name))
			}
		}
	}
	return out
}

// Summary returns the resolved catalog in a printable form.
func (g *Graph) Summary() []TypeSummary {
	var out []TypeSummary
	for _, name := range g.cat.typeNamesSorted() {
		ti := g.cat.types[name]
		ts := TypeSummary{Name: name}
		for _, def := range ti.indexDefs {
			ts.Indexes = append(ts.Indexes, def.Name)
		}
		for _, e := range ti.edgeList {
			tag := e.name
			switch {
			case e.isDerived:
				tag += " (derived)"
			case e.isReverse:
				tag += " (reverse)"
			}
			ts.Edges = append(ts.Edges, tag)
		}
		for _, r := range ti.rollupList {
			ts.Rollups = append(ts.Rollups, fmt.Sprintf("%s (%s over %s)", r.def.Name, r.def.Kind, r.def.Edge))
		}
		out = append(out, ts)
	}
	return out
}
