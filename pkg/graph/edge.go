package graph

import "fmt"

// FilterOpts narrows an EdgeHandle to a filtered, sorted projection.
type FilterOpts struct {
	Filters []Filter
	Sort    *Sort
}

// EdgeHandle is a reactive handle on one node's edge: real, reverse or
// rollup-derived. Unfiltered handles are cached by the store per
// (id, edge), so subscriptions registered via any access fire for
// mutations through any access. Filtered handles obtained with Filter
// share the same underlying subscription lists.
type EdgeHandle struct {
	g    *Graph
	id   int64
	name string

	filtered      bool
	spec          *querySpec
	linearFilters []Filter
	allFilters    []Filter
}

func (g *Graph) edgeHandle(id int64, name string) *EdgeHandle {
	k := propKey{id, name}
	h := g.edgeHandles[k]
	if h == nil {
		h = &EdgeHandle{g: g, id: id, name: name}
		g.edgeHandles[k] = h
	}
	return h
}

func (h *EdgeHandle) info() (*nodeRecord, *edgeInfo) {
	rec := h.g.nodes[h.id]
	if rec == nil {
		return nil, nil
	}
	return rec, rec.typ.edges[h.name]
}

// Filter returns a new handle restricted to targets matching opts. On real
// and reverse edges the filters and sort must be covered by one of the
// edge's indexes; derived edges apply the filters linearly over their
// stored order and accept only a sort that restates their rollup's sort.
func (h *EdgeHandle) Filter(opts FilterOpts) (*EdgeHandle, error) {
	_, e := h.info()
	if e == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEdge, h.name)
	}
	qs, linear, err := h.g.planEdge(e, opts.Filters, opts.Sort)
	if err != nil {
		return nil, err
	}
	return &EdgeHandle{
		g:             h.g,
		id:            h.id,
		name:          h.name,
		filtered:      true,
		spec:          qs,
		linearFilters: linear,
		allFilters:    opts.Filters,
	}, nil
}

// members yields the handle's current target ids in iteration order.
func (h *EdgeHandle) members() []int64 {
	rec, e := h.info()
	if e == nil {
		return nil
	}
	if h.filtered {
		return h.g.edgeChildren(rec, e, h.spec, h.linearFilters)
	}
	return h.g.defaultOrder(rec, e)
}

// matches reports whether a node passes the handle's filters (always true
// for unfiltered handles).
func (h *EdgeHandle) matches(rec *nodeRecord) bool {
	if !h.filtered {
		return true
	}
	return matchFilters(h.allFilters, rec.props)
}

// Targets returns the current targets in iteration order.
func (h *EdgeHandle) Targets() []*Node {
	ids := h.members()
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.g.handle(id))
	}
	return out
}

// Iter returns a stateful iterator over the handle's targets. The member
// list is captured up front, so callbacks that relink the edge during
// iteration do not disturb it.
func (h *EdgeHandle) Iter() *EdgeIterator {
	return &EdgeIterator{g: h.g, ids: h.members()}
}

// Count returns the stored membership count for unfiltered handles and a
// linear count for filtered ones.
func (h *EdgeHandle) Count() int {
	rec, e := h.info()
	if e == nil {
		return 0
	}
	if !h.filtered {
		return h.g.edgeCount(rec, e)
	}
	return len(h.members())
}

// Link creates the edge to tgt. Fails for derived edges.
func (h *EdgeHandle) Link(tgt int64) (bool, error) {
	_, e := h.info()
	if e == nil {
		return false, fmt.Errorf("%w: %q", ErrUnknownEdge, h.name)
	}
	if e.isDerived {
		return false, fmt.Errorf("%w: %q", ErrReadOnlyEdge, h.name)
	}
	return h.g.Link(h.id, h.name, tgt), nil
}

// Unlink removes the edge to tgt. Fails for derived edges.
func (h *EdgeHandle) Unlink(tgt int64) (bool, error) {
	_, e := h.info()
	if e == nil {
		return false, fmt.Errorf("%w: %q", ErrUnknownEdge, h.name)
	}
	if e.isDerived {
		return false, fmt.Errorf("%w: %q", ErrReadOnlyEdge, h.name)
	}
	return h.g.Unlink(h.id, h.name, tgt), nil
}

// OnLink subscribes to future links on this edge; the callback receives
// the other endpoint. For filtered handles only matching targets are
// delivered.
func (h *EdgeHandle) OnLink(fn func(other *Node)) func() {
	return h.subscribe(h.g.linkSubs, fn)
}

// OnUnlink subscribes to future unlinks on this edge.
func (h *EdgeHandle) OnUnlink(fn func(other *Node)) func() {
	return h.subscribe(h.g.unlinkSubs, fn)
}

func (h *EdgeHandle) subscribe(m map[propKey]*subscribers[func(other *Node)], fn func(other *Node)) func() {
	k := propKey{h.id, h.name}
	subs := m[k]
	if subs == nil {
		subs = &subscribers[func(other *Node)]{}
		m[k] = subs
	}
	if !h.filtered {
		return subs.add(fn)
	}
	return subs.add(func(other *Node) {
		if rec := h.g.nodes[other.id]; rec != nil && h.matches(rec) {
			fn(other)
		}
	})
}

// Each runs effect for every currently matching target and for every
// future match, maintaining a per-target cleanup that runs on unlink. The
// returned unsubscribe tears everything down and runs the outstanding
// cleanups.
func (h *EdgeHandle) Each(effect func(t *Node) func()) func() {
	cleanups := make(map[int64]func())

	enter := func(t *Node) {
		if _, dup := cleanups[t.id]; dup {
			return
		}
		h.g.safely(func() {
			if c := effect(t); c != nil {
				cleanups[t.id] = c
			} else {
				cleanups[t.id] = func() {}
			}
		})
	}
	leave := func(t *Node) {
		if c, ok := cleanups[t.id]; ok {
			delete(cleanups, t.id)
			h.g.safely(c)
		}
	}

	for _, t := range h.Targets() {
		enter(t)
	}
	unsubLink := h.OnLink(enter)
	unsubUnlink := h.OnUnlink(leave)

	return func() {
		unsubLink()
		unsubUnlink()
		for id, c := range cleanups {
			delete(cleanups, id)
			h.g.safely(c)
		}
	}
}

// Target returns the single target of a reference-derived edge (nil when
// unset or when the handle is not a reference rollup).
func (h *EdgeHandle) Target() *Node {
	rec, e := h.info()
	if e == nil || !e.isDerived || e.rollup.def.Kind != RollupReference {
		return nil
	}
	d := rec.derived[e.rollup.def.Name]
	if d == nil || len(d.order) == 0 {
		return nil
	}
	return h.g.handle(d.order[0])
}

// Use runs effect with the current reference target, then once per target
// change with (new, old). Only meaningful on reference-derived handles.
func (h *EdgeHandle) Use(effect func(newT, oldT *Node) func()) func() {
	_, e := h.info()
	if e == nil || !e.isDerived || e.rollup.def.Kind != RollupReference {
		return func() {}
	}

	var cleanup func()
	run := func(newT, oldT *Node) {
		if cleanup != nil {
			c := cleanup
			cleanup = nil
			h.g.safely(c)
		}
		h.g.safely(func() { cleanup = effect(newT, oldT) })
	}

	run(h.Target(), nil)

	k := propKey{h.id, h.name}
	subs := h.g.refSubs[k]
	if subs == nil {
		subs = &subscribers[func(newT, oldT *Node)]{}
		h.g.refSubs[k] = subs
	}
	unsub := subs.add(run)

	return func() {
		unsub()
		if cleanup != nil {
			c := cleanup
			cleanup = nil
			h.g.safely(c)
		}
	}
}

// EdgeIterator is an explicit stateful iterator over edge targets.
type EdgeIterator struct {
	g   *Graph
	ids []int64
	pos int
}

// Next returns the next live target.
func (it *EdgeIterator) Next() (*Node, bool) {
	for it.pos < len(it.ids) {
		id := it.ids[it.pos]
		it.pos++
		if it.g.nodes[id] != nil {
			return it.g.handle(id), true
		}
	}
	return nil, false
}

// TargetsIterOpts parameterizes TargetsIter.
type TargetsIterOpts struct {
	Offset  int
	Filters []Filter
	Sort    *Sort
	// Index forces a specific index by name instead of planning.
	Index string
}

// TargetsIter returns an iterator over (id, edge) in covering-index order,
// starting at Offset. It fails when no index covers the filters and sort.
func (g *Graph) TargetsIter(id int64, edge string, opts TargetsIterOpts) (*EdgeIterator, error) {
	rec := g.nodes[id]
	if rec == nil {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	e := rec.typ.edges[edge]
	if e == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownEdge, rec.typ.name, edge)
	}

	var (
		qs     *querySpec
		linear []Filter
		err    error
	)
	if opts.Index != "" && !e.isDerived {
		for pos, def := range e.indexDefs {
			if def.Name != opts.Index {
				continue
			}
			spec, ok := planSpec(def, opts.Filters, opts.Sort)
			if !ok {
				return nil, fmt.Errorf("index %q does not cover query %s: %w", opts.Index, formatFilters(opts.Filters), ErrNoCoveringIndex)
			}
			spec.pos = pos
			qs = spec
			break
		}
		if qs == nil {
			return nil, fmt.Errorf("%w: index %q on edge %s", ErrNotFound, opts.Index, edge)
		}
	} else {
		qs, linear, err = g.planEdge(e, opts.Filters, opts.Sort)
		if err != nil {
			return nil, err
		}
	}

	ids := g.edgeChildren(rec, e, qs, linear)
	if opts.Offset > 0 {
		if opts.Offset >= len(ids) {
			ids = nil
		} else {
			ids = ids[opts.Offset:]
		}
	}
	return &EdgeIterator{g: g, ids: ids}, nil
}
