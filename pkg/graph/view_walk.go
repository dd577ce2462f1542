// Package graph view positioning.
//
// The walk resolves absolute positions against the sparse expansion
// table: whole subtrees whose span falls before the requested start are
// skipped using memoized subtree sizes, so viewport resolution stays
// proportional to the expansion metadata rather than the tree.
package graph

// Item is one visible occurrence in a view's projection. It carries the
// exact path key, so expansion operations through an item address this
// occurrence even for nodes visible at several paths.
type Item struct {
	view *View

	ID       int64
	Node     *Node
	Depth    int
	Edge     string // "" for roots
	ParentID int64  // 0 for roots
	PathKey  string
	Position int
}

// IsExpanded reports whether the given edge is expanded at this item.
func (it Item) IsExpanded(edge string) bool {
	return it.view.lookupExpansion(it.PathKey, edge) != nil
}

// ChildCount returns the expansion's current child count when the edge is
// expanded, and the count expanding it now would produce otherwise.
func (it Item) ChildCount(edge string) int {
	if exp := it.view.lookupExpansion(it.PathKey, edge); exp != nil {
		return exp.count
	}
	v := it.view
	rec := v.g.nodes[it.ID]
	if rec == nil {
		return 0
	}
	e := rec.typ.edges[edge]
	if e == nil {
		return 0
	}
	cfg := v.configForPath(it.PathKey, edge)
	spec, linear, err := v.g.planEdge(e, cfg.Filters, cfg.Sort)
	if err != nil {
		return 0
	}
	probe := &expansion{edge: e, cfg: cfg, spec: spec, linear: linear, parentID: it.ID}
	window, _ := v.computeWindow(rec, probe)
	return len(window)
}

// Expand expands an edge at this item's path.
func (it Item) Expand(edge string) bool {
	return it.view.expand(it.PathKey, edge, false)
}

// Collapse collapses an edge at this item's path.
func (it Item) Collapse(edge string) bool {
	return it.view.collapse(it.PathKey, edge)
}

// Toggle flips an edge's expansion at this item's path.
func (it Item) Toggle(edge string) bool {
	if it.IsExpanded(edge) {
		return it.Collapse(edge)
	}
	return it.Expand(edge)
}

// walker carries one walk's cursor and memoized subtree sizes.
type walker struct {
	v       *View
	pos     int
	start   int
	limit   int // <= 0: unbounded
	emitted int
	sizes   map[string]int
	fn      func(Item) bool
}

// subtreeSize is the number of positions contributed below a path:
// non-inline children count themselves plus their subtrees, inline
// children hoist only their subtrees.
func (w *walker) subtreeSize(pk string) int {
	if s, ok := w.sizes[pk]; ok {
		return s
	}
	if !w.v.expandedAt[pk] {
		return 0
	}
	total := 0
	for name, exp := range w.v.expansions[pk] {
		for _, cid := range exp.window {
			cpk := childPath(pk, name, cid)
			if exp.inline {
				total += w.subtreeSize(cpk)
			} else {
				total += 1 + w.subtreeSize(cpk)
			}
		}
	}
	w.sizes[pk] = total
	return total
}

func (w *walker) done() bool {
	return w.limit > 0 && w.emitted >= w.limit
}

// emit yields one visible occurrence once the cursor has reached start.
func (w *walker) emit(pk string, id int64, depth int, edge string, parentID int64) bool {
	if w.pos >= w.start {
		if w.done() {
			return false
		}
		it := Item{
			view:     w.v,
			ID:       id,
			Node:     w.v.g.handle(id),
			Depth:    depth,
			Edge:     edge,
			ParentID: parentID,
			PathKey:  pk,
			Position: w.pos,
		}
		w.pos++
		w.emitted++
		return w.fn(it)
	}
	w.pos++
	return true
}

// walkBelow descends through the expansions at pk.
func (w *walker) walkBelow(pk string) bool {
	if !w.v.expandedAt[pk] {
		return true
	}
	for _, name := range w.v.sortedExpansionEdges(pk) {
		exp := w.v.lookupExpansion(pk, name)
		if exp == nil {
			continue
		}
		for _, cid := range exp.window {
			cpk := childPath(pk, name, cid)
			if exp.inline {
				span := w.subtreeSize(cpk)
				if w.pos+span <= w.start {
					w.pos += span
					continue
				}
				if !w.walkBelow(cpk) {
					return false
				}
				continue
			}
			span := 1 + w.subtreeSize(cpk)
			if w.pos+span <= w.start {
				w.pos += span
				continue
			}
			if !w.emit(cpk, cid, exp.childDepth, name, exp.parentID) {
				return false
			}
			if w.done() {
				return false
			}
			if !w.walkBelow(cpk) {
				return false
			}
		}
	}
	return true
}

// walkRange walks visible occurrences from the given absolute position,
// emitting at most limit items (unbounded when limit <= 0).
func (v *View) walkRange(start, limit int, fn func(Item) bool) {
	if v.destroyed {
		return
	}
	w := &walker{v: v, start: start, limit: limit, sizes: make(map[string]int), fn: fn}

	var roots []int64
	v.g.typeIndexes[v.typ.name][v.spec.pos].iterTypeQuery(v.spec, func(id int64) bool {
		roots = append(roots, id)
		return true
	})
	for _, id := range roots {
		rec := v.g.nodes[id]
		if rec == nil || !matchFilters(v.filters, rec.props) {
			continue
		}
		pk := rootPath(id)
		span := 1 + w.subtreeSize(pk)
		if w.pos+span <= w.start {
			w.pos += span
			continue
		}
		if !w.emit(pk, id, 0, "", 0) {
			return
		}
		if w.done() {
			return
		}
		if !w.walkBelow(pk) {
			return
		}
	}
}

// Items returns the viewport window: visible occurrences from the view's
// offset, bounded by its limit.
func (v *View) Items() []Item {
	var out []Item
	v.walkRange(v.offset, v.limit, func(it Item) bool {
		out = append(out, it)
		return true
	})
	return out
}

// Collect is Items without the viewport: every visible occurrence from
// position 0.
func (v *View) Collect() []Item {
	var out []Item
	v.walkRange(0, 0, func(it Item) bool {
		out = append(out, it)
		return true
	})
	return out
}

// Seek resolves the occurrence at an absolute position. Positions at or
// beyond VisibleTotal return false.
func (v *View) Seek(pos int) (Item, bool) {
	var out Item
	found := false
	v.walkRange(pos, 1, func(it Item) bool {
		out = it
		found = true
		return false
	})
	return out, found
}

// PositionOf returns the absolute position of the first visible occurrence
// of id.
func (v *View) PositionOf(id int64) (int, bool) {
	pos := -1
	v.walkRange(0, 0, func(it Item) bool {
		if it.ID == id {
			pos = it.Position
			return false
		}
		return true
	})
	if pos < 0 {
		return 0, false
	}
	return pos, true
}
