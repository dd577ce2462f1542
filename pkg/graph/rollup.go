// Package graph rollup engine.
//
// Property rollups live as pseudo-properties on the owner node and are
// writable only here; their writes re-enter the property pipeline, so a
// rollup change updates type indexes, dependent edge snapshots and
// subscribers exactly like a user write. Reference and collection rollups
// materialize as derived edges that shadow the value a full recomputation
// would produce.
package graph

// emptyRollupValue is the stored value of a property rollup over an empty
// target set.
func emptyRollupValue(c Compute) Value {
	switch c {
	case ComputeCount, ComputeSum:
		return Int(0)
	case ComputeAny, ComputeAll:
		return Bool(false)
	default:
		return Nil()
	}
}

// rollupTargets returns the filtered base-edge members in the rollup's
// chosen index order.
func (g *Graph) rollupTargets(owner *nodeRecord, r *rollupInfo) []int64 {
	return g.edgeChildren(owner, r.edge, r.spec, nil)
}

// rollupComputeFull recomputes a property rollup from scratch.
func (g *Graph) rollupComputeFull(owner *nodeRecord, r *rollupInfo) Value {
	ids := g.rollupTargets(owner, r)
	if len(ids) == 0 {
		return emptyRollupValue(r.def.Compute)
	}

	vals := make([]Value, 0, len(ids))
	for _, id := range ids {
		t := g.nodes[id]
		if t == nil {
			continue
		}
		vals = append(vals, t.props[r.def.Property])
	}

	switch r.def.Compute {
	case ComputeCount:
		return Int(len(ids))
	case ComputeSum:
		s := 0.0
		for _, v := range vals {
			s += v.AsNumber()
		}
		return Number(s)
	case ComputeAvg:
		if len(vals) == 0 {
			return Nil()
		}
		s := 0.0
		for _, v := range vals {
			s += v.AsNumber()
		}
		return Number(s / float64(len(vals)))
	case ComputeMin:
		out := vals[0]
		for _, v := range vals[1:] {
			if compareValues(v, out) < 0 {
				out = v
			}
		}
		return out
	case ComputeMax:
		out := vals[0]
		for _, v := range vals[1:] {
			if compareValues(v, out) > 0 {
				out = v
			}
		}
		return out
	case ComputeFirst:
		return vals[0]
	case ComputeLast:
		return vals[len(vals)-1]
	case ComputeAny:
		for _, v := range vals {
			if v.Truthy() {
				return Bool(true)
			}
		}
		return Bool(false)
	case ComputeAll:
		for _, v := range vals {
			if !v.Truthy() {
				return Bool(false)
			}
		}
		return Bool(true)
	}
	return Nil()
}

func (g *Graph) rollupRecompute(owner *nodeRecord, r *rollupInfo) {
	g.setProperty(owner, r.def.Name, g.rollupComputeFull(owner, r))
}

// rollupAdd applies one qualifying target value incrementally, falling
// back to a full recomputation where the delta is not derivable.
func (g *Graph) rollupAdd(owner *nodeRecord, r *rollupInfo, val Value) {
	cur := owner.props[r.def.Name]
	switch r.def.Compute {
	case ComputeCount:
		g.setProperty(owner, r.def.Name, Number(cur.AsNumber()+1))
	case ComputeSum:
		g.setProperty(owner, r.def.Name, Number(cur.AsNumber()+val.AsNumber()))
	case ComputeMin:
		if cur.IsNil() {
			g.rollupRecompute(owner, r)
		} else if compareValues(val, cur) < 0 {
			g.setProperty(owner, r.def.Name, val)
		}
	case ComputeMax:
		if cur.IsNil() {
			g.rollupRecompute(owner, r)
		} else if compareValues(val, cur) > 0 {
			g.setProperty(owner, r.def.Name, val)
		}
	case ComputeAny:
		if val.Truthy() {
			g.setProperty(owner, r.def.Name, Bool(true))
		}
	default:
		// avg, first, last, all
		g.rollupRecompute(owner, r)
	}
}

// rollupSub removes one previously counted target value.
func (g *Graph) rollupSub(owner *nodeRecord, r *rollupInfo, val Value) {
	cur := owner.props[r.def.Name]
	switch r.def.Compute {
	case ComputeCount:
		g.setProperty(owner, r.def.Name, Number(cur.AsNumber()-1))
	case ComputeSum:
		g.setProperty(owner, r.def.Name, Number(cur.AsNumber()-val.AsNumber()))
	case ComputeMin:
		// the removed value may have been the minimum
		if compareValues(val, cur) <= 0 {
			g.rollupRecompute(owner, r)
		}
	case ComputeMax:
		if compareValues(val, cur) >= 0 {
			g.rollupRecompute(owner, r)
		}
	case ComputeAny:
		if cur.AsBool() && val.Truthy() {
			g.rollupRecompute(owner, r)
		}
	default:
		g.rollupRecompute(owner, r)
	}
}

// rollupOnLink folds a freshly linked target into the rollup.
func (g *Graph) rollupOnLink(owner *nodeRecord, r *rollupInfo, tgt *nodeRecord) {
	if !r.matches(tgt.props) {
		return
	}
	g.rollupAdd(owner, r, tgt.props[r.def.Property])
}

// rollupOnUnlink removes an unlinked target's contribution.
func (g *Graph) rollupOnUnlink(owner *nodeRecord, r *rollupInfo, tgt *nodeRecord) {
	if !r.matches(tgt.props) {
		return
	}
	g.rollupSub(owner, r, tgt.props[r.def.Property])
}

// rollupTargetChanged reconciles a rollup after a linked target's property
// changed: filter-membership transitions become add/sub, and a change of
// the aggregated property itself becomes a delta or a recomputation.
func (g *Graph) rollupTargetChanged(owner *nodeRecord, r *rollupInfo, tgt *nodeRecord, prop string, old, newV Value) {
	was := r.matchesWith(tgt.props, prop, old)
	is := r.matches(tgt.props)

	switch {
	case was && !is:
		val := tgt.props[r.def.Property]
		if prop == r.def.Property {
			val = old
		}
		g.rollupSub(owner, r, val)
	case !was && is:
		g.rollupAdd(owner, r, tgt.props[r.def.Property])
	case was && is && prop == r.def.Property:
		cur := owner.props[r.def.Name]
		switch r.def.Compute {
		case ComputeCount:
			// membership unchanged
		case ComputeSum:
			g.setProperty(owner, r.def.Name, Number(cur.AsNumber()-old.AsNumber()+newV.AsNumber()))
		case ComputeMin:
			if compareValues(newV, cur) < 0 {
				g.setProperty(owner, r.def.Name, newV)
			} else if compareValues(old, cur) <= 0 {
				g.rollupRecompute(owner, r)
			}
		case ComputeMax:
			if compareValues(newV, cur) > 0 {
				g.setProperty(owner, r.def.Name, newV)
			} else if compareValues(old, cur) >= 0 {
				g.rollupRecompute(owner, r)
			}
		default:
			g.rollupRecompute(owner, r)
		}
	}
}

// recomputeDerived reconciles a derived edge with the value a full
// recomputation produces, emitting unlink events for departed members and
// link events for new ones. Storage is updated before any callback runs.
func (g *Graph) recomputeDerived(owner *nodeRecord, r *rollupInfo) {
	d := owner.derived[r.def.Name]
	if d == nil {
		d = &derivedState{set: make(map[int64]bool)}
		owner.derived[r.def.Name] = d
	}

	newOrder := g.rollupTargets(owner, r)
	if r.def.Kind == RollupReference && len(newOrder) > 1 {
		newOrder = newOrder[:1]
	}
	newSet := make(map[int64]bool, len(newOrder))
	for _, id := range newOrder {
		newSet[id] = true
	}

	var removed, added []int64
	for _, id := range d.order {
		if !newSet[id] {
			removed = append(removed, id)
		}
	}
	for _, id := range newOrder {
		if !d.set[id] {
			added = append(added, id)
		}
	}

	d.order = newOrder
	d.set = newSet
	if len(removed) == 0 && len(added) == 0 {
		return
	}

	for _, id := range removed {
		g.emitDerivedUnlink(owner, r, id)
	}
	for _, id := range added {
		g.emitDerivedLink(owner, r, id)
	}

	if r.def.Kind == RollupReference {
		var oldT, newT *Node
		if len(removed) > 0 {
			oldT = g.handle(removed[0])
		}
		if len(added) > 0 {
			newT = g.handle(added[0])
		}
		for _, fn := range g.refSubs[propKey{owner.id, r.def.Name}].snapshot() {
			fn := fn
			g.safely(func() { fn(newT, oldT) })
		}
	}
}

func (g *Graph) emitDerivedLink(owner *nodeRecord, r *rollupInfo, tgtID int64) {
	tgt := g.nodes[tgtID]
	if tgt == nil {
		return
	}
	for _, v := range g.snapshotViews() {
		v.handleLink(owner, r.derivedEdge, tgt)
	}
	tNode := g.handle(tgtID)
	for _, fn := range g.linkSubs[propKey{owner.id, r.def.Name}].snapshot() {
		fn := fn
		g.safely(func() { fn(tNode) })
	}
}

func (g *Graph) emitDerivedUnlink(owner *nodeRecord, r *rollupInfo, tgtID int64) {
	tgt := g.nodes[tgtID]
	if tgt == nil {
		return
	}
	for _, v := range g.snapshotViews() {
		v.handleUnlink(owner, r.derivedEdge, tgt)
	}
	tNode := g.handle(tgtID)
	for _, fn := range g.unlinkSubs[propKey{owner.id, r.def.Name}].snapshot() {
		fn := fn
		g.safely(func() { fn(tNode) })
	}
}
