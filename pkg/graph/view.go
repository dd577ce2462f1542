// Package graph view engine.
//
// A View is a virtualized, expandable projection over the nodes of one
// type. It stores only sparse expansion metadata keyed by path, resolves
// absolute positions on demand, and keeps per-path change subscriptions
// ref-counted so a node visible at several paths delivers one callback per
// path.
package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Flag is a bool-or-predicate switch used for the eager and inline edge
// options. The zero Flag is off.
type Flag struct {
	on   bool
	pred func(n *Node) bool
}

// Enabled returns a Flag that is always on.
func Enabled() Flag { return Flag{on: true} }

// When returns a Flag evaluated against the parent node at expansion time.
func When(pred func(n *Node) bool) Flag { return Flag{pred: pred} }

func (f Flag) eval(n *Node) bool {
	if f.pred != nil {
		return f.pred(n)
	}
	return f.on
}

// EdgeConfig configures one edge of a view's projection tree.
//
// Eager edges expand automatically when their parent becomes visible.
// Inline edges contribute no visible item for their own children but hoist
// the children's descendants to the parent's position and depth. Recursive
// configs reapply themselves to the same edge name on each child.
type EdgeConfig struct {
	Eager     Flag
	Inline    Flag
	Recursive bool
	Filters   []Filter
	Sort      *Sort
	Skip      *int
	Take      *int
	Edges     map[string]*EdgeConfig
}

var defaultEdgeConfig = &EdgeConfig{}

// ViewQuery parameterizes NewView.
type ViewQuery struct {
	Type    string
	Filters []Filter
	Edges   map[string]*EdgeConfig
	Offset  int
	Limit   int // <= 0 means unbounded
}

// ExpandMeta accompanies expand/collapse callbacks.
type ExpandMeta struct {
	Eager   bool
	PathKey string
	Inline  bool
}

// ViewCallbacks are the constructor-time subscriptions. Additional
// callbacks registered through the On* methods fire after these, in
// registration order.
type ViewCallbacks struct {
	OnEnter    func(n *Node, depth int, edge string, parentID int64)
	OnLeave    func(n *Node, edge string, parentID int64)
	OnChange   func(n *Node, prop string, newV, oldV Value)
	OnExpand   func(parent *Node, edge string, meta ExpandMeta)
	OnCollapse func(parent *Node, edge string, meta ExpandMeta)
}

// expansion is the stored state of one expanded (path, edge).
type expansion struct {
	edge       *edgeInfo
	cfg        *EdgeConfig
	spec       *querySpec
	linear     []Filter
	raw        int     // filter-passing child count before skip/take
	count      int     // len(window)
	window     []int64 // the children selected by the skip/take cursor
	inline     bool
	eager      bool
	parentID   int64
	childDepth int
}

// View is a live projection. Create with Graph.NewView, tear down with
// Destroy.
type View struct {
	g       *Graph
	id      int64
	typ     *typeInfo
	filters []Filter
	// filterFields marks root filter fields for fast transition checks.
	filterFields map[string]bool
	spec         *querySpec
	edges        map[string]*EdgeConfig
	offset       int
	limit        int

	enterSubs    subscribers[func(n *Node, depth int, edge string, parentID int64)]
	leaveSubs    subscribers[func(n *Node, edge string, parentID int64)]
	changeSubs   subscribers[func(n *Node, prop string, newV, oldV Value)]
	expandSubs   subscribers[func(parent *Node, edge string, meta ExpandMeta)]
	collapseSubs subscribers[func(parent *Node, edge string, meta ExpandMeta)]

	expansions    map[string]map[string]*expansion
	expandedAt    map[string]bool
	expansionSize int
	nodeWatchers  map[int64]int
	edgeWatchers  map[string]bool
	rootCount     int

	initializing bool
	destroyed    bool
}

// NewView creates a view: the root filters are planned against the type's
// indexes, the edge tree is validated, and every matching root enters
// (with eager edges expanding recursively).
func (g *Graph) NewView(q ViewQuery, cbs ViewCallbacks) (*View, error) {
	ti, ok := g.cat.types[q.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, q.Type)
	}
	spec := chooseSpec(ti.indexDefs, q.Filters, nil)
	if spec == nil {
		return nil, fmt.Errorf("no index covers query %s: %w", formatFilters(q.Filters), ErrNoCoveringIndex)
	}

	edges := normalizeEdges(q.Edges, make(map[*EdgeConfig]*EdgeConfig))
	visited := make(map[cfgKey]bool)
	for _, name := range sortedCfgNames(edges) {
		if err := g.validateEdgeCfg(ti, name, edges[name], visited); err != nil {
			return nil, err
		}
	}

	g.viewSeq++
	v := &View{
		g:            g,
		id:           g.viewSeq,
		typ:          ti,
		filters:      q.Filters,
		filterFields: make(map[string]bool),
		spec:         spec,
		edges:        edges,
		offset:       q.Offset,
		limit:        q.Limit,
		expansions:   make(map[string]map[string]*expansion),
		expandedAt:   make(map[string]bool),
		nodeWatchers: make(map[int64]int),
		edgeWatchers: make(map[string]bool),
	}
	for _, f := range q.Filters {
		v.filterFields[f.Field] = true
	}
	if cbs.OnEnter != nil {
		v.enterSubs.add(cbs.OnEnter)
	}
	if cbs.OnLeave != nil {
		v.leaveSubs.add(cbs.OnLeave)
	}
	if cbs.OnChange != nil {
		v.changeSubs.add(cbs.OnChange)
	}
	if cbs.OnExpand != nil {
		v.expandSubs.add(cbs.OnExpand)
	}
	if cbs.OnCollapse != nil {
		v.collapseSubs.add(cbs.OnCollapse)
	}
	g.views[v.id] = v

	// Initial root walk. Change callbacks are suppressed for its
	// duration so self-inflicted writes from OnEnter handlers do not
	// echo back; enters are not suppressed.
	v.initializing = true
	var roots []int64
	g.typeIndexes[ti.name][spec.pos].iterTypeQuery(spec, func(id int64) bool {
		roots = append(roots, id)
		return true
	})
	for _, id := range roots {
		if rec := g.nodes[id]; rec != nil && matchFilters(v.filters, rec.props) {
			v.rootEnter(rec)
		}
	}
	v.initializing = false

	g.log.Debug("view created", zap.Int64("view", v.id), zap.String("type", q.Type), zap.Int("roots", v.rootCount))
	return v, nil
}

type cfgKey struct {
	owner *typeInfo
	cfg   *EdgeConfig
	name  string
}

func (g *Graph) validateEdgeCfg(owner *typeInfo, name string, cfg *EdgeConfig, visited map[cfgKey]bool) error {
	k := cfgKey{owner, cfg, name}
	if visited[k] {
		return nil
	}
	visited[k] = true

	e := owner.edges[name]
	if e == nil {
		return fmt.Errorf("%w: %s.%s", ErrUnknownEdge, owner.name, name)
	}
	if _, _, err := g.planEdge(e, cfg.Filters, cfg.Sort); err != nil {
		return fmt.Errorf("edge %s.%s: %w", owner.name, name, err)
	}
	for _, sub := range sortedCfgNames(cfg.Edges) {
		if err := g.validateEdgeCfg(e.target, sub, cfg.Edges[sub], visited); err != nil {
			return err
		}
	}
	if cfg.Recursive && e.target.edges[name] != nil {
		if err := g.validateEdgeCfg(e.target, name, cfg, visited); err != nil {
			return err
		}
	}
	return nil
}

func normalizeEdges(m map[string]*EdgeConfig, seen map[*EdgeConfig]*EdgeConfig) map[string]*EdgeConfig {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]*EdgeConfig, len(m))
	for name, cfg := range m {
		if cfg == nil {
			out[name] = defaultEdgeConfig
			continue
		}
		if dup := seen[cfg]; dup != nil {
			out[name] = dup
			continue
		}
		c := *cfg
		seen[cfg] = &c
		c.Edges = normalizeEdges(cfg.Edges, seen)
		out[name] = &c
	}
	return out
}

func sortedCfgNames(m map[string]*EdgeConfig) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Path keys encode the ancestor chain of a visible occurrence:
// "id" for roots, "parent:edge:id" below.

func rootPath(id int64) string {
	return strconv.FormatInt(id, 10)
}

func childPath(pk, edge string, id int64) string {
	return pk + ":" + edge + ":" + strconv.FormatInt(id, 10)
}

func pathTerminal(pk string) int64 {
	if i := strings.LastIndexByte(pk, ':'); i >= 0 {
		pk = pk[i+1:]
	}
	id, _ := strconv.ParseInt(pk, 10, 64)
	return id
}

// depthOfPath counts the non-inline hops of a path.
func (v *View) depthOfPath(pk string) int {
	segs := strings.Split(pk, ":")
	depth := 0
	prefix := segs[0]
	for i := 1; i+1 < len(segs); i += 2 {
		if exps := v.expansions[prefix]; exps != nil {
			if exp := exps[segs[i]]; exp != nil && exp.inline {
				prefix = prefix + ":" + segs[i] + ":" + segs[i+1]
				continue
			}
		}
		depth++
		prefix = prefix + ":" + segs[i] + ":" + segs[i+1]
	}
	return depth
}

// configForPath resolves the edge configuration for expanding edgeName at
// pk, walking the config tree along the path and honoring recursive
// configs. Unconfigured edges expand with the default (empty) config.
func (v *View) configForPath(pk, edgeName string) *EdgeConfig {
	segs := strings.Split(pk, ":")
	cur := v.edges
	var lastCfg *EdgeConfig
	lastName := ""
	for i := 1; i+1 < len(segs); i += 2 {
		cfg := lookupCfg(cur, lastCfg, lastName, segs[i])
		lastCfg, lastName = cfg, segs[i]
		cur = cfg.Edges
	}
	return lookupCfg(cur, lastCfg, lastName, edgeName)
}

func lookupCfg(m map[string]*EdgeConfig, last *EdgeConfig, lastName, edge string) *EdgeConfig {
	if c := m[edge]; c != nil {
		return c
	}
	if last != nil && last.Recursive && lastName == edge {
		return last
	}
	return defaultEdgeConfig
}

// sortedExpansionPaths returns the expansion path keys in deterministic
// order; snapshots are taken because handlers may expand or collapse.
func (v *View) sortedExpansionPaths() []string {
	paths := make([]string, 0, len(v.expansions))
	for pk := range v.expansions {
		paths = append(paths, pk)
	}
	sort.Strings(paths)
	return paths
}

func (v *View) sortedExpansionEdges(pk string) []string {
	m := v.expansions[pk]
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (v *View) ref(id int64) {
	v.nodeWatchers[id]++
}

func (v *View) unref(id int64) {
	if v.nodeWatchers[id] <= 1 {
		delete(v.nodeWatchers, id)
		return
	}
	v.nodeWatchers[id]--
}

// Callback dispatch, each invocation behind the exception barrier.

func (v *View) fireEnter(n *Node, depth int, edge string, parentID int64) {
	for _, fn := range v.enterSubs.snapshot() {
		fn := fn
		v.g.safely(func() { fn(n, depth, edge, parentID) })
	}
}

func (v *View) fireLeave(n *Node, edge string, parentID int64) {
	for _, fn := range v.leaveSubs.snapshot() {
		fn := fn
		v.g.safely(func() { fn(n, edge, parentID) })
	}
}

func (v *View) fireChange(n *Node, prop string, newV, oldV Value) {
	for _, fn := range v.changeSubs.snapshot() {
		fn := fn
		v.g.safely(func() { fn(n, prop, newV, oldV) })
	}
}

func (v *View) fireExpand(parent *Node, edge string, meta ExpandMeta) {
	for _, fn := range v.expandSubs.snapshot() {
		fn := fn
		v.g.safely(func() { fn(parent, edge, meta) })
	}
}

func (v *View) fireCollapse(parent *Node, edge string, meta ExpandMeta) {
	for _, fn := range v.collapseSubs.snapshot() {
		fn := fn
		v.g.safely(func() { fn(parent, edge, meta) })
	}
}

// OnEnter registers an additional enter callback; the returned unsubscribe
// removes only this registration.
func (v *View) OnEnter(fn func(n *Node, depth int, edge string, parentID int64)) func() {
	return v.enterSubs.add(fn)
}

// OnLeave registers an additional leave callback.
func (v *View) OnLeave(fn func(n *Node, edge string, parentID int64)) func() {
	return v.leaveSubs.add(fn)
}

// OnChange registers an additional change callback.
func (v *View) OnChange(fn func(n *Node, prop string, newV, oldV Value)) func() {
	return v.changeSubs.add(fn)
}

// OnExpand registers an additional expand callback.
func (v *View) OnExpand(fn func(parent *Node, edge string, meta ExpandMeta)) func() {
	return v.expandSubs.add(fn)
}

// OnCollapse registers an additional collapse callback.
func (v *View) OnCollapse(fn func(parent *Node, edge string, meta ExpandMeta)) func() {
	return v.collapseSubs.add(fn)
}

// computeWindow selects the children of an expansion under its filters,
// sort, skip and take.
func (v *View) computeWindow(parent *nodeRecord, exp *expansion) ([]int64, int) {
	full := v.g.edgeChildren(parent, exp.edge, exp.spec, exp.linear)
	raw := len(full)
	skip := 0
	if exp.cfg.Skip != nil && *exp.cfg.Skip > 0 {
		skip = *exp.cfg.Skip
	}
	if skip >= raw {
		return nil, raw
	}
	end := raw
	if exp.cfg.Take != nil {
		take := *exp.cfg.Take
		if take < 0 {
			take = 0
		}
		if skip+take < end {
			end = skip + take
		}
	}
	return full[skip:end], raw
}

// expand records the expansion of (pk, edgeName), subscribes its children
// and fires the expand/enter callbacks. Already-expanded pairs are no-ops.
func (v *View) expand(pk, edgeName string, eager bool) bool {
	if v.destroyed {
		return false
	}
	if m := v.expansions[pk]; m != nil && m[edgeName] != nil {
		return false
	}
	parentID := pathTerminal(pk)
	parent := v.g.nodes[parentID]
	if parent == nil {
		return false
	}
	e := parent.typ.edges[edgeName]
	if e == nil {
		return false
	}
	cfg := v.configForPath(pk, edgeName)
	spec, linear, err := v.g.planEdge(e, cfg.Filters, cfg.Sort)
	if err != nil {
		v.g.log.Error("expand: unplannable edge", zap.String("path", pk), zap.String("edge", edgeName), zap.Error(err))
		return false
	}

	pNode := v.g.handle(parentID)
	inline := cfg.Inline.eval(pNode)
	exp := &expansion{
		edge:     e,
		cfg:      cfg,
		spec:     spec,
		linear:   linear,
		inline:   inline,
		eager:    eager,
		parentID: parentID,
	}
	if inline {
		exp.childDepth = v.depthOfPath(pk)
	} else {
		exp.childDepth = v.depthOfPath(pk) + 1
	}
	exp.window, exp.raw = v.computeWindow(parent, exp)
	exp.count = len(exp.window)

	if v.expansions[pk] == nil {
		v.expansions[pk] = make(map[string]*expansion)
	}
	v.expansions[pk][edgeName] = exp
	v.expandedAt[pk] = true
	v.edgeWatchers[pk+":"+edgeName] = true
	if !inline {
		v.expansionSize += exp.count
	}

	v.fireExpand(pNode, edgeName, ExpandMeta{Eager: eager, PathKey: pk, Inline: inline})

	for _, cid := range append([]int64(nil), exp.window...) {
		if cur := v.expansions[pk]; cur == nil || cur[edgeName] != exp {
			break // collapsed re-entrantly
		}
		v.enterChild(pk, edgeName, cid, eager)
	}
	return true
}

// enterChild subscribes a newly visible child, fires its enter callback
// (non-inline only) and expands its eager edges.
func (v *View) enterChild(pk, edgeName string, cid int64, eager bool) {
	exp := v.lookupExpansion(pk, edgeName)
	if exp == nil {
		return
	}
	child := v.g.nodes[cid]
	if child == nil {
		return
	}

	v.ref(cid)
	cNode := v.g.handle(cid)
	if !exp.inline {
		v.fireEnter(cNode, exp.childDepth, edgeName, exp.parentID)
	}

	cpk := childPath(pk, edgeName, cid)
	for _, name := range v.eagerEdgesFor(exp.cfg, edgeName, child) {
		v.expand(cpk, name, true)
	}
}

// eagerEdgesFor lists the child-level edges whose Eager flag holds for the
// child, including the recursive self-application.
func (v *View) eagerEdgesFor(cfg *EdgeConfig, edgeName string, child *nodeRecord) []string {
	cNode := v.g.handle(child.id)
	var names []string
	for name, sub := range cfg.Edges {
		if child.typ.edges[name] == nil {
			continue
		}
		if sub.Eager.eval(cNode) {
			names = append(names, name)
		}
	}
	if cfg.Recursive && cfg.Edges[edgeName] == nil && child.typ.edges[edgeName] != nil && cfg.Eager.eval(cNode) {
		names = append(names, edgeName)
	}
	sort.Strings(names)
	return names
}

// leaveChild tears down a child that left an expansion window: its own
// expansions collapse first, then the leave callback fires (non-inline
// only) and the subscription ref drops.
func (v *View) leaveChild(pk, edgeName string, exp *expansion, cid int64) {
	cpk := childPath(pk, edgeName, cid)
	v.collapseAllAt(cpk)

	if !exp.inline {
		v.fireLeave(v.g.handle(cid), edgeName, exp.parentID)
	}
	v.unref(cid)
}

func (v *View) lookupExpansion(pk, edgeName string) *expansion {
	if m := v.expansions[pk]; m != nil {
		return m[edgeName]
	}
	return nil
}

// collapse removes the expansion of (pk, edgeName), cascading through
// descendant expansions.
func (v *View) collapse(pk, edgeName string) bool {
	exp := v.lookupExpansion(pk, edgeName)
	if exp == nil {
		return false
	}

	for _, cid := range append([]int64(nil), exp.window...) {
		v.leaveChild(pk, edgeName, exp, cid)
	}

	delete(v.expansions[pk], edgeName)
	if len(v.expansions[pk]) == 0 {
		delete(v.expansions, pk)
		delete(v.expandedAt, pk)
	}
	delete(v.edgeWatchers, pk+":"+edgeName)
	if !exp.inline {
		v.expansionSize -= exp.count
	}

	v.fireCollapse(v.g.handle(exp.parentID), edgeName, ExpandMeta{PathKey: pk, Inline: exp.inline})
	return true
}

func (v *View) collapseAllAt(pk string) {
	for _, name := range v.sortedExpansionEdges(pk) {
		v.collapse(pk, name)
	}
}

// rewindow recomputes an expansion's child window and fires the
// enter/leave diff. Bookkeeping is settled before any callback runs.
func (v *View) rewindow(pk, edgeName string, exp *expansion) {
	parent := v.g.nodes[exp.parentID]
	if parent == nil {
		return
	}
	after, raw := v.computeWindow(parent, exp)
	before := exp.window

	exp.window = after
	exp.raw = raw
	oldCount := exp.count
	exp.count = len(after)
	if !exp.inline {
		v.expansionSize += exp.count - oldCount
	}

	afterSet := make(map[int64]bool, len(after))
	for _, id := range after {
		afterSet[id] = true
	}
	beforeSet := make(map[int64]bool, len(before))
	for _, id := range before {
		beforeSet[id] = true
	}
	for _, cid := range before {
		if !afterSet[cid] {
			v.leaveChild(pk, edgeName, exp, cid)
		}
	}
	for _, cid := range after {
		if !beforeSet[cid] {
			v.enterChild(pk, edgeName, cid, false)
		}
	}
}

// rootEnter makes a node a visible root and expands its eager edges.
func (v *View) rootEnter(rec *nodeRecord) {
	v.rootCount++
	v.ref(rec.id)
	v.fireEnter(v.g.handle(rec.id), 0, "", 0)

	pk := rootPath(rec.id)
	rNode := v.g.handle(rec.id)
	var eager []string
	for name, cfg := range v.edges {
		if rec.typ.edges[name] != nil && cfg.Eager.eval(rNode) {
			eager = append(eager, name)
		}
	}
	sort.Strings(eager)
	for _, name := range eager {
		v.expand(pk, name, true)
	}
}

func (v *View) rootLeave(rec *nodeRecord) {
	v.collapseAllAt(rootPath(rec.id))
	v.fireLeave(v.g.handle(rec.id), "", 0)
	v.unref(rec.id)
	v.rootCount--
}

// Store event hooks.

func (v *View) handleInsert(rec *nodeRecord) {
	if v.destroyed || rec.typ != v.typ {
		return
	}
	if matchFilters(v.filters, rec.props) {
		v.rootEnter(rec)
	}
}

func (v *View) handleDelete(rec *nodeRecord) {
	if v.destroyed {
		return
	}
	// Expansions parented by the node (windows are already empty after
	// the unlink cascade; the entries themselves must go).
	for _, pk := range v.sortedExpansionPaths() {
		if pathTerminal(pk) == rec.id {
			v.collapseAllAt(pk)
		}
	}
	if rec.typ == v.typ && matchFilters(v.filters, rec.props) && v.nodeWatchers[rec.id] > 0 {
		v.rootLeave(rec)
	}
}

func (v *View) handleLink(parent *nodeRecord, e *edgeInfo, child *nodeRecord) {
	if v.destroyed {
		return
	}
	for _, pk := range v.sortedExpansionPaths() {
		exp := v.lookupExpansion(pk, e.name)
		if exp == nil || exp.edge != e || exp.parentID != parent.id {
			continue
		}
		v.rewindow(pk, e.name, exp)
	}
}

func (v *View) handleUnlink(parent *nodeRecord, e *edgeInfo, child *nodeRecord) {
	if v.destroyed {
		return
	}
	for _, pk := range v.sortedExpansionPaths() {
		exp := v.lookupExpansion(pk, e.name)
		if exp == nil || exp.edge != e || exp.parentID != parent.id {
			continue
		}
		v.rewindow(pk, e.name, exp)
	}
}

// expUsesProp reports whether a property change on a child's type can move
// the expansion's window: a filter field always can; an index or sort
// field can when a skip/take cursor clamps the window.
func expUsesProp(exp *expansion, prop string) bool {
	for _, f := range exp.cfg.Filters {
		if f.Field == prop {
			return true
		}
	}
	if exp.cfg.Skip == nil && exp.cfg.Take == nil {
		return false
	}
	if exp.spec != nil && indexUsesField(exp.spec.def, prop) {
		return true
	}
	if exp.edge.isDerived {
		if s := exp.edge.rollup.def.Sort; s != nil && s.Field == prop {
			return true
		}
	}
	return false
}

func (v *View) handlePropChange(rec *nodeRecord, prop string, newV, oldV Value) {
	if v.destroyed {
		return
	}
	refsBefore := v.nodeWatchers[rec.id]

	// Root membership transition.
	if rec.typ == v.typ && v.filterFields[prop] {
		was := matchFiltersWith(v.filters, rec.props, prop, oldV)
		is := matchFilters(v.filters, rec.props)
		switch {
		case was && !is:
			v.rootLeave(rec)
		case !was && is:
			v.rootEnter(rec)
		}
	}

	// Expansion windows whose membership depends on this field.
	for _, pk := range v.sortedExpansionPaths() {
		for _, name := range v.sortedExpansionEdges(pk) {
			exp := v.lookupExpansion(pk, name)
			if exp == nil || exp.edge.target != rec.typ || !expUsesProp(exp, prop) {
				continue
			}
			parent := v.g.nodes[exp.parentID]
			if parent == nil {
				continue
			}
			inWindow := false
			for _, id := range exp.window {
				if id == rec.id {
					inWindow = true
					break
				}
			}
			if !inWindow && !v.g.edgeHas(parent, exp.edge, rec.id) {
				continue
			}
			v.rewindow(pk, name, exp)
		}
	}

	// Per-path change delivery: once per path at which the node is
	// visible both before and after the transition handling above.
	refsAfter := v.nodeWatchers[rec.id]
	n := refsBefore
	if refsAfter < n {
		n = refsAfter
	}
	if v.initializing || n == 0 {
		return
	}
	node := v.g.handle(rec.id)
	for i := 0; i < n; i++ {
		v.fireChange(node, prop, newV, oldV)
	}
}

// Public surface.

// Total returns the current number of visible roots.
func (v *View) Total() int { return v.rootCount }

// VisibleTotal returns roots plus all non-inline expansion counts (inline
// descendants are hoisted through their own expansions).
func (v *View) VisibleTotal() int { return v.rootCount + v.expansionSize }

// Scroll moves the viewport offset.
func (v *View) Scroll(offset int) {
	if offset < 0 {
		offset = 0
	}
	v.offset = offset
}

// findPath locates the first visible path whose terminal id is id: the
// root path when the node is a visible root, otherwise the expansion
// windows in sorted path-key order.
func (v *View) findPath(id int64) (string, bool) {
	rec := v.g.nodes[id]
	if rec == nil {
		return "", false
	}
	if rec.typ == v.typ && matchFilters(v.filters, rec.props) {
		return rootPath(id), true
	}
	var candidates []string
	for _, pk := range v.sortedExpansionPaths() {
		for _, name := range v.sortedExpansionEdges(pk) {
			exp := v.lookupExpansion(pk, name)
			if exp == nil {
				continue
			}
			for _, cid := range exp.window {
				if cid == id {
					candidates = append(candidates, childPath(pk, name, id))
				}
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// Expand expands (id, edge) at the first visible path of id. Nodes visible
// at several paths can be addressed precisely through Items.
func (v *View) Expand(id int64, edge string) bool {
	if v.destroyed {
		return false
	}
	pk, ok := v.findPath(id)
	if !ok {
		return false
	}
	return v.expand(pk, edge, false)
}

// Collapse collapses (id, edge) at the first visible path of id.
func (v *View) Collapse(id int64, edge string) bool {
	if v.destroyed {
		return false
	}
	pk, ok := v.findPath(id)
	if !ok {
		return false
	}
	return v.collapse(pk, edge)
}

// Destroy tears the view down: all watchers and expansion state drop in
// bulk, without firing callbacks, and the view leaves the store registry.
func (v *View) Destroy() {
	if v.destroyed {
		return
	}
	v.destroyed = true
	v.expansions = make(map[string]map[string]*expansion)
	v.expandedAt = make(map[string]bool)
	v.nodeWatchers = make(map[int64]int)
	v.edgeWatchers = make(map[string]bool)
	v.expansionSize = 0
	v.rootCount = 0
	delete(v.g.views, v.id)
	v.g.log.Debug("view destroyed", zap.Int64("view", v.id))
}
