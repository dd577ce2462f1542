package graph

import "fmt"

// Node is a non-owning handle onto a stored node, identified by id.
// Handles are cached by the store, so two lookups of the same id share
// identity. Operations on a deleted node's handle return zero values.
type Node struct {
	g  *Graph
	id int64
}

// ID returns the node id.
func (n *Node) ID() int64 { return n.id }

// Type returns the node's type name, or "" after deletion.
func (n *Node) Type() string {
	if rec := n.g.nodes[n.id]; rec != nil {
		return rec.typ.name
	}
	return ""
}

// Alive reports whether the node still exists in the store.
func (n *Node) Alive() bool { return n.g.nodes[n.id] != nil }

// Get reads a property value. Unknown names and deleted nodes yield nil.
func (n *Node) Get(prop string) Value {
	if rec := n.g.nodes[n.id]; rec != nil {
		return rec.props[prop]
	}
	return Nil()
}

// Prop returns the Signal for a property. Property-rollup names return a
// read-only signal; undeclared names return a signal whose Get yields nil
// and whose Set reports ErrUnknownProperty.
func (n *Node) Prop(name string) *Signal {
	return n.g.signal(n.id, name)
}

// Edge returns the EdgeHandle for a declared, reverse or derived edge, or
// nil for unknown names.
func (n *Node) Edge(name string) *EdgeHandle {
	rec := n.g.nodes[n.id]
	if rec == nil {
		return nil
	}
	if rec.typ.edges[name] == nil {
		return nil
	}
	return n.g.edgeHandle(n.id, name)
}

// Watch subscribes to every property change of this node.
func (n *Node) Watch(fn WatchFunc) func() {
	return n.g.Watch(n.id, fn)
}

// Signal is a reactive handle on a single (node, property) pair.
//
// Signals are cached by the store per (id, name): subscriptions registered
// through any access fire for writes through any access.
type Signal struct {
	g    *Graph
	id   int64
	prop string
}

func (g *Graph) signal(id int64, prop string) *Signal {
	k := propKey{id, prop}
	s := g.signals[k]
	if s == nil {
		s = &Signal{g: g, id: id, prop: prop}
		g.signals[k] = s
	}
	return s
}

// Get returns the stored value, nil for absent properties or deleted
// nodes.
func (s *Signal) Get() Value {
	if rec := s.g.nodes[s.id]; rec != nil {
		return rec.props[s.prop]
	}
	return Nil()
}

// Set writes the property through the full mutation pipeline. Rollup
// outputs are read-only; undeclared names are rejected.
func (s *Signal) Set(v Value) error {
	rec := s.g.nodes[s.id]
	if rec == nil {
		return fmt.Errorf("%w: node %d", ErrNotFound, s.id)
	}
	if _, isRollup := rec.typ.rollups[s.prop]; isRollup {
		return fmt.Errorf("%w: %s.%s", ErrReadOnlyProperty, rec.typ.name, s.prop)
	}
	if !rec.typ.propSet[s.prop] {
		return fmt.Errorf("%w: %s.%s", ErrUnknownProperty, rec.typ.name, s.prop)
	}
	s.g.setProperty(rec, s.prop, v)
	return nil
}

// Use runs effect immediately with (current, nil), then again on every
// change with (new, old). An effect may return a cleanup, which runs
// before the next invocation. The returned unsubscribe removes the
// watcher and runs the final cleanup.
func (s *Signal) Use(effect func(newV, oldV Value) func()) func() {
	var cleanup func()

	run := func(newV, oldV Value) {
		if cleanup != nil {
			c := cleanup
			cleanup = nil
			s.g.safely(c)
		}
		s.g.safely(func() { cleanup = effect(newV, oldV) })
	}

	run(s.Get(), Nil())

	k := propKey{s.id, s.prop}
	subs := s.g.propSubs[k]
	if subs == nil {
		subs = &subscribers[func(newV, oldV Value)]{}
		s.g.propSubs[k] = subs
	}
	unsub := subs.add(run)

	return func() {
		unsub()
		if cleanup != nil {
			c := cleanup
			cleanup = nil
			s.g.safely(c)
		}
	}
}
