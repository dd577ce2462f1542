// Package graph view engine tests: virtualized positioning, expansion
// bookkeeping, per-path change delivery and inline/eager configuration.
package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectIDs(items []Item) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestViewRootsFollowInsertUpdateDelete(t *testing.T) {
	g := newBlogGraph(t)
	adult := []Filter{{Field: "age", Op: OpGte, Value: Int(18)}}

	var entered, left []int64
	v, err := g.NewView(ViewQuery{Type: "User", Filters: adult}, ViewCallbacks{
		OnEnter: func(n *Node, depth int, edge string, parentID int64) {
			entered = append(entered, n.ID())
		},
		OnLeave: func(n *Node, edge string, parentID int64) {
			left = append(left, n.ID())
		},
	})
	require.NoError(t, err)
	defer v.Destroy()

	kid, _ := g.Insert("User", Props{"name": String("kid"), "age": Int(10)})
	grown, _ := g.Insert("User", Props{"name": String("grown"), "age": Int(30)})

	assert.Equal(t, []int64{grown.ID()}, entered)
	assert.Equal(t, 1, v.Total())

	// Filter transition in.
	g.Update(kid.ID(), Props{"age": Int(20)})
	assert.Equal(t, []int64{grown.ID(), kid.ID()}, entered)
	assert.Equal(t, 2, v.Total())

	// Filter transition out.
	g.Update(kid.ID(), Props{"age": Int(5)})
	assert.Equal(t, []int64{kid.ID()}, left)
	assert.Equal(t, 1, v.Total())

	g.Delete(grown.ID())
	assert.Equal(t, []int64{kid.ID(), grown.ID()}, left)
	assert.Equal(t, 0, v.Total())
}

func TestViewInitializationWalksExistingRoots(t *testing.T) {
	g := newBlogGraph(t)
	u1, _ := g.Insert("User", Props{"name": String("a")})
	u2, _ := g.Insert("User", Props{"name": String("b")})

	var entered []int64
	changes := 0
	v, err := g.NewView(ViewQuery{Type: "User"}, ViewCallbacks{
		OnEnter: func(n *Node, depth int, edge string, parentID int64) {
			entered = append(entered, n.ID())
			// Self-inflicted write during the initial walk: the
			// change callback must stay quiet.
			g.Update(n.ID(), Props{"age": Int(1)})
		},
		OnChange: func(n *Node, prop string, newV, oldV Value) { changes++ },
	})
	require.NoError(t, err)
	defer v.Destroy()

	assert.Equal(t, []int64{u1.ID(), u2.ID()}, entered)
	assert.Equal(t, 0, changes, "no on_change during the initial root walk")

	g.Update(u1.ID(), Props{"age": Int(2)})
	assert.Equal(t, 1, changes, "suppression ends with initialization")
}

// TestMultiParentPerPathDelivery is the shared-post scenario: one change
// delivers once per visible path, and unlinking one path narrows it.
func TestMultiParentPerPathDelivery(t *testing.T) {
	g := newBlogGraph(t)
	u1, _ := g.Insert("User", nil)
	u2, _ := g.Insert("User", nil)
	p := insertPost(t, g, "shared", true, 1, 0)
	g.Link(u1.ID(), "posts", p.ID())
	g.Link(u2.ID(), "posts", p.ID())

	changes := 0
	var left []int64
	v, err := g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"posts": {}},
	}, ViewCallbacks{
		OnChange: func(n *Node, prop string, newV, oldV Value) {
			if n.ID() == p.ID() {
				changes++
			}
		},
		OnLeave: func(n *Node, edge string, parentID int64) {
			if n.ID() == p.ID() {
				left = append(left, parentID)
			}
		},
	})
	require.NoError(t, err)
	defer v.Destroy()

	require.True(t, v.Expand(u1.ID(), "posts"))
	require.True(t, v.Expand(u2.ID(), "posts"))

	require.NoError(t, p.Prop("title").Set(String("x")))
	assert.Equal(t, 2, changes, "one delivery per visible path")

	g.Unlink(u1.ID(), "posts", p.ID())
	assert.Equal(t, []int64{u1.ID()}, left, "leave fires for the unlinked path only")

	require.NoError(t, p.Prop("title").Set(String("y")))
	assert.Equal(t, 3, changes, "one remaining path")
}

// TestInlineWithEagerChildren is the hoisting scenario: inline posts
// disappear from the projection while their comments surface at depth 1.
func TestInlineWithEagerChildren(t *testing.T) {
	g := newBlogGraph(t)
	u, _ := g.Insert("User", nil)
	p := insertPost(t, g, "p", true, 1, 0)
	c1, _ := g.Insert("Comment", Props{"text": String("one")})
	c2, _ := g.Insert("Comment", Props{"text": String("two")})
	g.Link(u.ID(), "posts", p.ID())
	g.Link(p.ID(), "comments", c1.ID())
	g.Link(p.ID(), "comments", c2.ID())

	v, err := g.NewView(ViewQuery{
		Type: "User",
		Edges: map[string]*EdgeConfig{
			"posts": {
				Inline: Enabled(),
				Eager:  Enabled(),
				Edges:  map[string]*EdgeConfig{"comments": {Eager: Enabled()}},
			},
		},
	}, ViewCallbacks{})
	require.NoError(t, err)
	defer v.Destroy()

	items := v.Collect()
	require.Equal(t, []int64{u.ID(), c1.ID(), c2.ID()}, collectIDs(items), "inline post is hoisted away")
	assert.Equal(t, 0, items[0].Depth)
	assert.Equal(t, 1, items[1].Depth, "inline edge preserves the parent depth")
	assert.Equal(t, 1, items[2].Depth)
	assert.Equal(t, 3, v.VisibleTotal())
}

// TestSkipTakeWithSort is the windowed expansion scenario.
func TestSkipTakeWithSort(t *testing.T) {
	g := newBlogGraph(t)
	u, _ := g.Insert("User", nil)
	var posts []*Node
	for _, title := range []string{"A", "B", "C", "D"} {
		p := insertPost(t, g, title, true, 1, 0)
		posts = append(posts, p)
		g.Link(u.ID(), "posts", p.ID())
	}

	v, err := g.NewView(ViewQuery{
		Type: "User",
		Edges: map[string]*EdgeConfig{
			"posts": {
				Sort: &Sort{Field: "title", Dir: Asc},
				Skip: intp(1),
				Take: intp(2),
			},
		},
	}, ViewCallbacks{})
	require.NoError(t, err)
	defer v.Destroy()

	require.True(t, v.Expand(u.ID(), "posts"))

	items := v.Collect()
	require.Equal(t, []int64{u.ID(), posts[1].ID(), posts[2].ID()}, collectIDs(items), "children are exactly [B, C]")
	assert.Equal(t, 3, v.VisibleTotal(), "one root plus two children")
}

func TestTakeZeroAndOverSkip(t *testing.T) {
	g := newBlogGraph(t)
	u, _ := g.Insert("User", nil)
	p := insertPost(t, g, "a", true, 1, 0)
	g.Link(u.ID(), "posts", p.ID())

	v, err := g.NewView(ViewQuery{
		Type: "User",
		Edges: map[string]*EdgeConfig{
			"posts": {Take: intp(0)},
		},
	}, ViewCallbacks{})
	require.NoError(t, err)
	defer v.Destroy()

	require.True(t, v.Expand(u.ID(), "posts"))
	assert.Equal(t, 1, v.VisibleTotal(), "take=0 yields no children")
	assert.True(t, v.edgeWatchers[rootPath(u.ID())+":posts"], "the parent edge stays subscribed")

	v2, err := g.NewView(ViewQuery{
		Type: "User",
		Edges: map[string]*EdgeConfig{
			"posts": {Skip: intp(5)},
		},
	}, ViewCallbacks{})
	require.NoError(t, err)
	defer v2.Destroy()
	require.True(t, v2.Expand(u.ID(), "posts"))
	assert.Equal(t, 1, v2.VisibleTotal(), "skip past the end yields zero")
}

func TestExpandCollapseRoundTrip(t *testing.T) {
	g := newBlogGraph(t)
	u, _ := g.Insert("User", nil)
	p := insertPost(t, g, "p", true, 1, 0)
	c, _ := g.Insert("Comment", Props{"text": String("x")})
	g.Link(u.ID(), "posts", p.ID())
	g.Link(p.ID(), "comments", c.ID())

	expands, collapses := 0, 0
	v, err := g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"posts": {Edges: map[string]*EdgeConfig{"comments": {}}}},
	}, ViewCallbacks{
		OnExpand:   func(parent *Node, edge string, meta ExpandMeta) { expands++ },
		OnCollapse: func(parent *Node, edge string, meta ExpandMeta) { collapses++ },
	})
	require.NoError(t, err)
	defer v.Destroy()

	watchersBefore := len(v.nodeWatchers)
	require.Equal(t, 0, v.expansionSize)

	require.True(t, v.Expand(u.ID(), "posts"))
	require.True(t, v.Expand(p.ID(), "comments"))
	assert.Equal(t, 2, expands)
	assert.Equal(t, 2, v.expansionSize)
	assert.Equal(t, 3, v.VisibleTotal())

	// Collapsing the root edge cascades through the nested expansion.
	require.True(t, v.Collapse(u.ID(), "posts"))
	assert.Equal(t, 2, collapses, "nested expansion collapsed first")
	assert.Equal(t, 0, v.expansionSize, "expansion size restored")
	assert.Empty(t, v.expansions)
	assert.Empty(t, v.edgeWatchers)
	assert.Equal(t, watchersBefore, len(v.nodeWatchers), "child watchers released")

	assert.False(t, v.Collapse(u.ID(), "posts"), "collapse of a collapsed edge is a no-op")
}

func TestExpandIsIdempotent(t *testing.T) {
	g := newBlogGraph(t)
	u, _ := g.Insert("User", nil)
	p := insertPost(t, g, "p", true, 1, 0)
	g.Link(u.ID(), "posts", p.ID())

	enters := 0
	v, err := g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"posts": {}},
	}, ViewCallbacks{
		OnEnter: func(n *Node, depth int, edge string, parentID int64) {
			if edge == "posts" {
				enters++
			}
		},
	})
	require.NoError(t, err)
	defer v.Destroy()

	require.True(t, v.Expand(u.ID(), "posts"))
	assert.False(t, v.Expand(u.ID(), "posts"))
	assert.Equal(t, 1, enters)
	assert.Equal(t, 2, v.VisibleTotal())
}

func TestLinkIntoExpandedParent(t *testing.T) {
	g := newBlogGraph(t)
	u, _ := g.Insert("User", nil)
	p1 := insertPost(t, g, "a", true, 1, 0)
	g.Link(u.ID(), "posts", p1.ID())

	var entered []int64
	v, err := g.NewView(ViewQuery{
		Type: "User",
		Edges: map[string]*EdgeConfig{
			"posts": {Filters: []Filter{{Field: "published", Value: Bool(true)}}},
		},
	}, ViewCallbacks{
		OnEnter: func(n *Node, depth int, edge string, parentID int64) {
			if edge == "posts" {
				entered = append(entered, n.ID())
			}
		},
	})
	require.NoError(t, err)
	defer v.Destroy()

	require.True(t, v.Expand(u.ID(), "posts"))
	require.Equal(t, []int64{p1.ID()}, entered)
	require.Equal(t, 2, v.VisibleTotal())

	p2 := insertPost(t, g, "b", true, 2, 0)
	g.Link(u.ID(), "posts", p2.ID())
	assert.Equal(t, []int64{p1.ID(), p2.ID()}, entered)
	assert.Equal(t, 3, v.VisibleTotal())

	// A non-matching child is ignored.
	draft := insertPost(t, g, "c", false, 3, 0)
	g.Link(u.ID(), "posts", draft.ID())
	assert.Len(t, entered, 2)
	assert.Equal(t, 3, v.VisibleTotal())

	// The draft publishing transitions it into the window.
	require.NoError(t, draft.Prop("published").Set(Bool(true)))
	assert.Equal(t, []int64{p1.ID(), p2.ID(), draft.ID()}, entered)
	assert.Equal(t, 4, v.VisibleTotal())
}

func TestEagerExpansionOnNewRoot(t *testing.T) {
	g := newBlogGraph(t)

	v, err := g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"posts": {Eager: Enabled()}},
	}, ViewCallbacks{})
	require.NoError(t, err)
	defer v.Destroy()

	u, _ := g.Insert("User", nil)
	p := insertPost(t, g, "a", true, 1, 0)
	g.Link(u.ID(), "posts", p.ID())

	assert.Equal(t, []int64{u.ID(), p.ID()}, collectIDs(v.Collect()),
		"eager edge expanded when the root entered, link lands in the window")
}

func TestSeekPositionOfAndScroll(t *testing.T) {
	g := newBlogGraph(t)
	var users []*Node
	for i := 0; i < 3; i++ {
		u, _ := g.Insert("User", nil)
		users = append(users, u)
	}
	p := insertPost(t, g, "p", true, 1, 0)
	g.Link(users[0].ID(), "posts", p.ID())

	v, err := g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"posts": {}},
	}, ViewCallbacks{})
	require.NoError(t, err)
	defer v.Destroy()

	require.True(t, v.Expand(users[0].ID(), "posts"))
	// Order: u0, p, u1, u2.
	require.Equal(t, 4, v.VisibleTotal())

	it, ok := v.Seek(1)
	require.True(t, ok)
	assert.Equal(t, p.ID(), it.ID)
	assert.Equal(t, 1, it.Depth)

	it, ok = v.Seek(2)
	require.True(t, ok)
	assert.Equal(t, users[1].ID(), it.ID)

	_, ok = v.Seek(4)
	assert.False(t, ok, "seek past visible_total returns none")

	pos, ok := v.PositionOf(users[2].ID())
	require.True(t, ok)
	assert.Equal(t, 3, pos)

	v.Scroll(2)
	assert.Equal(t, []int64{users[1].ID(), users[2].ID()}, collectIDs(v.Items()))
}

func TestViewportLimit(t *testing.T) {
	g := newBlogGraph(t)
	for i := 0; i < 5; i++ {
		g.Insert("User", nil)
	}

	v, err := g.NewView(ViewQuery{Type: "User", Offset: 1, Limit: 2}, ViewCallbacks{})
	require.NoError(t, err)
	defer v.Destroy()

	items := v.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Position)
	assert.Equal(t, 2, items[1].Position)

	assert.Len(t, v.Collect(), 5, "collect ignores the viewport")
}

func TestItemHandlesAddressExactPaths(t *testing.T) {
	g := newBlogGraph(t)
	u1, _ := g.Insert("User", nil)
	u2, _ := g.Insert("User", nil)
	p := insertPost(t, g, "shared", true, 1, 0)
	c, _ := g.Insert("Comment", Props{"text": String("x")})
	g.Link(u1.ID(), "posts", p.ID())
	g.Link(u2.ID(), "posts", p.ID())
	g.Link(p.ID(), "comments", c.ID())

	v, err := g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"posts": {Edges: map[string]*EdgeConfig{"comments": {}}}},
	}, ViewCallbacks{})
	require.NoError(t, err)
	defer v.Destroy()

	require.True(t, v.Expand(u1.ID(), "posts"))
	require.True(t, v.Expand(u2.ID(), "posts"))

	// view.Expand addresses the first found path; item handles pick the
	// exact occurrence.
	var second Item
	for _, it := range v.Collect() {
		if it.ID == p.ID() && it.ParentID == u2.ID() {
			second = it
		}
	}
	require.NotNil(t, second.Node)

	require.True(t, second.Expand("comments"))
	assert.True(t, second.IsExpanded("comments"))
	assert.Equal(t, 1, second.ChildCount("comments"))

	firstOccurrence, ok := v.Seek(1)
	require.True(t, ok)
	require.Equal(t, p.ID(), firstOccurrence.ID)
	assert.False(t, firstOccurrence.IsExpanded("comments"), "expansion is per path")
	assert.True(t, firstOccurrence.Toggle("comments"))
	assert.True(t, firstOccurrence.IsExpanded("comments"))
}

func TestViewDestroyDropsEverything(t *testing.T) {
	g := newBlogGraph(t)
	u, _ := g.Insert("User", nil)
	p := insertPost(t, g, "a", true, 1, 0)
	g.Link(u.ID(), "posts", p.ID())

	changes := 0
	v, err := g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"posts": {}},
	}, ViewCallbacks{
		OnChange: func(n *Node, prop string, newV, oldV Value) { changes++ },
	})
	require.NoError(t, err)
	require.True(t, v.Expand(u.ID(), "posts"))

	v.Destroy()
	assert.Empty(t, v.nodeWatchers)
	assert.Empty(t, v.expansions)
	assert.Equal(t, 0, v.VisibleTotal())

	g.Update(u.ID(), Props{"name": String("x")})
	assert.Equal(t, 0, changes, "destroyed views receive nothing")
	assert.Empty(t, v.Items())

	v.Destroy() // idempotent
}

func TestViewRequiresCoveringIndex(t *testing.T) {
	g := newBlogGraph(t)

	_, err := g.NewView(ViewQuery{
		Type:    "User",
		Filters: []Filter{{Field: "name", Op: OpGt, Value: String("a")}, {Field: "age", Op: OpGt, Value: Int(1)}},
	}, ViewCallbacks{})
	assert.ErrorIs(t, err, ErrNoCoveringIndex)

	_, err = g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"posts": {Sort: &Sort{Field: "score", Dir: Desc}}},
	}, ViewCallbacks{})
	assert.ErrorIs(t, err, ErrNoCoveringIndex, "edge sort direction must match an index")

	_, err = g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"bogus": {}},
	}, ViewCallbacks{})
	assert.ErrorIs(t, err, ErrUnknownEdge)
}

func TestRecursiveEdgeConfig(t *testing.T) {
	schema := &Schema{Types: []TypeDef{
		{
			Name:       "Dir",
			Properties: []PropertyDef{{Name: "name"}},
			Edges:      []EdgeDef{{Name: "children", Target: "Dir"}},
		},
	}}
	g, err := New(schema)
	require.NoError(t, err)

	root, _ := g.Insert("Dir", Props{"name": String("/")})
	sub, _ := g.Insert("Dir", Props{"name": String("sub")})
	leaf, _ := g.Insert("Dir", Props{"name": String("leaf")})
	g.Link(root.ID(), "children", sub.ID())
	g.Link(sub.ID(), "children", leaf.ID())

	v, err := g.NewView(ViewQuery{
		Type:  "Dir",
		Edges: map[string]*EdgeConfig{"children": {Recursive: true}},
	}, ViewCallbacks{})
	require.NoError(t, err)
	defer v.Destroy()

	// Every node is also a root here; expand down the chain.
	require.True(t, v.Expand(root.ID(), "children"))
	pk := childPath(rootPath(root.ID()), "children", sub.ID())
	require.True(t, v.expand(pk, "children", false), "recursive config reaches depth 2")

	var depths []int
	for _, it := range v.Collect() {
		if it.PathKey == childPath(pk, "children", leaf.ID()) {
			depths = append(depths, it.Depth)
		}
	}
	assert.Equal(t, []int{2}, depths)
}

func TestDerivedEdgeInView(t *testing.T) {
	g := newBlogGraph(t)
	u, _ := g.Insert("User", nil)
	p1 := insertPost(t, g, "a", true, 1, 0)
	p2 := insertPost(t, g, "b", false, 2, 0)
	g.Link(u.ID(), "posts", p1.ID())
	g.Link(u.ID(), "posts", p2.ID())

	var entered, left []int64
	v, err := g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"published": {}},
	}, ViewCallbacks{
		OnEnter: func(n *Node, depth int, edge string, parentID int64) {
			if edge == "published" {
				entered = append(entered, n.ID())
			}
		},
		OnLeave: func(n *Node, edge string, parentID int64) {
			if edge == "published" {
				left = append(left, n.ID())
			}
		},
	})
	require.NoError(t, err)
	defer v.Destroy()

	require.True(t, v.Expand(u.ID(), "published"))
	require.Equal(t, []int64{p1.ID()}, entered)

	require.NoError(t, p2.Prop("published").Set(Bool(true)))
	assert.Equal(t, []int64{p1.ID(), p2.ID()}, entered, "derived link lands in the expanded window")

	require.NoError(t, p1.Prop("published").Set(Bool(false)))
	assert.Equal(t, []int64{p1.ID()}, left, "derived unlink leaves the window")
	assert.Equal(t, 2, v.VisibleTotal())
}

func TestReferenceEdgeClampsToOne(t *testing.T) {
	g := newBlogGraph(t)
	u, _ := g.Insert("User", nil)
	p1 := insertPost(t, g, "a", true, 1, 0)
	p2 := insertPost(t, g, "b", true, 2, 0)
	g.Link(u.ID(), "posts", p1.ID())
	g.Link(u.ID(), "posts", p2.ID())

	v, err := g.NewView(ViewQuery{
		Type:  "User",
		Edges: map[string]*EdgeConfig{"latest": {}},
	}, ViewCallbacks{})
	require.NoError(t, err)
	defer v.Destroy()

	require.True(t, v.Expand(u.ID(), "latest"))
	assert.Equal(t, 2, v.VisibleTotal(), "reference expansion contributes at most one")
	assert.Equal(t, []int64{u.ID(), p2.ID()}, collectIDs(v.Collect()))
}

// TestTakeWindowDisplacement pins the cursor diff: a link that sorts into
// the middle of a full take-window displaces the boundary child.
func TestTakeWindowDisplacement(t *testing.T) {
	g := newBlogGraph(t)
	u, _ := g.Insert("User", nil)
	pa := insertPost(t, g, "A", true, 1, 0)
	pc := insertPost(t, g, "C", true, 2, 0)
	g.Link(u.ID(), "posts", pa.ID())
	g.Link(u.ID(), "posts", pc.ID())

	var entered, left []int64
	v, err := g.NewView(ViewQuery{
		Type: "User",
		Edges: map[string]*EdgeConfig{
			"posts": {Sort: &Sort{Field: "title", Dir: Asc}, Take: intp(2)},
		},
	}, ViewCallbacks{
		OnEnter: func(n *Node, depth int, edge string, parentID int64) {
			if edge == "posts" {
				entered = append(entered, n.ID())
			}
		},
		OnLeave: func(n *Node, edge string, parentID int64) {
			if edge == "posts" {
				left = append(left, n.ID())
			}
		},
	})
	require.NoError(t, err)
	defer v.Destroy()

	require.True(t, v.Expand(u.ID(), "posts"))
	require.Equal(t, []int64{pa.ID(), pc.ID()}, entered)

	pb := insertPost(t, g, "B", true, 3, 0)
	g.Link(u.ID(), "posts", pb.ID())

	assert.Equal(t, []int64{pc.ID()}, left, "C slides out of the window")
	assert.Equal(t, []int64{pa.ID(), pc.ID(), pb.ID()}, entered, "B slides in")
	assert.Equal(t, []int64{u.ID(), pa.ID(), pb.ID()}, collectIDs(v.Collect()))
	assert.Equal(t, 3, v.VisibleTotal())

	// Renaming B past C swaps them back.
	require.NoError(t, pb.Prop("title").Set(String("Z")))
	assert.Equal(t, []int64{pc.ID(), pb.ID()}, left)
	assert.Equal(t, []int64{pa.ID(), pc.ID(), pb.ID(), pc.ID()}, entered)
	assert.Equal(t, []int64{u.ID(), pa.ID(), pc.ID()}, collectIDs(v.Collect()))

	// The walk agrees with the virtual totals.
	items := v.Collect()
	require.Len(t, items, v.VisibleTotal())
	for i, it := range items {
		assert.Equal(t, i, it.Position)
	}
}
