// Package graph schema validation and YAML loading tests.
package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRejections(t *testing.T) {
	cases := []struct {
		name   string
		schema *Schema
	}{
		{"duplicate type", &Schema{Types: []TypeDef{{Name: "A"}, {Name: "A"}}}},
		{"unknown edge target", &Schema{Types: []TypeDef{
			{Name: "A", Edges: []EdgeDef{{Name: "e", Target: "Ghost"}}},
		}}},
		{"rollup over unknown edge", &Schema{Types: []TypeDef{
			{Name: "A", Rollups: []RollupDef{{Name: "r", Kind: RollupProperty, Edge: "nope", Compute: ComputeCount}}},
		}}},
		{"rollup name collides with property", &Schema{Types: []TypeDef{
			{
				Name:       "A",
				Properties: []PropertyDef{{Name: "n"}},
				Edges:      []EdgeDef{{Name: "e", Target: "A"}},
				Rollups:    []RollupDef{{Name: "n", Kind: RollupProperty, Edge: "e", Compute: ComputeCount}},
			},
		}}},
		{"rollup without covering index", &Schema{Types: []TypeDef{
			{
				Name:  "A",
				Edges: []EdgeDef{{Name: "e", Target: "B"}},
				Rollups: []RollupDef{{
					Name: "r", Kind: RollupCollection, Edge: "e",
					Filters: []Filter{{Field: "x", Value: Int(1)}},
				}},
			},
			{Name: "B", Properties: []PropertyDef{{Name: "x"}}},
		}}},
		{"sum without property", &Schema{Types: []TypeDef{
			{
				Name:    "A",
				Edges:   []EdgeDef{{Name: "e", Target: "A"}},
				Rollups: []RollupDef{{Name: "r", Kind: RollupProperty, Edge: "e", Compute: ComputeSum}},
			},
		}}},
		{"index on unknown field", &Schema{Types: []TypeDef{
			{Name: "A", Indexes: []IndexDef{{Name: "i", Fields: []IndexField{{Field: "ghost"}}}}},
		}}},
		{"edge index on unknown target field", &Schema{Types: []TypeDef{
			{Name: "A", Edges: []EdgeDef{{
				Name: "e", Target: "B",
				Indexes: []IndexDef{{Name: "i", Fields: []IndexField{{Field: "ghost"}}}},
			}}},
			{Name: "B"},
		}}},
		{"reverse collides with target edge", &Schema{Types: []TypeDef{
			{Name: "A", Edges: []EdgeDef{{Name: "e", Target: "B", Reverse: "f"}}},
			{Name: "B", Edges: []EdgeDef{{Name: "f", Target: "A"}}},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.schema)
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
}

func TestRollupOverDerivedEdgeRejected(t *testing.T) {
	_, err := New(&Schema{Types: []TypeDef{
		{
			Name:  "A",
			Edges: []EdgeDef{{Name: "e", Target: "B"}},
			Rollups: []RollupDef{
				{Name: "coll", Kind: RollupCollection, Edge: "e"},
				{Name: "n", Kind: RollupProperty, Edge: "coll", Compute: ComputeCount},
			},
		},
		{Name: "B"},
	}})
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

const blogYAML = `
types:
  - name: User
    properties:
      - name: name
      - name: age
    indexes:
      - name: by_name
        fields: [{field: name}]
    edges:
      - name: posts
        target: Post
        reverse: author
        indexes:
          - name: by_published_title
            fields: [{field: published}, {field: title}]
          - name: by_created_desc
            fields: [{field: created_at, dir: desc}]
    rollups:
      - name: post_count
        kind: property
        edge: posts
        compute: count
      - name: published
        kind: collection
        edge: posts
        filters:
          - {field: published, op: eq, value: true}
      - name: latest
        kind: reference
        edge: posts
        sort: {field: created_at, dir: desc}
  - name: Post
    properties:
      - name: title
      - name: published
      - name: created_at
`

func TestLoadSchemaFromYAML(t *testing.T) {
	schema, err := ParseSchemaYAML([]byte(blogYAML))
	require.NoError(t, err)
	require.Len(t, schema.Types, 2)

	g, err := New(schema)
	require.NoError(t, err)

	u, err := g.Insert("User", Props{"name": String("A")})
	require.NoError(t, err)
	p, err := g.Insert("Post", Props{"title": String("t"), "published": Bool(true), "created_at": Number(1)})
	require.NoError(t, err)

	require.True(t, g.Link(u.ID(), "posts", p.ID()))
	assert.Equal(t, Int(1), u.Get("post_count"))
	assert.Equal(t, 1, g.TargetsCount(u.ID(), "published"), "YAML filter values decode into the value union")
	assert.Equal(t, p.ID(), u.Edge("latest").Target().ID())
	assert.True(t, g.HasEdge(p.ID(), "author", u.ID()))
}

func TestLoadSchemaFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blogYAML), 0o644))

	schema, err := LoadSchemaFile(path)
	require.NoError(t, err)
	_, err = New(schema)
	require.NoError(t, err)

	_, err = LoadSchemaFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseSchemaYAMLErrors(t *testing.T) {
	_, err := ParseSchemaYAML([]byte("types: {not: a list}"))
	assert.ErrorIs(t, err, ErrInvalidSchema)

	_, err = ParseSchemaYAML([]byte(`
types:
  - name: A
    rollups:
      - name: r
        kind: property
        edge: e
        compute: count
        filters:
          - {field: x, value: [1, 2]}
`))
	assert.ErrorIs(t, err, ErrInvalidSchema, "non-scalar filter values are rejected")
}

func TestDependenciesAndSummary(t *testing.T) {
	g := newBlogGraph(t)

	var sum []string
	for _, ts := range g.Summary() {
		sum = append(sum, ts.Name)
	}
	assert.Equal(t, []string{"Comment", "Post", "User"}, sum)

	deps := g.Dependencies()
	assert.Contains(t, deps, "Post.title -> edge index User.posts/by_title")
	assert.Contains(t, deps, "Post.score -> rollup User.total_score")
	assert.Contains(t, deps, "Post.published -> derived edge User.published")
	assert.Contains(t, deps, "Post.created_at -> derived edge User.latest")
}
