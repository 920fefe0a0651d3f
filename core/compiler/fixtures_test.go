package compiler

import (
	"testing"

	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/dialect"
	"github.com/stretchr/testify/require"
)

// library returns a fresh set of entities for a book catalogue. Registration
// mutates entities, so every test builds its own.
func library() []*schema.PersistentEntity {
	id := func() *schema.PersistentProperty {
		return &schema.PersistentProperty{Name: "id", Type: schema.DataTypeLong, Generated: true}
	}
	return []*schema.PersistentEntity{
		{
			Name:     "Publisher",
			Identity: id(),
			Properties: []*schema.PersistentProperty{
				{Name: "name"},
			},
		},
		{
			Name:     "Author",
			Identity: id(),
			Properties: []*schema.PersistentProperty{
				{Name: "name"},
				{Name: "publisher", Association: &schema.Association{Kind: schema.RelationManyToOne, Target: "Publisher"}},
				{Name: "books", Association: &schema.Association{Kind: schema.RelationOneToMany, Target: "Book", MappedBy: "author"}},
			},
		},
		{
			Name:     "Book",
			Identity: id(),
			Properties: []*schema.PersistentProperty{
				{Name: "title"},
				{Name: "pages", Type: schema.DataTypeInteger},
				{Name: "author", Association: &schema.Association{Kind: schema.RelationManyToOne, Target: "Author"}},
				{Name: "tags", Association: &schema.Association{Kind: schema.RelationManyToMany, Target: "Tag"}},
			},
			Version: &schema.PersistentProperty{Name: "version", Type: schema.DataTypeInteger},
		},
		{
			Name:     "Tag",
			Identity: &schema.PersistentProperty{Name: "id", Type: schema.DataTypeLong},
			Properties: []*schema.PersistentProperty{
				{Name: "name"},
				{Name: "books", Association: &schema.Association{Kind: schema.RelationManyToMany, Target: "Book", MappedBy: "tags"}},
			},
		},
		{
			Name: "Edition",
			CompositeIdentity: []*schema.PersistentProperty{
				{Name: "publisher"},
				{Name: "title"},
			},
			Properties: []*schema.PersistentProperty{
				{Name: "year", Type: schema.DataTypeInteger},
			},
		},
		{
			Name:     "Person",
			Identity: id(),
			Properties: []*schema.PersistentProperty{
				{Name: "name"},
				{Name: "address", Embedded: []*schema.PersistentProperty{
					{Name: "street"},
					{Name: "city"},
				}},
				{Name: "nickname", Transient: true},
				{Name: "created", Type: schema.DataTypeTimestamp, AutoPopulated: schema.AutoPopulatedDateCreated},
				{Name: "updated", Type: schema.DataTypeTimestamp, AutoPopulated: schema.AutoPopulatedDateUpdated},
			},
		},
		{
			Name: "Shipment",
			Identity: &schema.PersistentProperty{Name: "id", Embedded: []*schema.PersistentProperty{
				{Name: "country"},
				{Name: "code"},
			}},
			Properties: []*schema.PersistentProperty{
				{Name: "weight", Type: schema.DataTypeDouble},
				{Name: "checksum", ReadOnly: true},
			},
		},
		{
			Name: "Audit",
			Properties: []*schema.PersistentProperty{
				{Name: "message"},
			},
		},
	}
}

func newRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry, err := schema.NewRegistry(nil, library()...)
	require.NoError(t, err)
	return registry
}

func newCompiler(t *testing.T, d dialect.Dialect, opts ...func(*Options)) *Compiler {
	t.Helper()
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	c, err := New(d, newRegistry(t), options)
	require.NoError(t, err)
	return c
}

func entity(t *testing.T, c *Compiler, name string) *schema.PersistentEntity {
	t.Helper()
	e, ok := c.Registry().Entity(name)
	require.True(t, ok, "entity %s not registered", name)
	return e
}

func eq(property string, value any) query.Comparison {
	return query.Comparison{Property: property, Operator: query.ComparisonOperatorEq, Value: value}
}

func and(criteria ...query.Criterion) query.Junction {
	return query.Junction{Operator: query.LogicalOperatorAnd, Criteria: criteria}
}

func or(criteria ...query.Criterion) query.Junction {
	return query.Junction{Operator: query.LogicalOperatorOr, Criteria: criteria}
}

// bookColumns is the select list of Book at its default alias.
const bookColumns = `book_."id",book_."title",book_."pages",book_."author_id",book_."version"`
