package executor

import (
	"testing"
	"time"

	"github.com/asaidimu/go-quarry/core/compiler"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/dialect"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type authorRow struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

type bookRow struct {
	ID        int64     `json:"id,omitempty"`
	Title     string    `json:"title"`
	Pages     int64     `json:"pages"`
	Available bool      `json:"available"`
	Author    authorRow `json:"author"`
	Version   int64     `json:"version"`
}

func newRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	id := func() *schema.PersistentProperty {
		return &schema.PersistentProperty{Name: "id", Type: schema.DataTypeLong, Generated: true}
	}
	registry, err := schema.NewRegistry(nil,
		&schema.PersistentEntity{
			Name:     "Author",
			Identity: id(),
			Properties: []*schema.PersistentProperty{
				{Name: "name"},
				{Name: "created", Type: schema.DataTypeTimestamp, AutoPopulated: schema.AutoPopulatedDateCreated},
				{Name: "updated", Type: schema.DataTypeTimestamp, AutoPopulated: schema.AutoPopulatedDateUpdated},
			},
		},
		&schema.PersistentEntity{
			Name:     "Book",
			Identity: id(),
			Properties: []*schema.PersistentProperty{
				{Name: "title"},
				{Name: "pages", Type: schema.DataTypeInteger},
				{Name: "available", Type: schema.DataTypeBoolean},
				{Name: "author", Association: &schema.Association{Kind: schema.RelationManyToOne, Target: "Author"}},
			},
			Version: &schema.PersistentProperty{Name: "version", Type: schema.DataTypeInteger},
		},
	)
	require.NoError(t, err)
	return registry
}

func newCompiler(t *testing.T, d dialect.Dialect, registry *schema.Registry, named bool) *compiler.Compiler {
	t.Helper()
	opts := compiler.DefaultOptions()
	opts.NamedParameters = named
	c, err := compiler.New(d, registry, opts)
	require.NoError(t, err)
	return c
}

func mustEntity(t *testing.T, registry *schema.Registry, name string) *schema.PersistentEntity {
	t.Helper()
	e, ok := registry.Entity(name)
	require.True(t, ok, name)
	return e
}

func eq(property string, value any) query.Comparison {
	return query.Comparison{Property: property, Operator: query.ComparisonOperatorEq, Value: value}
}
