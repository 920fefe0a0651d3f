package catalog

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/asaidimu/go-quarry/core"
	"github.com/asaidimu/go-quarry/core/compiler"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const metamodel = `
entities:
  - name: Author
    identity: {name: id, type: LONG, generated: true}
    properties:
      - name: name
  - name: Book
    identity: {name: id, type: LONG, generated: true}
    version: {name: version, type: INTEGER}
    properties:
      - name: title
      - name: pages
        type: INTEGER
      - name: author
        association: {kind: MANY_TO_ONE, target: Author}
`

const definitions = `
dialect: h2
queries:
  - name: findByTitle
    entity: Book
    where: {property: title, param: title}
  - name: countLong
    entity: Book
    operation: count
    where: {property: pages, op: gt, value: 300}
  - name: byAuthorName
    entity: Book
    joins: [{path: author, fetch: true}]
    where: {property: author.name, op: startsWith, param: name}
    sort: [{property: pages, direction: desc}]
    page: {size: 5}
  - name: renameBook
    entity: Book
    operation: update
    set: [{property: title, param: title}]
    where: {id: {param: id}}
  - name: insertBook
    entity: Book
    operation: insert
  - name: deleteShort
    entity: Book
    operation: delete
    where:
      or:
        - {property: pages, op: lt, value: 50}
        - not: {property: title, op: isNotEmpty}
  - name: secondPage
    operation: pagination
    page: {page: 2, size: 10}
`

func newCompiler(t *testing.T, d dialect.Dialect) *compiler.Compiler {
	t.Helper()
	registry, err := schema.LoadYAML([]byte(metamodel))
	require.NoError(t, err)
	c, err := compiler.New(d, registry, nil)
	require.NoError(t, err)
	return c
}

func buildCatalog(t *testing.T) *Catalog {
	t.Helper()
	def, err := ParseDefinition([]byte(definitions))
	require.NoError(t, err)
	assert.Equal(t, "h2", def.Dialect)

	cat, err := Build(context.Background(), newCompiler(t, dialect.H2()), def.Queries, nil)
	require.NoError(t, err)
	return cat
}

func TestBuild(t *testing.T) {
	cat := buildCatalog(t)
	assert.Equal(t, "h2", cat.Dialect)

	var names []string
	for _, e := range cat.Entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"findByTitle", "countLong", "byAuthorName", "renameBook", "insertBook", "deleteShort", "secondPage"}, names)

	find, ok := cat.Lookup("findByTitle")
	require.True(t, ok)
	assert.Equal(t, query.OperationSelect, find.Operation)
	assert.Contains(t, find.Query, `WHERE (book_."title" = ?)`)
	require.Len(t, find.Bindings, 1)
	assert.Equal(t, "title", find.Bindings[0].ArgumentName)

	count, _ := cat.Lookup("countLong")
	assert.Equal(t, query.OperationCount, count.Operation)
	assert.Contains(t, count.Query, `book_."pages" > ?`)
	assert.Equal(t, []any{300}, count.LiteralValues())

	byAuthor, _ := cat.Lookup("byAuthorName")
	assert.Contains(t, byAuthor.Query, `book_author_."name" AS "author.name"`)
	assert.Contains(t, byAuthor.Query, `ORDER BY book_."pages" DESC LIMIT 5`)
	require.Len(t, byAuthor.Bindings, 1)
	assert.Equal(t, query.LikePrefix, byAuthor.Bindings[0].Pattern)

	rename, _ := cat.Lookup("renameBook")
	assert.Equal(t, query.OperationUpdate, rename.Operation)
	assert.Contains(t, rename.Query, `UPDATE "book" SET "title"=?`)

	insert, _ := cat.Lookup("insertBook")
	assert.Equal(t, query.OperationInsert, insert.Operation)

	del, _ := cat.Lookup("deleteShort")
	assert.Contains(t, del.Query, ` OR NOT (`)

	page, _ := cat.Lookup("secondPage")
	assert.Contains(t, page.Query, "LIMIT 10")

	_, ok = cat.Lookup("missing")
	assert.False(t, ok)
}

func TestBuild_Errors(t *testing.T) {
	c := newCompiler(t, dialect.H2())

	tests := []struct {
		name    string
		defs    []QueryDefinition
		target  error
		message string
	}{
		{
			name:    "missing name",
			defs:    []QueryDefinition{{Entity: "Book"}},
			message: "has no name",
		},
		{
			name:    "duplicate name",
			defs:    []QueryDefinition{{Name: "q", Entity: "Book"}, {Name: "q", Entity: "Author"}},
			message: "duplicate query name",
		},
		{
			name:   "unknown entity",
			defs:   []QueryDefinition{{Name: "q", Entity: "Magazine"}},
			target: core.ErrMapping,
		},
		{
			name:   "unknown property",
			defs:   []QueryDefinition{{Name: "q", Entity: "Book", Where: &CriterionDefinition{Property: "isbn", ValueDefinition: ValueDefinition{Value: "x"}}}},
			target: core.ErrMapping,
		},
		{
			name:    "unknown comparison operator",
			defs:    []QueryDefinition{{Name: "q", Entity: "Book", Where: &CriterionDefinition{Property: "title", Op: "resembles"}}},
			message: "unknown comparison operator",
		},
		{
			name:    "unknown operation",
			defs:    []QueryDefinition{{Name: "q", Entity: "Book", Operation: "merge"}},
			message: "unknown operation",
		},
		{
			name:    "empty criterion",
			defs:    []QueryDefinition{{Name: "q", Entity: "Book", Where: &CriterionDefinition{}}},
			message: "empty criterion",
		},
		{
			name:    "invalid page",
			defs:    []QueryDefinition{{Name: "q", Entity: "Book", Page: &PageDefinition{Size: 0}}},
			message: "pageable.size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), c, tt.defs, nil)
			require.Error(t, err)
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target), err.Error())
			}
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestBuild_UnsupportedDialect(t *testing.T) {
	def, err := ParseQuery([]byte(`
name: byAuthor
entity: Book
joins: [{path: author}]
where: {property: author.name, param: name}
`))
	require.NoError(t, err)

	obs, logs := observer.New(zapcore.ErrorLevel)
	_, err = Build(context.Background(), newCompiler(t, dialect.Cql()), []QueryDefinition{*def}, &Options{Logger: zap.New(obs), Workers: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnsupported), err.Error())
	assert.Equal(t, 1, logs.FilterMessage("Failed to build catalog").Len())
}

func TestParseDefinition_Empty(t *testing.T) {
	_, err := ParseDefinition([]byte("dialect: h2\n"))
	assert.Error(t, err)

	_, err = ParseDefinition([]byte("queries: [\n"))
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	cat := buildCatalog(t)

	var buf bytes.Buffer
	require.NoError(t, cat.Save(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, cat.Dialect, loaded.Dialect)
	require.Len(t, loaded.Entries, len(cat.Entries))

	for i, e := range cat.Entries {
		got := loaded.Entries[i]
		assert.Equal(t, e.Name, got.Name)
		assert.Equal(t, e.Result.ID, got.Result.ID)
		assert.Equal(t, e.Result.Query, got.Result.Query)
		assert.Equal(t, e.Result.ParameterMap(), got.Result.ParameterMap())
	}

	count, ok := loaded.Lookup("countLong")
	require.True(t, ok)
	assert.Equal(t, []any{int64(300)}, count.LiteralValues())

	_, err = Load(bytes.NewReader([]byte{0xc1}))
	assert.Error(t, err)
}
