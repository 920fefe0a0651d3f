package compiler

import (
	"errors"
	"testing"

	"github.com/asaidimu/go-quarry/core"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func references(result *query.QueryResult) []string {
	out := make([]string, len(result.Bindings))
	for i, b := range result.Bindings {
		out[i] = b.Reference()
	}
	return out
}

func TestBuildInsert(t *testing.T) {
	tests := []struct {
		name       string
		dialect    dialect.Dialect
		entity     string
		expected   string
		references []string
	}{
		{
			name:       "generated id excluded",
			dialect:    dialect.H2(),
			entity:     "Book",
			expected:   `INSERT INTO "book" ("title","pages","author_id","version") VALUES (?,?,?,?)`,
			references: []string{"entity.title", "entity.pages", "entity.author.id", "entity.version"},
		},
		{
			name:       "inverse collection skipped",
			dialect:    dialect.H2(),
			entity:     "Author",
			expected:   `INSERT INTO "author" ("name","publisher_id") VALUES (?,?)`,
			references: []string{"entity.name", "entity.publisher.id"},
		},
		{
			name:       "assigned id",
			dialect:    dialect.H2(),
			entity:     "Tag",
			expected:   `INSERT INTO "tag" ("id","name") VALUES (?,?)`,
			references: []string{"entity.id", "entity.name"},
		},
		{
			name:       "composite id",
			dialect:    dialect.H2(),
			entity:     "Edition",
			expected:   `INSERT INTO "edition" ("publisher","title","year") VALUES (?,?,?)`,
			references: []string{"entity.publisher", "entity.title", "entity.year"},
		},
		{
			name:       "embedded id and read-only property",
			dialect:    dialect.H2(),
			entity:     "Shipment",
			expected:   `INSERT INTO "shipment" ("id_country","id_code","weight") VALUES (?,?,?)`,
			references: []string{"entity.id.country", "entity.id.code", "entity.weight"},
		},
		{
			name:       "embedded and transient",
			dialect:    dialect.H2(),
			entity:     "Person",
			expected:   `INSERT INTO "person" ("name","address_street","address_city","created","updated") VALUES (?,?,?,?,?)`,
			references: []string{"entity.name", "entity.address.street", "entity.address.city", "entity.created", "entity.updated"},
		},
		{
			name:       "postgres returning",
			dialect:    dialect.Postgres(),
			entity:     "Book",
			expected:   `INSERT INTO "book" ("title","pages","author_id","version") VALUES ($1,$2,$3,$4) RETURNING "id"`,
			references: []string{"entity.title", "entity.pages", "entity.author.id", "entity.version"},
		},
		{
			name:       "postgres assigned id has no returning",
			dialect:    dialect.Postgres(),
			entity:     "Tag",
			expected:   `INSERT INTO "tag" ("id","name") VALUES ($1,$2)`,
			references: []string{"entity.id", "entity.name"},
		},
		{
			name:       "oracle sequence",
			dialect:    dialect.Oracle(nil),
			entity:     "Book",
			expected:   `INSERT INTO "book" ("id","title","pages","author_id","version") VALUES ("book_seq".NEXTVAL,:1,:2,:3,:4)`,
			references: []string{"entity.title", "entity.pages", "entity.author.id", "entity.version"},
		},
		{
			name:       "mysql",
			dialect:    dialect.MySQL(),
			entity:     "Tag",
			expected:   "INSERT INTO `tag` (`id`,`name`) VALUES (?,?)",
			references: []string{"entity.id", "entity.name"},
		},
		{
			name:       "dynamodb document",
			dialect:    dialect.DynamoDb(),
			entity:     "Tag",
			expected:   `INSERT INTO "tag" VALUE {'id' : ?, 'name' : ?}`,
			references: []string{"entity.id", "entity.name"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCompiler(t, tt.dialect)
			result, err := c.BuildInsert(entity(t, c, tt.entity))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Query)
			assert.Equal(t, query.OperationInsert, result.Operation)
			assert.Equal(t, tt.references, references(result))
		})
	}
}

func TestBuildInsert_Bindings(t *testing.T) {
	c := newCompiler(t, dialect.H2())
	result, err := c.BuildInsert(entity(t, c, "Person"))
	require.NoError(t, err)

	require.Len(t, result.Bindings, 5)
	assert.Equal(t, "address_street", result.Bindings[1].Column)
	assert.Equal(t, "address.street", result.Bindings[1].PropertyPath)
	assert.Equal(t, schema.AutoPopulatedDateCreated, result.Bindings[3].AutoPopulated)
	assert.Equal(t, schema.DataTypeTimestamp, result.Bindings[3].DataType)
	assert.Equal(t, schema.AutoPopulatedDateUpdated, result.Bindings[4].AutoPopulated)
}

func TestBuildInsert_OracleCustomSequence(t *testing.T) {
	entities := library()
	for _, e := range entities {
		if e.Name == "Book" {
			e.Identity.Sequence = "books_id_seq"
		}
	}
	registry, err := schema.NewRegistry(nil, entities...)
	require.NoError(t, err)
	c, err := New(dialect.Oracle(nil), registry, nil)
	require.NoError(t, err)

	result, err := c.BuildInsert(entity(t, c, "Book"))
	require.NoError(t, err)
	assert.Contains(t, result.Query, `VALUES ("books_id_seq".NEXTVAL,:1`)
}

func TestBuildUpdate(t *testing.T) {
	tests := []struct {
		name       string
		dialect    dialect.Dialect
		entity     string
		spec       query.UpdateSpec
		expected   string
		references []string
	}{
		{
			name:       "versioned entity",
			dialect:    dialect.H2(),
			entity:     "Book",
			expected:   `UPDATE "book" SET "title"=?,"pages"=?,"author_id"=?,"version"=? WHERE ("id" = ? AND "version" = ?)`,
			references: []string{"entity.title", "entity.pages", "entity.author.id", "entity.version", "entity.id", "entity.version"},
		},
		{
			name:       "auto populated",
			dialect:    dialect.H2(),
			entity:     "Person",
			expected:   `UPDATE "person" SET "name"=?,"address_street"=?,"address_city"=?,"updated"=? WHERE ("id" = ?)`,
			references: []string{"entity.name", "entity.address.street", "entity.address.city", "entity.updated", "entity.id"},
		},
		{
			name:       "assignments add date updated",
			dialect:    dialect.H2(),
			entity:     "Person",
			spec:       query.UpdateSpec{Assignments: []query.Assignment{{Property: "name", Value: "Ann"}}},
			expected:   `UPDATE "person" SET "name"=?,"updated"=? WHERE ("id" = ?)`,
			references: []string{"", "entity.updated", "entity.id"},
		},
		{
			name:    "assignments with criteria",
			dialect: dialect.H2(),
			entity:  "Book",
			spec: query.UpdateSpec{
				Assignments: []query.Assignment{{Property: "title", Value: "New"}},
				Criteria:    query.Comparison{Property: "pages", Operator: query.ComparisonOperatorGt, Value: 100},
			},
			expected:   `UPDATE "book" SET "title"=? WHERE ("pages" > ?)`,
			references: []string{"", ""},
		},
		{
			name:    "criteria on foreign key",
			dialect: dialect.Postgres(),
			entity:  "Book",
			spec: query.UpdateSpec{
				Assignments: []query.Assignment{{Property: "title", Value: query.Param("title")}},
				Criteria:    eq("author.id", query.Param("author")),
			},
			expected:   `UPDATE "book" SET "title"=$1 WHERE ("author_id" = $2)`,
			references: []string{"title", "author"},
		},
		{
			name:       "embedded id",
			dialect:    dialect.H2(),
			entity:     "Shipment",
			expected:   `UPDATE "shipment" SET "weight"=? WHERE ("id_country" = ? AND "id_code" = ?)`,
			references: []string{"entity.weight", "entity.id.country", "entity.id.code"},
		},
		{
			name:       "unconditional",
			dialect:    dialect.H2(),
			entity:     "Audit",
			spec:       query.UpdateSpec{AllowUnconditional: true},
			expected:   `UPDATE "audit" SET "message"=?`,
			references: []string{"entity.message"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCompiler(t, tt.dialect)
			result, err := c.BuildUpdate(entity(t, c, tt.entity), tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Query)
			assert.Equal(t, tt.references, references(result))
		})
	}
}

func TestBuildUpdate_OptimisticLocking(t *testing.T) {
	c := newCompiler(t, dialect.H2())
	result, err := c.BuildUpdate(entity(t, c, "Book"), query.UpdateSpec{})
	require.NoError(t, err)

	require.Len(t, result.Bindings, 6)
	next, current := result.Bindings[3], result.Bindings[5]
	assert.True(t, next.NextVersion)
	assert.Equal(t, "version", next.Column)
	assert.False(t, current.NextVersion)
	assert.Equal(t, "version", current.Column)
}

func TestBuildUpdate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		entity   string
		spec     query.UpdateSpec
		sentinel error
	}{
		{"no identity", "Audit", query.UpdateSpec{}, core.ErrUnsafeOperation},
		{"empty criteria", "Book", query.UpdateSpec{Criteria: and()}, core.ErrUnsafeOperation},
		{"identity assignment", "Book", query.UpdateSpec{Assignments: []query.Assignment{{Property: "id", Value: 1}}}, core.ErrMapping},
		{"join in criteria", "Book", query.UpdateSpec{Criteria: eq("author.name", "x")}, core.ErrMapping},
		{"unknown assignment", "Book", query.UpdateSpec{Assignments: []query.Assignment{{Property: "isbn", Value: 1}}}, core.ErrMapping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCompiler(t, dialect.H2())
			_, err := c.BuildUpdate(entity(t, c, tt.entity), tt.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
		})
	}
}

func TestBuildDelete(t *testing.T) {
	tests := []struct {
		name     string
		dialect  dialect.Dialect
		entity   string
		spec     query.DeleteSpec
		expected string
	}{
		{"versioned", dialect.H2(), "Book", query.DeleteSpec{}, `DELETE FROM "book" WHERE ("id" = ? AND "version" = ?)`},
		{"postgres", dialect.Postgres(), "Book", query.DeleteSpec{}, `DELETE FROM "book" WHERE ("id" = $1 AND "version" = $2)`},
		{"unversioned", dialect.H2(), "Tag", query.DeleteSpec{}, `DELETE FROM "tag" WHERE ("id" = ?)`},
		{"composite id", dialect.H2(), "Edition", query.DeleteSpec{}, `DELETE FROM "edition" WHERE ("publisher" = ? AND "title" = ?)`},
		{"criteria", dialect.H2(), "Book", query.DeleteSpec{Criteria: eq("title", "Dune")}, `DELETE FROM "book" WHERE ("title" = ?)`},
		{"unconditional", dialect.H2(), "Audit", query.DeleteSpec{AllowUnconditional: true}, `DELETE FROM "audit"`},
		{"sqlserver", dialect.SqlServer(), "Tag", query.DeleteSpec{}, `DELETE FROM [tag] WHERE ([id] = @p1)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCompiler(t, tt.dialect)
			result, err := c.BuildDelete(entity(t, c, tt.entity), tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Query)
			assert.Equal(t, query.OperationDelete, result.Operation)
		})
	}

	c := newCompiler(t, dialect.H2())
	_, err := c.BuildDelete(entity(t, c, "Audit"), query.DeleteSpec{})
	assert.True(t, errors.Is(err, core.ErrUnsafeOperation))
}
