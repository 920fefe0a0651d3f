package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/asaidimu/go-quarry/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryCatalog = `
dialect: h2
queries:
  - name: findByTitle
    entity: Book
    where: {property: title, param: title}
  - name: countLong
    entity: Book
    operation: count
    where: {property: pages, op: gt, value: 300}
`

func TestCatalogBuild_Text(t *testing.T) {
	t.Setenv(DialectEnv, "")
	dir := t.TempDir()
	model := writeFile(t, dir, "model.yaml", libraryModel)
	def := writeFile(t, dir, "queries.yaml", libraryCatalog)
	out := filepath.Join(dir, "queries.msgpack")

	stdout, _, err := runCLI(t, "catalog", "build", "-e", model, "-f", def, "-o", out, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Compiled 2 queries for h2\n")
	assert.Contains(t, stdout, `findByTitle: SELECT `)
	assert.Contains(t, stdout, `countLong: SELECT COUNT(*) FROM "book" book_ WHERE (book_."pages" > ?)`)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	cat, err := catalog.Load(f)
	require.NoError(t, err)
	assert.Equal(t, "h2", cat.Dialect)
	require.Len(t, cat.Entries, 2)
	assert.Equal(t, "findByTitle", cat.Entries[0].Name)
}

func TestCatalogBuild_DialectOverride(t *testing.T) {
	t.Setenv(DialectEnv, "")
	dir := t.TempDir()
	model := writeFile(t, dir, "model.yaml", libraryModel)
	def := writeFile(t, dir, "queries.yaml", libraryCatalog)

	stdout, _, err := runCLI(t, "catalog", "build", "--format", "json", "-e", model, "-f", def, "-d", "postgres", "--named")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   catalog.Catalog `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "postgres", resp.Data.Dialect)
	require.Len(t, resp.Data.Entries, 2)
	assert.Contains(t, resp.Data.Entries[0].Result.Query, `book_."title" = :p1`)
}

func TestCatalogBuild_Errors(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "model.yaml", libraryModel)
	empty := writeFile(t, dir, "empty.yaml", "dialect: h2\n")
	dup := writeFile(t, dir, "dup.yaml", "queries:\n  - {name: a, entity: Book}\n  - {name: a, entity: Author}\n")

	tests := []struct {
		name string
		args []string
		code int
		msg  string
	}{
		{"missing definition", []string{"catalog", "build", "-e", model}, ExitCommandError, "--definition is required"},
		{"unreadable definition", []string{"catalog", "build", "-e", model, "-f", filepath.Join(dir, "missing.yaml")}, ExitCommandError, "reading catalog definition"},
		{"no queries", []string{"catalog", "build", "-e", model, "-f", empty}, ExitCommandError, "parsing catalog definition"},
		{"duplicate names", []string{"catalog", "build", "-e", model, "-f", dup}, ExitFailure, `duplicate query name "a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCatalogGen(t *testing.T) {
	t.Setenv(DialectEnv, "")
	dir := t.TempDir()
	model := writeFile(t, dir, "model.yaml", libraryModel)
	def := writeFile(t, dir, "queries.yaml", libraryCatalog)
	compiled := filepath.Join(dir, "queries.msgpack")

	_, _, err := runCLI(t, "catalog", "build", "-e", model, "-f", def, "-o", compiled)
	require.NoError(t, err)

	t.Run("stdout", func(t *testing.T) {
		stdout, _, err := runCLI(t, "catalog", "gen", "-c", compiled, "-p", "library")
		require.NoError(t, err)
		assert.Contains(t, stdout, "package library")
		assert.Contains(t, stdout, "var FindByTitle = &query.QueryResult{")
		assert.Contains(t, stdout, "var CountLong = &query.QueryResult{")
	})

	t.Run("file", func(t *testing.T) {
		out := filepath.Join(dir, "queries.go")
		stdout, _, err := runCLI(t, "catalog", "gen", "-c", compiled, "-o", out)
		require.NoError(t, err)
		assert.Equal(t, "Wrote 2 queries to "+out+"\n", stdout)

		src, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(src), "package queries")
		assert.Contains(t, string(src), "DO NOT EDIT")
	})

	t.Run("missing catalog", func(t *testing.T) {
		_, _, err := runCLI(t, "catalog", "gen")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("corrupt catalog", func(t *testing.T) {
		corrupt := writeFile(t, dir, "corrupt.msgpack", "\xc1")
		_, _, err := runCLI(t, "catalog", "gen", "-c", corrupt)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})
}
