package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const notesModel = `
entities:
  - name: Note
    identity: {name: id, type: LONG, generated: true}
    properties:
      - name: title
      - name: stars
        type: INTEGER
`

func TestExec_SQLite(t *testing.T) {
	t.Setenv(DialectEnv, "")
	dir := t.TempDir()
	model := writeFile(t, dir, "model.yaml", notesModel)
	dsn := filepath.Join(dir, "notes.db")

	insert := writeFile(t, dir, "insert.yaml", "name: addNote\nentity: Note\noperation: insert\n")
	find := writeFile(t, dir, "find.yaml", "name: byTitle\nentity: Note\nwhere: {property: title, param: title}\n")
	count := writeFile(t, dir, "count.yaml", "name: starred\nentity: Note\noperation: count\nwhere: {property: stars, op: gte, value: 3}\n")
	remove := writeFile(t, dir, "delete.yaml", "name: removeByTitle\nentity: Note\noperation: delete\nwhere: {property: title, param: title}\n")

	exec := func(t *testing.T, args ...string) map[string]any {
		t.Helper()
		base := []string{"exec", "--format", "json", "-e", model, "--dsn", dsn}
		stdout, _, err := runCLI(t, append(base, args...)...)
		require.NoError(t, err)
		var resp CLIResponse
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		require.Equal(t, "ok", resp.Status)
		return resp.Data.(map[string]any)
	}

	data := exec(t, "-q", insert, "--create-tables", "--args", `{"entity": {"title": "hello", "stars": 4}}`)
	assert.Equal(t, map[string]any{"id": float64(1)}, data["generated"])

	data = exec(t, "-q", insert, "--args", `{"entity": {"title": "world", "stars": 1}}`)
	assert.Equal(t, map[string]any{"id": float64(2)}, data["generated"])

	data = exec(t, "-q", find, "--args", `{"title": "hello"}`)
	rows := data["rows"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "hello", row["title"])
	assert.Equal(t, float64(4), row["stars"])

	data = exec(t, "-q", count)
	assert.Equal(t, float64(1), data["count"])

	data = exec(t, "-q", remove, "--args", `{"title": "world"}`)
	assert.Equal(t, float64(1), data["affected"])

	stdout, _, err := runCLI(t, "exec", "-e", model, "--dsn", dsn, "-q", count)
	require.NoError(t, err)
	assert.Equal(t, "{\"count\":1}\n", stdout)
}

func TestExec_Errors(t *testing.T) {
	t.Setenv(DialectEnv, "")
	dir := t.TempDir()
	model := writeFile(t, dir, "model.yaml", notesModel)
	find := writeFile(t, dir, "find.yaml", "name: byTitle\nentity: Note\nwhere: {property: title, param: title}\n")
	dsn := filepath.Join(dir, "notes.db")

	tests := []struct {
		name string
		args []string
		code int
		msg  string
	}{
		{"unsupported driver", []string{"--driver", "oracle", "--dsn", "x"}, ExitCommandError, `unsupported driver "oracle"`},
		{"missing dsn", nil, ExitCommandError, "--dsn is required"},
		{"invalid mysql dsn", []string{"--driver", "mysql", "--dsn", "not a dsn"}, ExitCommandError, "invalid mysql DSN"},
		{"create tables outside sqlite", []string{"--driver", "postgres", "--dsn", "postgres://localhost/db", "--create-tables"}, ExitCommandError, "requires the sqlite3 driver"},
		{"bad arguments", []string{"--dsn", dsn, "--args", "[1]"}, ExitCommandError, "parsing --args"},
		{"missing argument", []string{"--dsn", dsn, "--create-tables"}, ExitFailure, "executing byTitle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"exec", "-e", model, "-q", find}, tt.args...)
			_, _, err := runCLI(t, args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNormalizeDSN(t *testing.T) {
	dsn, err := normalizeDSN("mysql", "user:secret@tcp(localhost:3306)/library")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")

	dsn, err = normalizeDSN("sqlite3", "file::memory:")
	require.NoError(t, err)
	assert.Equal(t, "file::memory:", dsn)
}
