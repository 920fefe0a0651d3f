package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryModel = `
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

// writeFile writes content to name under dir and returns the full path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "quarry", cmd.Use)
	assert.Contains(t, cmd.Long, "dialect SQL")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"compile"},
		{"catalog", "build"},
		{"catalog", "gen"},
		{"ddl"},
		{"exec"},
		{"watch"},
	}

	for _, path := range commands {
		t.Run(filepath.Join(path...), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"verbose", "v", "false"},
		{"format", "", "text"},
		{"entities", "e", ""},
		{"dialect", "d", ""},
		{"named", "", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := cmd.PersistentFlags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
			assert.Equal(t, tt.defValue, flag.DefValue)
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := runCLI(t, "ddl", "--format", "xml", "-e", "unused.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestDialectName(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		env      string
		fallback string
		want     string
	}{
		{"default", "", "", "", "ansi"},
		{"fallback", "", "", "h2", "h2"},
		{"environment over fallback", "", "postgres", "h2", "postgres"},
		{"flag over environment", "mysql", "postgres", "h2", "mysql"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(DialectEnv, tt.env)
			opts := &RootOptions{Dialect: tt.flag}
			assert.Equal(t, tt.want, opts.DialectName(tt.fallback))
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()

	_, err := (&RootOptions{}).LoadRegistry()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = loadRegistry(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bad := writeFile(t, dir, "bad.json", `{"entities": [{"name": ""}]}`)
	_, err = loadRegistry(bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	good := writeFile(t, dir, "model.yaml", libraryModel)
	registry, err := loadRegistry(good)
	require.NoError(t, err)
	_, ok := registry.Entity("Book")
	assert.True(t, ok)
}

func TestCompiler_UnknownDialect(t *testing.T) {
	dir := t.TempDir()
	registry, err := loadRegistry(writeFile(t, dir, "model.yaml", libraryModel))
	require.NoError(t, err)

	_, err = (&RootOptions{Dialect: "sybase"}).Compiler(registry, "", false)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
