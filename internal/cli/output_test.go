package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"query": "SELECT 1"}, "ignored"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"query": "SELECT 1"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(nil, "SELECT 1"))
	assert.Equal(t, "SELECT 1\n", buf.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		err := formatter.Fail(NewExitError(ExitCommandError, "--query is required"))
		require.Error(t, err)

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ExitCommandError, resp.Error.Code)
		assert.Equal(t, "--query is required", resp.Error.Message)
	})

	t.Run("text", func(t *testing.T) {
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

		err := formatter.Fail(errors.New("boom"))
		require.Error(t, err)
		assert.Empty(t, out.String())
		assert.Equal(t, "Error: boom\n", errOut.String())
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	formatter.VerboseLog("hidden %d", 1)
	assert.Empty(t, buf.String())

	formatter.Verbose = true
	formatter.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", buf.String())
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "compile", errors.New("inner"))), ExitFailure},
		{"plain error", errors.New("plain"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}

	err := WrapExitError(ExitFailure, "compiling q", errors.New("unknown property"))
	assert.Equal(t, "compiling q: unknown property", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "unknown property")
}
