package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/asaidimu/go-quarry/catalog"
	"github.com/asaidimu/go-quarry/core/compiler"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/spf13/cobra"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Query string // query definition file
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile one query definition",
		Long: `Compile a YAML query definition against the metamodel and print the
statement text and its parameter bindings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "query definition file (YAML)")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	result, err := compileFile(opts.RootOptions, opts.Query)
	if err != nil {
		return f.Fail(err)
	}
	f.VerboseLog("Compiled %s %s for %s", result.Operation, result.Entity, result.Dialect)
	return f.Success(result, describe(result))
}

func compileFile(opts *RootOptions, path string) (*query.QueryResult, error) {
	def, c, err := loadQuery(opts, path, "")
	if err != nil {
		return nil, err
	}
	result, err := def.Compile(c)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "compiling "+def.Name, err)
	}
	return result, nil
}

// loadQuery reads the metamodel and the query definition at path, and creates
// a compiler for the resolved dialect, falling back to fallbackDialect.
func loadQuery(opts *RootOptions, path, fallbackDialect string) (*catalog.QueryDefinition, *compiler.Compiler, error) {
	if path == "" {
		return nil, nil, NewExitError(ExitCommandError, "--query is required")
	}
	registry, err := opts.LoadRegistry()
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "reading query definition", err)
	}
	def, err := catalog.ParseQuery(data)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "parsing query definition", err)
	}
	c, err := opts.Compiler(registry, fallbackDialect, false)
	if err != nil {
		return nil, nil, err
	}
	return def, c, nil
}

// describe renders a compiled statement for text output: the statement on
// the first line, then one line per binding.
func describe(r *query.QueryResult) string {
	var sb strings.Builder
	sb.WriteString(r.Query)
	for _, b := range r.Bindings {
		sb.WriteString("\n  ")
		sb.WriteString(b.Name)
		switch {
		case b.HasValue:
			fmt.Fprintf(&sb, " = %v", b.Bind(b.Value))
		case b.Reference() != "":
			sb.WriteString(" <- ")
			sb.WriteString(b.Reference())
		}
		if b.Pattern != query.LikeNone {
			fmt.Fprintf(&sb, " (%s)", b.Pattern)
		}
		if b.AutoPopulated != "" {
			fmt.Fprintf(&sb, " [%s]", b.AutoPopulated)
		}
		if b.NextVersion {
			sb.WriteString(" [next version]")
		}
		if b.Expansion != nil {
			sb.WriteString(" [expands]")
		}
	}
	return sb.String()
}
