package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/asaidimu/go-quarry/catalog"
	"github.com/spf13/cobra"
)

// CatalogOptions holds flags for the catalog commands.
type CatalogOptions struct {
	*RootOptions
	Definition string // catalog definition file
	Catalog    string // compiled catalog file
	Output     string
	Package    string
	Workers    int
}

// NewCatalogCommand creates the catalog command and its build and gen
// subcommands.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Build and render catalogs of named queries",
	}

	build := &cobra.Command{
		Use:   "build",
		Short: "Compile a catalog definition",
		Long: `Compile every query of a YAML catalog definition concurrently and
optionally save the result as msgpack.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogBuild(cmd.Context(), opts, cmd)
		},
	}
	build.Flags().StringVarP(&opts.Definition, "definition", "f", "", "catalog definition file (YAML)")
	build.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled catalog (msgpack) to this file")
	build.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent compilations (default: one per CPU)")

	gen := &cobra.Command{
		Use:           "gen",
		Short:         "Render a compiled catalog as Go source",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogGen(opts, cmd)
		},
	}
	gen.Flags().StringVarP(&opts.Catalog, "catalog", "c", "", "compiled catalog file (msgpack)")
	gen.Flags().StringVarP(&opts.Package, "package", "p", "queries", "Go package name")
	gen.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	cmd.AddCommand(build, gen)
	return cmd
}

func runCatalogBuild(ctx context.Context, opts *CatalogOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cat, err := buildCatalog(ctx, opts)
	if err != nil {
		return f.Fail(err)
	}
	if opts.Output != "" {
		if err := saveCatalog(cat, opts.Output); err != nil {
			return f.Fail(err)
		}
		f.VerboseLog("Wrote %d queries to %s", len(cat.Entries), opts.Output)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Compiled %d queries for %s", len(cat.Entries), cat.Dialect)
	for _, e := range cat.Entries {
		fmt.Fprintf(&sb, "\n%s: %s", e.Name, e.Result.Query)
	}
	return f.Success(cat, sb.String())
}

func buildCatalog(ctx context.Context, opts *CatalogOptions) (*catalog.Catalog, error) {
	if opts.Definition == "" {
		return nil, NewExitError(ExitCommandError, "--definition is required")
	}
	registry, err := opts.LoadRegistry()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(opts.Definition)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "reading catalog definition", err)
	}
	def, err := catalog.ParseDefinition(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "parsing catalog definition", err)
	}
	c, err := opts.Compiler(registry, def.Dialect, def.NamedParameters)
	if err != nil {
		return nil, err
	}

	buildOpts := catalog.DefaultOptions()
	buildOpts.Logger = opts.Logger()
	if opts.Workers > 0 {
		buildOpts.Workers = opts.Workers
	}
	cat, err := catalog.Build(ctx, c, def.Queries, buildOpts)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "building catalog", err)
	}
	return cat, nil
}

func saveCatalog(cat *catalog.Catalog, path string) error {
	var buf bytes.Buffer
	if err := cat.Save(&buf); err != nil {
		return WrapExitError(ExitFailure, "encoding catalog", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return WrapExitError(ExitCommandError, "writing catalog", err)
	}
	return nil
}

func runCatalogGen(opts *CatalogOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if opts.Catalog == "" {
		return f.Fail(NewExitError(ExitCommandError, "--catalog is required"))
	}
	file, err := os.Open(opts.Catalog)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "opening catalog", err))
	}
	defer file.Close()

	cat, err := catalog.Load(file)
	if err != nil {
		return f.Fail(WrapExitError(ExitFailure, "loading catalog", err))
	}

	var src bytes.Buffer
	if err := cat.GenerateGo(&src, opts.Package); err != nil {
		return f.Fail(WrapExitError(ExitFailure, "generating Go source", err))
	}

	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(src.Bytes())
		return err
	}
	if err := os.WriteFile(opts.Output, src.Bytes(), 0o644); err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "writing Go source", err))
	}
	return f.Success(map[string]any{"output": opts.Output, "queries": len(cat.Entries)},
		fmt.Sprintf("Wrote %d queries to %s", len(cat.Entries), opts.Output))
}
