// Package cli implements the quarry command line: compiling queries and
// catalogs, printing SQLite DDL, executing compiled statements and watching
// definitions for changes.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/asaidimu/go-quarry/core/compiler"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/dialect"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// DialectEnv overrides the default dialect when --dialect is not given.
const DialectEnv = "QUARRY_DIALECT"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Entities string // metamodel file, YAML or JSON
	Dialect  string
	Named    bool

	logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the quarry CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "quarry - dialect-aware SQL query compiler",
		Long:  "Compile entity metamodels and query definitions into dialect SQL with ordered or named parameter bindings.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				err := NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
				return err
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Entities, "entities", "e", "", "metamodel file (YAML or JSON)")
	cmd.PersistentFlags().StringVarP(&opts.Dialect, "dialect", "d", "", fmt.Sprintf("target dialect %v (default $%s or ansi)", dialect.Names(), DialectEnv))
	cmd.PersistentFlags().BoolVar(&opts.Named, "named", false, "render named :pN placeholders")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Logger returns the CLI logger: a development logger with --verbose, a
// production logger at warn level otherwise.
func (o *RootOptions) Logger() *zap.Logger {
	if o.logger != nil {
		return o.logger
	}
	var (
		logger *zap.Logger
		err    error
	)
	if o.Verbose {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		logger, err = cfg.Build()
	}
	if err != nil {
		logger = zap.NewNop()
	}
	o.logger = logger
	return logger
}

// DialectName resolves the dialect: the --dialect flag, then $QUARRY_DIALECT,
// then fallback, then ansi.
func (o *RootOptions) DialectName(fallback string) string {
	if o.Dialect != "" {
		return o.Dialect
	}
	if env := os.Getenv(DialectEnv); env != "" {
		return env
	}
	if fallback != "" {
		return fallback
	}
	return "ansi"
}

// LoadRegistry reads the metamodel named by --entities.
func (o *RootOptions) LoadRegistry() (*schema.Registry, error) {
	if o.Entities == "" {
		return nil, NewExitError(ExitCommandError, "--entities is required")
	}
	return loadRegistry(o.Entities)
}

func loadRegistry(path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "reading metamodel", err)
	}
	var registry *schema.Registry
	if strings.EqualFold(filepath.Ext(path), ".json") {
		registry, err = schema.LoadJSON(data)
	} else {
		registry, err = schema.LoadYAML(data)
	}
	if err != nil {
		return nil, WrapExitError(ExitFailure, "loading metamodel", err)
	}
	return registry, nil
}

// Compiler creates a compiler for the resolved dialect over registry.
func (o *RootOptions) Compiler(registry *schema.Registry, fallbackDialect string, named bool) (*compiler.Compiler, error) {
	d, err := dialect.ByName(o.DialectName(fallbackDialect), nil)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "resolving dialect", err)
	}
	opts := compiler.DefaultOptions()
	opts.Logger = o.Logger()
	opts.NamedParameters = o.Named || named
	return compiler.New(d, registry, opts)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
