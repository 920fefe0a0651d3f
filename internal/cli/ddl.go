package cli

import (
	"strings"

	"github.com/asaidimu/go-quarry/sqlite"
	"github.com/spf13/cobra"
)

// DDLOptions holds flags for the ddl command.
type DDLOptions struct {
	*RootOptions
	Prefix string
	Drop   bool
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DDLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "ddl",
		Short:         "Print SQLite DDL for the metamodel",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "table name prefix")
	cmd.Flags().BoolVar(&opts.Drop, "drop", false, "emit DROP TABLE statements before the CREATE statements")

	return cmd
}

func runDDL(opts *DDLOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	registry, err := opts.LoadRegistry()
	if err != nil {
		return f.Fail(err)
	}

	mapperOpts := sqlite.DefaultOptions()
	mapperOpts.TablePrefix = opts.Prefix
	mapper := sqlite.NewMapper(registry, opts.Logger(), mapperOpts)

	var statements []string
	if opts.Drop {
		for _, e := range registry.Entities() {
			statements = append(statements, mapper.DropTableSQL(e))
		}
	}
	for _, e := range registry.Entities() {
		stmts, err := mapper.CreateTableSQL(e)
		if err != nil {
			return f.Fail(WrapExitError(ExitFailure, "generating DDL for "+e.Name, err))
		}
		statements = append(statements, stmts...)
	}

	return f.Success(map[string]any{"statements": statements}, strings.Join(statements, "\n\n"))
}
