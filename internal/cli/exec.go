package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/executor"
	"github.com/asaidimu/go-quarry/sqlite"
	"github.com/asaidimu/go-quarry/utils"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// driverDialects maps database/sql driver names to the dialect used when
// --dialect is not given.
var driverDialects = map[string]string{
	"sqlite3":  "sqlite",
	"postgres": "postgres",
	"mysql":    "mysql",
}

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Driver       string
	DSN          string
	Query        string
	Args         string // JSON object of arguments
	CreateTables bool
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Compile a query definition and run it against a database",
		Long: `Compile a YAML query definition, bind the JSON arguments and run the
statement through database/sql. Supported drivers: sqlite3, postgres, mysql.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", "sqlite3", "database/sql driver (sqlite3|postgres|mysql)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "data source name")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "query definition file (YAML)")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "statement arguments as a JSON object")
	cmd.Flags().BoolVar(&opts.CreateTables, "create-tables", false, "create the metamodel's tables first (sqlite3 only)")

	return cmd
}

func runExec(ctx context.Context, opts *ExecOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	fallback, ok := driverDialects[opts.Driver]
	if !ok {
		return f.Fail(NewExitError(ExitCommandError, fmt.Sprintf("unsupported driver %q", opts.Driver)))
	}
	dsn, err := normalizeDSN(opts.Driver, opts.DSN)
	if err != nil {
		return f.Fail(err)
	}
	if opts.CreateTables && opts.Driver != "sqlite3" {
		return f.Fail(NewExitError(ExitCommandError, "--create-tables requires the sqlite3 driver"))
	}
	args, err := utils.ParseDocument([]byte(opts.Args))
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "parsing --args", err))
	}

	def, c, err := loadQuery(opts.RootOptions, opts.Query, fallback)
	if err != nil {
		return f.Fail(err)
	}
	result, err := def.Compile(c)
	if err != nil {
		return f.Fail(WrapExitError(ExitFailure, "compiling "+def.Name, err))
	}
	f.VerboseLog("%s", result.Query)

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "opening database", err))
	}
	defer db.Close()

	execOpts := executor.DefaultOptions()
	execOpts.Logger = opts.Logger()
	if opts.Driver == "sqlite3" {
		execOpts.Codec = sqlite.Codec{}
		if opts.CreateTables {
			if err := sqlite.NewMapper(c.Registry(), opts.Logger(), nil).CreateTables(ctx, db); err != nil {
				return f.Fail(WrapExitError(ExitFailure, "creating tables", err))
			}
		}
	}
	e, err := executor.New(db, c.Registry(), execOpts)
	if err != nil {
		return f.Fail(err)
	}

	data, err := execute(ctx, e, result, args)
	if err != nil {
		opts.Logger().Error("Statement failed", zap.String("query", def.Name), zap.Error(err))
		return f.Fail(WrapExitError(ExitFailure, "executing "+def.Name, err))
	}
	text, err := json.Marshal(data)
	if err != nil {
		return f.Fail(err)
	}
	return f.Success(data, string(text))
}

// normalizeDSN validates MySQL DSNs and enables time parsing on them; other
// drivers' DSNs pass through.
func normalizeDSN(driver, dsn string) (string, error) {
	if dsn == "" {
		return "", NewExitError(ExitCommandError, "--dsn is required")
	}
	if driver != "mysql" {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid mysql DSN", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// execute runs result with the executor method matching its operation.
func execute(ctx context.Context, e *executor.Executor, result *query.QueryResult, args map[string]any) (any, error) {
	switch result.Operation {
	case query.OperationSelect:
		docs, err := e.Find(ctx, result, args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"rows": docs}, nil
	case query.OperationCount:
		n, err := e.Count(ctx, result, args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": n}, nil
	case query.OperationInsert:
		doc, err := e.Insert(ctx, result, args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"generated": doc}, nil
	case query.OperationUpdate, query.OperationDelete:
		n, err := e.Exec(ctx, result, args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"affected": n}, nil
	}
	return nil, fmt.Errorf("%s statements cannot be executed on their own", result.Operation)
}
