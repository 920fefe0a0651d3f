// Package executor runs compiled statements through database/sql. It binds
// the placeholders of a query.QueryResult to argument values, executes the
// statement and maps result rows back into documents shaped after the
// entity's property paths.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-quarry/core/events"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/utils"
	"go.uber.org/zap"
)

// ErrStaleVersion is returned when an optimistically locked update or
// delete matches no row.
var ErrStaleVersion = errors.New("quarry: stale entity version")

// Runner abstracts the common methods of *sql.DB and *sql.Tx, so the same
// code runs inside and outside a transaction.
type Runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Executor runs compiled statements against a database. It is safe for
// concurrent use when its Runner is.
type Executor struct {
	db         Runner
	registry   *schema.Registry
	logger     *zap.Logger
	bus        *events.Bus
	codec      Codec
	clock      func() time.Time
	fieldCache *sync.Map
}

// New creates an executor over db for statements compiled from registry.
func New(db Runner, registry *schema.Registry, opts *Options) (*Executor, error) {
	if db == nil {
		return nil, fmt.Errorf("executor requires a database")
	}
	if registry == nil {
		return nil, fmt.Errorf("executor requires a registry")
	}
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}
	e := &Executor{
		db:         db,
		registry:   registry,
		logger:     opts.Logger,
		bus:        opts.Bus,
		codec:      opts.Codec,
		clock:      opts.Clock,
		fieldCache: &sync.Map{},
	}
	if e.logger == nil {
		e.logger = defaults.Logger
	}
	if e.codec == nil {
		e.codec = defaults.Codec
	}
	if e.clock == nil {
		e.clock = defaults.Clock
	}
	return e, nil
}

// WithRunner returns a copy of the executor that runs statements on r,
// typically a *sql.Tx.
func (e *Executor) WithRunner(r Runner) *Executor {
	clone := *e
	clone.db = r
	return &clone
}

func (e *Executor) entity(result *query.QueryResult) (*schema.PersistentEntity, error) {
	if result.Entity == "" {
		return nil, nil
	}
	entity, ok := e.registry.Entity(result.Entity)
	if !ok {
		return nil, fmt.Errorf("entity %s is not registered", result.Entity)
	}
	return entity, nil
}

func (e *Executor) start(result *query.QueryResult) *events.Span {
	return e.bus.Start(events.ExecuteStarted, events.Event{
		ID:        result.ID,
		Query:     result.Query,
		Operation: string(result.Operation),
		Entity:    result.Entity,
		Dialect:   result.Dialect,
	})
}

func (e *Executor) query(ctx context.Context, result *query.QueryResult, args map[string]any) ([]schema.Document, error) {
	entity, err := e.entity(result)
	if err != nil {
		return nil, err
	}
	text, params, err := e.Statement(result, args)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Executing SQL query", zap.String("operation", string(result.Operation)), zap.String("sql", text), zap.Any("params", params))

	rows, err := e.db.QueryContext(ctx, text, params...)
	if err != nil {
		e.logger.Error("Failed to execute query", zap.Error(err), zap.String("sql", text))
		return nil, fmt.Errorf("failed to execute %s query: %w", result.Operation, err)
	}
	defer rows.Close()
	return e.readRows(entity, rows)
}

// Find runs a SELECT and returns its rows as documents.
func (e *Executor) Find(ctx context.Context, result *query.QueryResult, args map[string]any) ([]schema.Document, error) {
	if result.Operation != query.OperationSelect {
		return nil, fmt.Errorf("find expects a select statement, got %s", result.Operation)
	}
	span := e.start(result)
	docs, err := e.query(ctx, result, args)
	if err != nil {
		span.Fail(err)
		return nil, err
	}
	span.Succeed(result.ID, result.Query)
	return docs, nil
}

// FindAs runs a SELECT and converts each row into T.
func FindAs[T any](ctx context.Context, e *Executor, result *query.QueryResult, args map[string]any) ([]T, error) {
	docs, err := e.Find(ctx, result, args)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := utils.FromDocument[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Count runs a count statement and returns the single count value.
func (e *Executor) Count(ctx context.Context, result *query.QueryResult, args map[string]any) (int64, error) {
	if result.Operation != query.OperationCount {
		return 0, fmt.Errorf("count expects a count statement, got %s", result.Operation)
	}
	span := e.start(result)
	count, err := e.count(ctx, result, args)
	if err != nil {
		span.Fail(err)
		return 0, err
	}
	span.Succeed(result.ID, result.Query)
	return count, nil
}

func (e *Executor) count(ctx context.Context, result *query.QueryResult, args map[string]any) (int64, error) {
	text, params, err := e.Statement(result, args)
	if err != nil {
		return 0, err
	}
	e.logger.Debug("Executing SQL count", zap.String("sql", text), zap.Any("params", params))

	rows, err := e.db.QueryContext(ctx, text, params...)
	if err != nil {
		e.logger.Error("Failed to execute count query", zap.Error(err), zap.String("sql", text))
		return 0, fmt.Errorf("failed to execute count query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("failed to read count: %w", err)
		}
		return 0, fmt.Errorf("count query returned no rows")
	}
	var count int64
	if err := rows.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to scan count: %w", err)
	}
	return count, rows.Err()
}

// Insert runs an INSERT bound to the entity argument and returns the
// generated identity, read from the RETURNING clause when the statement has
// one and from the driver's last insert id otherwise. Entities without a
// generated identity yield an empty document.
func (e *Executor) Insert(ctx context.Context, result *query.QueryResult, args map[string]any) (schema.Document, error) {
	if result.Operation != query.OperationInsert {
		return nil, fmt.Errorf("insert expects an insert statement, got %s", result.Operation)
	}
	span := e.start(result)
	doc, err := e.insert(ctx, result, args)
	if err != nil {
		span.Fail(err)
		return nil, err
	}
	span.Succeed(result.ID, result.Query)
	return doc, nil
}

func (e *Executor) insert(ctx context.Context, result *query.QueryResult, args map[string]any) (schema.Document, error) {
	if strings.Contains(result.Query, " RETURNING ") {
		docs, err := e.query(ctx, result, args)
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return schema.Document{}, nil
		}
		return docs[0], nil
	}

	entity, err := e.entity(result)
	if err != nil {
		return nil, err
	}
	res, err := e.exec(ctx, result, args)
	if err != nil {
		return nil, err
	}
	doc := schema.Document{}
	if entity != nil && entity.Identity != nil && entity.Identity.Generated && !entity.HasCompositeIdentity() {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read generated id of %s: %w", entity.Name, err)
		}
		doc[entity.Identity.Name] = id
	}
	return doc, nil
}

// Exec runs an UPDATE or DELETE and returns the number of affected rows.
// An optimistically locked statement that affects no row fails with
// ErrStaleVersion.
func (e *Executor) Exec(ctx context.Context, result *query.QueryResult, args map[string]any) (int64, error) {
	if result.Operation != query.OperationUpdate && result.Operation != query.OperationDelete {
		return 0, fmt.Errorf("exec expects an update or delete statement, got %s", result.Operation)
	}
	span := e.start(result)
	affected, err := e.mutate(ctx, result, args)
	if err != nil {
		span.Fail(err)
		return 0, err
	}
	span.Succeed(result.ID, result.Query)
	return affected, nil
}

func (e *Executor) mutate(ctx context.Context, result *query.QueryResult, args map[string]any) (int64, error) {
	entity, err := e.entity(result)
	if err != nil {
		return 0, err
	}
	res, err := e.exec(ctx, result, args)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 && locked(entity, result) {
		return 0, fmt.Errorf("%w: %s", ErrStaleVersion, entity.Name)
	}
	return affected, nil
}

func (e *Executor) exec(ctx context.Context, result *query.QueryResult, args map[string]any) (sql.Result, error) {
	text, params, err := e.Statement(result, args)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Executing SQL statement", zap.String("operation", string(result.Operation)), zap.String("sql", text), zap.Any("params", params))

	res, err := e.db.ExecContext(ctx, text, params...)
	if err != nil {
		e.logger.Error("Failed to execute statement", zap.Error(err), zap.String("sql", text))
		return nil, fmt.Errorf("failed to execute %s statement: %w", result.Operation, err)
	}
	return res, nil
}

// locked reports whether the statement compares the entity argument's
// version.
func locked(entity *schema.PersistentEntity, result *query.QueryResult) bool {
	if entity == nil || entity.Version == nil {
		return false
	}
	for _, b := range result.Bindings {
		if b.ArgumentName == query.EntityArgument && b.ArgumentPath == entity.Version.Name && !b.NextVersion {
			return true
		}
	}
	return false
}
