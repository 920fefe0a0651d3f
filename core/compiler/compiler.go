// Package compiler renders the dialect-neutral query model into statement
// text and ordered parameter bindings. One Compiler serves one dialect; the
// traversal and clause assembly are shared, the dialect decides quoting,
// placeholders, pagination and which constructs can be expressed.
package compiler

import (
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/asaidimu/go-quarry/core"
	"github.com/asaidimu/go-quarry/core/events"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/dialect"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compiler implements query.QueryCompiler for one dialect. It holds no
// per-call state and is safe for concurrent use.
type Compiler struct {
	dialect  dialect.Dialect
	registry *schema.Registry
	format   squirrel.PlaceholderFormat
	logger   *zap.Logger
	escape   bool
	named    bool
	bus      *events.Bus
}

var _ query.QueryCompiler = (*Compiler)(nil)

// New creates a compiler for the dialect over the registry's entities.
func New(d dialect.Dialect, registry *schema.Registry, opts *Options) (*Compiler, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: dialect is required", core.ErrDialectConfig)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is required", core.ErrInvalidEntity)
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	format := d.PlaceholderFormat()
	if opts.NamedParameters {
		format = dialect.Named
	}
	if format == nil {
		return nil, fmt.Errorf("%w: dialect %s has no placeholder format", core.ErrDialectConfig, d.Name())
	}

	return &Compiler{
		dialect:  d,
		registry: registry,
		format:   format,
		logger:   logger,
		escape:   opts.Escape,
		named:    opts.NamedParameters,
		bus:      opts.Bus,
	}, nil
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() dialect.Dialect {
	return c.dialect
}

// Registry returns the compiler's entity registry.
func (c *Compiler) Registry() *schema.Registry {
	return c.registry
}

// NewQueryState returns a fresh state rooted at entity, aliased when the
// dialect supports table aliases.
func (c *Compiler) NewQueryState(entity *schema.PersistentEntity) *QueryState {
	return newState(entity, c.rootAlias(entity), c.dialect.Supports(dialect.FeatureJoins))
}

// BuildQuery compiles a SELECT over the entity.
func (c *Compiler) BuildQuery(entity *schema.PersistentEntity, q *query.Query) (*query.QueryResult, error) {
	return c.compile(query.OperationSelect, entity, func(state *QueryState) (string, error) {
		return c.buildSelect(state, q)
	})
}

// BuildCount compiles a SELECT counting the rows matched by the query's
// criteria. Sort and pagination are ignored.
func (c *Compiler) BuildCount(entity *schema.PersistentEntity, q *query.Query) (*query.QueryResult, error) {
	return c.compile(query.OperationCount, entity, func(state *QueryState) (string, error) {
		return c.buildCount(state, q)
	})
}

// BuildInsert compiles a single-row INSERT bound to the entity argument.
func (c *Compiler) BuildInsert(entity *schema.PersistentEntity) (*query.QueryResult, error) {
	return c.compile(query.OperationInsert, entity, func(state *QueryState) (string, error) {
		return c.buildInsert(state)
	})
}

// BuildUpdate compiles an UPDATE.
func (c *Compiler) BuildUpdate(entity *schema.PersistentEntity, spec query.UpdateSpec) (*query.QueryResult, error) {
	return c.compile(query.OperationUpdate, entity, func(state *QueryState) (string, error) {
		return c.buildUpdate(state, spec)
	})
}

// BuildDelete compiles a DELETE.
func (c *Compiler) BuildDelete(entity *schema.PersistentEntity, spec query.DeleteSpec) (*query.QueryResult, error) {
	return c.compile(query.OperationDelete, entity, func(state *QueryState) (string, error) {
		return c.buildDelete(state, spec)
	})
}

// BuildPagination compiles the dialect's pagination clause for the pageable.
func (c *Compiler) BuildPagination(pageable query.Pageable) (*query.QueryResult, error) {
	return c.compile(query.OperationPagination, nil, func(*QueryState) (string, error) {
		if pageable.Unpaged() {
			return "", fmt.Errorf("pageable has no page size")
		}
		return c.dialect.PaginationClause(pageable.Size, pageable.Offset())
	})
}

// compile runs build against a fresh state and turns its output into a
// QueryResult: placeholders rewritten, bindings numbered, id derived.
func (c *Compiler) compile(op query.Operation, entity *schema.PersistentEntity, build func(*QueryState) (string, error)) (*query.QueryResult, error) {
	name := ""
	if entity != nil {
		name = entity.Name
	}
	span := c.bus.Start(events.CompileStarted, events.Event{
		Operation: string(op),
		Entity:    name,
		Dialect:   c.dialect.Name(),
	})

	result, err := c.run(op, entity, build)
	if err != nil {
		c.logger.Debug("query compilation failed",
			zap.String("dialect", c.dialect.Name()),
			zap.String("operation", string(op)),
			zap.String("entity", name),
			zap.Error(err))
		span.Fail(err)
		return nil, err
	}

	c.logger.Debug("compiled query",
		zap.String("dialect", result.Dialect),
		zap.String("operation", string(op)),
		zap.String("sql", result.Query),
		zap.Int("bindings", len(result.Bindings)))
	span.Succeed(result.ID, result.Query)
	return result, nil
}

func (c *Compiler) run(op query.Operation, entity *schema.PersistentEntity, build func(*QueryState) (string, error)) (*query.QueryResult, error) {
	var state *QueryState
	if entity != nil {
		registered, ok := c.registry.Entity(entity.Name)
		if !ok || registered != entity {
			return nil, core.NewMappingError(entity.Name, "", "entity is not part of the compiler's registry")
		}
		state = c.NewQueryState(entity)
	} else {
		state = newState(nil, "", false)
	}

	raw, err := build(state)
	if err != nil {
		if entity != nil {
			return nil, fmt.Errorf("failed to build %s for %s: %w", op, entity.Name, err)
		}
		return nil, fmt.Errorf("failed to build %s: %w", op, err)
	}

	text, err := c.format.ReplacePlaceholders(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to rewrite placeholders: %v", core.ErrDialectConfig, err)
	}

	bindings := make([]query.ParameterBinding, len(*state.bindings))
	copy(bindings, *state.bindings)
	for i := range bindings {
		bindings[i].Position = i + 1
		bindings[i].Name = dialect.ParameterName(i + 1)
	}

	result := &query.QueryResult{
		ID:              ResultID(c.dialect.Name(), text),
		Dialect:         c.dialect.Name(),
		Operation:       op,
		Query:           text,
		Bindings:        bindings,
		NamedParameters: c.named,
		JoinPaths:       state.paths,
	}
	if entity != nil {
		result.Entity = entity.Name
	}
	if result.Expandable() {
		result.RawQuery = raw
	}
	return result, nil
}

// ResultID derives the deterministic id of a compiled statement.
func ResultID(dialectName, text string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("quarry:"+dialectName+":"+text)).String()
}

func (c *Compiler) rootAlias(entity *schema.PersistentEntity) string {
	if !c.dialect.Supports(dialect.FeatureTableAlias) {
		return ""
	}
	return entity.Alias
}

// quote renders an identifier, quoted when escaping is enabled.
func (c *Compiler) quote(name string) string {
	if !c.escape {
		return name
	}
	return c.dialect.QuoteIdentifier(name)
}

// column renders a column reference qualified by alias.
func (c *Compiler) column(alias, name string) string {
	if alias == "" {
		return c.quote(name)
	}
	return alias + "." + c.quote(name)
}

// table renders a table with its alias.
func (c *Compiler) table(entity *schema.PersistentEntity, alias string) string {
	if alias == "" {
		return c.quote(entity.PersistedName)
	}
	return c.quote(entity.PersistedName) + " " + alias
}
