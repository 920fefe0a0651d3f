// Package sqlite provides the mapping logic from registered entities to
// concrete SQLite DDL (Data Definition Language), and the value conversions
// between Go values and SQLite storage classes. It is used to seed SQLite
// databases that compiled statements are executed against.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/asaidimu/go-quarry/core/schema"
	"go.uber.org/zap"
)

// Options configures the DDL a Mapper generates.
type Options struct {
	IfNotExists   bool   // Emit IF NOT EXISTS on tables and indexes.
	CreateIndexes bool   // Index foreign key columns.
	JoinTables    bool   // Create the junction tables of owned collections.
	TablePrefix   string // Prepended to every table name.
}

// DefaultOptions returns a set of sensible default options for the mapper.
func DefaultOptions() *Options {
	return &Options{
		IfNotExists:   true,
		CreateIndexes: true,
		JoinTables:    true,
	}
}

// Execer is the subset of *sql.DB and *sql.Tx needed to apply DDL.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Mapper generates SQLite DDL for the entities of a registry.
type Mapper struct {
	registry *schema.Registry
	options  *Options
	logger   *zap.Logger
}

// NewMapper creates a mapper over the registry's entities.
func NewMapper(registry *schema.Registry, logger *zap.Logger, options *Options) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultOptions()
	}
	return &Mapper{registry: registry, options: options, logger: logger}
}

// quoteIdentifier safely quotes an identifier, such as a table or column name.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// tableName constructs the full, quoted table name by applying the configured
// table prefix to the base name.
func (m *Mapper) tableName(base string) string {
	return quoteIdentifier(m.options.TablePrefix + base)
}

// CreateTables generates and executes the DDL of every registered entity, in
// registration order.
func (m *Mapper) CreateTables(ctx context.Context, db Execer) error {
	for _, e := range m.registry.Entities() {
		statements, err := m.CreateTableSQL(e)
		if err != nil {
			return fmt.Errorf("failed to generate SQL for table %s: %w", e.PersistedName, err)
		}
		for _, stmt := range statements {
			m.logger.Debug("executing DDL", zap.String("entity", e.Name), zap.String("sql", stmt))
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
			}
		}
	}
	return nil
}

// CreateTableSQL generates the statements creating the entity's table, the
// junction tables of the collections it owns and the indexes on its foreign
// keys.
func (m *Mapper) CreateTableSQL(e *schema.PersistentEntity) ([]string, error) {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if m.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(m.tableName(e.PersistedName) + " (\n")

	var columns []string
	var primaryKeys []string
	var indexed []string
	inlinePrimary := false

	for _, id := range e.IdentityProperties() {
		leaves := schema.Leaves(id)
		if len(e.IdentityColumns()) == 1 && id.Generated && isInteger(id.Type) {
			columns = append(columns, "    "+quoteIdentifier(id.PersistedName)+" INTEGER PRIMARY KEY AUTOINCREMENT")
			inlinePrimary = true
			continue
		}
		for _, leaf := range leaves {
			columns = append(columns, "    "+quoteIdentifier(leaf.PersistedName)+" "+ColumnType(leaf.Type)+" NOT NULL")
			primaryKeys = append(primaryKeys, quoteIdentifier(leaf.PersistedName))
		}
	}

	for _, p := range e.Properties {
		if p.Transient {
			continue
		}
		if p.IsAssociation() {
			if !p.IsForeignKey() {
				continue
			}
			defs, err := m.foreignKeyDefinitions(p)
			if err != nil {
				return nil, fmt.Errorf("error on property '%s': %w", p.Name, err)
			}
			columns = append(columns, defs...)
			indexed = append(indexed, p.Association.ForeignKeyColumns...)
			continue
		}
		for _, leaf := range schema.Leaves(p) {
			columns = append(columns, "    "+m.columnDefinition(leaf, p.Nullable))
		}
	}
	if e.Version != nil {
		columns = append(columns, "    "+m.columnDefinition(e.Version, false))
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("entity %s has no columns", e.Name)
	}
	sb.WriteString(strings.Join(columns, ",\n"))

	if len(primaryKeys) > 0 && !inlinePrimary {
		sb.WriteString(",\n    PRIMARY KEY (" + strings.Join(primaryKeys, ", ") + ")")
	}
	sb.WriteString("\n);")

	statements := []string{sb.String()}
	if m.options.JoinTables {
		for _, p := range e.Properties {
			if p.IsCollection() && p.Association.MappedBy == "" && p.Association.JoinTable != nil {
				stmt, err := m.joinTableSQL(e, p)
				if err != nil {
					return nil, fmt.Errorf("error on property '%s': %w", p.Name, err)
				}
				statements = append(statements, stmt)
			}
		}
	}
	if m.options.CreateIndexes {
		for _, col := range indexed {
			statements = append(statements, m.CreateIndexSQL(e.PersistedName, col))
		}
	}
	return statements, nil
}

// columnDefinition constructs the DDL string for a single scalar column.
func (m *Mapper) columnDefinition(p *schema.PersistentProperty, nullable bool) string {
	def := quoteIdentifier(p.PersistedName) + " " + ColumnType(p.Type)
	if !nullable && !p.Nullable {
		def += " NOT NULL"
	}
	return def
}

// foreignKeyDefinitions renders the key columns of an owning to-one
// association, typed after the target identity.
func (m *Mapper) foreignKeyDefinitions(p *schema.PersistentProperty) ([]string, error) {
	target, err := m.registry.Target(p)
	if err != nil {
		return nil, err
	}
	leaves := target.IdentityColumns()
	if len(leaves) != len(p.Association.ForeignKeyColumns) {
		return nil, fmt.Errorf("%d foreign key columns for %d identity columns of %s",
			len(p.Association.ForeignKeyColumns), len(leaves), target.Name)
	}
	defs := make([]string, len(leaves))
	for i, fk := range p.Association.ForeignKeyColumns {
		def := "    " + quoteIdentifier(fk) + " " + ColumnType(leaves[i].Type)
		if !p.Nullable {
			def += " NOT NULL"
		}
		if len(leaves) == 1 {
			def += " REFERENCES " + m.tableName(target.PersistedName) + " (" + quoteIdentifier(leaves[0].PersistedName) + ")"
		}
		defs[i] = def
	}
	return defs, nil
}

// joinTableSQL renders the junction table of an owned collection.
func (m *Mapper) joinTableSQL(owner *schema.PersistentEntity, p *schema.PersistentProperty) (string, error) {
	target, err := m.registry.Target(p)
	if err != nil {
		return "", err
	}
	jt := p.Association.JoinTable
	ownerIDs, targetIDs := owner.IdentityColumns(), target.IdentityColumns()
	if len(jt.JoinColumns) != len(ownerIDs) || len(jt.InverseJoinColumns) != len(targetIDs) {
		return "", fmt.Errorf("join table %s does not match the identities it references", jt.Name)
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if m.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(m.tableName(jt.Name) + " (\n")
	var columns, keys []string
	for i, col := range jt.JoinColumns {
		columns = append(columns, "    "+quoteIdentifier(col)+" "+ColumnType(ownerIDs[i].Type)+" NOT NULL")
		keys = append(keys, quoteIdentifier(col))
	}
	for i, col := range jt.InverseJoinColumns {
		columns = append(columns, "    "+quoteIdentifier(col)+" "+ColumnType(targetIDs[i].Type)+" NOT NULL")
		keys = append(keys, quoteIdentifier(col))
	}
	sb.WriteString(strings.Join(columns, ",\n"))
	sb.WriteString(",\n    PRIMARY KEY (" + strings.Join(keys, ", ") + ")")
	sb.WriteString("\n);")
	return sb.String(), nil
}

// CreateIndexSQL generates the DDL creating an index on one column.
func (m *Mapper) CreateIndexSQL(table, column string) string {
	var sb strings.Builder
	sb.WriteString("CREATE INDEX ")
	if m.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(quoteIdentifier(fmt.Sprintf("idx_%s%s_%s", m.options.TablePrefix, table, column)))
	sb.WriteString(fmt.Sprintf(" ON %s (%s);", m.tableName(table), quoteIdentifier(column)))
	return sb.String()
}

// DropTableSQL generates the DDL dropping the entity's table.
func (m *Mapper) DropTableSQL(e *schema.PersistentEntity) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", m.tableName(e.PersistedName))
}

// ColumnType maps a schema.DataType to its SQLite column type.
func ColumnType(dt schema.DataType) string {
	switch dt {
	case schema.DataTypeString, schema.DataTypeUUID:
		return "TEXT"
	case schema.DataTypeInteger, schema.DataTypeLong, schema.DataTypeBoolean:
		return "INTEGER"
	case schema.DataTypeDouble:
		return "REAL"
	case schema.DataTypeDecimal:
		return "NUMERIC"
	case schema.DataTypeDate, schema.DataTypeTimestamp:
		return "TIMESTAMP"
	case schema.DataTypeJSON, schema.DataTypeArray, schema.DataTypeObject:
		return "TEXT"
	default:
		return "BLOB"
	}
}

func isInteger(dt schema.DataType) bool {
	return dt == schema.DataTypeInteger || dt == schema.DataTypeLong
}
