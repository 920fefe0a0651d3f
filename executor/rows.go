package executor

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/utils"
	"go.uber.org/zap"
)

// field is where a result column lands in a document.
type field struct {
	path     string
	dataType schema.DataType
}

// fields maps the persisted columns of an entity to property paths. Foreign
// key columns map into the associated entity, so "author_id" becomes
// "author.id".
func (e *Executor) fields(entity *schema.PersistentEntity) (map[string]field, error) {
	if cached, ok := e.fieldCache.Load(entity.Name); ok {
		return cached.(map[string]field), nil
	}

	out := make(map[string]field)
	for _, p := range entity.AllProperties() {
		if p.Transient {
			continue
		}
		if p.IsAssociation() {
			if !p.IsForeignKey() {
				continue
			}
			target, err := e.registry.Target(p)
			if err != nil {
				return nil, err
			}
			ids := target.IdentityColumns()
			for i, col := range p.Association.ForeignKeyColumns {
				if i < len(ids) {
					out[col] = field{path: p.Name + "." + ids[i].Path(), dataType: ids[i].Type}
				}
			}
			continue
		}
		for _, leaf := range schema.Leaves(p) {
			out[leaf.PersistedName] = field{path: leaf.Path(), dataType: leaf.Type}
		}
	}

	e.fieldCache.Store(entity.Name, out)
	return out, nil
}

// target walks an association path from entity.
func (e *Executor) target(entity *schema.PersistentEntity, path string) (*schema.PersistentEntity, error) {
	current := entity
	for _, segment := range schema.SplitPath(path) {
		p := current.FindProperty(segment)
		if p == nil || !p.IsAssociation() {
			return nil, fmt.Errorf("'%s' is not an association of %s", segment, current.Name)
		}
		next, err := e.registry.Target(p)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// resolveColumn finds the document path of a result column. Fetch join
// columns are aliased "<path>.<column>" and land under that association.
// Columns the entity does not map (aggregates, projection aliases) are kept
// under their own name.
func (e *Executor) resolveColumn(entity *schema.PersistentEntity, column string) (field, bool) {
	owner, name, prefix := entity, column, ""
	if i := strings.LastIndex(column, "."); i > 0 {
		target, err := e.target(entity, column[:i])
		if err != nil {
			return field{path: column}, false
		}
		owner, name, prefix = target, column[i+1:], column[:i]+"."
	}
	fields, err := e.fields(owner)
	if err != nil {
		return field{path: column}, false
	}
	f, ok := fields[name]
	if !ok {
		return field{path: column}, false
	}
	f.path = prefix + f.path
	return f, true
}

// readRows reads all rows into documents, folding columns into the nested
// property paths of entity and decoding values with the codec. A nil entity
// keeps the raw column names.
func (e *Executor) readRows(entity *schema.PersistentEntity, rows *sql.Rows) ([]schema.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	targets := make([]field, len(columns))
	mapped := make([]bool, len(columns))
	for i, col := range columns {
		if entity == nil {
			targets[i] = field{path: col}
			continue
		}
		targets[i], mapped[i] = e.resolveColumn(entity, col)
		if !mapped[i] {
			e.logger.Debug("column not mapped to a property, using raw value", zap.String("column", col))
		}
	}

	results := make([]schema.Document, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(schema.Document, len(columns))
		for i, target := range targets {
			val := values[i]
			if b, ok := val.([]byte); ok && target.dataType != schema.DataTypeBytes {
				val = string(b)
			}
			if !mapped[i] {
				row[target.path] = val
				continue
			}
			utils.Set(row, target.path, e.codec.Decode(target.dataType, val))
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}
