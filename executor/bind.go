package executor

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/dialect"
	"github.com/asaidimu/go-quarry/utils"
)

// ErrMissingArgument is returned when a binding references an argument the
// caller did not supply.
var ErrMissingArgument = errors.New("quarry: missing argument")

// Bind resolves the values of a compiled statement's placeholders, in
// placeholder order. Literal bindings keep their value; argument bindings
// are read from args, where struct arguments are converted to documents.
// Expandable bindings contribute one value per element of their collection
// argument; use Statement for the matching text. Named statements receive
// sql.NamedArg values.
func (e *Executor) Bind(result *query.QueryResult, args map[string]any) ([]any, error) {
	_, values, err := e.Statement(result, args)
	return values, err
}

// Statement returns the text to run for result together with its values.
// The text is result.Query unless a binding expands, in which case it is
// rendered from result.RawQuery with one placeholder per collection element.
func (e *Executor) Statement(result *query.QueryResult, args map[string]any) (string, []any, error) {
	resolved := make(map[string]schema.Document)
	values := make([]any, 0, len(result.Bindings))
	sizes := make([]int, len(result.Bindings))
	expanded := false

	for i, b := range result.Bindings {
		v, err := e.bindingValue(b, args, resolved)
		if err != nil {
			return "", nil, fmt.Errorf("failed to bind %s: %w", b.Name, err)
		}
		if b.Expansion == nil {
			enc, err := e.encode(b, v)
			if err != nil {
				return "", nil, err
			}
			values = append(values, enc)
			continue
		}

		expanded = true
		elements := collection(v)
		sizes[i] = len(elements)
		for _, el := range elements {
			enc, err := e.encode(b, el)
			if err != nil {
				return "", nil, err
			}
			values = append(values, enc)
		}
	}

	text := result.Query
	if expanded {
		var err error
		if text, err = expandStatement(result, sizes); err != nil {
			return "", nil, err
		}
	}
	if result.NamedParameters {
		for i, v := range values {
			values[i] = sql.Named(dialect.ParameterName(i+1), v)
		}
	}
	return text, values, nil
}

func (e *Executor) encode(b query.ParameterBinding, v any) (any, error) {
	enc, err := e.codec.Encode(b.DataType, b.Bind(v))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", b.Name, err)
	}
	return enc, nil
}

// collection returns the elements of a collection argument. Byte slices and
// scalars count as a single element; nil is empty.
func collection(v any) []any {
	if v == nil {
		return nil
	}
	if values, ok := v.([]any); ok {
		return values
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// expandStatement rewrites the raw text of result with sizes[i] markers for
// each expandable binding i, replacing the predicate of an empty collection,
// and renders the dialect's placeholders.
func expandStatement(result *query.QueryResult, sizes []int) (string, error) {
	if result.RawQuery == "" {
		return "", fmt.Errorf("statement %s has expandable bindings but no raw text", result.ID)
	}
	format := dialect.Named
	if !result.NamedParameters {
		d, err := dialect.ByName(result.Dialect, nil)
		if err != nil {
			return "", err
		}
		format = d.PlaceholderFormat()
	}

	raw := result.RawQuery
	var buf strings.Builder
	i := 0
	for {
		p := strings.Index(raw, "?")
		if p == -1 {
			break
		}
		buf.WriteString(raw[:p])
		if strings.HasPrefix(raw[p:], "??") {
			buf.WriteString("??")
			raw = raw[p+2:]
			continue
		}
		raw = raw[p+1:]
		if i >= len(result.Bindings) {
			return "", fmt.Errorf("statement %s has more placeholders than bindings", result.ID)
		}
		b := result.Bindings[i]
		i++

		switch {
		case b.Expansion == nil:
			buf.WriteString("?")
		case sizes[i-1] == 0:
			head := buf.String()
			if !strings.HasSuffix(head, b.Expansion.Prefix) || !strings.HasPrefix(raw, ")") {
				return "", fmt.Errorf("statement %s: binding %s is not inside its IN predicate", result.ID, b.Name)
			}
			buf.Reset()
			buf.WriteString(strings.TrimSuffix(head, b.Expansion.Prefix))
			buf.WriteString(b.Expansion.Empty)
			raw = raw[1:]
		default:
			buf.WriteString(strings.Repeat("?,", sizes[i-1]-1) + "?")
		}
	}
	buf.WriteString(raw)
	if i != len(result.Bindings) {
		return "", fmt.Errorf("statement %s has %d placeholders for %d bindings", result.ID, i, len(result.Bindings))
	}

	text, err := format.ReplacePlaceholders(buf.String())
	if err != nil {
		return "", fmt.Errorf("failed to render placeholders: %w", err)
	}
	return text, nil
}

func (e *Executor) bindingValue(b query.ParameterBinding, args map[string]any, resolved map[string]schema.Document) (any, error) {
	if b.HasValue {
		return b.Value, nil
	}
	if b.ArgumentName == "" {
		return nil, fmt.Errorf("binding has neither a value nor an argument")
	}

	switch b.AutoPopulated {
	case schema.AutoPopulatedDateUpdated:
		return e.clock(), nil
	case schema.AutoPopulatedDateCreated:
		v, err := argumentValue(b, args, resolved)
		if err != nil || isZero(v) {
			return e.clock(), nil
		}
		return v, nil
	}

	v, err := argumentValue(b, args, resolved)
	if err != nil {
		return nil, err
	}
	if b.NextVersion {
		return nextVersion(v)
	}
	return v, nil
}

// argumentValue reads the referenced argument and walks its path. A path
// segment missing from a present argument yields nil. A scalar standing
// where the path expects an associated entity is taken as that entity's id.
func argumentValue(b query.ParameterBinding, args map[string]any, resolved map[string]schema.Document) (any, error) {
	arg, ok := args[b.ArgumentName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArgument, b.ArgumentName)
	}
	if b.ArgumentPath == "" {
		return arg, nil
	}

	doc, cached := resolved[b.ArgumentName]
	if !cached {
		var err error
		doc, err = utils.ToDocument(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", b.ArgumentName, err)
		}
		resolved[b.ArgumentName] = doc
	}

	segments := schema.SplitPath(b.ArgumentPath)
	var current any = map[string]any(doc)
	for i, segment := range segments {
		var node map[string]any
		switch v := current.(type) {
		case map[string]any:
			node = v
		case schema.Document:
			node = v
		case nil:
			return nil, nil
		default:
			if i == len(segments)-1 && i > 0 {
				return current, nil
			}
			return nil, fmt.Errorf("argument %s: cannot read '%s' from %T", b.ArgumentName, segment, current)
		}
		current = node[segment]
	}
	return current, nil
}

func nextVersion(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return int64(1), nil
	case int:
		return n + 1, nil
	case int32:
		return n + 1, nil
	case int64:
		return n + 1, nil
	case float64:
		return n + 1, nil
	default:
		return nil, fmt.Errorf("version must be numeric, got %T", v)
	}
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	if t, ok := v.(time.Time); ok {
		return t.IsZero()
	}
	if s, ok := v.(string); ok {
		return s == "" || s == "0001-01-01T00:00:00Z"
	}
	return reflect.ValueOf(v).IsZero()
}
