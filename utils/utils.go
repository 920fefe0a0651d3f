// Package utils converts between Go values and schema.Document, the map form
// in which arguments are bound and rows are returned.
package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-quarry/core/schema"
)

// ToDocument converts a struct, a pointer to a struct or a map into a
// Document.
//
// Structs are marshalled to JSON and decoded back, so `json:"tag"`
// annotations decide the property names and nested structs become nested
// maps. Numbers are decoded as int64 when they are integral and as float64
// otherwise.
//
// Example:
//
//	type Author struct {
//		ID int64 `json:"id"`
//	}
//	type Book struct {
//		Title  string `json:"title"`
//		Author Author `json:"author"`
//	}
//	doc, err := ToDocument(Book{Title: "Dune", Author: Author{ID: 3}})
//	// doc is Document{"title": "Dune", "author": map[string]any{"id": int64(3)}}
func ToDocument(record any) (schema.Document, error) {
	switch v := record.(type) {
	case nil:
		return nil, fmt.Errorf("input record cannot be nil")
	case schema.Document:
		return v, nil
	case map[string]any:
		return schema.Document(v), nil
	}

	val := reflect.ValueOf(record)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("input record cannot be a nil pointer")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct && val.Kind() != reflect.Map {
		return nil, fmt.Errorf("input record must be a struct, a map or a pointer to one, got %s", val.Kind())
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("ToDocument: failed to marshal input record to JSON: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var out map[string]any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("ToDocument: failed to decode JSON into a document: %w", err)
	}
	return schema.Document(normalize(out).(map[string]any)), nil
}

// ParseDocument decodes a JSON object into a Document, with numbers decoded
// the way ToDocument decodes them.
func ParseDocument(data []byte) (schema.Document, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var out map[string]any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("ParseDocument: failed to decode JSON object: %w", err)
	}
	if out == nil {
		return schema.Document{}, nil
	}
	return schema.Document(normalize(out).(map[string]any)), nil
}

// normalize replaces json.Number values with int64 or float64.
func normalize(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			node[k] = normalize(child)
		}
		return node
	case []any:
		for i, child := range node {
			node[i] = normalize(child)
		}
		return node
	case json.Number:
		if i, err := node.Int64(); err == nil {
			return i
		}
		if f, err := node.Float64(); err == nil {
			return f
		}
		return node.String()
	default:
		return v
	}
}

// FromDocument converts a Document into a new instance of T, the inverse of
// ToDocument. T must be a struct type or a pointer to one.
//
// Example:
//
//	book, err := FromDocument[Book](schema.Document{"title": "Dune"})
func FromDocument[T any](input schema.Document) (T, error) {
	var zero T

	if input == nil {
		return zero, fmt.Errorf("FromDocument: input document cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	if typ == nil {
		return zero, fmt.Errorf("FromDocument: generic type T must be a struct type, got interface")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("FromDocument: generic type T must be a struct type (or pointer to struct), got %s", typ.Kind())
	}

	data, err := json.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("FromDocument: failed to marshal input document to JSON: %w", err)
	}

	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, fmt.Errorf("FromDocument: failed to unmarshal JSON to target struct: %w", err)
	}
	return result, nil
}

// Lookup returns the value at a dotted path of the document and whether
// every segment was present.
func Lookup(doc schema.Document, path string) (any, bool) {
	var current any = map[string]any(doc)
	for _, segment := range schema.SplitPath(path) {
		var next any
		var ok bool
		switch node := current.(type) {
		case map[string]any:
			next, ok = node[segment]
		case schema.Document:
			next, ok = node[segment]
		}
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Set stores value at a dotted path of the document, creating intermediate
// maps as needed. A scalar found on the way is replaced by a map.
func Set(doc schema.Document, path string, value any) {
	segments := schema.SplitPath(path)
	if len(segments) == 0 {
		return
	}
	current := map[string]any(doc)
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			if d, isDoc := current[segment].(schema.Document); isDoc {
				next = map[string]any(d)
			} else {
				next = make(map[string]any)
				current[segment] = next
			}
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}
