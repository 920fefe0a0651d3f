package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaidimu/go-quarry/core/schema"
)

// Codec converts values between their Go form and the storage classes
// SQLite keeps them in: booleans as integers, documents and arrays as JSON
// text.
type Codec struct{}

// Encode prepares a Go value for use as a statement parameter of type dt.
func (Codec) Encode(dt schema.DataType, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch dt {
	case schema.DataTypeBoolean:
		switch v := value.(type) {
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		case string:
			switch strings.ToLower(v) {
			case "true":
				return 1, nil
			case "false":
				return 0, nil
			}
		case int, int64:
			return v, nil
		case float64:
			if v == 1 {
				return 1, nil
			}
			if v == 0 {
				return 0, nil
			}
		}
		return nil, fmt.Errorf("expected boolean for %s, got %T", dt, value)

	case schema.DataTypeJSON, schema.DataTypeArray, schema.DataTypeObject:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case json.RawMessage:
			return string(v), nil
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize %s value to JSON: %w", dt, err)
		}
		return string(data), nil

	default:
		return value, nil
	}
}

// Decode converts a scanned value back into its Go form for dt. Values that
// do not match the expected storage class are returned unchanged.
func (Codec) Decode(dt schema.DataType, value any) any {
	if value == nil {
		return nil
	}

	switch dt {
	case schema.DataTypeBoolean:
		switch v := value.(type) {
		case int64:
			return v != 0
		case bool:
			return v
		}
	case schema.DataTypeString, schema.DataTypeUUID:
		if b, ok := value.([]byte); ok {
			return string(b)
		}
	case schema.DataTypeInteger, schema.DataTypeLong:
		if f, ok := value.(float64); ok {
			return int64(f)
		}
	case schema.DataTypeDouble, schema.DataTypeDecimal:
		if i, ok := value.(int64); ok {
			return float64(i)
		}
	case schema.DataTypeJSON, schema.DataTypeArray, schema.DataTypeObject:
		var data []byte
		switch v := value.(type) {
		case []byte:
			data = v
		case string:
			data = []byte(v)
		}
		if data != nil {
			var decoded any
			if err := json.Unmarshal(data, &decoded); err == nil {
				return decoded
			}
		}
	}
	return value
}
