package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores an arbitrary JSON object inside a JSONB column.
type JSONMap map[string]any

// Value serializes the map to JSON.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return marshalJSON(j)
}

// Scan decodes JSONB into the map.
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded JSONMap
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*j = decoded
	return nil
}

// marshalJSON returns a string so pgx simple protocol sends text, not bytea.
func marshalJSON(v any) (driver.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func scanJSON(value interface{}, dest any) error {
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func asJSON(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}

// RawJSON is an already encoded JSON document stored in a JSONB column.
type RawJSON []byte

func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return string(r), nil
}

func (r *RawJSON) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	*r = append((*r)[:0], raw...)
	return nil
}

func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}
