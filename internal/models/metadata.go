package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is a single metadata entry. Values are strings, bools, or epoch-ms
// integers; collection and nested-object fields carry raw JSON text.
type Field struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Metadata is an ordered list of metadata fields. Order is preserved across
// serialization so that every sync writes fields in a stable layout.
type Metadata []Field

// Get returns the value for key and whether it was present.
func (m Metadata) Get(key string) (any, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// GetString returns the value for key as a string, or "" when absent or
// not a string.
func (m Metadata) GetString(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetBool returns the value for key as a bool, or false when absent or
// not a bool.
func (m Metadata) GetBool(key string) bool {
	v, ok := m.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// GetInt64 returns the value for key as an int64, or 0 when absent.
func (m Metadata) GetInt64(key string) int64 {
	v, ok := m.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}

// Keys returns the field keys in order.
func (m Metadata) Keys() []string {
	keys := make([]string, len(m))
	for i, f := range m {
		keys[i] = f.Key
	}
	return keys
}

// UnmarshalJSON decodes a field keeping integer values as int64 rather than
// float64, so timestamps survive a round trip through the store.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding metadata field: %w", err)
	}
	f.Key = raw.Key

	dec := json.NewDecoder(bytes.NewReader(raw.Value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decoding metadata value for %q: %w", raw.Key, err)
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			f.Value = i
			return nil
		}
		fl, _ := n.Float64()
		f.Value = fl
		return nil
	}
	f.Value = v
	return nil
}
