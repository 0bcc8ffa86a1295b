// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package objects holds the schemaless record model shared by the query
// and write engines: records, ACLs and the typed wire values embedded in
// them.
package objects

import (
	"reflect"
	"strings"
)

// DeepCopy clones a record so that pipeline stages can mutate their copy
// without aliasing the caller's data.
func DeepCopy(rec Record) Record {
	if rec == nil {
		return nil
	}
	return deepCopyValue(rec).(map[string]interface{})
}

func deepCopyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, inner := range v {
			out[key] = deepCopyValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			out[i] = deepCopyValue(inner)
		}
		return out
	default:
		return v
	}
}

// Get resolves a dotted path ("authData.github.id") inside a record.
func Get(rec Record, path string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(rec)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes a value at a dotted path, creating intermediate maps.
func Set(rec Record, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := map[string]interface{}(rec)
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// Equal compares two record values structurally.
func Equal(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}

// Keys returns the top-level field names of a record.
func Keys(rec Record) []string {
	out := make([]string, 0, len(rec))
	for key := range rec {
		out = append(out, key)
	}
	return out
}
