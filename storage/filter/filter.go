// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package filter evaluates the wire-level constraint grammar against plain
// records. Both in-process adapters share it; a database-backed adapter
// would compile the same grammar to its native query language instead.
package filter

import (
	"regexp"
	"sort"
	"strings"

	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/objects"
)

// Operator keys begin with the reserved sigil to distinguish them from
// field names.
const sigil = "$"

// Options adjust matching behavior.
type Options struct {
	// CaseInsensitive makes string equality match case-insensitively.
	CaseInsensitive bool
}

// IsConstraint reports whether value is a constraint object: a non-empty
// map whose keys are all operators.
func IsConstraint(value interface{}) bool {
	m, ok := value.(map[string]interface{})
	if !ok || len(m) == 0 {
		return false
	}
	for key := range m {
		if !strings.HasPrefix(key, sigil) {
			return false
		}
	}
	return true
}

// HasOperators reports whether value is a map containing at least one
// operator key.
func HasOperators(value interface{}) bool {
	m, ok := value.(map[string]interface{})
	if !ok {
		return false
	}
	for key := range m {
		if strings.HasPrefix(key, sigil) {
			return true
		}
	}
	return false
}

// Match reports whether rec satisfies the filter document where.
func Match(rec objects.Record, where objects.Record) (bool, error) {
	return MatchWith(rec, where, Options{})
}

// MatchWith is Match with explicit options.
func MatchWith(rec objects.Record, where objects.Record, opts Options) (bool, error) {
	return matcher{opts}.matchAll(rec, where)
}

type matcher struct {
	opts Options
}

func (m matcher) matchAll(rec objects.Record, where objects.Record) (bool, error) {
	for key, constraint := range where {
		switch key {
		case "$or", "$and":
			branches, ok := constraint.([]interface{})
			if !ok {
				return false, errdata.New(errdata.InvalidQuery, "%s requires an array", key)
			}
			anyMatched := false
			for _, branch := range branches {
				sub, ok := branch.(map[string]interface{})
				if !ok {
					return false, errdata.New(errdata.InvalidQuery, "%s branch must be a map", key)
				}
				matched, err := m.matchAll(rec, sub)
				if err != nil {
					return false, err
				}
				if matched {
					anyMatched = true
				} else if key == "$and" {
					return false, nil
				}
			}
			if key == "$or" && !anyMatched {
				return false, nil
			}
		default:
			value, present := objects.Get(rec, key)
			ok, err := m.matchField(value, present, constraint)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func (m matcher) matchField(value interface{}, present bool, constraint interface{}) (bool, error) {
	if IsConstraint(constraint) {
		for op, operand := range constraint.(map[string]interface{}) {
			ok, err := m.matchOperator(value, present, op, operand)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
	return present && m.valuesEqual(value, constraint), nil
}

func (m matcher) matchOperator(value interface{}, present bool, op string, operand interface{}) (bool, error) {
	switch op {
	case "$eq":
		return present && m.valuesEqual(value, operand), nil
	case "$ne":
		return !present || !m.valuesEqual(value, operand), nil
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return false, errdata.New(errdata.InvalidQuery, "$exists requires a boolean")
		}
		return present == want, nil
	case "$in", "$nin":
		values, ok := operand.([]interface{})
		if !ok {
			return false, errdata.New(errdata.InvalidQuery, "%s requires an array", op)
		}
		found := false
		if present {
			for _, candidate := range values {
				if m.valuesEqual(value, candidate) {
					found = true
					break
				}
			}
		}
		if op == "$in" {
			return found, nil
		}
		return !found, nil
	case "$all":
		wanted, ok := operand.([]interface{})
		if !ok {
			return false, errdata.New(errdata.InvalidQuery, "$all requires an array")
		}
		elems, ok := value.([]interface{})
		if !ok {
			return false, nil
		}
		for _, want := range wanted {
			found := false
			for _, elem := range elems {
				if m.scalarEqual(elem, want) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		cmp, ok := compareValues(value, operand)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return cmp > 0, nil
		case "$gte":
			return cmp >= 0, nil
		case "$lt":
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case "$regex":
		pattern, ok := operand.(string)
		if !ok {
			return false, errdata.New(errdata.InvalidQuery, "$regex requires a string")
		}
		str, ok := value.(string)
		if !ok {
			return false, nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, errdata.New(errdata.InvalidQuery, "invalid $regex pattern: %v", err)
		}
		return re.MatchString(str), nil
	default:
		return false, errdata.New(errdata.InvalidQuery, "unknown operator %q", op)
	}
}

// valuesEqual applies the store's equality semantics: an equality
// constraint against an array field matches when any element equals the
// operand.
func (m matcher) valuesEqual(value, operand interface{}) bool {
	if elems, ok := value.([]interface{}); ok {
		if _, operandIsArray := operand.([]interface{}); !operandIsArray {
			for _, elem := range elems {
				if m.scalarEqual(elem, operand) {
					return true
				}
			}
			return false
		}
	}
	return m.scalarEqual(value, operand)
}

func (m matcher) scalarEqual(a, b interface{}) bool {
	if na, ok := asNumber(a); ok {
		nb, ok := asNumber(b)
		return ok && na == nb
	}
	if ta, ok := objects.AsDate(a); ok {
		tb, ok := objects.AsDate(b)
		return ok && ta.Equal(tb)
	}
	if m.opts.CaseInsensitive {
		if sa, ok := a.(string); ok {
			sb, ok := b.(string)
			return ok && strings.EqualFold(sa, sb)
		}
	}
	return objects.Equal(a, b)
}

func compareValues(a, b interface{}) (int, bool) {
	if na, ok := asNumber(a); ok {
		nb, ok := asNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	if ta, ok := objects.AsDate(a); ok {
		tb, ok := objects.AsDate(b)
		if !ok {
			return 0, false
		}
		switch {
		case ta.Before(tb):
			return -1, true
		case ta.After(tb):
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func asNumber(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// SortRecords orders records in place by the given sort keys, "-" prefixed
// for descending.
func SortRecords(records []objects.Record, keys []string) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, key := range keys {
			descending := strings.HasPrefix(key, "-")
			field := strings.TrimPrefix(key, "-")
			a, _ := objects.Get(records[i], field)
			b, _ := objects.Get(records[j], field)
			cmp, ok := compareValues(a, b)
			if !ok || cmp == 0 {
				continue
			}
			if descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
