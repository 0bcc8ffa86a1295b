// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package teststore implements an in-memory storage adapter.
package teststore

import (
	"context"
	"sync"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/storage"
	"plinth.io/plinth/storage/filter"
)

// Client implements an in-memory storage adapter.
type Client struct {
	mu        sync.Mutex
	records   map[string][]objects.Record
	schemas   map[string]classes.Schema
	CallCount struct {
		Find    int
		Count   int
		Create  int
		Update  int
		Destroy int
	}
}

// New creates an empty in-memory adapter.
func New() *Client {
	return &Client{
		records: map[string][]objects.Record{},
		schemas: map[string]classes.Schema{},
	}
}

// AddSchema declares a class schema up front.
func (store *Client) AddSchema(schema classes.Schema) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.schemas[schema.ClassName] = schema
}

// Find returns matching records restricted to what cs may read.
func (store *Client) Find(ctx context.Context, className string, where objects.Record, opts storage.FindOptions, cs *storage.ConstraintSet) ([]objects.Record, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Find++

	matched, err := store.match(className, where, filter.Options{CaseInsensitive: opts.CaseInsensitive}, cs, false)
	if err != nil {
		return nil, err
	}
	filter.SortRecords(matched, opts.Sort)

	if opts.Skip > 0 {
		if opts.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}

	out := make([]objects.Record, 0, len(matched))
	for _, rec := range matched {
		out = append(out, project(objects.DeepCopy(rec), opts.Keys))
	}
	return out, nil
}

// Count returns how many records match where, ignoring pagination.
func (store *Client) Count(ctx context.Context, className string, where objects.Record, cs *storage.ConstraintSet) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Count++

	matched, err := store.match(className, where, filter.Options{}, cs, false)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// Create stores a new record verbatim.
func (store *Client) Create(ctx context.Context, className string, fields objects.Record, cs *storage.ConstraintSet) (objects.Record, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Create++

	if _, declared := store.schemas[className]; !declared {
		store.schemas[className] = classes.DefaultSchema(className)
	}
	stored := objects.DeepCopy(fields)
	store.records[className] = append(store.records[className], stored)
	return objects.DeepCopy(stored), nil
}

// Update applies fields to the first record matching selector. A nil field
// value removes the field.
func (store *Client) Update(ctx context.Context, className string, selector objects.Record, fields objects.Record, cs *storage.ConstraintSet) (objects.Record, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Update++

	matched, err := store.match(className, selector, filter.Options{}, cs, true)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, storage.ErrNotFound.New("no record matches selector in %q", className)
	}
	target := matched[0]
	for key, value := range fields {
		if value == nil {
			delete(target, key)
			continue
		}
		target[key] = deepCopyValue(value)
	}
	return objects.DeepCopy(target), nil
}

// Destroy removes all records matching selector.
func (store *Client) Destroy(ctx context.Context, className string, selector objects.Record, cs *storage.ConstraintSet) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Destroy++

	kept := store.records[className][:0]
	removed := 0
	for _, rec := range store.records[className] {
		ok, err := filter.Match(rec, selector)
		if err != nil {
			return err
		}
		if ok && writable(rec, cs) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	store.records[className] = kept
	if removed == 0 {
		return storage.ErrNotFound.New("no record matches selector in %q", className)
	}
	return nil
}

// LoadSchema returns the in-memory schema controller.
func (store *Client) LoadSchema(ctx context.Context) (classes.Controller, error) {
	return (*schemaController)(store), nil
}

// Close implements storage.Adapter.
func (store *Client) Close() error { return nil }

// match assumes the caller holds the lock.
func (store *Client) match(className string, where objects.Record, opts filter.Options, cs *storage.ConstraintSet, forWrite bool) ([]objects.Record, error) {
	var matched []objects.Record
	for _, rec := range store.records[className] {
		ok, err := filter.MatchWith(rec, where, opts)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if forWrite {
			if !writable(rec, cs) {
				continue
			}
		} else if !readable(rec, cs) {
			continue
		}
		matched = append(matched, rec)
	}
	return matched, nil
}

func readable(rec objects.Record, cs *storage.ConstraintSet) bool {
	if cs.Master() {
		return true
	}
	acl, err := objects.ParseACL(rec["ACL"])
	if err != nil {
		return false
	}
	return acl.CanRead(cs.Keys)
}

func writable(rec objects.Record, cs *storage.ConstraintSet) bool {
	if cs.Master() {
		return true
	}
	acl, err := objects.ParseACL(rec["ACL"])
	if err != nil {
		return false
	}
	return acl.CanWrite(cs.Keys)
}

func project(rec objects.Record, keys []string) objects.Record {
	if len(keys) == 0 {
		return rec
	}
	out := objects.Record{}
	if id, ok := rec["objectId"]; ok {
		out["objectId"] = id
	}
	for _, key := range keys {
		if value, ok := rec[key]; ok {
			out[key] = value
		}
	}
	return out
}

func deepCopyValue(value interface{}) interface{} {
	if m, ok := value.(map[string]interface{}); ok {
		return objects.DeepCopy(m)
	}
	if s, ok := value.([]interface{}); ok {
		out := make([]interface{}, len(s))
		for i, inner := range s {
			out[i] = deepCopyValue(inner)
		}
		return out
	}
	return value
}
