// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package hooks is the trigger registry and execution protocol. External
// code registers handlers per (kind, class) and the query/write engines
// invoke them through one normalizing runner.
package hooks

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"plinth.io/plinth/pkg/objects"
)

// Kind names one interception point of the pipeline.
type Kind string

const (
	BeforeSave   Kind = "beforeSave"
	AfterSave    Kind = "afterSave"
	BeforeDelete Kind = "beforeDelete"
	AfterDelete  Kind = "afterDelete"
	AfterFind    Kind = "afterFind"

	// Realtime transport variants. Their "class" key is a resource name.
	AfterEvent      Kind = "afterEvent"
	ForSubscription Kind = "forSubscription"
	ForConnection   Kind = "forConnection"
)

// SaveHandler observes or replaces the object about to be persisted.
type SaveHandler func(ctx context.Context, req *Request) (SaveResult, error)

// FindHandler filters or transforms a result list after a query.
type FindHandler func(ctx context.Context, req *Request, results []objects.Record) ([]objects.Record, error)

// EventHandler observes an event without a replacement value.
type EventHandler func(ctx context.Context, req *Request) error

// SaveResult is the tagged return of a before-save handler: either
// "unchanged" or a full replacement field set.
type SaveResult struct {
	replace objects.Record
}

// Unchanged reports that the handler leaves the object as-is.
func Unchanged() SaveResult { return SaveResult{} }

// Replace substitutes the proposed field set.
func Replace(fields objects.Record) SaveResult { return SaveResult{replace: fields} }

// Replacement returns the substituted field set, if any.
func (r SaveResult) Replacement() (objects.Record, bool) {
	return r.replace, r.replace != nil
}

type hookKey struct {
	kind  Kind
	class string
}

type hookEntry struct {
	save      SaveHandler
	find      FindHandler
	event     EventHandler
	validator *Validator
}

// Registry is the per-application trigger table. It is owned by the
// application object, never a process-wide singleton, so independent
// instances do not interfere.
type Registry struct {
	log *zap.Logger

	mu      sync.RWMutex
	entries map[hookKey]hookEntry
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{log: log, entries: map[hookKey]hookEntry{}}
}

// AddBeforeSave registers the before-save handler for a class. At most
// one handler and one validator are active per key; re-registration
// overwrites with a warning.
func (r *Registry) AddBeforeSave(class string, handler SaveHandler, validator *Validator) {
	r.add(hookKey{BeforeSave, class}, hookEntry{save: handler, validator: validator})
}

// AddAfterFind registers the after-query handler for a class.
func (r *Registry) AddAfterFind(class string, handler FindHandler, validator *Validator) {
	r.add(hookKey{AfterFind, class}, hookEntry{find: handler, validator: validator})
}

// AddEvent registers a handler for the remaining kinds: after-save,
// before/after delete, and the realtime variants.
func (r *Registry) AddEvent(kind Kind, classOrResource string, handler EventHandler, validator *Validator) {
	r.add(hookKey{kind, classOrResource}, hookEntry{event: handler, validator: validator})
}

func (r *Registry) add(key hookKey, entry hookEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		r.log.Warn("overwriting registered hook",
			zap.String("kind", string(key.kind)), zap.String("class", key.class))
	}
	r.entries[key] = entry
}

// Remove drops the handler and validator for (kind, class).
func (r *Registry) Remove(kind Kind, class string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, hookKey{kind, class})
}

// Exists reports whether a handler is registered for (kind, class).
func (r *Registry) Exists(kind Kind, class string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[hookKey{kind, class}]
	return ok
}

func (r *Registry) get(kind Kind, class string) (hookEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[hookKey{kind, class}]
	return entry, ok
}
