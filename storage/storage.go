// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package storage defines the adapter seam between the object pipeline and
// a concrete datastore. The pipeline hands every call a fully resolved
// filter (no subquery operators) and a constraint set describing what the
// caller may see or touch; the adapter executes it and returns plain
// records.
package storage

import (
	"context"

	"github.com/zeebo/errs"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/objects"
)

// Error is the class of storage adapter errors.
var Error = errs.Class("storage error")

// ErrNotFound is returned when an update or destroy selector matches no
// record.
var ErrNotFound = errs.Class("record not found")

// ConstraintSet carries the caller's ACL visibility keys into the adapter.
// A nil set means master access: no ACL filtering at all.
type ConstraintSet struct {
	// Keys holds "*", the caller's user id, and the caller's resolved
	// "role:<name>" entries.
	Keys []string
}

// Master reports whether the set disables ACL enforcement.
func (c *ConstraintSet) Master() bool { return c == nil }

// FindOptions carry pagination and projection options into Find.
type FindOptions struct {
	Skip  int
	Limit int
	// Sort lists field names, "-" prefixed for descending order.
	Sort []string
	// Keys restricts returned fields when non-empty; objectId is always
	// included.
	Keys []string
	// CaseInsensitive makes top-level string equality constraints match
	// case-insensitively. Used for username and email uniqueness checks.
	CaseInsensitive bool
}

// Adapter executes resolved queries and writes against a concrete
// datastore.
type Adapter interface {
	// Find returns the records of className matching where, in the order
	// and window requested, restricted to records the constraint set may
	// read.
	Find(ctx context.Context, className string, where objects.Record, opts FindOptions, cs *ConstraintSet) ([]objects.Record, error)
	// Count returns how many records match where, ignoring pagination.
	Count(ctx context.Context, className string, where objects.Record, cs *ConstraintSet) (int64, error)
	// Create persists a new record and returns it with server-assigned
	// fields filled in.
	Create(ctx context.Context, className string, fields objects.Record, cs *ConstraintSet) (objects.Record, error)
	// Update applies fields to the record matching selector, enforcing
	// write access from the constraint set. A selector matching nothing
	// returns ErrNotFound.
	Update(ctx context.Context, className string, selector objects.Record, fields objects.Record, cs *ConstraintSet) (objects.Record, error)
	// Destroy removes the records matching selector. A selector matching
	// nothing returns ErrNotFound.
	Destroy(ctx context.Context, className string, selector objects.Record, cs *ConstraintSet) error
	// LoadSchema returns the schema controller for the application.
	LoadSchema(ctx context.Context) (classes.Controller, error)
	// Close releases the underlying datastore handle.
	Close() error
}
