// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package storelogger wraps a storage adapter with debug logging.
package storelogger

import (
	"context"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/storage"
)

var mon = monkit.Package()

var id int64

// Logger implements a zap logging wrapper for storage.Adapter.
type Logger struct {
	log     *zap.Logger
	adapter storage.Adapter
}

// New creates a new Logger around adapter.
func New(log *zap.Logger, adapter storage.Adapter) *Logger {
	loggerid := atomic.AddInt64(&id, 1)
	name := strconv.Itoa(int(loggerid))
	return &Logger{log.Named(name), adapter}
}

// Find logs and forwards to the wrapped adapter.
func (store *Logger) Find(ctx context.Context, className string, where objects.Record, opts storage.FindOptions, cs *storage.ConstraintSet) (_ []objects.Record, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Find", zap.String("class", className), zap.Any("where", where), zap.Bool("master", cs.Master()))
	return store.adapter.Find(ctx, className, where, opts, cs)
}

// Count logs and forwards to the wrapped adapter.
func (store *Logger) Count(ctx context.Context, className string, where objects.Record, cs *storage.ConstraintSet) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Count", zap.String("class", className), zap.Any("where", where))
	return store.adapter.Count(ctx, className, where, cs)
}

// Create logs and forwards to the wrapped adapter.
func (store *Logger) Create(ctx context.Context, className string, fields objects.Record, cs *storage.ConstraintSet) (_ objects.Record, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Create", zap.String("class", className), zap.Int("fields", len(fields)))
	return store.adapter.Create(ctx, className, fields, cs)
}

// Update logs and forwards to the wrapped adapter.
func (store *Logger) Update(ctx context.Context, className string, selector objects.Record, fields objects.Record, cs *storage.ConstraintSet) (_ objects.Record, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Update", zap.String("class", className), zap.Any("selector", selector), zap.Int("fields", len(fields)))
	return store.adapter.Update(ctx, className, selector, fields, cs)
}

// Destroy logs and forwards to the wrapped adapter.
func (store *Logger) Destroy(ctx context.Context, className string, selector objects.Record, cs *storage.ConstraintSet) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Destroy", zap.String("class", className), zap.Any("selector", selector))
	return store.adapter.Destroy(ctx, className, selector, cs)
}

// LoadSchema forwards to the wrapped adapter.
func (store *Logger) LoadSchema(ctx context.Context) (_ classes.Controller, err error) {
	defer mon.Task()(&ctx)(&err)
	return store.adapter.LoadSchema(ctx)
}

// Close closes the wrapped adapter.
func (store *Logger) Close() error {
	return store.adapter.Close()
}
