// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package hooks

import (
	"context"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/objects"
)

var mon = monkit.Package()

// RunBeforeSave invokes the registered before-save handler for the
// request's class. It returns a replacement field set when the handler
// substitutes one, or nil for "no change". A handler rejection aborts the
// write.
func (r *Registry) RunBeforeSave(ctx context.Context, req *Request) (_ objects.Record, err error) {
	defer mon.Task()(&ctx)(&err)

	entry, ok := r.get(BeforeSave, req.Class)
	if !ok {
		return nil, nil
	}
	if err := entry.validator.run(ctx, req); err != nil {
		return nil, err
	}
	if req.skipHandler {
		return nil, nil
	}

	var result SaveResult
	err = invoke(func() error {
		var err error
		result, err = entry.save(ctx, req)
		return err
	})
	if err != nil {
		r.log.Info("before-save hook rejected",
			zap.String("class", req.Class), zap.Error(err))
		return nil, err
	}
	replacement, _ := result.Replacement()
	r.log.Debug("before-save hook ran",
		zap.String("class", req.Class), zap.Bool("replaced", replacement != nil))
	return replacement, nil
}

// RunAfterFind invokes the registered after-query handler. Its returned
// replacement list becomes the final result set.
func (r *Registry) RunAfterFind(ctx context.Context, req *Request, results []objects.Record) (_ []objects.Record, err error) {
	defer mon.Task()(&ctx)(&err)

	entry, ok := r.get(AfterFind, req.Class)
	if !ok {
		return results, nil
	}
	if err := entry.validator.run(ctx, req); err != nil {
		return nil, err
	}
	if req.skipHandler {
		return results, nil
	}

	var replaced []objects.Record
	err = invoke(func() error {
		var err error
		replaced, err = entry.find(ctx, req, results)
		return err
	})
	if err != nil {
		r.log.Info("after-find hook rejected",
			zap.String("class", req.Class), zap.Error(err))
		return nil, err
	}
	r.log.Debug("after-find hook ran",
		zap.String("class", req.Class), zap.Int("results", len(replaced)))
	return replaced, nil
}

// RunEvent invokes an event-kind handler. The caller decides whether a
// failure propagates; after-write kinds treat failures as best-effort.
func (r *Registry) RunEvent(ctx context.Context, kind Kind, req *Request) (err error) {
	defer mon.Task()(&ctx)(&err)

	entry, ok := r.get(kind, req.Class)
	if !ok {
		return nil
	}
	if err := entry.validator.run(ctx, req); err != nil {
		return err
	}
	if req.skipHandler {
		return nil
	}

	err = invoke(func() error { return entry.event(ctx, req) })
	if err != nil {
		r.log.Info("event hook failed",
			zap.String("kind", string(kind)), zap.String("class", req.Class), zap.Error(err))
		return err
	}
	r.log.Debug("event hook ran",
		zap.String("kind", string(kind)), zap.String("class", req.Class))
	return nil
}

// invoke runs handler code, normalizing panics and foreign error values
// into the standard coded error shape.
func invoke(fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = errdata.Normalize(recovered)
		}
	}()
	if err := fn(); err != nil {
		return errdata.Normalize(err)
	}
	return nil
}
