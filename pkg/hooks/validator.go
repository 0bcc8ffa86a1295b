// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package hooks

import (
	"context"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/objects"
)

// FieldRule is one declarative constraint on a subject field.
type FieldRule struct {
	Required bool
	// Type restricts the field's wire type when non-empty.
	Type classes.FieldType
	// Options enumerates allowed values.
	Options []interface{}
	// OptionFn accepts or rejects a value; used when a static list is
	// not expressive enough.
	OptionFn func(value interface{}) bool
	// Default is injected when the field is absent.
	Default interface{}
	// Constant locks the field after creation: on update the prior value
	// is silently restored.
	Constant bool
}

// Validator gates a handler. The declarative rules run first, then the
// imperative Func if set.
type Validator struct {
	Fields          map[string]FieldRule
	RequireUser     bool
	RequireUserKeys []string
	// SkipWithMasterKey short-circuits the handler entirely for
	// administrative contexts, returning the unmodified subject.
	SkipWithMasterKey bool
	Func              func(ctx context.Context, req *Request) error
}

func (v *Validator) run(ctx context.Context, req *Request) error {
	if v == nil {
		return nil
	}
	if v.SkipWithMasterKey && req.Master {
		req.skipHandler = true
		return nil
	}
	if v.RequireUser && req.User == nil {
		return errdata.New(errdata.SessionMissing, "validation requires an authenticated user")
	}
	for _, key := range v.RequireUserKeys {
		if req.User == nil {
			return errdata.New(errdata.SessionMissing, "validation requires an authenticated user")
		}
		if _, ok := objects.Get(req.User.Record, key); !ok {
			return errdata.New(errdata.ValidationFailed, "user is missing required key %q", key)
		}
	}
	for field, rule := range v.Fields {
		if err := v.runField(req, field, rule); err != nil {
			return err
		}
	}
	if v.Func != nil {
		if err := v.Func(ctx, req); err != nil {
			return errdata.Normalize(err)
		}
	}
	return nil
}

func (v *Validator) runField(req *Request, field string, rule FieldRule) error {
	value, present := objects.Get(req.Object, field)

	if !present && rule.Default != nil {
		objects.Set(req.Object, field, rule.Default)
		value, present = rule.Default, true
	}
	if rule.Required && !present {
		return errdata.New(errdata.ValidationFailed, "missing required field %q", field)
	}
	if !present {
		return nil
	}
	if rule.Constant && req.Original != nil {
		prior, had := objects.Get(req.Original, field)
		if had {
			objects.Set(req.Object, field, prior)
		} else {
			delete(req.Object, field)
		}
		return nil
	}
	if rule.Type != "" && !matchesType(value, rule.Type) {
		return errdata.New(errdata.ValidationFailed, "field %q must be of type %s", field, rule.Type)
	}
	if len(rule.Options) > 0 {
		allowed := false
		for _, option := range rule.Options {
			if objects.Equal(value, option) {
				allowed = true
				break
			}
		}
		if !allowed {
			return errdata.New(errdata.ValidationFailed, "field %q has an unexpected value", field)
		}
	}
	if rule.OptionFn != nil && !rule.OptionFn(value) {
		return errdata.New(errdata.ValidationFailed, "field %q has an unexpected value", field)
	}
	return nil
}

func matchesType(value interface{}, fieldType classes.FieldType) bool {
	switch fieldType {
	case classes.String:
		_, ok := value.(string)
		return ok
	case classes.Number:
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case classes.Bool:
		_, ok := value.(bool)
		return ok
	case classes.Array:
		_, ok := value.([]interface{})
		return ok
	case classes.Date:
		_, ok := objects.AsDate(value)
		return ok
	case classes.Pointer:
		_, ok := objects.AsPointer(value)
		return ok
	case classes.File:
		_, ok := objects.AsFile(value)
		return ok
	case classes.Object:
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return true
	}
}
