// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package rest

import (
	"context"

	"plinth.io/plinth/pkg/auth"
	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/hooks"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/storage"
	"plinth.io/plinth/storage/filter"
)

// QueryOptions carry pagination, projection and expansion options.
type QueryOptions struct {
	Skip  int
	Limit int
	Sort  []string
	Keys  []string
	// Count requests a count instead of a result window.
	Count bool
	// Include lists dotted relationship-expansion paths.
	Include []string
}

// QueryResult is the engine's response envelope.
type QueryResult struct {
	Results []objects.Record
	Count   int64
}

// Query executes one declarative filter against one class: it rewrites
// subquery operators, folds in ACL visibility, delegates to the storage
// adapter, expands includes and invokes the after-query hook. Instances
// are built fresh per call and hold no shared state.
type Query struct {
	env       *Env
	a         *auth.Auth
	className string
	where     objects.Record
	opts      QueryOptions
	transport hooks.Transport

	depth int
	cs    *storage.ConstraintSet
}

// NewQuery builds a query instance. The filter document is copied; the
// caller's value is never mutated.
func NewQuery(env *Env, a *auth.Auth, className string, where objects.Record, opts QueryOptions, transport hooks.Transport) *Query {
	return &Query{
		env:       env,
		a:         a,
		className: className,
		where:     objects.DeepCopy(where),
		opts:      opts,
		transport: transport,
	}
}

// Execute runs the strictly ordered query pipeline.
func (q *Query) Execute(ctx context.Context) (_ *QueryResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if q.where == nil {
		q.where = objects.Record{}
	}
	if err := q.constrainSessions(); err != nil {
		return nil, err
	}
	q.cs, err = q.a.VisibilityKeys(ctx)
	if err != nil {
		return nil, err
	}
	q.className = q.env.redirected(q.className)
	if err := q.env.enforceClassCreation(ctx, q.a, q.className); err != nil {
		return nil, err
	}
	if err := q.replaceSubqueries(ctx); err != nil {
		return nil, err
	}
	normalizeConstraints(q.where)

	if q.opts.Count {
		count, err := q.env.Adapter.Count(ctx, q.className, q.where, q.cs)
		if err != nil {
			return nil, err
		}
		return &QueryResult{Count: count}, nil
	}

	results, err := q.env.Adapter.Find(ctx, q.className, q.where, storage.FindOptions{
		Skip:  q.opts.Skip,
		Limit: q.opts.Limit,
		Sort:  q.opts.Sort,
		Keys:  q.opts.Keys,
	}, q.cs)
	if err != nil {
		return nil, err
	}

	for _, rec := range results {
		q.cleanResult(rec)
	}
	if err := q.expandIncludes(ctx, results); err != nil {
		return nil, err
	}
	results, err = q.runAfterFind(ctx, results)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Results: results}, nil
}

// constrainSessions restricts non-administrative session queries to the
// caller's own sessions.
func (q *Query) constrainSessions() error {
	if q.className != classes.SessionClass || q.a.Master {
		return nil
	}
	if !q.a.Authenticated() {
		return errdata.New(errdata.InvalidSessionToken, "invalid session token")
	}
	owner := objects.Pointer{ClassName: classes.UserClass, ObjectID: q.a.UserID()}
	q.where = objects.Record{
		"$and": []interface{}{
			map[string]interface{}(q.where),
			map[string]interface{}{"user": owner.Wire()},
		},
	}
	return nil
}

// replaceSubqueries repeatedly locates one subquery-style operator and
// replaces it with the resolved identifier set, until none remain. Each
// replacement removes one operator node, so the loop terminates.
func (q *Query) replaceSubqueries(ctx context.Context) error {
	for {
		constraint, op := findSubqueryOperator(q.where)
		if constraint == nil {
			return nil
		}
		if err := q.replaceOne(ctx, constraint, op); err != nil {
			return err
		}
	}
}

var subqueryOperators = []string{"$inQuery", "$notInQuery", "$select", "$dontSelect"}

// findSubqueryOperator walks the filter tree and returns the first
// constraint map holding a subquery operator, with the operator key.
func findSubqueryOperator(where objects.Record) (map[string]interface{}, string) {
	for key, value := range where {
		if key == "$or" || key == "$and" {
			branches, ok := value.([]interface{})
			if !ok {
				continue
			}
			for _, branch := range branches {
				sub, ok := branch.(map[string]interface{})
				if !ok {
					continue
				}
				if constraint, op := findSubqueryOperator(sub); constraint != nil {
					return constraint, op
				}
			}
			continue
		}
		constraint, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		for _, op := range subqueryOperators {
			if _, found := constraint[op]; found {
				return constraint, op
			}
		}
	}
	return nil, ""
}

func (q *Query) replaceOne(ctx context.Context, constraint map[string]interface{}, op string) error {
	if q.depth >= q.env.subqueryDepth() {
		return errdata.New(errdata.InvalidQuery, "subquery nesting exceeds depth limit")
	}

	payload, ok := constraint[op].(map[string]interface{})
	if !ok {
		return errdata.New(errdata.InvalidQuery, "improper usage of %s", op)
	}

	var subClass string
	var subWhere map[string]interface{}
	var valueKey string

	switch op {
	case "$inQuery", "$notInQuery":
		subClass, _ = payload["className"].(string)
		subWhere, _ = payload["where"].(map[string]interface{})
		valueKey = "objectId"
		if subClass == "" || subWhere == nil {
			return errdata.New(errdata.InvalidQuery, "improper usage of %s", op)
		}
	case "$select", "$dontSelect":
		valueKey, _ = payload["key"].(string)
		query, _ := payload["query"].(map[string]interface{})
		if query != nil {
			subClass, _ = query["className"].(string)
			subWhere, _ = query["where"].(map[string]interface{})
		}
		if valueKey == "" || subClass == "" || subWhere == nil {
			return errdata.New(errdata.InvalidQuery, "improper usage of %s", op)
		}
	}

	sub := NewQuery(q.env, q.a, subClass, subWhere, QueryOptions{}, q.transport)
	sub.depth = q.depth + 1
	result, err := sub.Execute(ctx)
	if err != nil {
		return err
	}

	values := make([]interface{}, 0, len(result.Results))
	for _, rec := range result.Results {
		switch op {
		case "$inQuery", "$notInQuery":
			id, _ := rec["objectId"].(string)
			pointer := objects.Pointer{ClassName: subClass, ObjectID: id}
			values = append(values, pointer.Wire())
		default:
			if value, ok := objects.Get(rec, valueKey); ok {
				values = append(values, value)
			}
		}
	}

	target := "$in"
	if op == "$notInQuery" || op == "$dontSelect" {
		target = "$nin"
	}
	delete(constraint, op)
	if existing, ok := constraint[target].([]interface{}); ok {
		constraint[target] = append(existing, values...)
	} else {
		constraint[target] = values
	}
	return nil
}

// normalizeConstraints rewrites every constraint object mixing a direct
// equality with operator keys into an explicit $eq operator, so no
// ambiguity remains between "equals this object" and "matches these
// operators".
func normalizeConstraints(where objects.Record) {
	for key, value := range where {
		if key == "$or" || key == "$and" {
			if branches, ok := value.([]interface{}); ok {
				for _, branch := range branches {
					if sub, ok := branch.(map[string]interface{}); ok {
						normalizeConstraints(sub)
					}
				}
			}
			continue
		}
		constraint, ok := value.(map[string]interface{})
		if !ok || filter.IsConstraint(constraint) || !filter.HasOperators(constraint) {
			continue
		}
		equality := map[string]interface{}{}
		for inner, innerValue := range constraint {
			if len(inner) > 0 && inner[0] != '$' {
				equality[inner] = innerValue
				delete(constraint, inner)
			}
		}
		constraint["$eq"] = equality
	}
}

// cleanResult strips sensitive identity fields and expands file
// references to their addressable form.
func (q *Query) cleanResult(rec objects.Record) {
	if q.className == classes.UserClass {
		delete(rec, "password")
		delete(rec, "hashedPassword")
		delete(rec, "passwordHistory")
		delete(rec, "perishableToken")
		if !q.a.Master {
			if id, _ := rec["objectId"].(string); id != q.a.UserID() {
				delete(rec, "authData")
			}
		}
	}
	objects.ExpandFiles(rec, q.env.FileURL)
}

func (q *Query) runAfterFind(ctx context.Context, results []objects.Record) ([]objects.Record, error) {
	if !q.env.Hooks.Exists(hooks.AfterFind, q.className) {
		return results, nil
	}
	req, err := hooks.NewRequest(ctx, hooks.AfterFind, q.className, q.a, nil, nil, q.transport, q.env.Log)
	if err != nil {
		return nil, err
	}
	return q.env.Hooks.RunAfterFind(ctx, req, results)
}
