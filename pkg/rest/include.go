// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package rest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"plinth.io/plinth/pkg/objects"
)

// expandIncludes resolves every requested relationship-expansion path,
// shortest path first so a parent is expanded before a deeper path under
// it. Pointer lookups are batched per referenced class and issued
// concurrently across classes.
func (q *Query) expandIncludes(ctx context.Context, results []objects.Record) error {
	if len(q.opts.Include) == 0 {
		return nil
	}

	paths := make([][]string, 0, len(q.opts.Include))
	for _, path := range q.opts.Include {
		paths = append(paths, strings.Split(path, "."))
	}
	sort.SliceStable(paths, func(i, j int) bool { return len(paths[i]) < len(paths[j]) })

	for _, path := range paths {
		if err := q.expandPath(ctx, results, path); err != nil {
			return err
		}
	}
	return nil
}

func (q *Query) expandPath(ctx context.Context, results []objects.Record, path []string) error {
	// Collect the distinct pointers at this path across all results.
	wanted := map[string]map[string]bool{} // class -> id set
	for _, rec := range results {
		pointer, ok := pointerAt(rec, path)
		if !ok {
			continue
		}
		if wanted[pointer.ClassName] == nil {
			wanted[pointer.ClassName] = map[string]bool{}
		}
		wanted[pointer.ClassName][pointer.ObjectID] = true
	}
	if len(wanted) == 0 {
		return nil
	}

	var mu sync.Mutex
	fetched := map[string]map[string]objects.Record{} // class -> id -> record

	group, groupCtx := errgroup.WithContext(ctx)
	for className, idSet := range wanted {
		className, idSet := className, idSet
		group.Go(func() error {
			ids := make([]interface{}, 0, len(idSet))
			for id := range idSet {
				ids = append(ids, id)
			}
			sub := NewQuery(q.env, q.a, className,
				objects.Record{"objectId": map[string]interface{}{"$in": ids}},
				QueryOptions{}, q.transport)
			sub.depth = q.depth + 1
			result, err := sub.Execute(groupCtx)
			if err != nil {
				return err
			}
			byID := make(map[string]objects.Record, len(result.Results))
			for _, rec := range result.Results {
				if id, ok := rec["objectId"].(string); ok {
					byID[id] = rec
				}
			}
			mu.Lock()
			fetched[className] = byID
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	// Splice the fetched objects back in place of the pointers. The same
	// referenced object may appear at several rows; they share one fetch.
	for _, rec := range results {
		pointer, ok := pointerAt(rec, path)
		if !ok {
			continue
		}
		target, ok := fetched[pointer.ClassName][pointer.ObjectID]
		if !ok {
			continue
		}
		expanded := objects.DeepCopy(target)
		expanded[objects.TypeKey] = "Object"
		expanded["className"] = pointer.ClassName
		setAt(rec, path, expanded)
	}
	return nil
}

func pointerAt(rec objects.Record, path []string) (objects.Pointer, bool) {
	value, ok := valueAt(rec, path)
	if !ok {
		return objects.Pointer{}, false
	}
	return objects.AsPointer(value)
}

func valueAt(rec objects.Record, path []string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(rec)
	for _, part := range path {
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

func setAt(rec objects.Record, path []string, value interface{}) {
	current := map[string]interface{}(rec)
	for _, part := range path[:len(path)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			return
		}
		current = next
	}
	current[path[len(path)-1]] = value
}
