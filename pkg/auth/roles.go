// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package auth

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"plinth.io/plinth/pkg/cache"
	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/storage"
)

// Service resolves role closures against the role class, memoizing
// results in the external cache.
type Service struct {
	Log     *zap.Logger
	Adapter storage.Adapter
	Cache   *cache.Roles
}

// NewService creates a role resolution service.
func NewService(log *zap.Logger, adapter storage.Adapter, roleCache *cache.Roles) *Service {
	return &Service{Log: log, Adapter: adapter, Cache: roleCache}
}

// resolve returns the deduplicated, sorted "role:<name>" closure for a
// principal, via the cache when possible.
func (svc *Service) resolve(ctx context.Context, userID string) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	if svc.Cache != nil {
		names, ok, err := svc.Cache.Get(ctx, userID)
		if err != nil {
			svc.Log.Warn("role cache read failed", zap.Error(err))
		} else if ok {
			return names, nil
		}
	}

	names, err := svc.closure(ctx, userID)
	if err != nil {
		return nil, err
	}

	if svc.Cache != nil {
		if err := svc.Cache.Put(ctx, userID, names); err != nil {
			svc.Log.Warn("role cache write failed", zap.Error(err))
		}
	}
	return names, nil
}

// closure runs a breadth-first walk over the role graph. Roles can
// reference roles, and cycles are tolerated: the visited set keyed by role
// id guarantees termination.
func (svc *Service) closure(ctx context.Context, userID string) ([]string, error) {
	userPointer := objects.Pointer{ClassName: classes.UserClass, ObjectID: userID}
	direct, err := svc.Adapter.Find(ctx, classes.RoleClass,
		objects.Record{"users": userPointer.Wire()}, storage.FindOptions{}, nil)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{}
	nameSet := map[string]bool{}
	frontier := collectUnvisited(direct, visited, nameSet)

	for len(frontier) > 0 {
		candidates := make([]interface{}, 0, len(frontier))
		for _, id := range frontier {
			rolePointer := objects.Pointer{ClassName: classes.RoleClass, ObjectID: id}
			candidates = append(candidates, rolePointer.Wire())
		}
		parents, err := svc.Adapter.Find(ctx, classes.RoleClass,
			objects.Record{"roles": map[string]interface{}{"$in": candidates}},
			storage.FindOptions{}, nil)
		if err != nil {
			return nil, err
		}
		frontier = collectUnvisited(parents, visited, nameSet)
	}

	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, objects.RoleKey(name))
	}
	sort.Strings(names)
	return names, nil
}

func collectUnvisited(roles []objects.Record, visited, nameSet map[string]bool) []string {
	var fresh []string
	for _, role := range roles {
		id, _ := role["objectId"].(string)
		if id == "" || visited[id] {
			continue
		}
		visited[id] = true
		fresh = append(fresh, id)
		if name, ok := role["name"].(string); ok && name != "" {
			nameSet[name] = true
		}
	}
	return fresh
}

// InvalidateRoles drops the cached closure for a principal. Call sites
// that mutate the role graph use this to bound staleness.
func (svc *Service) InvalidateRoles(ctx context.Context, userID string) error {
	if svc.Cache == nil {
		return nil
	}
	return svc.Cache.Del(ctx, userID)
}
