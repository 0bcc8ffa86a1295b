// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package teststore

import (
	"context"
	"sort"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/storage"
)

// schemaController exposes the in-memory schemas as a classes.Controller.
type schemaController Client

func (sc *schemaController) HasClass(ctx context.Context, className string) (bool, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, ok := sc.schemas[className]
	return ok, nil
}

func (sc *schemaController) GetOneSchema(ctx context.Context, className string) (classes.Schema, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	schema, ok := sc.schemas[className]
	if !ok {
		return classes.Schema{}, storage.ErrNotFound.New("class %q", className)
	}
	return schema, nil
}

func (sc *schemaController) GetClassLevelPermissions(ctx context.Context, className string) (classes.Permissions, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.schemas[className].Permissions, nil
}

func (sc *schemaController) GetAllClasses(ctx context.Context) ([]classes.Schema, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make([]classes.Schema, 0, len(sc.schemas))
	for _, schema := range sc.schemas {
		out = append(out, schema)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassName < out[j].ClassName })
	return out, nil
}
