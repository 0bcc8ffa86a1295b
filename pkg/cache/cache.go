// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package cache is the external cache collaborator used for role closures
// and user/session lookups.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zeebo/errs"
)

// Error is the class of cache errors.
var Error = errs.Class("cache error")

// ErrMiss is the class returned when a key is not cached.
var ErrMiss = errs.Class("cache miss")

// Client is a byte-oriented cache.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

const rolePrefix = "roles:"

// Roles caches resolved role closures per principal.
type Roles struct {
	client Client
	ttl    time.Duration
}

// NewRoles wraps client with the role namespace and ttl.
func NewRoles(client Client, ttl time.Duration) *Roles {
	return &Roles{client: client, ttl: ttl}
}

// Get returns the cached role names for userID, reporting a miss through
// ok instead of an error.
func (roles *Roles) Get(ctx context.Context, userID string) (names []string, ok bool, err error) {
	value, err := roles.client.Get(ctx, rolePrefix+userID)
	if err != nil {
		if ErrMiss.Has(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if err := json.Unmarshal(value, &names); err != nil {
		return nil, false, Error.Wrap(err)
	}
	return names, true, nil
}

// Put stores the role names for userID.
func (roles *Roles) Put(ctx context.Context, userID string, names []string) error {
	value, err := json.Marshal(names)
	if err != nil {
		return Error.Wrap(err)
	}
	return roles.client.Put(ctx, rolePrefix+userID, value, roles.ttl)
}

// Del drops the cached closure for userID. Role mutations elsewhere call
// this to bound staleness.
func (roles *Roles) Del(ctx context.Context, userID string) error {
	return roles.client.Del(ctx, rolePrefix+userID)
}
