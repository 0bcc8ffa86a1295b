// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package boltstore implements a storage adapter backed by a Bolt database
// file, one bucket per class.
package boltstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/storage"
	"plinth.io/plinth/storage/filter"
)

var defaultTimeout = 1 * time.Second

const (
	// fileMode sets permissions so owner can read and write
	fileMode = 0600

	schemaBucket = "__schema"
)

// Client is a storage adapter over a Bolt database.
type Client struct {
	logger *zap.Logger
	db     *bolt.DB
	Path   string
}

// New opens a Bolt database at path.
func New(logger *zap.Logger, path string) (*Client, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, storage.Error.Wrap(err)
	}
	return &Client{logger: logger, db: db, Path: path}, nil
}

// Close closes the underlying database.
func (client *Client) Close() error {
	return client.db.Close()
}

// Find returns matching records restricted to what cs may read.
func (client *Client) Find(ctx context.Context, className string, where objects.Record, opts storage.FindOptions, cs *storage.ConstraintSet) ([]objects.Record, error) {
	var matched []objects.Record
	err := client.db.View(func(tx *bolt.Tx) error {
		var err error
		matched, err = match(tx, className, where, filter.Options{CaseInsensitive: opts.CaseInsensitive}, cs, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	filter.SortRecords(matched, opts.Sort)
	if opts.Skip > 0 {
		if opts.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	for i, rec := range matched {
		matched[i] = project(rec, opts.Keys)
	}
	return matched, nil
}

// Count returns how many records match where, ignoring pagination.
func (client *Client) Count(ctx context.Context, className string, where objects.Record, cs *storage.ConstraintSet) (count int64, err error) {
	err = client.db.View(func(tx *bolt.Tx) error {
		matched, err := match(tx, className, where, filter.Options{}, cs, false)
		if err != nil {
			return err
		}
		count = int64(len(matched))
		return nil
	})
	return count, err
}

// Create stores a new record. The record's objectId becomes the bucket key.
func (client *Client) Create(ctx context.Context, className string, fields objects.Record, cs *storage.ConstraintSet) (objects.Record, error) {
	id, _ := fields["objectId"].(string)
	if id == "" {
		return nil, storage.Error.New("create requires an objectId")
	}
	err := client.db.Update(func(tx *bolt.Tx) error {
		if err := ensureSchema(tx, className); err != nil {
			return err
		}
		bucket, err := tx.CreateBucketIfNotExists([]byte(className))
		if err != nil {
			return storage.Error.Wrap(err)
		}
		encoded, err := json.Marshal(fields)
		if err != nil {
			return storage.Error.Wrap(err)
		}
		return storage.Error.Wrap(bucket.Put([]byte(id), encoded))
	})
	if err != nil {
		return nil, err
	}
	return roundTrip(fields)
}

// Update applies fields to the first record matching selector. A nil field
// value removes the field.
func (client *Client) Update(ctx context.Context, className string, selector objects.Record, fields objects.Record, cs *storage.ConstraintSet) (objects.Record, error) {
	var updated objects.Record
	err := client.db.Update(func(tx *bolt.Tx) error {
		matched, err := match(tx, className, selector, filter.Options{}, cs, true)
		if err != nil {
			return err
		}
		if len(matched) == 0 {
			return storage.ErrNotFound.New("no record matches selector in %q", className)
		}
		target := matched[0]
		for key, value := range fields {
			if value == nil {
				delete(target, key)
				continue
			}
			target[key] = value
		}
		id, _ := target["objectId"].(string)
		encoded, err := json.Marshal(target)
		if err != nil {
			return storage.Error.Wrap(err)
		}
		updated = target
		return storage.Error.Wrap(tx.Bucket([]byte(className)).Put([]byte(id), encoded))
	})
	if err != nil {
		return nil, err
	}
	return roundTrip(updated)
}

// Destroy removes all records matching selector.
func (client *Client) Destroy(ctx context.Context, className string, selector objects.Record, cs *storage.ConstraintSet) error {
	return client.db.Update(func(tx *bolt.Tx) error {
		matched, err := match(tx, className, selector, filter.Options{}, cs, true)
		if err != nil {
			return err
		}
		if len(matched) == 0 {
			return storage.ErrNotFound.New("no record matches selector in %q", className)
		}
		bucket := tx.Bucket([]byte(className))
		for _, rec := range matched {
			id, _ := rec["objectId"].(string)
			if err := bucket.Delete([]byte(id)); err != nil {
				return storage.Error.Wrap(err)
			}
		}
		return nil
	})
}

// LoadSchema returns a schema controller backed by the schema bucket.
func (client *Client) LoadSchema(ctx context.Context) (classes.Controller, error) {
	return &schemaController{client: client}, nil
}

func match(tx *bolt.Tx, className string, where objects.Record, opts filter.Options, cs *storage.ConstraintSet, forWrite bool) ([]objects.Record, error) {
	bucket := tx.Bucket([]byte(className))
	if bucket == nil {
		return nil, nil
	}
	var matched []objects.Record
	err := bucket.ForEach(func(key, value []byte) error {
		var rec objects.Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return storage.Error.Wrap(err)
		}
		ok, err := filter.MatchWith(rec, where, opts)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if !allowed(rec, cs, forWrite) {
			return nil
		}
		matched = append(matched, rec)
		return nil
	})
	return matched, err
}

func allowed(rec objects.Record, cs *storage.ConstraintSet, forWrite bool) bool {
	if cs.Master() {
		return true
	}
	acl, err := objects.ParseACL(rec["ACL"])
	if err != nil {
		return false
	}
	if forWrite {
		return acl.CanWrite(cs.Keys)
	}
	return acl.CanRead(cs.Keys)
}

func project(rec objects.Record, keys []string) objects.Record {
	if len(keys) == 0 {
		return rec
	}
	out := objects.Record{}
	if id, ok := rec["objectId"]; ok {
		out["objectId"] = id
	}
	for _, key := range keys {
		if value, ok := rec[key]; ok {
			out[key] = value
		}
	}
	return out
}

// roundTrip returns the record as a future read would see it, with JSON
// number and map normalization applied.
func roundTrip(rec objects.Record) (objects.Record, error) {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return nil, storage.Error.Wrap(err)
	}
	var out objects.Record
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, storage.Error.Wrap(err)
	}
	return out, nil
}
