// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package boltstore

import (
	"context"
	"encoding/json"

	"github.com/boltdb/bolt"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/storage"
)

// ensureSchema records the default schema for className the first time a
// record of that class is stored.
func ensureSchema(tx *bolt.Tx, className string) error {
	bucket, err := tx.CreateBucketIfNotExists([]byte(schemaBucket))
	if err != nil {
		return storage.Error.Wrap(err)
	}
	if bucket.Get([]byte(className)) != nil {
		return nil
	}
	encoded, err := json.Marshal(classes.DefaultSchema(className))
	if err != nil {
		return storage.Error.Wrap(err)
	}
	return storage.Error.Wrap(bucket.Put([]byte(className), encoded))
}

type schemaController struct {
	client *Client
}

func (sc *schemaController) HasClass(ctx context.Context, className string) (has bool, err error) {
	err = sc.client.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(schemaBucket))
		has = bucket != nil && bucket.Get([]byte(className)) != nil
		return nil
	})
	return has, err
}

func (sc *schemaController) GetOneSchema(ctx context.Context, className string) (schema classes.Schema, err error) {
	err = sc.client.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(schemaBucket))
		if bucket == nil {
			return storage.ErrNotFound.New("class %q", className)
		}
		encoded := bucket.Get([]byte(className))
		if encoded == nil {
			return storage.ErrNotFound.New("class %q", className)
		}
		return storage.Error.Wrap(json.Unmarshal(encoded, &schema))
	})
	return schema, err
}

func (sc *schemaController) GetClassLevelPermissions(ctx context.Context, className string) (classes.Permissions, error) {
	schema, err := sc.GetOneSchema(ctx, className)
	if err != nil {
		if storage.ErrNotFound.Has(err) {
			return classes.Permissions{}, nil
		}
		return classes.Permissions{}, err
	}
	return schema.Permissions, nil
}

func (sc *schemaController) GetAllClasses(ctx context.Context) (all []classes.Schema, err error) {
	err = sc.client.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(schemaBucket))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(key, value []byte) error {
			var schema classes.Schema
			if err := json.Unmarshal(value, &schema); err != nil {
				return storage.Error.Wrap(err)
			}
			all = append(all, schema)
			return nil
		})
	})
	return all, err
}
