// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package boltstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"plinth.io/plinth/internal/testcontext"
	"plinth.io/plinth/internal/testrand"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/storage"
	"plinth.io/plinth/storage/boltstore"
)

func openStore(t *testing.T, ctx *testcontext.Context) *boltstore.Client {
	t.Helper()
	client, err := boltstore.New(zaptest.NewLogger(t), ctx.File("store", "plinth.db"))
	require.NoError(t, err)
	return client
}

func TestCreateFindRoundTrip(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := openStore(t, ctx)
	defer ctx.Check(store.Close)

	created, err := store.Create(ctx, "Game", objects.Record{
		"objectId": "g1",
		"title":    "chess",
		"score":    42,
		"nested":   map[string]interface{}{"deep": "value"},
	}, nil)
	require.NoError(t, err)
	// numbers normalize to float64 through the JSON round trip
	assert.Equal(t, float64(42), created["score"])

	found, err := store.Find(ctx, "Game", objects.Record{"title": "chess"},
		storage.FindOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created, found[0])
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("store", "plinth.db")

	id := testrand.ObjectID()

	client, err := boltstore.New(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	_, err = client.Create(ctx, "Game", objects.Record{"objectId": id}, nil)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	client, err = boltstore.New(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	found, err := client.Find(ctx, "Game", objects.Record{"objectId": id},
		storage.FindOptions{}, nil)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestUpdateDestroy(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := openStore(t, ctx)
	defer ctx.Check(store.Close)

	_, err := store.Create(ctx, "Game", objects.Record{
		"objectId": "g1", "title": "chess", "stale": "yes",
	}, nil)
	require.NoError(t, err)

	updated, err := store.Update(ctx, "Game", objects.Record{"objectId": "g1"},
		objects.Record{"title": "go", "stale": nil}, nil)
	require.NoError(t, err)
	assert.Equal(t, "go", updated["title"])
	assert.NotContains(t, updated, "stale")

	_, err = store.Update(ctx, "Game", objects.Record{"objectId": "missing"},
		objects.Record{"title": "x"}, nil)
	assert.True(t, storage.ErrNotFound.Has(err))

	require.NoError(t, store.Destroy(ctx, "Game", objects.Record{"objectId": "g1"}, nil))

	err = store.Destroy(ctx, "Game", objects.Record{"objectId": "g1"}, nil)
	assert.True(t, storage.ErrNotFound.Has(err))
}

func TestVisibility(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := openStore(t, ctx)
	defer ctx.Check(store.Close)

	_, err := store.Create(ctx, "Game", objects.Record{
		"objectId": "secret",
		"ACL":      objects.ACL{"u1": {Read: true, Write: true}}.Wire(),
	}, nil)
	require.NoError(t, err)

	found, err := store.Find(ctx, "Game", objects.Record{}, storage.FindOptions{},
		&storage.ConstraintSet{Keys: []string{"*"}})
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = store.Find(ctx, "Game", objects.Record{}, storage.FindOptions{},
		&storage.ConstraintSet{Keys: []string{"*", "u1"}})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = store.Find(ctx, "Game", objects.Record{}, storage.FindOptions{}, nil)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestSchemaPersisted(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := openStore(t, ctx)
	defer ctx.Check(store.Close)

	_, err := store.Create(ctx, "_User", objects.Record{"objectId": "u1"}, nil)
	require.NoError(t, err)

	controller, err := store.LoadSchema(ctx)
	require.NoError(t, err)

	ok, err := controller.HasClass(ctx, "_User")
	require.NoError(t, err)
	assert.True(t, ok)

	schema, err := controller.GetOneSchema(ctx, "_User")
	require.NoError(t, err)
	assert.Contains(t, schema.Fields, "username")

	_, err = controller.GetOneSchema(ctx, "Nope")
	assert.True(t, storage.ErrNotFound.Has(err))
}
