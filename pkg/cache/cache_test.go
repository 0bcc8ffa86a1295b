// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package cache_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plinth.io/plinth/internal/testcontext"
	"plinth.io/plinth/pkg/cache"
)

func TestMemory(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	mem := cache.NewMemory()
	defer ctx.Check(mem.Close)

	_, err := mem.Get(ctx, "missing")
	assert.True(t, cache.ErrMiss.Has(err))

	require.NoError(t, mem.Put(ctx, "key", []byte("value"), 0))
	value, err := mem.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	// returned slice is a copy
	value[0] = 'X'
	value, err = mem.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	require.NoError(t, mem.Del(ctx, "key"))
	_, err = mem.Get(ctx, "key")
	assert.True(t, cache.ErrMiss.Has(err))
}

func TestMemoryExpiry(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	mem := cache.NewMemory()
	defer ctx.Check(mem.Close)

	require.NoError(t, mem.Put(ctx, "key", []byte("value"), time.Nanosecond))
	time.Sleep(10 * time.Millisecond)

	_, err := mem.Get(ctx, "key")
	assert.True(t, cache.ErrMiss.Has(err))
}

func TestRedis(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := miniredis.RunT(t)

	client, err := cache.NewRedis(server.Addr(), "", 0)
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	_, err = client.Get(ctx, "missing")
	assert.True(t, cache.ErrMiss.Has(err))

	require.NoError(t, client.Put(ctx, "key", []byte("value"), time.Minute))
	value, err := client.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	server.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, "key")
	assert.True(t, cache.ErrMiss.Has(err))

	require.NoError(t, client.Put(ctx, "key", []byte("value"), time.Minute))
	require.NoError(t, client.Del(ctx, "key"))
	_, err = client.Get(ctx, "key")
	assert.True(t, cache.ErrMiss.Has(err))
}

func TestRedisUnreachable(t *testing.T) {
	_, err := cache.NewRedis("127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestRoles(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	roles := cache.NewRoles(cache.NewMemory(), time.Minute)

	_, ok, err := roles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, roles.Put(ctx, "u1", []string{"role:admins", "role:mods"}))
	names, ok, err := roles.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"role:admins", "role:mods"}, names)

	require.NoError(t, roles.Del(ctx, "u1"))
	_, ok, err = roles.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}
