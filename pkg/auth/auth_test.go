// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"plinth.io/plinth/internal/testcontext"
	"plinth.io/plinth/pkg/auth"
	"plinth.io/plinth/pkg/cache"
	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/storage/teststore"
)

func newService(t *testing.T, store *teststore.Client) *auth.Service {
	t.Helper()
	return auth.NewService(zaptest.NewLogger(t), store,
		cache.NewRoles(cache.NewMemory(), time.Minute))
}

func userPointer(id string) map[string]interface{} {
	return objects.Pointer{ClassName: classes.UserClass, ObjectID: id}.Wire()
}

func rolePointer(id string) map[string]interface{} {
	return objects.Pointer{ClassName: classes.RoleClass, ObjectID: id}.Wire()
}

func addRole(ctx *testcontext.Context, t *testing.T, store *teststore.Client, id, name string, users, roles []interface{}) {
	t.Helper()
	_, err := store.Create(ctx, classes.RoleClass, objects.Record{
		"objectId": id,
		"name":     name,
		"users":    users,
		"roles":    roles,
	}, nil)
	require.NoError(t, err)
}

func TestRolesDirect(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	addRole(ctx, t, store, "r1", "mods", []interface{}{userPointer("u1")}, nil)
	addRole(ctx, t, store, "r2", "admins", []interface{}{userPointer("u2")}, nil)

	a := auth.ForUser(newService(t, store), &auth.UserInfo{ID: "u1"})
	roles, err := a.Roles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"role:mods"}, roles)
}

func TestRolesTransitive(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	// u1 is in mods; mods is in admins; admins is in gods
	addRole(ctx, t, store, "r1", "mods", []interface{}{userPointer("u1")}, nil)
	addRole(ctx, t, store, "r2", "admins", nil, []interface{}{rolePointer("r1")})
	addRole(ctx, t, store, "r3", "gods", nil, []interface{}{rolePointer("r2")})

	a := auth.ForUser(newService(t, store), &auth.UserInfo{ID: "u1"})
	roles, err := a.Roles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"role:admins", "role:gods", "role:mods"}, roles)
}

func TestRolesCyclicGraph(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	// a and b contain each other; the walk must terminate and report each
	// role once
	addRole(ctx, t, store, "ra", "alpha",
		[]interface{}{userPointer("u1")}, []interface{}{rolePointer("rb")})
	addRole(ctx, t, store, "rb", "beta",
		nil, []interface{}{rolePointer("ra")})

	a := auth.ForUser(newService(t, store), &auth.UserInfo{ID: "u1"})
	roles, err := a.Roles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"role:alpha", "role:beta"}, roles)
}

func TestRolesMemoized(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	addRole(ctx, t, store, "r1", "mods", []interface{}{userPointer("u1")}, nil)

	a := auth.ForUser(newService(t, store), &auth.UserInfo{ID: "u1"})
	_, err := a.Roles(ctx)
	require.NoError(t, err)
	queries := store.CallCount.Find

	_, err = a.Roles(ctx)
	require.NoError(t, err)
	assert.Equal(t, queries, store.CallCount.Find)
}

func TestRolesCached(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	addRole(ctx, t, store, "r1", "mods", []interface{}{userPointer("u1")}, nil)
	svc := newService(t, store)

	first := auth.ForUser(svc, &auth.UserInfo{ID: "u1"})
	roles, err := first.Roles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"role:mods"}, roles)

	// the closure is served from the cache for a fresh context
	addRole(ctx, t, store, "r2", "admins", []interface{}{userPointer("u1")}, nil)
	second := auth.ForUser(svc, &auth.UserInfo{ID: "u1"})
	roles, err = second.Roles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"role:mods"}, roles)

	// invalidation forces a re-walk
	require.NoError(t, svc.InvalidateRoles(ctx, "u1"))
	third := auth.ForUser(svc, &auth.UserInfo{ID: "u1"})
	roles, err = third.Roles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"role:admins", "role:mods"}, roles)
}

func TestRolesShortCircuit(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	svc := newService(t, teststore.New())

	roles, err := auth.Master(svc).Roles(ctx)
	require.NoError(t, err)
	assert.Nil(t, roles)

	roles, err = auth.Nobody(svc).Roles(ctx)
	require.NoError(t, err)
	assert.Nil(t, roles)
}

func TestVisibilityKeys(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	addRole(ctx, t, store, "r1", "mods", []interface{}{userPointer("u1")}, nil)
	svc := newService(t, store)

	cs, err := auth.Master(svc).VisibilityKeys(ctx)
	require.NoError(t, err)
	assert.Nil(t, cs)
	assert.True(t, cs.Master())

	cs, err = auth.Nobody(svc).VisibilityKeys(ctx)
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.Equal(t, []string{"*"}, cs.Keys)

	cs, err = auth.ForUser(svc, &auth.UserInfo{ID: "u1"}).VisibilityKeys(ctx)
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.Equal(t, []string{"*", "u1", "role:mods"}, cs.Keys)
}

func TestFromSessionToken(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	_, err := store.Create(ctx, classes.UserClass, objects.Record{
		"objectId": "u1", "username": "alice",
	}, nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, classes.SessionClass, objects.Record{
		"objectId":       "s1",
		"sessionToken":   "r:valid",
		"user":           userPointer("u1"),
		"installationId": "ins-1",
		"expiresAt":      objects.WireDate(time.Now().Add(time.Hour)),
	}, nil)
	require.NoError(t, err)
	svc := newService(t, store)

	a, err := auth.FromSessionToken(ctx, svc, "r:valid")
	require.NoError(t, err)
	assert.Equal(t, "u1", a.UserID())
	assert.Equal(t, "ins-1", a.InstallationID)
	assert.True(t, a.Authenticated())
	assert.False(t, a.Master)
	assert.Equal(t, "alice", a.User.Record["username"])
}

func TestFromSessionTokenInvalid(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	_, err := store.Create(ctx, classes.SessionClass, objects.Record{
		"objectId":     "s1",
		"sessionToken": "r:expired",
		"user":         userPointer("u1"),
		"expiresAt":    objects.WireDate(time.Now().Add(-time.Hour)),
	}, nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, classes.SessionClass, objects.Record{
		"objectId":     "s2",
		"sessionToken": "r:orphan",
		"user":         userPointer("ghost"),
		"expiresAt":    objects.WireDate(time.Now().Add(time.Hour)),
	}, nil)
	require.NoError(t, err)
	svc := newService(t, store)

	for _, token := range []string{"", "r:unknown", "r:expired", "r:orphan"} {
		_, err := auth.FromSessionToken(ctx, svc, token)
		assert.True(t, errdata.HasCode(err, errdata.InvalidSessionToken), "token %q", token)
	}
}
