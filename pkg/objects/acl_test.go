// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package objects_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/objects"
)

func TestParseACL(t *testing.T) {
	acl, err := objects.ParseACL(map[string]interface{}{
		"*":           map[string]interface{}{"read": true},
		"u1":          map[string]interface{}{"read": true, "write": true},
		"role:admins": map[string]interface{}{"write": true},
	})
	require.NoError(t, err)
	assert.Equal(t, objects.Permission{Read: true}, acl[objects.PublicKey])
	assert.Equal(t, objects.Permission{Read: true, Write: true}, acl["u1"])
	assert.Equal(t, objects.Permission{Write: true}, acl["role:admins"])

	acl, err = objects.ParseACL(nil)
	require.NoError(t, err)
	assert.Nil(t, acl)
}

func TestParseACLInvalid(t *testing.T) {
	_, err := objects.ParseACL("not a map")
	assert.True(t, errdata.HasCode(err, errdata.InvalidACL))

	_, err = objects.ParseACL(map[string]interface{}{"u1": "yes"})
	assert.True(t, errdata.HasCode(err, errdata.InvalidACL))

	_, err = objects.ParseACL(map[string]interface{}{
		"u1": map[string]interface{}{"read": "true"},
	})
	assert.True(t, errdata.HasCode(err, errdata.InvalidACL))

	_, err = objects.ParseACL(map[string]interface{}{
		"u1": map[string]interface{}{"execute": true},
	})
	assert.True(t, errdata.HasCode(err, errdata.InvalidACL))
}

func TestACLVisibility(t *testing.T) {
	acl := objects.ACL{
		objects.PublicKey: {Read: true},
		"u1":              {Read: true, Write: true},
		"role:mods":       {Read: true, Write: true},
	}

	assert.True(t, acl.CanRead([]string{objects.PublicKey}))
	assert.False(t, acl.CanWrite([]string{objects.PublicKey}))
	assert.True(t, acl.CanWrite([]string{objects.PublicKey, "u1"}))
	assert.True(t, acl.CanWrite([]string{"role:mods"}))
	assert.False(t, acl.CanRead([]string{"u2"}))

	// no ACL means fully public
	var open objects.ACL
	assert.True(t, open.CanRead(nil))
	assert.True(t, open.CanWrite(nil))
}

func TestACLWireRoundTrip(t *testing.T) {
	acl := objects.ACL{
		"u1":        {Read: true, Write: true},
		"role:mods": {Read: true},
	}
	parsed, err := objects.ParseACL(acl.Wire())
	require.NoError(t, err)
	assert.Equal(t, acl, parsed)
}

func TestRoleKey(t *testing.T) {
	assert.Equal(t, "role:admins", objects.RoleKey("admins"))
	assert.True(t, objects.IsRoleKey("role:admins"))
	assert.False(t, objects.IsRoleKey("admins"))
}
