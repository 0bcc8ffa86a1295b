// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package objects

import (
	"strings"

	"plinth.io/plinth/pkg/errdata"
)

// PublicKey is the ACL entry key granting access to everyone.
const PublicKey = "*"

// RolePrefix distinguishes role entries from plain user ids in ACL keys
// and visibility sets.
const RolePrefix = "role:"

// Permission is one ACL entry.
type Permission struct {
	Read  bool
	Write bool
}

// ACL maps an entry key to its permission. Valid keys are the public
// wildcard, a user id, or "role:<name>". A record without an ACL is
// treated as fully public.
type ACL map[string]Permission

// ParseACL converts the wire form of an access list into an ACL. The wire
// form is {"<key>": {"read": bool, "write": bool}, ...}.
func ParseACL(raw interface{}) (ACL, error) {
	if raw == nil {
		return nil, nil
	}
	entries, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errdata.New(errdata.InvalidACL, "ACL must be a map, got %T", raw)
	}
	acl := make(ACL, len(entries))
	for key, value := range entries {
		perms, ok := value.(map[string]interface{})
		if !ok {
			return nil, errdata.New(errdata.InvalidACL, "invalid ACL entry for %q", key)
		}
		var p Permission
		for name, flag := range perms {
			enabled, ok := flag.(bool)
			if !ok {
				return nil, errdata.New(errdata.InvalidACL, "invalid permission %q for %q", name, key)
			}
			switch name {
			case "read":
				p.Read = enabled
			case "write":
				p.Write = enabled
			default:
				return nil, errdata.New(errdata.InvalidACL, "unknown permission %q for %q", name, key)
			}
		}
		acl[key] = p
	}
	return acl, nil
}

// Wire converts the ACL back to its wire form.
func (acl ACL) Wire() map[string]interface{} {
	if acl == nil {
		return nil
	}
	out := make(map[string]interface{}, len(acl))
	for key, p := range acl {
		entry := map[string]interface{}{}
		if p.Read {
			entry["read"] = true
		}
		if p.Write {
			entry["write"] = true
		}
		out[key] = entry
	}
	return out
}

// CanRead reports whether any of the keys may read a record with this ACL.
// A nil ACL is fully public.
func (acl ACL) CanRead(keys []string) bool {
	if acl == nil {
		return true
	}
	for _, key := range keys {
		if acl[key].Read {
			return true
		}
	}
	return false
}

// CanWrite reports whether any of the keys may write a record with this ACL.
func (acl ACL) CanWrite(keys []string) bool {
	if acl == nil {
		return true
	}
	for _, key := range keys {
		if acl[key].Write {
			return true
		}
	}
	return false
}

// IsRoleKey reports whether an ACL entry key names a role.
func IsRoleKey(key string) bool { return strings.HasPrefix(key, RolePrefix) }

// RoleKey builds the ACL entry key for a role name.
func RoleKey(name string) string { return RolePrefix + name }
