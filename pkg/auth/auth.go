// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package auth builds the per-request authorization context and resolves
// the requester's transitive role closure.
package auth

import (
	"context"
	"sync"
	"time"

	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"golang.org/x/sync/singleflight"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/storage"
)

var mon = monkit.Package()

// UserInfo is the authenticated principal of a context.
type UserInfo struct {
	ID     string
	Record objects.Record
}

// Auth answers "who is asking" for one inbound operation. It is created
// once per operation and discarded afterwards; only the memoized role
// closure mutates after construction.
type Auth struct {
	svc *Service

	Master         bool
	ReadOnly       bool
	User           *UserInfo
	InstallationID string

	mu       sync.Mutex
	roles    []string
	resolved bool
	flight   singleflight.Group
}

// Master creates an administrative-override context.
func Master(svc *Service) *Auth {
	return &Auth{svc: svc, Master: true}
}

// ReadOnlyMaster creates an administrative context that may not write.
func ReadOnlyMaster(svc *Service) *Auth {
	return &Auth{svc: svc, Master: true, ReadOnly: true}
}

// Nobody creates an anonymous context.
func Nobody(svc *Service) *Auth {
	return &Auth{svc: svc}
}

// ForUser creates a context acting as the given principal.
func ForUser(svc *Service, user *UserInfo) *Auth {
	return &Auth{svc: svc, User: user}
}

// FromSessionToken resolves a session credential into a context. A
// missing, expired or malformed token yields an invalid-session error.
func FromSessionToken(ctx context.Context, svc *Service, token string) (_ *Auth, err error) {
	defer mon.Task()(&ctx)(&err)

	if token == "" {
		return nil, errdata.New(errdata.InvalidSessionToken, "missing session token")
	}
	sessions, err := svc.Adapter.Find(ctx, classes.SessionClass,
		objects.Record{"sessionToken": token}, storage.FindOptions{Limit: 1}, nil)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, errdata.New(errdata.InvalidSessionToken, "invalid session token")
	}
	session := sessions[0]
	if expires, ok := objects.AsDate(session["expiresAt"]); ok && expires.Before(time.Now()) {
		return nil, errdata.New(errdata.InvalidSessionToken, "session token expired")
	}
	pointer, ok := objects.AsPointer(session["user"])
	if !ok {
		return nil, errdata.New(errdata.InvalidSessionToken, "session has no user")
	}
	users, err := svc.Adapter.Find(ctx, classes.UserClass,
		objects.Record{"objectId": pointer.ObjectID}, storage.FindOptions{Limit: 1}, nil)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, errdata.New(errdata.InvalidSessionToken, "session user not found")
	}
	installationID, _ := session["installationId"].(string)
	return &Auth{
		svc:            svc,
		User:           &UserInfo{ID: pointer.ObjectID, Record: users[0]},
		InstallationID: installationID,
	}, nil
}

// Roles returns the context's transitive role closure as "role:<name>"
// entries. Administrative and anonymous contexts short-circuit to nil.
// Concurrent calls on one Auth share a single resolution.
func (a *Auth) Roles(ctx context.Context) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	if a.Master || a.User == nil {
		return nil, nil
	}

	a.mu.Lock()
	if a.resolved {
		defer a.mu.Unlock()
		return a.roles, nil
	}
	a.mu.Unlock()

	result, err, _ := a.flight.Do("roles", func() (interface{}, error) {
		names, err := a.svc.resolve(ctx, a.User.ID)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.roles, a.resolved = names, true
		a.mu.Unlock()
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// VisibilityKeys computes the ACL keys this context may read or write
// with: public, the principal's id, and the resolved role entries. A nil
// return means master access.
func (a *Auth) VisibilityKeys(ctx context.Context) (*storage.ConstraintSet, error) {
	if a.Master {
		return nil, nil
	}
	keys := []string{objects.PublicKey}
	if a.User != nil {
		keys = append(keys, a.User.ID)
		roles, err := a.Roles(ctx)
		if err != nil {
			return nil, err
		}
		keys = append(keys, roles...)
	}
	return &storage.ConstraintSet{Keys: keys}, nil
}

// Authenticated reports whether the context acts as a principal.
func (a *Auth) Authenticated() bool { return a.User != nil }

// UserID returns the principal's id, or "" for anonymous and master
// contexts.
func (a *Auth) UserID() string {
	if a.User == nil {
		return ""
	}
	return a.User.ID
}
