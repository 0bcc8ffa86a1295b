// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package rest implements the object pipeline's query and write engines.
// Both consume an authorization context, consult the trigger registry, and
// may recursively construct further query/write instances.
package rest

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"plinth.io/plinth/pkg/auth"
	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/hooks"
	"plinth.io/plinth/pkg/notify"
	"plinth.io/plinth/pkg/pwd"
	"plinth.io/plinth/storage"
)

var mon = monkit.Package()

// ProviderValidator checks the credential payload supplied for one
// third-party auth provider.
type ProviderValidator func(ctx context.Context, providerData map[string]interface{}) error

// PasswordPolicy holds the predicates enforced on new passwords.
type PasswordPolicy struct {
	// Pattern must match the plaintext when set.
	Pattern *regexp.Regexp
	// ValidatorFn is an additional imperative check.
	ValidatorFn func(password string) bool
	// DisallowUsername rejects passwords containing the username.
	DisallowUsername bool
	// History rejects reuse of the last N passwords, bounded by
	// MaxPasswordHistory.
	History int
}

// MaxPasswordHistory bounds the stored password history.
const MaxPasswordHistory = 20

// Env is the shared environment of the query and write engines: the
// collaborators they call through narrow interfaces plus the application's
// policy knobs. One Env belongs to one application object.
type Env struct {
	Log        *zap.Logger
	Adapter    storage.Adapter
	Hooks      *hooks.Registry
	Hasher     *pwd.Hasher
	Mailer     notify.Mailer
	Dispatcher notify.Dispatcher

	// FileURL resolves a stored file name to its addressable form.
	FileURL func(name string) string

	AllowClientClassCreation bool
	AllowCustomObjectID      bool
	// Redirects maps a queried class name to the real class name.
	Redirects map[string]string

	SessionLength                   time.Duration
	RevokeSessionOnPasswordChange   bool
	VerifyUserEmails                bool
	PreventLoginWithUnverifiedEmail bool
	PasswordPolicy                  *PasswordPolicy
	AuthProviders                   map[string]ProviderValidator

	// MaxSubqueryDepth bounds recursive subquery resolution.
	MaxSubqueryDepth int
	ObjectIDSize     int
}

const (
	defaultSubqueryDepth = 20
	defaultObjectIDSize  = 10
	defaultSessionLength = 365 * 24 * time.Hour
)

func (env *Env) subqueryDepth() int {
	if env.MaxSubqueryDepth > 0 {
		return env.MaxSubqueryDepth
	}
	return defaultSubqueryDepth
}

func (env *Env) objectIDSize() int {
	if env.ObjectIDSize > 0 {
		return env.ObjectIDSize
	}
	return defaultObjectIDSize
}

func (env *Env) sessionLength() time.Duration {
	if env.SessionLength > 0 {
		return env.SessionLength
	}
	return defaultSessionLength
}

// redirected resolves the class-redirect mapping for className.
func (env *Env) redirected(className string) string {
	if real, ok := env.Redirects[className]; ok {
		return real
	}
	return className
}

// enforceClassCreation fails a non-administrative operation against a
// class that does not exist yet when client class creation is restricted.
func (env *Env) enforceClassCreation(ctx context.Context, a *auth.Auth, className string) error {
	if a.Master || env.AllowClientClassCreation {
		return nil
	}
	controller, err := env.Adapter.LoadSchema(ctx)
	if err != nil {
		return err
	}
	exists, err := controller.HasClass(ctx, className)
	if err != nil {
		return err
	}
	if !exists {
		return errdata.New(errdata.OperationForbidden,
			"this user is not allowed to access non-existent class: %s", className)
	}
	return nil
}
