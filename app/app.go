// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package app assembles one application instance: its trigger registry,
// role resolution service and engine environment. Registries live on the
// App value, never in process-wide state, so independent instances do not
// interfere.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"plinth.io/plinth/pkg/auth"
	"plinth.io/plinth/pkg/cache"
	"plinth.io/plinth/pkg/hooks"
	"plinth.io/plinth/pkg/notify"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/pkg/pwd"
	"plinth.io/plinth/pkg/rest"
	"plinth.io/plinth/storage"
)

// Config holds the application's policy knobs.
type Config struct {
	AllowClientClassCreation        bool
	AllowCustomObjectID             bool
	SessionLength                   time.Duration
	RevokeSessionOnPasswordChange   bool
	VerifyUserEmails                bool
	PreventLoginWithUnverifiedEmail bool
	PasswordCost                    int
	RoleCacheTTL                    time.Duration
	ClassRedirects                  map[string]string
	PasswordPolicy                  *rest.PasswordPolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RevokeSessionOnPasswordChange: true,
		SessionLength:                 365 * 24 * time.Hour,
		RoleCacheTTL:                  5 * time.Minute,
	}
}

// App is one application instance.
type App struct {
	Log   *zap.Logger
	Hooks *hooks.Registry
	Auth  *auth.Service
	Env   *rest.Env

	adapter storage.Adapter
	cache   cache.Client
}

// New assembles an application over the given storage adapter and cache.
func New(log *zap.Logger, adapter storage.Adapter, cacheClient cache.Client, config Config) *App {
	registry := hooks.NewRegistry(log.Named("hooks"))
	authService := auth.NewService(log.Named("auth"), adapter,
		cache.NewRoles(cacheClient, config.RoleCacheTTL))

	env := &rest.Env{
		Log:        log.Named("rest"),
		Adapter:    adapter,
		Hooks:      registry,
		Hasher:     pwd.New(config.PasswordCost),
		Mailer:     notify.LogMailer{Log: log.Named("mail")},
		Dispatcher: notify.LogDispatcher{Log: log.Named("realtime")},

		AllowClientClassCreation:        config.AllowClientClassCreation,
		AllowCustomObjectID:             config.AllowCustomObjectID,
		Redirects:                       config.ClassRedirects,
		SessionLength:                   config.SessionLength,
		RevokeSessionOnPasswordChange:   config.RevokeSessionOnPasswordChange,
		VerifyUserEmails:                config.VerifyUserEmails,
		PreventLoginWithUnverifiedEmail: config.PreventLoginWithUnverifiedEmail,
		PasswordPolicy:                  config.PasswordPolicy,
	}

	return &App{
		Log:     log,
		Hooks:   registry,
		Auth:    authService,
		Env:     env,
		adapter: adapter,
		cache:   cacheClient,
	}
}

// Master returns an administrative-override context.
func (app *App) Master() *auth.Auth { return auth.Master(app.Auth) }

// ReadOnlyMaster returns an administrative context that may not write.
func (app *App) ReadOnlyMaster() *auth.Auth { return auth.ReadOnlyMaster(app.Auth) }

// Nobody returns an anonymous context.
func (app *App) Nobody() *auth.Auth { return auth.Nobody(app.Auth) }

// AuthFromToken resolves a session credential into a context.
func (app *App) AuthFromToken(ctx context.Context, token string) (*auth.Auth, error) {
	return auth.FromSessionToken(ctx, app.Auth, token)
}

// Query builds a query instance for the given context.
func (app *App) Query(a *auth.Auth, className string, where objects.Record, opts rest.QueryOptions, transport hooks.Transport) *rest.Query {
	return rest.NewQuery(app.Env, a, className, where, opts, transport)
}

// Write builds a write instance for the given context. An empty objectID
// means create.
func (app *App) Write(a *auth.Auth, className, objectID string, data objects.Record, transport hooks.Transport) (*rest.Write, error) {
	return rest.NewWrite(app.Env, a, className, objectID, data, transport)
}

// RequestPasswordReset schedules a password-reset email for the account
// registered under email.
func (app *App) RequestPasswordReset(ctx context.Context, email string) error {
	return rest.RequestPasswordReset(ctx, app.Env, email)
}

// Delete removes one object, running the delete hooks around it.
func (app *App) Delete(ctx context.Context, a *auth.Auth, className, objectID string, transport hooks.Transport) error {
	return rest.Delete(ctx, app.Env, a, className, objectID, transport)
}

// Close releases the adapter and cache.
func (app *App) Close() error {
	var firstErr error
	if err := app.adapter.Close(); err != nil {
		firstErr = err
	}
	if err := app.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
