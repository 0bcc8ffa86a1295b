// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package rest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"plinth.io/plinth/pkg/auth"
	"plinth.io/plinth/pkg/cache"
	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/hooks"
	"plinth.io/plinth/pkg/notify"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/pkg/pwd"
	"plinth.io/plinth/storage/teststore"
)

// testBed wires one engine environment over the in-memory adapter.
type testBed struct {
	store *teststore.Client
	env   *Env
	svc   *auth.Service
	mail  *captureMailer
}

type captureMailer struct {
	verifications []objects.Record
	resets        []objects.Record
}

func (m *captureMailer) SendVerificationEmail(ctx context.Context, user objects.Record) error {
	m.verifications = append(m.verifications, user)
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(ctx context.Context, user objects.Record) error {
	m.resets = append(m.resets, user)
	return nil
}

func newTestBed(t *testing.T) *testBed {
	log := zaptest.NewLogger(t)
	store := teststore.New()
	svc := auth.NewService(log.Named("auth"), store,
		cache.NewRoles(cache.NewMemory(), time.Minute))
	mail := &captureMailer{}
	env := &Env{
		Log:        log.Named("rest"),
		Adapter:    store,
		Hooks:      hooks.NewRegistry(log.Named("hooks")),
		Hasher:     pwd.New(pwd.TestCost),
		Mailer:     mail,
		Dispatcher: notify.LogDispatcher{Log: log.Named("realtime")},

		AllowClientClassCreation:      true,
		RevokeSessionOnPasswordChange: true,
	}
	return &testBed{store: store, env: env, svc: svc, mail: mail}
}

func (bed *testBed) master() *auth.Auth   { return auth.Master(bed.svc) }
func (bed *testBed) readOnly() *auth.Auth { return auth.ReadOnlyMaster(bed.svc) }
func (bed *testBed) nobody() *auth.Auth   { return auth.Nobody(bed.svc) }

func (bed *testBed) user(id string) *auth.Auth {
	return auth.ForUser(bed.svc, &auth.UserInfo{ID: id, Record: objects.Record{"objectId": id}})
}

// seed stores a record directly, bypassing the pipeline.
func (bed *testBed) seed(ctx context.Context, t *testing.T, className string, rec objects.Record) {
	t.Helper()
	_, err := bed.store.Create(ctx, className, rec, nil)
	require.NoError(t, err)
}

func (bed *testBed) find(ctx context.Context, t *testing.T, a *auth.Auth, className string, where objects.Record, opts QueryOptions) []objects.Record {
	t.Helper()
	result, err := NewQuery(bed.env, a, className, where, opts, hooks.Transport{}).Execute(ctx)
	require.NoError(t, err)
	return result.Results
}

func (bed *testBed) write(ctx context.Context, t *testing.T, a *auth.Auth, className, objectID string, data objects.Record) objects.Record {
	t.Helper()
	w, err := NewWrite(bed.env, a, className, objectID, data, hooks.Transport{})
	require.NoError(t, err)
	response, err := w.Execute(ctx)
	require.NoError(t, err)
	return response
}

func (bed *testBed) writeErr(ctx context.Context, a *auth.Auth, className, objectID string, data objects.Record) error {
	w, err := NewWrite(bed.env, a, className, objectID, data, hooks.Transport{})
	if err != nil {
		return err
	}
	_, err = w.Execute(ctx)
	return err
}

func (bed *testBed) signup(ctx context.Context, t *testing.T, username, password string) objects.Record {
	t.Helper()
	return bed.write(ctx, t, bed.nobody(), classes.UserClass, "", objects.Record{
		"username": username,
		"password": password,
	})
}

func aclWire(entries map[string]objects.Permission) map[string]interface{} {
	return objects.ACL(entries).Wire()
}
