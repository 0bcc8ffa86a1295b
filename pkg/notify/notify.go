// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package notify holds the outbound side-effect collaborators: mail
// delivery and realtime event dispatch. The core only schedules these;
// delivery happens elsewhere.
package notify

import (
	"context"

	"go.uber.org/zap"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/objects"
)

// Mailer delivers account mail.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, user objects.Record) error
	SendPasswordResetEmail(ctx context.Context, user objects.Record) error
}

// Dispatcher receives finalized writes for realtime subscriptions.
type Dispatcher interface {
	// OnSave is called after a write commits, with the finalized object,
	// the original object (nil on create) and the class's current
	// permission policy.
	OnSave(ctx context.Context, className string, object, original objects.Record, perms classes.Permissions)
}

// LogMailer logs mail it would have sent. It stands in when no mail
// transport is configured.
type LogMailer struct {
	Log *zap.Logger
}

// SendVerificationEmail implements Mailer.
func (m LogMailer) SendVerificationEmail(ctx context.Context, user objects.Record) error {
	email, _ := user["email"].(string)
	m.Log.Info("verification email scheduled", zap.String("email", email))
	return nil
}

// SendPasswordResetEmail implements Mailer.
func (m LogMailer) SendPasswordResetEmail(ctx context.Context, user objects.Record) error {
	email, _ := user["email"].(string)
	m.Log.Info("password reset email scheduled", zap.String("email", email))
	return nil
}

// LogDispatcher logs realtime events it would have dispatched.
type LogDispatcher struct {
	Log *zap.Logger
}

// OnSave implements Dispatcher.
func (d LogDispatcher) OnSave(ctx context.Context, className string, object, original objects.Record, perms classes.Permissions) {
	id, _ := object["objectId"].(string)
	d.Log.Debug("realtime save event", zap.String("class", className), zap.String("objectId", id), zap.Bool("create", original == nil))
}
