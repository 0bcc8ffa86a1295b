// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package rest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"plinth.io/plinth/pkg/auth"
	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/hooks"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/pkg/tokens"
	"plinth.io/plinth/storage"
)

// Write runs the full validate-hook-persist-follow-up pipeline for one
// create or update. Instances are constructed fresh per operation and
// mutated stage by stage; they are never reused.
type Write struct {
	env       *Env
	a         *auth.Auth
	className string
	// objectID is the update selector; empty means create. Installation
	// matching and identity linking may resolve a create into an update
	// mid-pipeline.
	objectID  string
	data      objects.Record
	transport hooks.Transport

	cs            *storage.ConstraintSet
	original      objects.Record
	hookAdded     objects.Record
	response      objects.Record
	sharedContext map[string]interface{}

	// cross-stage signals
	createdHere      bool
	becameLogin      bool
	passwordChanged  bool
	issueSession     bool
	revokeSessions   bool
	sendVerification bool
	newSessionToken  string
	createdWith      string
}

// NewWrite builds a write instance. A read-only administrative context is
// rejected outright.
func NewWrite(env *Env, a *auth.Auth, className, objectID string, data objects.Record, transport hooks.Transport) (*Write, error) {
	if a.ReadOnly {
		return nil, errdata.New(errdata.OperationForbidden,
			"read-only master key cannot perform writes")
	}
	data = objects.DeepCopy(data)
	if data == nil {
		data = objects.Record{}
	}
	return &Write{
		env:       env,
		a:         a,
		className: className,
		objectID:  objectID,
		data:      data,
		transport: transport,
	}, nil
}

// Execute runs the strictly ordered write pipeline and returns the
// response envelope.
func (w *Write) Execute(ctx context.Context) (_ objects.Record, err error) {
	defer mon.Task()(&ctx)(&err)

	stages := []func(context.Context) error{
		w.validateObjectID,
		w.resolveVisibility,
		w.checkClassCreation,
		w.loadOriginal,
		w.preprocessClass,
		w.validateAuthData,
		w.runBeforeSave,
		w.validateSchema,
		w.transformUser,
		w.linkAuthProviders,
		w.persist,
		w.runFollowUps,
		w.runAfterSave,
		w.cleanResponse,
	}
	for _, stage := range stages {
		if err := stage(ctx); err != nil {
			return nil, err
		}
	}
	return w.response, nil
}

func (w *Write) creating() bool { return w.objectID == "" }

func (w *Write) validateObjectID(ctx context.Context) error {
	if !w.creating() {
		return nil
	}
	supplied, present := w.data["objectId"]
	if !present {
		return nil
	}
	if !w.env.AllowCustomObjectID {
		return errdata.New(errdata.OperationForbidden,
			"objectId is reserved; custom object ids are not allowed")
	}
	id, _ := supplied.(string)
	if id == "" {
		return errdata.New(errdata.MissingObjectID, "objectId must not be empty")
	}
	return nil
}

func (w *Write) resolveVisibility(ctx context.Context) (err error) {
	w.cs, err = w.a.VisibilityKeys(ctx)
	return err
}

func (w *Write) checkClassCreation(ctx context.Context) error {
	return w.env.enforceClassCreation(ctx, w.a, w.className)
}

func (w *Write) loadOriginal(ctx context.Context) error {
	if w.creating() || w.original != nil {
		return nil
	}
	found, err := w.env.Adapter.Find(ctx, w.className,
		objects.Record{"objectId": w.objectID}, storage.FindOptions{Limit: 1}, w.cs)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return errdata.New(errdata.ObjectNotFound, "object not found for update")
	}
	w.original = found[0]
	return nil
}

// preprocessClass applies class-specific rules before any hook runs.
func (w *Write) preprocessClass(ctx context.Context) error {
	switch w.className {
	case classes.SessionClass:
		return w.preprocessSession(ctx)
	case classes.InstallationClass:
		return w.matchInstallation(ctx)
	case classes.UserClass:
		// Changing the password or the contact identity invalidates any
		// outstanding password-reset token.
		if !w.creating() {
			_, password := w.data["password"]
			_, email := w.data["email"]
			_, username := w.data["username"]
			if password || email || username {
				w.data["perishableToken"] = nil
			}
		}
	}
	return nil
}

// sessionLockedFields cannot be changed by non-administrative updates.
var sessionLockedFields = []string{"sessionToken", "user", "createdWith", "expiresAt"}

func (w *Write) preprocessSession(ctx context.Context) error {
	if w.a.Master {
		return nil
	}
	if w.creating() {
		if !w.a.Authenticated() {
			return errdata.New(errdata.InvalidSessionToken, "session creation requires a user")
		}
		for _, field := range sessionLockedFields {
			if field == "user" {
				continue
			}
			if _, present := w.data[field]; present {
				return errdata.New(errdata.InvalidKeyName, "cannot set %s on a session", field)
			}
		}
		owner := objects.Pointer{ClassName: classes.UserClass, ObjectID: w.a.UserID()}
		if supplied, ok := objects.AsPointer(w.data["user"]); ok && supplied.ObjectID != w.a.UserID() {
			return errdata.New(errdata.OperationForbidden, "cannot create a session for another user")
		}
		w.data["user"] = owner.Wire()
		return nil
	}

	owner, _ := objects.AsPointer(w.original["user"])
	if owner.ObjectID != w.a.UserID() {
		return errdata.New(errdata.OperationForbidden, "cannot modify another user's session")
	}
	for _, field := range sessionLockedFields {
		supplied, present := w.data[field]
		if present && !objects.Equal(supplied, w.original[field]) {
			return errdata.New(errdata.InvalidKeyName, "cannot change %s on a session", field)
		}
	}
	return nil
}

func (w *Write) runBeforeSave(ctx context.Context) error {
	if !w.env.Hooks.Exists(hooks.BeforeSave, w.className) {
		return nil
	}
	proposed := objects.DeepCopy(w.data)
	if w.original != nil {
		merged := objects.DeepCopy(w.original)
		for key, value := range proposed {
			if value == nil {
				delete(merged, key)
				continue
			}
			merged[key] = value
		}
		proposed = merged
	}

	req, err := hooks.NewRequest(ctx, hooks.BeforeSave, w.className, w.a, proposed, w.original, w.transport, w.env.Log)
	if err != nil {
		return err
	}
	replacement, err := w.env.Hooks.RunBeforeSave(ctx, req)
	w.sharedContext = req.Context
	if err != nil {
		return err
	}
	if replacement == nil {
		return nil
	}

	// Record the per-field diff against the caller-supplied mutation so
	// hook-introduced fields survive into the response even if the storage
	// layer does not echo untouched fields back.
	w.hookAdded = objects.Record{}
	for key, value := range replacement {
		if key == "objectId" || key == "createdAt" || key == "updatedAt" {
			continue
		}
		if supplied, ok := w.data[key]; !ok || !objects.Equal(supplied, value) {
			w.hookAdded[key] = value
		}
	}
	next := objects.DeepCopy(replacement)
	delete(next, "objectId")
	delete(next, "createdAt")
	delete(next, "updatedAt")
	w.data = next
	return nil
}

func (w *Write) validateSchema(ctx context.Context) error {
	controller, err := w.env.Adapter.LoadSchema(ctx)
	if err != nil {
		return err
	}
	schema, err := controller.GetOneSchema(ctx, w.className)
	if err != nil {
		if storage.ErrNotFound.Has(err) {
			return nil
		}
		return err
	}
	for name, field := range schema.Fields {
		value, present := w.data[name]
		if w.creating() && !present && field.Default != nil {
			w.data[name] = field.Default
			continue
		}
		if !field.Required {
			continue
		}
		if w.creating() {
			if !present || value == nil {
				if field.Default != nil {
					w.data[name] = field.Default
					continue
				}
				return errdata.New(errdata.ValidationFailed, "%s is required", name)
			}
		} else if present && value == nil {
			return errdata.New(errdata.ValidationFailed, "%s is required", name)
		}
	}
	return nil
}

func (w *Write) persist(ctx context.Context) error {
	now := time.Now()

	if _, err := objects.ParseACL(w.data["ACL"]); err != nil {
		return err
	}

	if w.creating() {
		fields := objects.DeepCopy(w.data)
		id, _ := fields["objectId"].(string)
		if id == "" {
			var err error
			id, err = tokens.NewObjectID(w.env.objectIDSize())
			if err != nil {
				return err
			}
			fields["objectId"] = id
		}
		fields["createdAt"] = objects.WireDate(now)
		fields["updatedAt"] = objects.WireDate(now)
		if w.className == classes.UserClass && fields["ACL"] == nil {
			fields["ACL"] = objects.ACL{
				id:                {Read: true, Write: true},
				objects.PublicKey: {Read: true},
			}.Wire()
		}
		created, err := w.env.Adapter.Create(ctx, w.className, fields, w.cs)
		if err != nil {
			return err
		}
		w.createdHere = true
		w.objectID = id
		w.response = created
	} else {
		cs := w.cs
		if w.becameLogin {
			// The provider validator already proved this identity; the
			// record being logged into is not writable under the anonymous
			// caller's visibility keys.
			cs = nil
		}
		w.data["updatedAt"] = objects.WireDate(now)
		updated, err := w.env.Adapter.Update(ctx, w.className,
			objects.Record{"objectId": w.objectID}, w.data, cs)
		if err != nil {
			if storage.ErrNotFound.Has(err) {
				return errdata.New(errdata.ObjectNotFound, "object not found for update")
			}
			return err
		}
		w.response = updated
	}

	for key, value := range w.hookAdded {
		if _, echoed := w.response[key]; !echoed && value != nil {
			w.response[key] = value
		}
	}

	if w.className == classes.UserClass {
		if w.createdHere && !w.becameLogin {
			w.issueSession = true
			w.createdWith = "signup"
		}
		if w.passwordChanged && !w.createdHere {
			if w.env.RevokeSessionOnPasswordChange {
				w.revokeSessions = true
				w.issueSession = true
				w.createdWith = "password"
			}
		}
	}
	return nil
}

// runFollowUps drains the post-persist side effects to a fixed point;
// issuing a session or revoking superseded ones may be enabled by an
// earlier follow-up.
func (w *Write) runFollowUps(ctx context.Context) error {
	if w.className != classes.UserClass {
		return nil
	}
	for {
		switch {
		case w.issueSession:
			w.issueSession = false
			if err := w.createSession(ctx); err != nil {
				return err
			}
		case w.revokeSessions:
			w.revokeSessions = false
			if err := w.revokeOtherSessions(ctx); err != nil {
				return err
			}
		case w.sendVerification:
			w.sendVerification = false
			if err := w.env.Mailer.SendVerificationEmail(ctx, w.response); err != nil {
				w.env.Log.Warn("verification email failed", zap.Error(err))
			}
		default:
			return nil
		}
	}
}

func (w *Write) createSession(ctx context.Context) error {
	// Verification gating: an unverified account may not receive a
	// session when policy forbids unverified login.
	if w.env.PreventLoginWithUnverifiedEmail && w.env.VerifyUserEmails {
		if verified, _ := w.response["emailVerified"].(bool); !verified {
			return nil
		}
	}

	token, err := tokens.NewToken()
	if err != nil {
		return err
	}
	id, err := tokens.NewObjectID(w.env.objectIDSize())
	if err != nil {
		return err
	}
	owner := objects.Pointer{ClassName: classes.UserClass, ObjectID: w.objectID}
	createdWith := w.createdWith
	if createdWith == "" {
		createdWith = "login"
	}
	now := time.Now()
	session := objects.Record{
		"objectId":     id,
		"sessionToken": token,
		"user":         owner.Wire(),
		"createdWith":  map[string]interface{}{"action": createdWith},
		"expiresAt":    objects.WireDate(now.Add(w.env.sessionLength())),
		"createdAt":    objects.WireDate(now),
		"updatedAt":    objects.WireDate(now),
		"ACL": objects.ACL{
			w.objectID: {Read: true, Write: true},
		}.Wire(),
	}
	if w.a.InstallationID != "" {
		session["installationId"] = w.a.InstallationID
	}
	if _, err := w.env.Adapter.Create(ctx, classes.SessionClass, session, nil); err != nil {
		return err
	}
	w.newSessionToken = token
	w.response["sessionToken"] = token
	return nil
}

// revokeOtherSessions removes sessions superseded by a password change,
// keeping the session issued by this write.
func (w *Write) revokeOtherSessions(ctx context.Context) error {
	owner := objects.Pointer{ClassName: classes.UserClass, ObjectID: w.objectID}
	selector := objects.Record{"user": owner.Wire()}
	if w.newSessionToken != "" {
		selector["sessionToken"] = map[string]interface{}{"$ne": w.newSessionToken}
	}
	err := w.env.Adapter.Destroy(ctx, classes.SessionClass, selector, nil)
	if err != nil && !storage.ErrNotFound.Has(err) {
		return err
	}
	return nil
}

// runAfterSave is best-effort: the write already committed, so hook
// failures are logged and swallowed, and the realtime dispatcher is
// notified regardless.
func (w *Write) runAfterSave(ctx context.Context) error {
	if w.env.Hooks.Exists(hooks.AfterSave, w.className) {
		req, err := hooks.NewRequest(ctx, hooks.AfterSave, w.className, w.a,
			objects.DeepCopy(w.response), w.original, w.transport, w.env.Log)
		if err != nil {
			w.env.Log.Warn("after-save envelope failed", zap.Error(err))
		} else {
			if w.sharedContext != nil {
				req.Context = w.sharedContext
			}
			if err := w.env.Hooks.RunEvent(ctx, hooks.AfterSave, req); err != nil {
				w.env.Log.Warn("after-save hook failed",
					zap.String("class", w.className), zap.Error(err))
			}
		}
	}

	if w.env.Dispatcher != nil {
		perms := classes.Permissions{}
		if controller, err := w.env.Adapter.LoadSchema(ctx); err == nil {
			if p, err := controller.GetClassLevelPermissions(ctx, w.className); err == nil {
				perms = p
			}
		}
		w.env.Dispatcher.OnSave(ctx, w.className, w.response, w.original, perms)
	}
	return nil
}

func (w *Write) cleanResponse(ctx context.Context) error {
	delete(w.response, "password")
	delete(w.response, "hashedPassword")
	delete(w.response, "passwordHistory")
	delete(w.response, "perishableToken")
	if authData, ok := w.response["authData"].(map[string]interface{}); ok {
		for provider, entry := range authData {
			if entry == nil {
				delete(authData, provider)
			}
		}
	}
	objects.ExpandFiles(w.response, w.env.FileURL)
	return nil
}

// Delete removes one object, running the delete hooks around the
// operation.
func Delete(ctx context.Context, env *Env, a *auth.Auth, className, objectID string, transport hooks.Transport) (err error) {
	defer mon.Task()(&ctx)(&err)

	if a.ReadOnly {
		return errdata.New(errdata.OperationForbidden,
			"read-only master key cannot perform writes")
	}
	cs, err := a.VisibilityKeys(ctx)
	if err != nil {
		return err
	}
	found, err := env.Adapter.Find(ctx, className,
		objects.Record{"objectId": objectID}, storage.FindOptions{Limit: 1}, cs)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return errdata.New(errdata.ObjectNotFound, "object not found for delete")
	}
	subject := found[0]

	if env.Hooks.Exists(hooks.BeforeDelete, className) {
		req, err := hooks.NewRequest(ctx, hooks.BeforeDelete, className, a, subject, nil, transport, env.Log)
		if err != nil {
			return err
		}
		if err := env.Hooks.RunEvent(ctx, hooks.BeforeDelete, req); err != nil {
			return err
		}
	}

	err = env.Adapter.Destroy(ctx, className, objects.Record{"objectId": objectID}, cs)
	if err != nil {
		if storage.ErrNotFound.Has(err) {
			return errdata.New(errdata.ObjectNotFound, "object not found for delete")
		}
		return err
	}

	if env.Hooks.Exists(hooks.AfterDelete, className) {
		req, err := hooks.NewRequest(ctx, hooks.AfterDelete, className, a, subject, nil, transport, env.Log)
		if err == nil {
			if err := env.Hooks.RunEvent(ctx, hooks.AfterDelete, req); err != nil {
				env.Log.Warn("after-delete hook failed",
					zap.String("class", className), zap.Error(err))
			}
		}
	}
	return nil
}
