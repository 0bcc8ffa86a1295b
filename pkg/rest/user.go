// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package rest

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/pkg/tokens"
	"plinth.io/plinth/storage"
)

// RequestPasswordReset stores a fresh reset token on the account
// registered under email and hands the record to the mailer. The token is
// cleared again by the next credential change.
func RequestPasswordReset(ctx context.Context, env *Env, email string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := mail.ParseAddress(email); err != nil {
		return errdata.New(errdata.InvalidEmailAddress, "email address format is invalid")
	}
	matches, err := env.Adapter.Find(ctx, classes.UserClass,
		objects.Record{"email": email},
		storage.FindOptions{Limit: 1, CaseInsensitive: true}, nil)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return errdata.New(errdata.EmailNotFound, "no user found with email %s", email)
	}

	token, err := tokens.NewToken()
	if err != nil {
		return err
	}
	id, _ := matches[0]["objectId"].(string)
	updated, err := env.Adapter.Update(ctx, classes.UserClass,
		objects.Record{"objectId": id},
		objects.Record{
			"perishableToken": token,
			"updatedAt":       objects.WireDate(time.Now()),
		}, nil)
	if err != nil {
		return err
	}
	return env.Mailer.SendPasswordResetEmail(ctx, updated)
}

// validateAuthData enforces the identity-class credential rules: without
// third-party credentials a create needs username and password; with
// them, every provider entry must carry a provider-assigned id or be null
// (meaning unlink).
func (w *Write) validateAuthData(ctx context.Context) error {
	if w.className != classes.UserClass {
		return nil
	}

	authData, hasAuthData := w.data["authData"]
	if hasAuthData {
		providers, ok := authData.(map[string]interface{})
		if !ok {
			return errdata.New(errdata.ValidationFailed, "authData must be a map of providers")
		}
		linked := false
		for provider, entry := range providers {
			if entry == nil {
				continue
			}
			payload, ok := entry.(map[string]interface{})
			if !ok {
				return errdata.New(errdata.ValidationFailed,
					"auth data for %s must be a map or null", provider)
			}
			if id, _ := payload["id"].(string); id == "" {
				return errdata.New(errdata.ValidationFailed,
					"auth data for %s is missing its id", provider)
			}
			linked = true
		}
		if linked {
			return nil
		}
	}

	if !w.creating() {
		return nil
	}
	if username, _ := w.data["username"].(string); username == "" {
		return errdata.New(errdata.UsernameMissing, "bad or missing username")
	}
	if password, _ := w.data["password"].(string); password == "" {
		return errdata.New(errdata.PasswordMissing, "password is required")
	}
	return nil
}

// transformUser hashes credentials, enforces password policy and
// uniqueness, and schedules the verification email.
func (w *Write) transformUser(ctx context.Context) error {
	if w.className != classes.UserClass {
		return nil
	}

	if _, present := w.data["username"]; present || w.creating() {
		if err := w.checkUnique(ctx, "username", errdata.UsernameTaken,
			"account already exists for this username"); err != nil {
			return err
		}
	}

	if email, present := w.data["email"]; present && email != nil {
		address, _ := email.(string)
		if _, err := mail.ParseAddress(address); err != nil {
			return errdata.New(errdata.InvalidEmailAddress, "email address format is invalid")
		}
		if err := w.checkUnique(ctx, "email", errdata.EmailTaken,
			"account already exists for this email"); err != nil {
			return err
		}
		previous := ""
		if w.original != nil {
			previous, _ = w.original["email"].(string)
		}
		if !strings.EqualFold(address, previous) && w.env.VerifyUserEmails {
			w.data["emailVerified"] = false
			w.sendVerification = true
		}
	}

	password, present := w.data["password"].(string)
	if !present || password == "" {
		return nil
	}
	if err := w.checkPasswordPolicy(password); err != nil {
		return err
	}
	digest, err := w.env.Hasher.Hash(password)
	if err != nil {
		return err
	}
	delete(w.data, "password")
	w.data["hashedPassword"] = digest
	w.passwordChanged = true

	if policy := w.env.PasswordPolicy; policy != nil && policy.History > 0 && w.original != nil {
		if prior, ok := w.original["hashedPassword"].(string); ok {
			history, _ := w.original["passwordHistory"].([]interface{})
			history = append(history, prior)
			keep := policy.History - 1
			if keep > MaxPasswordHistory {
				keep = MaxPasswordHistory
			}
			if len(history) > keep {
				history = history[len(history)-keep:]
			}
			w.data["passwordHistory"] = history
		}
	}
	return nil
}

func (w *Write) checkPasswordPolicy(password string) error {
	policy := w.env.PasswordPolicy
	if policy == nil {
		return nil
	}
	if policy.Pattern != nil && !policy.Pattern.MatchString(password) {
		return errdata.New(errdata.ValidationFailed, "password does not meet the password requirements")
	}
	if policy.ValidatorFn != nil && !policy.ValidatorFn(password) {
		return errdata.New(errdata.ValidationFailed, "password does not meet the password requirements")
	}
	if policy.DisallowUsername {
		username, _ := w.data["username"].(string)
		if username == "" && w.original != nil {
			username, _ = w.original["username"].(string)
		}
		if username != "" && strings.Contains(password, username) {
			return errdata.New(errdata.ValidationFailed, "password cannot contain your username")
		}
	}
	if policy.History > 0 && w.original != nil {
		digests := []string{}
		if prior, ok := w.original["hashedPassword"].(string); ok {
			digests = append(digests, prior)
		}
		if history, ok := w.original["passwordHistory"].([]interface{}); ok {
			limit := policy.History - 1
			if limit > len(history) {
				limit = len(history)
			}
			for _, entry := range history[len(history)-limit:] {
				if digest, ok := entry.(string); ok {
					digests = append(digests, digest)
				}
			}
		}
		for _, digest := range digests {
			if w.env.Hasher.Compare(password, digest) {
				return errdata.New(errdata.ValidationFailed,
					"new password should not be the same as the last %d passwords", policy.History)
			}
		}
	}
	return nil
}

// checkUnique enforces case-insensitive uniqueness of an identity field.
func (w *Write) checkUnique(ctx context.Context, field string, code errdata.Code, message string) error {
	value, ok := w.data[field].(string)
	if !ok || value == "" {
		return nil
	}
	matches, err := w.env.Adapter.Find(ctx, classes.UserClass,
		objects.Record{field: value},
		storage.FindOptions{Limit: 2, CaseInsensitive: true}, nil)
	if err != nil {
		return err
	}
	for _, match := range matches {
		if id, _ := match["objectId"].(string); id != w.objectID {
			return errdata.New(code, "%s", message)
		}
	}
	return nil
}

// linkAuthProviders resolves third-party identities: a supplied provider
// id already bound to the anonymous caller's record or the principal
// being updated means "log in as / link to that identity"; a different
// owner means already-linked.
func (w *Write) linkAuthProviders(ctx context.Context) error {
	if w.className != classes.UserClass {
		return nil
	}
	providers, ok := w.data["authData"].(map[string]interface{})
	if !ok {
		return nil
	}

	var supplied []providerEntry
	for name, entry := range providers {
		if payload, ok := entry.(map[string]interface{}); ok {
			supplied = append(supplied, providerEntry{name, payload})
		}
	}
	if len(supplied) == 0 {
		return nil
	}

	// One lookup per provider id; distinct owners across providers are
	// ambiguous.
	owners := map[string]objects.Record{}
	for _, entry := range supplied {
		id, _ := entry.payload["id"].(string)
		matches, err := w.env.Adapter.Find(ctx, classes.UserClass,
			objects.Record{"authData." + entry.name + ".id": id},
			storage.FindOptions{Limit: 2}, nil)
		if err != nil {
			return err
		}
		for _, match := range matches {
			ownerID, _ := match["objectId"].(string)
			owners[ownerID] = match
		}
	}
	if len(owners) > 1 {
		return errdata.New(errdata.AccountAlreadyLinked,
			"this auth is already used by multiple accounts")
	}

	var owner objects.Record
	var ownerID string
	for id, match := range owners {
		ownerID, owner = id, match
	}

	switch {
	case owner == nil:
		// Nothing linked yet: validate every supplied provider.
		for _, entry := range supplied {
			if err := w.validateProvider(ctx, entry.name, entry.payload); err != nil {
				return err
			}
		}
	case w.creating():
		if w.a.Authenticated() && w.a.UserID() != ownerID {
			return errdata.New(errdata.AccountAlreadyLinked,
				"this auth is already used by another account")
		}
		// Log in as the existing identity: the create becomes an update,
		// validating only providers whose data differs from what is
		// stored.
		if err := w.validateChangedProviders(ctx, supplied, owner); err != nil {
			return err
		}
		w.objectID = ownerID
		w.original = owner
		w.becameLogin = true
		w.issueSession = true
		w.createdWith = "login"
	case ownerID == w.objectID:
		if err := w.validateChangedProviders(ctx, supplied, owner); err != nil {
			return err
		}
	default:
		return errdata.New(errdata.AccountAlreadyLinked,
			"this auth is already used by another account")
	}
	return nil
}

type providerEntry struct {
	name    string
	payload map[string]interface{}
}

func (w *Write) validateChangedProviders(ctx context.Context, supplied []providerEntry, owner objects.Record) error {
	for _, entry := range supplied {
		stored, _ := objects.Get(owner, "authData."+entry.name)
		if objects.Equal(stored, map[string]interface{}(entry.payload)) {
			continue
		}
		if err := w.validateProvider(ctx, entry.name, entry.payload); err != nil {
			return err
		}
	}
	return nil
}

func (w *Write) validateProvider(ctx context.Context, name string, payload map[string]interface{}) error {
	validator, ok := w.env.AuthProviders[name]
	if !ok {
		return errdata.New(errdata.UnsupportedService,
			"this authentication method is unsupported: %s", name)
	}
	if err := validator(ctx, payload); err != nil {
		return errdata.Wrap(errdata.ScriptFailed, err)
	}
	return nil
}
