// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package hooks

import (
	"context"

	"go.uber.org/zap"

	"plinth.io/plinth/pkg/auth"
	"plinth.io/plinth/pkg/objects"
)

// Transport carries wire-level metadata into hook envelopes.
type Transport struct {
	Headers    map[string]string
	RemoteAddr string
}

// Request is the handler-facing envelope. The Context map is a shared
// side channel: mutations made by a before hook are visible to the
// matching after hook and propagated back to the caller.
type Request struct {
	Kind     Kind
	Class    string
	Object   objects.Record
	Original objects.Record

	Master         bool
	User           *auth.UserInfo
	Roles          []string
	InstallationID string

	Headers    map[string]string
	RemoteAddr string
	Log        *zap.Logger

	Context map[string]interface{}

	skipHandler bool
}

// NewRequest builds the envelope for one hook invocation, resolving the
// context's role closure for the handler.
func NewRequest(ctx context.Context, kind Kind, class string, a *auth.Auth, object, original objects.Record, transport Transport, log *zap.Logger) (*Request, error) {
	roles, err := a.Roles(ctx)
	if err != nil {
		return nil, err
	}
	return &Request{
		Kind:           kind,
		Class:          class,
		Object:         object,
		Original:       original,
		Master:         a.Master,
		User:           a.User,
		Roles:          roles,
		InstallationID: a.InstallationID,
		Headers:        transport.Headers,
		RemoteAddr:     transport.RemoteAddr,
		Log:            log,
		Context:        map[string]interface{}{},
	}, nil
}
