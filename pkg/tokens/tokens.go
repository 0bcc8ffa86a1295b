// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package tokens generates session tokens and object ids.
package tokens

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
	"github.com/zeebo/errs"
)

// Error is the class of token generation errors.
var Error = errs.Class("tokens error")

// SessionTokenPrefix marks revocable session tokens.
const SessionTokenPrefix = "r:"

// NewToken returns a fresh session token.
func NewToken() (string, error) {
	raw, err := random(24)
	if err != nil {
		return "", err
	}
	return SessionTokenPrefix + raw, nil
}

// NewObjectID returns a fresh object id of the requested size.
func NewObjectID(size int) (string, error) {
	id, err := random(size)
	if err != nil {
		return "", err
	}
	if len(id) > size {
		id = id[:size]
	}
	return id, nil
}

func random(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", Error.Wrap(err)
	}
	return base58.Encode(buf), nil
}
