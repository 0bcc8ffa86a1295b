// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package pwd is the password hashing collaborator.
package pwd

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/zeebo/errs"
)

// Error is the class of hashing errors.
var Error = errs.Class("pwd error")

const (
	// DefaultCost is the hashing complexity.
	DefaultCost = bcrypt.DefaultCost
	// TestCost is the hashing complexity to use for testing.
	TestCost = bcrypt.MinCost
)

// Hasher hashes and compares passwords with a fixed cost.
type Hasher struct {
	cost int
}

// New creates a Hasher. A zero cost means DefaultCost.
func New(cost int) *Hasher {
	if cost == 0 {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the digest for plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return string(digest), nil
}

// Compare reports whether plaintext matches digest.
func (h *Hasher) Compare(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
