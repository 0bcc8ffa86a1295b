// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package testrand implements deterministic-enough random helpers for
// tests.
package testrand

import (
	"fmt"
	"math/rand"

	"github.com/mr-tron/base58"
)

// Read reads pseudo-random data into data.
func Read(data []byte) {
	_, _ = rand.Read(data)
}

// BytesN generates size amount of random data.
func BytesN(size int) []byte {
	data := make([]byte, size)
	Read(data)
	return data
}

// ObjectID creates a random object id.
func ObjectID() string {
	return base58.Encode(BytesN(10))
}

// SessionToken creates a random revocable session token.
func SessionToken() string {
	return "r:" + base58.Encode(BytesN(24))
}

// Email creates a random test email address.
func Email() string {
	return fmt.Sprintf("user%d@mail.test", rand.Int63n(1e12))
}

// DeviceToken creates a random push device token.
func DeviceToken() string {
	return base58.Encode(BytesN(16))
}
