// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package errdata_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plinth.io/plinth/pkg/errdata"
)

func TestNew(t *testing.T) {
	err := errdata.New(errdata.ObjectNotFound, "object %q not found", "abc")
	require.Error(t, err)
	assert.Equal(t, errdata.ObjectNotFound, errdata.CodeOf(err))
	assert.Contains(t, err.Error(), `object "abc" not found`)
	assert.Contains(t, err.Error(), "101")
}

func TestWrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := errdata.Wrap(errdata.Internal, cause)
	require.Error(t, err)
	assert.Equal(t, errdata.Internal, errdata.CodeOf(err))
	assert.True(t, errors.Is(err, cause))

	// wrapping an already coded error keeps the original code
	coded := errdata.New(errdata.InvalidQuery, "bad filter")
	rewrapped := errdata.Wrap(errdata.Internal, fmt.Errorf("outer: %w", coded))
	assert.Equal(t, errdata.InvalidQuery, errdata.CodeOf(rewrapped))

	assert.Nil(t, errdata.Wrap(errdata.Internal, nil))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, errdata.Internal, errdata.CodeOf(errors.New("plain")))
	assert.Equal(t, errdata.UsernameTaken,
		errdata.CodeOf(errdata.New(errdata.UsernameTaken, "taken")))

	wrapped := fmt.Errorf("context: %w", errdata.New(errdata.EmailTaken, "taken"))
	assert.Equal(t, errdata.EmailTaken, errdata.CodeOf(wrapped))
}

func TestHasCode(t *testing.T) {
	err := errdata.New(errdata.InvalidSessionToken, "expired")
	assert.True(t, errdata.HasCode(err, errdata.InvalidSessionToken))
	assert.False(t, errdata.HasCode(err, errdata.ObjectNotFound))
	assert.False(t, errdata.HasCode(errors.New("plain"), errdata.Internal))
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, errdata.Normalize(nil))

	coded := errdata.New(errdata.ValidationFailed, "nope")
	assert.Equal(t, coded, errdata.Normalize(coded))

	fromString := errdata.Normalize("handler gave up")
	require.NotNil(t, fromString)
	assert.Equal(t, errdata.ScriptFailed, fromString.Code)
	assert.Contains(t, fromString.Error(), "handler gave up")

	fromError := errdata.Normalize(errors.New("boom"))
	require.NotNil(t, fromError)
	assert.Equal(t, errdata.ScriptFailed, fromError.Code)

	fromValue := errdata.Normalize(42)
	require.NotNil(t, fromValue)
	assert.Equal(t, errdata.ScriptFailed, fromValue.Code)
	assert.Contains(t, fromValue.Error(), "42")
}
