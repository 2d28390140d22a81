package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCompareRoundTrip(t *testing.T) {
	h := newHarness(t)

	hash, err := h.credentials.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, h.credentials.Compare(hash, "s3cret-pass"))
	assert.False(t, h.credentials.Compare(hash, "s3cret-pasS"))
}

func TestVerifyFailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u := h.user(t, "alice", "correct-horse")
	inactive := false
	_, err := h.users.Update(ctx, u.ID, UpdateUserRequest{IsActive: &inactive}, 0)
	require.NoError(t, err)
	h.user(t, "bob", "correct-horse")

	cases := map[string]struct {
		email, password string
		cause           CredentialCause
	}{
		"unknown":  {"nobody@example.com", "correct-horse", CauseUnknownUser},
		"inactive": {"alice@example.com", "correct-horse", CauseInactive},
		"mismatch": {"bob@example.com", "wrong", CausePasswordMismatch},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.credentials.Verify(ctx, tc.email, tc.password)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			assert.Equal(t, "invalid credentials", err.Error())

			var ce *CredentialError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tc.cause, ce.Cause)
		})
	}

	user, err := h.credentials.Verify(ctx, "bob@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "alice", "old-password")

	err := h.credentials.ChangePassword(ctx, u.ID, "not-it", "new-password")
	assert.ErrorIs(t, err, ErrWrongCurrentPassword)

	require.NoError(t, h.credentials.ChangePassword(ctx, u.ID, "old-password", "new-password"))

	_, err = h.credentials.Verify(ctx, "alice@example.com", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.credentials.Verify(ctx, "alice@example.com", "new-password")
	assert.NoError(t, err)

	err = h.credentials.ChangePassword(ctx, 9999, "x", "new-password")
	assert.ErrorIs(t, err, ErrNotFound)
}
