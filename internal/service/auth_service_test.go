package service

import (
	"context"
	"testing"
	"time"

	"ispmanager/internal/authz"
	"ispmanager/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.permission(t, "tickets.view")
	support := h.role(t, "support", view)
	u := h.user(t, "alice", "password1", support.ID)

	res, err := h.auth.Login(ctx, LoginRequest{Email: "Alice@Example.com", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, u.ID, res.User.ID)
	assert.Equal(t, []string{"support"}, res.Roles)
	assert.Equal(t, []string{"tickets.view"}, res.Permissions)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, time.Minute)

	claims, err := h.tokens.Verify(res.Token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.LoginsTotal.WithLabelValues("success")))
}

func TestLoginFailuresLookAlike(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.user(t, "alice", "password1")
	bob := h.user(t, "bob", "password1")
	inactive := false
	_, err := h.users.Update(ctx, bob.ID, UpdateUserRequest{IsActive: &inactive}, 0)
	require.NoError(t, err)

	cases := map[string]LoginRequest{
		"unknown email":    {Email: "nobody@example.com", Password: "password1"},
		"wrong password":   {Email: "alice@example.com", Password: "password2"},
		"deactivated user": {Email: "bob@example.com", Password: "password1"},
	}

	var messages []string
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := h.auth.Login(ctx, req)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			messages = append(messages, err.Error())
		})
	}
	for _, msg := range messages {
		assert.Equal(t, messages[0], msg)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.LoginsTotal.WithLabelValues("denied")))
}

func TestRegisterAssignsCustomerRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	customer := h.systemRole(t, model.RoleCustomer)
	view := h.permission(t, "tickets.view")
	_, err := h.roles.AssignPermissions(ctx, customer.ID, []uint{view.ID}, 0)
	require.NoError(t, err)

	res, err := h.auth.Register(ctx, RegisterRequest{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "password1",
		FullName: "Carol",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{model.RoleCustomer}, res.Roles)
	assert.Equal(t, []string{"tickets.view"}, res.Permissions)
	assert.True(t, res.User.IsActive)

	_, err = h.auth.Register(ctx, RegisterRequest{
		Username: "carol2",
		Email:    "carol@example.com",
		Password: "password1",
		FullName: "Carol",
	})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestRegisterWithoutCustomerRole(t *testing.T) {
	h := newHarness(t)

	res, err := h.auth.Register(context.Background(), RegisterRequest{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "password1",
		FullName: "Carol",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Roles)
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u := h.user(t, "alice", "password1")
	token, _, err := h.tokens.Issue(u.ID, u.Email)
	require.NoError(t, err)

	p, err := h.auth.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	assert.Equal(t, "alice", p.Username)

	t.Run("garbage token", func(t *testing.T) {
		_, err := h.auth.Authenticate(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("foreign signature", func(t *testing.T) {
		other := NewTokenService([]byte("other-secret"), time.Hour, "ispmanager")
		forged, _, err := other.Issue(u.ID, u.Email)
		require.NoError(t, err)
		_, err = h.auth.Authenticate(ctx, forged)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("deactivated after issue", func(t *testing.T) {
		inactive := false
		_, err := h.users.Update(ctx, u.ID, UpdateUserRequest{IsActive: &inactive}, 0)
		require.NoError(t, err)

		_, err = h.auth.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TokenRejectsTotal.WithLabelValues("inactive")))
	})

	t.Run("deleted after issue", func(t *testing.T) {
		bob := h.user(t, "bob", "password1")
		bobToken, _, err := h.tokens.Issue(bob.ID, bob.Email)
		require.NoError(t, err)
		require.NoError(t, h.users.Delete(ctx, bob.ID, 0))

		_, err = h.auth.Authenticate(ctx, bobToken)
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

// A support agent can list tickets but not delete them, and loses access as
// soon as the grant is withdrawn from the role.
func TestGateFollowsRoleChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.permission(t, "tickets.view")
	h.permission(t, "tickets.delete")
	support := h.role(t, "support", view)
	h.user(t, "agent", "password1", support.ID)

	login, err := h.auth.Login(ctx, LoginRequest{Email: "agent@example.com", Password: "password1"})
	require.NoError(t, err)

	p, err := h.auth.Authenticate(ctx, login.Token)
	require.NoError(t, err)
	assert.True(t, authz.RequirePermission(p, "tickets.view").Allowed)
	d := authz.RequirePermission(p, "tickets.delete")
	assert.False(t, d.Allowed)
	assert.Equal(t, authz.ReasonInsufficientPermissions, d.Reason)

	_, err = h.roles.RemovePermissions(ctx, support.ID, []uint{view.ID}, 0)
	require.NoError(t, err)

	p, err = h.auth.Authenticate(ctx, login.Token)
	require.NoError(t, err, "the token itself stays valid")
	assert.False(t, authz.RequirePermission(p, "tickets.view").Allowed)
}

func TestAuthServiceChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "alice", "password1")

	err := h.auth.ChangePassword(ctx, u.ID, ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "password2"})
	assert.ErrorIs(t, err, ErrWrongCurrentPassword)

	err = h.auth.ChangePassword(ctx, u.ID, ChangePasswordRequest{CurrentPassword: "password1", NewPassword: "123"})
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, h.auth.ChangePassword(ctx, u.ID, ChangePasswordRequest{CurrentPassword: "password1", NewPassword: "password2"}))

	_, err = h.auth.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.auth.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "password2"})
	assert.NoError(t, err)
}

// Catalog names are case-sensitive, and so is the gate: a grant on one
// spelling never satisfies a requirement on the other.
func TestGateDistinguishesNameCase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	upper, err := h.perms.Create(ctx, CreatePermissionRequest{Name: "Tickets.Delete", Resource: "Tickets", Action: model.ActionDelete}, 0)
	require.NoError(t, err)
	h.permission(t, "tickets.delete")

	auditor := h.role(t, "auditor", upper)
	u := h.user(t, "bob", "password1", auditor.ID)

	p, err := h.principals.Resolve(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tickets.Delete"}, p.Permissions)
	assert.False(t, authz.RequirePermission(p, "tickets.delete").Allowed)
	assert.True(t, authz.RequirePermission(p, "Tickets.Delete").Allowed)

	h.role(t, "Support")
	support := h.role(t, "support")
	carol := h.user(t, "carol", "password1", support.ID)
	cp, err := h.principals.Resolve(ctx, carol.ID)
	require.NoError(t, err)
	assert.False(t, authz.RequireRole(cp, "Support").Allowed)
	assert.True(t, authz.RequireRole(cp, "support").Allowed)
}
