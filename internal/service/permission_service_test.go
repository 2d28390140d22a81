package service

import (
	"context"
	"errors"
	"testing"

	"ispmanager/internal/repository"
	"ispmanager/pkg/pagination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePermissionValidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := []CreatePermissionRequest{
		{Name: "tickets view", Resource: "tickets", Action: "view"},
		{Name: "tickets.approve", Resource: "tickets", Action: "approve"},
		{Name: "t", Resource: "tickets", Action: "view"},
		{Name: "tickets.view", Resource: "t", Action: "view"},
	}
	for _, req := range bad {
		_, err := h.perms.Create(ctx, req, 0)
		assert.ErrorIs(t, err, ErrValidation, req.Name)
	}

	p, err := h.perms.Create(ctx, CreatePermissionRequest{Name: "reports:billing.view", Resource: "reports", Action: "view"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "reports:billing.view", p.Name)
}

func TestCreatePermissionDuplicate(t *testing.T) {
	h := newHarness(t)
	h.permission(t, "tickets.view")

	_, err := h.perms.Create(context.Background(), CreatePermissionRequest{Name: "tickets.view", Resource: "tickets", Action: "view"}, 0)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestDeletePermissionGuard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.permission(t, "tickets.view")
	h.role(t, "support", p)
	h.role(t, "sales", p)

	err := h.perms.Delete(ctx, p.ID, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInUse)

	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, int64(2), ce.Count)

	_, err = h.perms.Get(ctx, p.ID)
	require.NoError(t, err, "permission must survive a refused delete")

	unused := h.permission(t, "tickets.delete")
	require.NoError(t, h.perms.Delete(ctx, unused.ID, 0))
	_, err = h.perms.Get(ctx, unused.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, h.perms.Delete(ctx, 9999, 0), ErrNotFound)
}

func TestUpdatePermissionPartial(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.permission(t, "tickets.view")
	other := h.permission(t, "tickets.create")

	desc := "See tickets"
	got, err := h.perms.Update(ctx, p.ID, UpdatePermissionRequest{Description: &desc}, 0)
	require.NoError(t, err)
	assert.Equal(t, "tickets.view", got.Name)
	assert.Equal(t, "See tickets", got.Description)

	_, err = h.perms.Update(ctx, p.ID, UpdatePermissionRequest{Name: &other.Name}, 0)
	assert.ErrorIs(t, err, ErrDuplicateName)

	same := "tickets.view"
	_, err = h.perms.Update(ctx, p.ID, UpdatePermissionRequest{Name: &same}, 0)
	assert.NoError(t, err, "keeping its own name is not a collision")
}

func TestRenamePermissionInvalidatesHolders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.permission(t, "tickets.view")
	r := h.role(t, "support", p)
	u := h.user(t, "alice", "password1", r.ID)

	before, err := h.principals.Resolve(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tickets.view"}, before.Permissions)

	name := "tickets.read"
	_, err = h.perms.Update(ctx, p.ID, UpdatePermissionRequest{Name: &name}, 0)
	require.NoError(t, err)

	after, err := h.principals.Resolve(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tickets.read"}, after.Permissions)
}

func TestPermissionQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.permission(t, "tickets.view")
	h.permission(t, "tickets.create")
	h.permission(t, "tickets.archive.update")
	h.permission(t, "customers.view")

	byRes, err := h.perms.ListByResource(ctx, "tickets")
	require.NoError(t, err)
	names := make([]string, 0, len(byRes))
	for _, p := range byRes {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"tickets.create", "tickets.view"}, names)

	resources, err := h.perms.Resources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "tickets", "tickets.archive"}, resources)

	assert.Equal(t, []string{"create", "read", "update", "delete", "manage", "view"}, h.perms.Actions())

	list, total, err := h.perms.List(ctx, repository.PermissionFilter{Search: "view", Params: pagination.New(1, 10)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 2)

	_, _, err = h.perms.List(ctx, repository.PermissionFilter{Action: "approve", Params: pagination.New(1, 10)})
	assert.ErrorIs(t, err, ErrValidation)

	stats, err := h.perms.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalPermissions)
}

func TestUpdatePermissionTrimsFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.permission(t, "tickets.view")

	name, resource := " tickets.read ", " tickets "
	got, err := h.perms.Update(ctx, p.ID, UpdatePermissionRequest{Name: &name, Resource: &resource}, 0)
	require.NoError(t, err)
	assert.Equal(t, "tickets.read", got.Name)
	assert.Equal(t, "tickets", got.Resource)
}
