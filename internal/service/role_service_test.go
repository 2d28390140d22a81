package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ispmanager/internal/model"
	"ispmanager/internal/repository"
	"ispmanager/pkg/pagination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func permissionNames(perms []PermissionResponse) []string {
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return names
}

func TestCreateRoleWithPermissions(t *testing.T) {
	h := newHarness(t)

	view := h.permission(t, "tickets.view")
	create := h.permission(t, "tickets.create")

	r := h.role(t, "support", view, create)
	assert.Equal(t, "support", r.Name)
	assert.False(t, r.IsSystem)
	assert.Equal(t, []string{"tickets.create", "tickets.view"}, permissionNames(r.Permissions))
	require.NotNil(t, r.UserCount)
	assert.Equal(t, int64(0), *r.UserCount)
}

func TestCreateRoleRejectsTakenNames(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.role(t, "support")

	_, err := h.roles.Create(ctx, CreateRoleRequest{Name: "support"}, 0)
	assert.ErrorIs(t, err, ErrDuplicateName)

	for _, name := range model.SystemRoles {
		_, err := h.roles.Create(ctx, CreateRoleRequest{Name: name}, 0)
		assert.ErrorIs(t, err, ErrDuplicateName, name)
	}

	_, err = h.roles.Create(ctx, CreateRoleRequest{Name: "support-team"}, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateRoleUnknownPermissionRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.permission(t, "tickets.view")

	_, err := h.roles.Create(ctx, CreateRoleRequest{Name: "support", Permissions: []uint{p.ID, 9999}}, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.roleRepo.FindByName(ctx, "support")
	assert.ErrorIs(t, err, repository.ErrNotFound, "role row must not survive a failed create")
}

func TestUpdateRoleReplacesPermissionsWholesale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.permission(t, "tickets.view")
	b := h.permission(t, "tickets.create")
	c := h.permission(t, "tickets.delete")
	r := h.role(t, "support", a, b)

	got, err := h.roles.Update(ctx, r.ID, UpdateRoleRequest{Permissions: &[]uint{c.ID}}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"tickets.delete"}, permissionNames(got.Permissions))

	desc := "Front line"
	got, err = h.roles.Update(ctx, r.ID, UpdateRoleRequest{Description: &desc}, 0)
	require.NoError(t, err)
	assert.Equal(t, "Front line", got.Description)
	assert.Equal(t, []string{"tickets.delete"}, permissionNames(got.Permissions), "absent list keeps the set")

	got, err = h.roles.Update(ctx, r.ID, UpdateRoleRequest{Permissions: &[]uint{}}, 0)
	require.NoError(t, err)
	assert.Empty(t, got.Permissions, "present empty list clears the set")

	_, err = h.roles.Update(ctx, 9999, UpdateRoleRequest{Description: &desc}, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRoleUnknownPermissionKeepsOldSet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.permission(t, "tickets.view")
	r := h.role(t, "support", a)

	_, err := h.roles.Update(ctx, r.ID, UpdateRoleRequest{Permissions: &[]uint{9999}}, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	perms, err := h.roles.Permissions(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tickets.view"}, permissionNames(perms))
}

func TestRenameRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.role(t, "support")
	h.role(t, "sales")
	admin := h.systemRole(t, model.RoleAdmin)

	name := "sales"
	_, err := h.roles.Update(ctx, r.ID, UpdateRoleRequest{Name: &name}, 0)
	assert.ErrorIs(t, err, ErrDuplicateName)

	name = model.RoleStaff
	_, err = h.roles.Update(ctx, r.ID, UpdateRoleRequest{Name: &name}, 0)
	assert.ErrorIs(t, err, ErrDuplicateName, "system names are reserved even before they exist")

	name = "helpdesk"
	got, err := h.roles.Update(ctx, r.ID, UpdateRoleRequest{Name: &name}, 0)
	require.NoError(t, err)
	assert.Equal(t, "helpdesk", got.Name)

	_, err = h.roles.Update(ctx, admin.ID, UpdateRoleRequest{Name: &name}, 0)
	assert.ErrorIs(t, err, ErrSystemRole)

	desc := "Everything"
	got, err = h.roles.Update(ctx, admin.ID, UpdateRoleRequest{Description: &desc}, 0)
	require.NoError(t, err, "system roles stay editable apart from their name")
	assert.True(t, got.IsSystem)
}

func TestAssignPermissionsIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.permission(t, "tickets.view")
	b := h.permission(t, "tickets.create")
	r := h.role(t, "support", a)

	once, err := h.roles.AssignPermissions(ctx, r.ID, []uint{b.ID}, 0)
	require.NoError(t, err)
	twice, err := h.roles.AssignPermissions(ctx, r.ID, []uint{b.ID, a.ID, b.ID}, 0)
	require.NoError(t, err)

	assert.Equal(t, permissionNames(once.Permissions), permissionNames(twice.Permissions))
	assert.Equal(t, []string{"tickets.create", "tickets.view"}, permissionNames(twice.Permissions))

	_, err = h.roles.AssignPermissions(ctx, r.ID, []uint{9999}, 0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.roles.AssignPermissions(ctx, 9999, []uint{a.ID}, 0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.roles.AssignPermissions(ctx, r.ID, nil, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRemovePermissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.permission(t, "tickets.view")
	b := h.permission(t, "tickets.create")
	c := h.permission(t, "tickets.delete")
	r := h.role(t, "support", a, b)

	got, err := h.roles.RemovePermissions(ctx, r.ID, []uint{b.ID, c.ID}, 0)
	require.NoError(t, err, "removing a permission the role lacks is a no-op")
	assert.Equal(t, []string{"tickets.view"}, permissionNames(got.Permissions))
}

func TestDeleteRoleInUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.role(t, "support")
	alice := h.user(t, "alice", "password1", r.ID)
	h.user(t, "bob", "password1", r.ID)

	err := h.roles.Delete(ctx, r.ID, 0)
	assert.ErrorIs(t, err, ErrInUse)
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, int64(2), ce.Count)

	users, err := h.roleRepo.UserIDs(ctx, r.ID)
	require.NoError(t, err)
	for _, id := range users {
		require.NoError(t, h.users.RemoveRole(ctx, id, r.ID, alice.ID))
	}

	require.NoError(t, h.roles.Delete(ctx, r.ID, 0))
	_, err = h.roles.Get(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, h.roles.Delete(ctx, r.ID, 0), ErrNotFound)
}

func TestDeleteSystemRoleAlwaysForbidden(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i, name := range model.SystemRoles {
		role := h.systemRole(t, name)
		if i%2 == 0 {
			h.user(t, "holder_"+name, "password1", role.ID)
		}

		err := h.roles.Delete(ctx, role.ID, 0)
		assert.ErrorIs(t, err, ErrSystemRole, name)
		assert.NotErrorIs(t, err, ErrInUse, name)
	}
}

func TestRolePermissionChangesInvalidateHolders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.permission(t, "tickets.view")
	del := h.permission(t, "tickets.delete")
	r := h.role(t, "support", view)
	u := h.user(t, "alice", "password1", r.ID)

	p, err := h.principals.Resolve(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tickets.view"}, p.Permissions)

	_, err = h.roles.AssignPermissions(ctx, r.ID, []uint{del.ID}, 0)
	require.NoError(t, err)
	assert.Contains(t, h.notifier.all(), u.ID)

	p, err = h.principals.Resolve(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tickets.delete", "tickets.view"}, p.Permissions, "cached snapshot must be dropped")
}

// A resolution racing a wholesale replace sees the old set or the new one,
// never the cleared intermediate state.
func TestWholesaleReplaceIsAtomic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.permission(t, "tickets.view")
	b := h.permission(t, "tickets.create")
	r := h.role(t, "support", a)
	u := h.user(t, "alice", "password1", r.ID)

	// bypass the snapshot cache so every read hits the store
	resolver := NewPrincipalService(repository.NewPrincipalRepository(h.db), h.metrics, zap.NewNop())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var mu sync.Mutex
	var seen [][]string

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			p, err := resolver.Resolve(ctx, u.ID)
			if err != nil {
				continue
			}
			mu.Lock()
			seen = append(seen, p.Permissions)
			mu.Unlock()
		}
	}()

	sets := [][]uint{{b.ID}, {a.ID}, {a.ID, b.ID}, {b.ID}}
	for i := 0; i < 20; i++ {
		ids := sets[i%len(sets)]
		_, err := h.roles.Update(ctx, r.ID, UpdateRoleRequest{Permissions: &ids}, 0)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, perms := range seen {
		assert.NotEmpty(t, perms, "resolution observed a partially replaced set")
	}
}

func TestRoleQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.permission(t, "tickets.view")
	support := h.role(t, "support", view)
	h.role(t, "sales")
	admin := h.systemRole(t, model.RoleAdmin)
	h.user(t, "alice", "password1", support.ID, admin.ID)

	list, total, err := h.roles.List(ctx, repository.RoleFilter{Params: pagination.New(1, 10)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 3)
	assert.Equal(t, "admin", list[0].Name)
	assert.True(t, list[0].IsSystem)
	assert.Equal(t, int64(1), *list[2].UserCount)
	assert.Equal(t, int64(1), *list[2].PermissionCount)

	list, total, err = h.roles.List(ctx, repository.RoleFilter{Search: "sal", Params: pagination.New(1, 10)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "sales", list[0].Name)

	stats, err := h.roles.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRoles)
	assert.Equal(t, int64(2), stats.RolesWithUsers)
	assert.Equal(t, int64(1), stats.UnusedRoles)

	_, err = h.roles.Permissions(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRoleTrimsName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.role(t, "support")

	name := " helpdesk "
	got, err := h.roles.Update(ctx, r.ID, UpdateRoleRequest{Name: &name}, 0)
	require.NoError(t, err, "surrounding space is trimmed the same way Create trims it")
	assert.Equal(t, "helpdesk", got.Name)

	name = " support "
	h.role(t, "support")
	_, err = h.roles.Update(ctx, r.ID, UpdateRoleRequest{Name: &name}, 0)
	assert.ErrorIs(t, err, ErrDuplicateName)
}
