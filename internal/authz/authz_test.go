package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func staff() *Principal {
	return &Principal{
		UserID:      7,
		Roles:       []string{"staff"},
		Permissions: []string{"tickets.view", "customers.view"},
		IsActive:    true,
	}
}

func TestRequirePermissionAnyOf(t *testing.T) {
	d := RequirePermission(staff(), "tickets.view", "tickets.create")
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonGranted, d.Reason)

	d = RequirePermission(staff(), "tickets.create", "tickets.delete")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonInsufficientPermissions, d.Reason)
	assert.Equal(t, []string{"tickets.create", "tickets.delete"}, d.Required)
}

func TestRequirePermissionNoImplication(t *testing.T) {
	p := &Principal{Permissions: []string{"tickets.manage"}}

	assert.False(t, RequirePermission(p, "tickets.view").Allowed)
	assert.True(t, RequirePermission(p, "tickets.manage").Allowed)
}

func TestRequirePermissionNilPrincipal(t *testing.T) {
	d := RequirePermission(nil, "tickets.view")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUnauthenticated, d.Reason)

	d = RequirePermission(nil)
	assert.False(t, d.Allowed)
}

func TestRequirePermissionEmptyRequirement(t *testing.T) {
	d := RequirePermission(&Principal{})
	assert.True(t, d.Allowed)
}

func TestRequirePermissionTrimsNames(t *testing.T) {
	assert.True(t, RequirePermission(staff(), " tickets.view ").Allowed)
}

func TestNamesAreCaseSensitive(t *testing.T) {
	p := &Principal{UserID: 9, IsActive: true, Roles: []string{"Support"}, Permissions: []string{"Tickets.Delete"}}

	d := RequirePermission(p, "tickets.delete")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonInsufficientPermissions, d.Reason)
	assert.True(t, RequirePermission(p, "Tickets.Delete").Allowed)

	assert.False(t, RequireRole(p, "support").Allowed)
	assert.True(t, RequireRole(p, "Support").Allowed)
	assert.False(t, p.HasPermission("tickets.delete"))
}

func TestRequireRole(t *testing.T) {
	assert.True(t, RequireRole(staff(), "admin", "staff").Allowed)

	d := RequireRole(staff(), "admin")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonInsufficientRole, d.Reason)
	assert.Equal(t, []string{"admin"}, d.Required)

	assert.Equal(t, ReasonUnauthenticated, RequireRole(nil, "admin").Reason)
}

func TestFailed(t *testing.T) {
	d := Failed("users.view")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonResolutionFailed, d.Reason)
}

func TestPrincipalHelpers(t *testing.T) {
	var p *Principal
	assert.False(t, p.HasPermission("tickets.view"))
	assert.False(t, p.HasRole("staff"))

	assert.True(t, staff().HasPermission("customers.view"))
	assert.True(t, staff().HasRole("STAFF"))
}
