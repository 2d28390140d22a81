package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roleInput struct {
	Name string `binding:"required,min=2,max=50,rolename"`
}

type permissionInput struct {
	Name   string `binding:"required,min=2,max=100,permname"`
	Action string `binding:"required,permaction"`
}

func TestRoleName(t *testing.T) {
	assert.NoError(t, Struct(roleInput{Name: "billing_admin"}))
	assert.Error(t, Struct(roleInput{Name: "billing-admin"}))
	assert.Error(t, Struct(roleInput{Name: "a"}))
	assert.Error(t, Struct(roleInput{Name: "role1"}))
}

func TestPermissionNameAndAction(t *testing.T) {
	assert.NoError(t, Struct(permissionInput{Name: "tickets.view", Action: "view"}))
	assert.NoError(t, Struct(permissionInput{Name: "reports:export.read", Action: "read"}))
	assert.Error(t, Struct(permissionInput{Name: "tickets view", Action: "view"}))
	assert.Error(t, Struct(permissionInput{Name: "tickets.view", Action: "approve"}))
}

func TestMessages(t *testing.T) {
	err := Struct(permissionInput{Name: "x y", Action: "approve"})
	require.Error(t, err)

	msgs := Messages(err)
	assert.Contains(t, msgs, "name")
	assert.Contains(t, msgs["action"], "must be one of")
}

func TestRegisterGin(t *testing.T) {
	assert.NoError(t, RegisterGin())
}

func TestUsername(t *testing.T) {
	type input struct {
		Username string `binding:"required,min=3,username"`
	}
	assert.NoError(t, Struct(input{Username: "alice_01"}))
	assert.Error(t, Struct(input{Username: "alice smith"}))
	assert.Error(t, Struct(input{Username: "al"}))
}
