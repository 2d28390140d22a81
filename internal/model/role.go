package model

import (
	"time"
)

// System role names. These rows can never be deleted or renamed.
const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleCustomer = "customer"
)

// SystemRoles is the closed set of built-in role names
var SystemRoles = []string{RoleAdmin, RoleStaff, RoleCustomer}

// IsSystemRole reports whether name is one of the built-in roles
func IsSystemRole(name string) bool {
	for _, r := range SystemRoles {
		if r == name {
			return true
		}
	}
	return false
}

// Permission actions
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionManage = "manage"
	ActionView   = "view"
)

// PermissionActions lists every valid action, in display order
var PermissionActions = []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage, ActionView}

// Role is a named bundle of permissions
type Role struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:varchar(255)" json:"description"`
	Permissions []Permission `gorm:"many2many:permission_role;constraint:OnDelete:CASCADE" json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsSystem reports whether the role is a built-in role
func (r Role) IsSystem() bool {
	return IsSystemRole(r.Name)
}

// Permission is a single grant such as "tickets.view"
type Permission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	Resource    string    `gorm:"type:varchar(50);not null;index" json:"resource"`
	Action      string    `gorm:"type:varchar(20);not null;index" json:"action"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RolePermission is the permission_role join row
type RolePermission struct {
	RoleID       uint      `gorm:"primaryKey;autoIncrement:false" json:"role_id"`
	PermissionID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"permission_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (RolePermission) TableName() string {
	return "permission_role"
}
