package model

import (
	"time"
)

const (
	ActionCreateRole        = "CREATE_ROLE"
	ActionUpdateRole        = "UPDATE_ROLE"
	ActionDeleteRole        = "DELETE_ROLE"
	ActionAssignPermissions = "ASSIGN_PERMISSIONS"
	ActionRemovePermissions = "REMOVE_PERMISSIONS"

	ActionCreatePermission = "CREATE_PERMISSION"
	ActionUpdatePermission = "UPDATE_PERMISSION"
	ActionDeletePermission = "DELETE_PERMISSION"

	ActionCreateUser     = "CREATE_USER"
	ActionUpdateUser     = "UPDATE_USER"
	ActionDeleteUser     = "DELETE_USER"
	ActionAssignRole     = "ASSIGN_ROLE"
	ActionRemoveRole     = "REMOVE_ROLE"
	ActionChangePassword = "CHANGE_PASSWORD"
)

// Entity types recorded in audit rows
const (
	EntityUser       = "user"
	EntityRole       = "role"
	EntityPermission = "permission"
)

// AuditLog tracks Who, What, and When for access-control changes
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     *uint     `gorm:"index" json:"user_id"` // nil for system actions such as seeding
	User       *User     `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"user,omitempty"`
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string    `gorm:"type:varchar(20);not null;index" json:"entity_type"`
	EntityID   uint      `gorm:"index" json:"entity_id"`
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string    `gorm:"type:text" json:"details"` // JSON payload of the change
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
