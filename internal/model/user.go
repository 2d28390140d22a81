package model

import (
	"time"
)

// User is an account that can authenticate and hold roles
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"` // bcrypt hash, never serialized
	FullName  string    `gorm:"type:varchar(100)" json:"full_name"`
	Phone     string    `gorm:"type:varchar(20)" json:"phone"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	Roles     []Role    `gorm:"many2many:role_user;constraint:OnDelete:CASCADE" json:"roles,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserRole is the role_user join row
type UserRole struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RoleID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"role_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UserRole) TableName() string {
	return "role_user"
}
