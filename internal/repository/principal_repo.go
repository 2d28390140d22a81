package repository

import (
	"context"
	"sort"

	"ispmanager/internal/model"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// PrincipalRecord is a user with the names of everything it holds
type PrincipalRecord struct {
	User        model.User
	Roles       []string
	Permissions []string
}

// PrincipalRepository loads role and permission names for a user in one query.
type PrincipalRepository interface {
	Load(ctx context.Context, userID uint) (*PrincipalRecord, error)
}

type principalRepository struct {
	db *gorm.DB
}

func NewPrincipalRepository(db *gorm.DB) PrincipalRepository {
	return &principalRepository{db: db}
}

type principalRow struct {
	ID             uint
	Username       string
	Email          string
	FullName       string
	Phone          string
	IsActive       bool
	RoleName       *string
	PermissionName *string
}

// users LEFT JOIN so a user without roles still yields one row
const principalQuery = `
SELECT DISTINCT u.id, u.username, u.email, u.full_name, u.phone, u.is_active,
	r.name AS role_name, p.name AS permission_name
FROM users u
LEFT JOIN role_user ru ON ru.user_id = u.id
LEFT JOIN roles r ON r.id = ru.role_id
LEFT JOIN permission_role pr ON pr.role_id = r.id
LEFT JOIN permissions p ON p.id = pr.permission_id
WHERE u.id = ?`

func (r *principalRepository) Load(ctx context.Context, userID uint) (*PrincipalRecord, error) {
	var rows []principalRow
	if err := GetDB(ctx, r.db).Raw(principalQuery, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	first := rows[0]
	rec := &PrincipalRecord{
		User: model.User{
			ID:       first.ID,
			Username: first.Username,
			Email:    first.Email,
			FullName: first.FullName,
			Phone:    first.Phone,
			IsActive: first.IsActive,
		},
	}

	roles := lo.FilterMap(rows, func(row principalRow, _ int) (string, bool) {
		return lo.FromPtr(row.RoleName), row.RoleName != nil
	})
	perms := lo.FilterMap(rows, func(row principalRow, _ int) (string, bool) {
		return lo.FromPtr(row.PermissionName), row.PermissionName != nil
	})

	rec.Roles = lo.Uniq(roles)
	rec.Permissions = lo.Uniq(perms)
	sort.Strings(rec.Roles)
	sort.Strings(rec.Permissions)
	return rec, nil
}
