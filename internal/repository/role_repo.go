package repository

import (
	"context"
	"time"

	"ispmanager/internal/model"
	"ispmanager/pkg/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleFilter narrows role listings
type RoleFilter struct {
	Search string
	pagination.Params
}

// RoleSummary is a role row with its membership counts
type RoleSummary struct {
	ID              uint
	Name            string
	Description     string
	UserCount       int64
	PermissionCount int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RoleStats aggregates role usage
type RoleStats struct {
	TotalRoles     int64
	RolesWithUsers int64
	UnusedRoles    int64
	MostAssigned   []RoleSummary
}

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*model.Role, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*model.Role, error)
	FindByIDWithPermissions(ctx context.Context, id uint) (*model.Role, error)
	FindByName(ctx context.Context, name string) (*model.Role, error)
	FindByNameExcluding(ctx context.Context, name string, excludeID uint) (*model.Role, error)
	List(ctx context.Context, f RoleFilter) ([]RoleSummary, int64, error)
	CountUsers(ctx context.Context, roleID uint) (int64, error)
	UserIDs(ctx context.Context, roleIDs ...uint) ([]uint, error)
	Permissions(ctx context.Context, roleID uint) ([]model.Permission, error)
	AddPermissions(ctx context.Context, roleID uint, permissionIDs []uint) error
	RemovePermissions(ctx context.Context, roleID uint, permissionIDs []uint) error
	ClearPermissions(ctx context.Context, roleID uint) error
	Stats(ctx context.Context) (*RoleStats, error)
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

const roleSummaryColumns = `roles.id, roles.name, roles.description, roles.created_at, roles.updated_at,
	(SELECT COUNT(*) FROM role_user ru WHERE ru.role_id = roles.id) AS user_count,
	(SELECT COUNT(*) FROM permission_role pr WHERE pr.role_id = roles.id) AS permission_count`

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return mapError(GetDB(ctx, r.db).Omit("Permissions").Create(role).Error)
}

func (r *roleRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	return mapError(GetDB(ctx, r.db).Model(&model.Role{}).Where("id = ?", id).Updates(fields).Error)
}

func (r *roleRepository) Delete(ctx context.Context, id uint) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("role_id = ?", id).Delete(&model.RolePermission{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Role{}).Error
}

func (r *roleRepository) FindByID(ctx context.Context, id uint) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).First(&role, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &role, nil
}

// FindByIDForUpdate locks the role row for the rest of the transaction
func (r *roleRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Role, error) {
	var role model.Role
	if err := forUpdate(ctx, GetDB(ctx, r.db)).First(&role, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &role, nil
}

func (r *roleRepository) FindByIDWithPermissions(ctx context.Context, id uint) (*model.Role, error) {
	var role model.Role
	err := GetDB(ctx, r.db).
		Preload("Permissions", func(db *gorm.DB) *gorm.DB { return db.Order("permissions.name asc") }).
		First(&role, "id = ?", id).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &role, nil
}

func (r *roleRepository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, mapError(err)
	}
	return &role, nil
}

func (r *roleRepository) FindByNameExcluding(ctx context.Context, name string, excludeID uint) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Where("name = ? AND id <> ?", name, excludeID).First(&role).Error; err != nil {
		return nil, mapError(err)
	}
	return &role, nil
}

func (r *roleRepository) List(ctx context.Context, f RoleFilter) ([]RoleSummary, int64, error) {
	var rows []RoleSummary
	var total int64

	q := GetDB(ctx, r.db).Model(&model.Role{})
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("roles.name LIKE ? OR roles.description LIKE ?", like, like)
	}
	q = q.Session(&gorm.Session{})

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sort := f.Sort
	if sort == "" {
		sort = "name"
	}
	err := q.Select(roleSummaryColumns).
		Order(clause.OrderByColumn{Column: clause.Column{Name: sort}, Desc: f.Desc}).
		Offset(f.Offset).Limit(f.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *roleRepository) CountUsers(ctx context.Context, roleID uint) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.UserRole{}).Where("role_id = ?", roleID).Count(&n).Error
	return n, err
}

// UserIDs returns the distinct users holding any of the roles
func (r *roleRepository) UserIDs(ctx context.Context, roleIDs ...uint) ([]uint, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := GetDB(ctx, r.db).Model(&model.UserRole{}).
		Distinct("user_id").
		Where("role_id IN ?", roleIDs).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *roleRepository) Permissions(ctx context.Context, roleID uint) ([]model.Permission, error) {
	var perms []model.Permission
	err := GetDB(ctx, r.db).
		Joins("JOIN permission_role pr ON pr.permission_id = permissions.id").
		Where("pr.role_id = ?", roleID).
		Order("permissions.name asc").
		Find(&perms).Error
	return perms, err
}

// AddPermissions inserts permission_role rows, ignoring pairs that already exist.
func (r *roleRepository) AddPermissions(ctx context.Context, roleID uint, permissionIDs []uint) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	rows := make([]model.RolePermission, 0, len(permissionIDs))
	for _, pid := range permissionIDs {
		rows = append(rows, model.RolePermission{RoleID: roleID, PermissionID: pid})
	}
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *roleRepository) RemovePermissions(ctx context.Context, roleID uint, permissionIDs []uint) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).
		Where("role_id = ? AND permission_id IN ?", roleID, permissionIDs).
		Delete(&model.RolePermission{}).Error
}

func (r *roleRepository) ClearPermissions(ctx context.Context, roleID uint) error {
	return GetDB(ctx, r.db).Where("role_id = ?", roleID).Delete(&model.RolePermission{}).Error
}

func (r *roleRepository) Stats(ctx context.Context) (*RoleStats, error) {
	db := GetDB(ctx, r.db)
	var stats RoleStats

	if err := db.Model(&model.Role{}).Count(&stats.TotalRoles).Error; err != nil {
		return nil, err
	}
	err := db.Model(&model.Role{}).
		Where("EXISTS (SELECT 1 FROM role_user ru WHERE ru.role_id = roles.id)").
		Count(&stats.RolesWithUsers).Error
	if err != nil {
		return nil, err
	}
	stats.UnusedRoles = stats.TotalRoles - stats.RolesWithUsers

	err = db.Model(&model.Role{}).
		Select(roleSummaryColumns).
		Order("user_count desc, roles.name asc").
		Limit(5).
		Scan(&stats.MostAssigned).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
