package repository

import (
	"context"
	"time"

	"ispmanager/internal/model"
	"ispmanager/pkg/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PermissionFilter narrows permission listings
type PermissionFilter struct {
	Search   string
	Resource string
	Action   string
	pagination.Params
}

// PermissionSummary is a permission row with the number of roles granting it
type PermissionSummary struct {
	ID          uint
	Name        string
	Description string
	Resource    string
	Action      string
	RoleCount   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GroupCount is a count keyed by resource or action
type GroupCount struct {
	Name  string
	Count int64
}

// PermissionStats aggregates the catalog
type PermissionStats struct {
	TotalPermissions  int64
	AssignedToRoles   int64
	UnusedPermissions int64
	ByResource        []GroupCount
	ByAction          []GroupCount
}

type PermissionRepository interface {
	Create(ctx context.Context, perm *model.Permission) error
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*model.Permission, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*model.Permission, error)
	FindByName(ctx context.Context, name string) (*model.Permission, error)
	FindByNameExcluding(ctx context.Context, name string, excludeID uint) (*model.Permission, error)
	FindByIDs(ctx context.Context, ids []uint) ([]model.Permission, error)
	FindOrCreate(ctx context.Context, perm *model.Permission) error
	List(ctx context.Context, f PermissionFilter) ([]PermissionSummary, int64, error)
	ListByResource(ctx context.Context, resource string) ([]model.Permission, error)
	Resources(ctx context.Context) ([]string, error)
	CountRoles(ctx context.Context, permissionID uint) (int64, error)
	UserIDs(ctx context.Context, permissionID uint) ([]uint, error)
	Stats(ctx context.Context) (*PermissionStats, error)
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

const permissionSummaryColumns = `permissions.id, permissions.name, permissions.description,
	permissions.resource, permissions.action, permissions.created_at, permissions.updated_at,
	(SELECT COUNT(*) FROM permission_role pr WHERE pr.permission_id = permissions.id) AS role_count`

func (r *permissionRepository) Create(ctx context.Context, perm *model.Permission) error {
	return mapError(GetDB(ctx, r.db).Create(perm).Error)
}

func (r *permissionRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	return mapError(GetDB(ctx, r.db).Model(&model.Permission{}).Where("id = ?", id).Updates(fields).Error)
}

func (r *permissionRepository) Delete(ctx context.Context, id uint) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Permission{}).Error
}

func (r *permissionRepository) FindByID(ctx context.Context, id uint) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).First(&perm, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &perm, nil
}

// FindByIDForUpdate locks the permission row for the rest of the transaction
func (r *permissionRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Permission, error) {
	var perm model.Permission
	if err := forUpdate(ctx, GetDB(ctx, r.db)).First(&perm, "id = ?", id).Error; err != nil {
		return nil, mapError(err)
	}
	return &perm, nil
}

func (r *permissionRepository) FindByName(ctx context.Context, name string) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&perm).Error; err != nil {
		return nil, mapError(err)
	}
	return &perm, nil
}

func (r *permissionRepository) FindByNameExcluding(ctx context.Context, name string, excludeID uint) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).Where("name = ? AND id <> ?", name, excludeID).First(&perm).Error; err != nil {
		return nil, mapError(err)
	}
	return &perm, nil
}

func (r *permissionRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Permission, error) {
	var perms []model.Permission
	if len(ids) == 0 {
		return perms, nil
	}
	err := GetDB(ctx, r.db).Where("id IN ?", ids).Order("name asc").Find(&perms).Error
	return perms, err
}

// FindOrCreate loads the permission by name, creating it when absent
func (r *permissionRepository) FindOrCreate(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).
		Where("name = ?", perm.Name).
		Attrs(model.Permission{Description: perm.Description, Resource: perm.Resource, Action: perm.Action}).
		FirstOrCreate(perm).Error
}

func (r *permissionRepository) List(ctx context.Context, f PermissionFilter) ([]PermissionSummary, int64, error) {
	var rows []PermissionSummary
	var total int64

	q := GetDB(ctx, r.db).Model(&model.Permission{})
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("permissions.name LIKE ? OR permissions.description LIKE ?", like, like)
	}
	if f.Resource != "" {
		q = q.Where("permissions.resource = ?", f.Resource)
	}
	if f.Action != "" {
		q = q.Where("permissions.action = ?", f.Action)
	}
	q = q.Session(&gorm.Session{})

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sort := f.Sort
	if sort == "" {
		sort = "name"
	}
	err := q.Select(permissionSummaryColumns).
		Order(clause.OrderByColumn{Column: clause.Column{Name: sort}, Desc: f.Desc}).
		Offset(f.Offset).Limit(f.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *permissionRepository) ListByResource(ctx context.Context, resource string) ([]model.Permission, error) {
	var perms []model.Permission
	err := GetDB(ctx, r.db).Where("resource = ?", resource).Order("action asc, name asc").Find(&perms).Error
	return perms, err
}

func (r *permissionRepository) Resources(ctx context.Context) ([]string, error) {
	var resources []string
	err := GetDB(ctx, r.db).Model(&model.Permission{}).
		Distinct("resource").
		Order("resource asc").
		Pluck("resource", &resources).Error
	return resources, err
}

func (r *permissionRepository) CountRoles(ctx context.Context, permissionID uint) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.RolePermission{}).Where("permission_id = ?", permissionID).Count(&n).Error
	return n, err
}

// UserIDs returns the distinct users holding the permission through any role
func (r *permissionRepository) UserIDs(ctx context.Context, permissionID uint) ([]uint, error) {
	var ids []uint
	err := GetDB(ctx, r.db).Model(&model.UserRole{}).
		Distinct("role_user.user_id").
		Joins("JOIN permission_role pr ON pr.role_id = role_user.role_id").
		Where("pr.permission_id = ?", permissionID).
		Order("role_user.user_id").
		Pluck("role_user.user_id", &ids).Error
	return ids, err
}

func (r *permissionRepository) Stats(ctx context.Context) (*PermissionStats, error) {
	db := GetDB(ctx, r.db)
	var stats PermissionStats

	if err := db.Model(&model.Permission{}).Count(&stats.TotalPermissions).Error; err != nil {
		return nil, err
	}
	err := db.Model(&model.Permission{}).
		Where("EXISTS (SELECT 1 FROM permission_role pr WHERE pr.permission_id = permissions.id)").
		Count(&stats.AssignedToRoles).Error
	if err != nil {
		return nil, err
	}
	stats.UnusedPermissions = stats.TotalPermissions - stats.AssignedToRoles

	err = db.Model(&model.Permission{}).
		Select("resource AS name, COUNT(*) AS count").
		Group("resource").Order("resource asc").
		Scan(&stats.ByResource).Error
	if err != nil {
		return nil, err
	}
	err = db.Model(&model.Permission{}).
		Select("action AS name, COUNT(*) AS count").
		Group("action").Order("action asc").
		Scan(&stats.ByAction).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
