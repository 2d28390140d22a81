package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ispmanager/internal/model"
	"ispmanager/internal/repository"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=50,rolename"`
	Description string `json:"description" binding:"max=255"`
	Permissions []uint `json:"permissions" binding:"omitempty,dive,gte=1"`
}

// UpdateRoleRequest changes only the fields that are present. A present
// Permissions list, even an empty one, replaces the role's set wholesale.
type UpdateRoleRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=2,max=50,rolename"`
	Description *string `json:"description" binding:"omitempty,max=255"`
	Permissions *[]uint `json:"permissions" binding:"omitempty,dive,gte=1"`
}

type RolePermissionsRequest struct {
	PermissionIDs []uint `json:"permission_ids" binding:"required,min=1,dive,gte=1"`
}

type RoleResponse struct {
	ID              uint                 `json:"id"`
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	IsSystem        bool                 `json:"is_system"`
	Permissions     []PermissionResponse `json:"permissions,omitempty"`
	UserCount       *int64               `json:"user_count,omitempty"`
	PermissionCount *int64               `json:"permission_count,omitempty"`
	CreatedAt       string               `json:"created_at"`
	UpdatedAt       string               `json:"updated_at"`
}

type RoleStatsResponse struct {
	TotalRoles     int64          `json:"total_roles"`
	SystemRoles    int            `json:"system_roles"`
	CustomRoles    int64          `json:"custom_roles"`
	RolesWithUsers int64          `json:"roles_with_users"`
	UnusedRoles    int64          `json:"unused_roles"`
	MostAssigned   []RoleResponse `json:"most_assigned"`
}

// --- Interface ---

type RoleService interface {
	Create(ctx context.Context, req CreateRoleRequest, actorID uint) (*RoleResponse, error)
	Update(ctx context.Context, id uint, req UpdateRoleRequest, actorID uint) (*RoleResponse, error)
	Delete(ctx context.Context, id uint, actorID uint) error
	AssignPermissions(ctx context.Context, id uint, permissionIDs []uint, actorID uint) (*RoleResponse, error)
	RemovePermissions(ctx context.Context, id uint, permissionIDs []uint, actorID uint) (*RoleResponse, error)
	Get(ctx context.Context, id uint) (*RoleResponse, error)
	List(ctx context.Context, f repository.RoleFilter) ([]RoleResponse, int64, error)
	Permissions(ctx context.Context, id uint) ([]PermissionResponse, error)
	Stats(ctx context.Context) (*RoleStatsResponse, error)
}

type roleService struct {
	roles      repository.RoleRepository
	perms      repository.PermissionRepository
	tx         repository.TransactionManager
	principals PrincipalService
	audit      AuditService
	log        *zap.Logger
}

func NewRoleService(
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	tx repository.TransactionManager,
	principals PrincipalService,
	audit AuditService,
	log *zap.Logger,
) RoleService {
	return &roleService{roles: roles, perms: perms, tx: tx, principals: principals, audit: audit, log: log}
}

// --- Implementation ---

func (s *roleService) Create(ctx context.Context, req CreateRoleRequest, actorID uint) (*RoleResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate(req); err != nil {
		return nil, err
	}

	role := model.Role{Name: req.Name, Description: req.Description}
	permIDs := lo.Uniq(req.Permissions)

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkNameFree(txCtx, role.Name, 0); err != nil {
			return err
		}
		if err := s.checkPermissionsExist(txCtx, permIDs); err != nil {
			return err
		}

		if err := s.roles.Create(txCtx, &role); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return duplicate("role", role.Name)
			}
			return fmt.Errorf("failed to create role: %w", err)
		}
		if err := s.roles.AddPermissions(txCtx, role.ID, permIDs); err != nil {
			return fmt.Errorf("failed to assign permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionCreateRole,
		EntityType: model.EntityRole, EntityID: role.ID, EntityName: role.Name,
		Details: req,
	})

	return s.Get(ctx, role.ID)
}

func (s *roleService) Update(ctx context.Context, id uint, req UpdateRoleRequest, actorID uint) (*RoleResponse, error) {
	req.Name = trimmed(req.Name)
	if err := validate(req); err != nil {
		return nil, err
	}

	var affected []uint
	var oldName string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.FindByIDForUpdate(txCtx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("role", id)
			}
			return err
		}
		oldName = role.Name

		fields := map[string]interface{}{}
		if req.Name != nil && *req.Name != role.Name {
			name := *req.Name
			if role.IsSystem() {
				return fmt.Errorf("cannot rename system role '%s': %w", role.Name, ErrSystemRole)
			}
			if err := s.checkNameFree(txCtx, name, id); err != nil {
				return err
			}
			fields["name"] = name
		}
		if req.Description != nil {
			fields["description"] = *req.Description
		}
		if len(fields) > 0 {
			if err := s.roles.Update(txCtx, id, fields); err != nil {
				if errors.Is(err, repository.ErrDuplicateKey) {
					return duplicate("role", fmt.Sprint(fields["name"]))
				}
				return fmt.Errorf("failed to update role: %w", err)
			}
		}

		_, renamed := fields["name"]
		if req.Permissions != nil {
			ids := lo.Uniq(*req.Permissions)
			if err := s.checkPermissionsExist(txCtx, ids); err != nil {
				return err
			}
			if err := s.roles.ClearPermissions(txCtx, id); err != nil {
				return fmt.Errorf("failed to clear permissions: %w", err)
			}
			if err := s.roles.AddPermissions(txCtx, id, ids); err != nil {
				return fmt.Errorf("failed to assign permissions: %w", err)
			}
		}

		if renamed || req.Permissions != nil {
			if affected, err = s.roles.UserIDs(txCtx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.principals.Invalidate(ctx, affected...)
	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionUpdateRole,
		EntityType: model.EntityRole, EntityID: id, EntityName: oldName,
		Details: req,
	})

	return s.Get(ctx, id)
}

// Delete refuses system roles outright, then refuses while any user holds
// the role. The count and the delete share one transaction.
func (s *roleService) Delete(ctx context.Context, id uint, actorID uint) error {
	var name string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.FindByIDForUpdate(txCtx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("role", id)
			}
			return err
		}
		name = role.Name

		if role.IsSystem() {
			return fmt.Errorf("cannot delete system role '%s': %w", role.Name, ErrSystemRole)
		}

		n, err := s.roles.CountUsers(txCtx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return inUse("role", role.Name, n)
		}

		if err := s.roles.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionDeleteRole,
		EntityType: model.EntityRole, EntityID: id, EntityName: name,
	})
	return nil
}

// AssignPermissions adds grants; pairs already present are left alone.
func (s *roleService) AssignPermissions(ctx context.Context, id uint, permissionIDs []uint, actorID uint) (*RoleResponse, error) {
	if err := validate(RolePermissionsRequest{PermissionIDs: permissionIDs}); err != nil {
		return nil, err
	}
	ids := lo.Uniq(permissionIDs)

	affected, name, err := s.changePermissions(ctx, id, func(txCtx context.Context) error {
		if err := s.checkPermissionsExist(txCtx, ids); err != nil {
			return err
		}
		return s.roles.AddPermissions(txCtx, id, ids)
	})
	if err != nil {
		return nil, err
	}

	s.principals.Invalidate(ctx, affected...)
	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionAssignPermissions,
		EntityType: model.EntityRole, EntityID: id, EntityName: name,
		Details: map[string]interface{}{"permission_ids": ids},
	})
	return s.Get(ctx, id)
}

// RemovePermissions drops grants; absent pairs are ignored.
func (s *roleService) RemovePermissions(ctx context.Context, id uint, permissionIDs []uint, actorID uint) (*RoleResponse, error) {
	if err := validate(RolePermissionsRequest{PermissionIDs: permissionIDs}); err != nil {
		return nil, err
	}
	ids := lo.Uniq(permissionIDs)

	affected, name, err := s.changePermissions(ctx, id, func(txCtx context.Context) error {
		return s.roles.RemovePermissions(txCtx, id, ids)
	})
	if err != nil {
		return nil, err
	}

	s.principals.Invalidate(ctx, affected...)
	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionRemovePermissions,
		EntityType: model.EntityRole, EntityID: id, EntityName: name,
		Details: map[string]interface{}{"permission_ids": ids},
	})
	return s.Get(ctx, id)
}

// changePermissions runs fn with the role row locked and returns the users
// whose effective permissions fn may have changed.
func (s *roleService) changePermissions(ctx context.Context, id uint, fn func(txCtx context.Context) error) ([]uint, string, error) {
	var affected []uint
	var name string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roles.FindByIDForUpdate(txCtx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("role", id)
			}
			return err
		}
		name = role.Name

		if err := fn(txCtx); err != nil {
			return err
		}
		affected, err = s.roles.UserIDs(txCtx, id)
		return err
	})
	return affected, name, err
}

func (s *roleService) Get(ctx context.Context, id uint) (*RoleResponse, error) {
	role, err := s.roles.FindByIDWithPermissions(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("role", id)
		}
		return nil, err
	}
	users, err := s.roles.CountUsers(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := toRoleResponse(*role)
	perms := int64(len(role.Permissions))
	resp.UserCount = &users
	resp.PermissionCount = &perms
	if resp.Permissions == nil {
		resp.Permissions = []PermissionResponse{}
	}
	return &resp, nil
}

func (s *roleService) List(ctx context.Context, f repository.RoleFilter) ([]RoleResponse, int64, error) {
	rows, total, err := s.roles.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(rows))
	for _, r := range rows {
		res = append(res, toRoleSummaryResponse(r))
	}
	return res, total, nil
}

func (s *roleService) Permissions(ctx context.Context, id uint) ([]PermissionResponse, error) {
	if _, err := s.roles.FindByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("role", id)
		}
		return nil, err
	}
	perms, err := s.roles.Permissions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch role permissions: %w", err)
	}
	return toPermissionResponses(perms), nil
}

func (s *roleService) Stats(ctx context.Context) (*RoleStatsResponse, error) {
	st, err := s.roles.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute role stats: %w", err)
	}

	system := len(model.SystemRoles)
	res := &RoleStatsResponse{
		TotalRoles:     st.TotalRoles,
		SystemRoles:    system,
		CustomRoles:    max(st.TotalRoles-int64(system), 0),
		RolesWithUsers: st.RolesWithUsers,
		UnusedRoles:    st.UnusedRoles,
		MostAssigned:   make([]RoleResponse, 0, len(st.MostAssigned)),
	}
	for _, r := range st.MostAssigned {
		res.MostAssigned = append(res.MostAssigned, toRoleSummaryResponse(r))
	}
	return res, nil
}

// --- Helpers ---

// checkNameFree treats system role names as always taken.
func (s *roleService) checkNameFree(ctx context.Context, name string, excludeID uint) error {
	if model.IsSystemRole(strings.ToLower(name)) {
		return duplicate("role", name)
	}
	_, err := s.roles.FindByNameExcluding(ctx, name, excludeID)
	switch {
	case err == nil:
		return duplicate("role", name)
	case errors.Is(err, repository.ErrNotFound):
		return nil
	}
	return err
}

func (s *roleService) checkPermissionsExist(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.perms.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(found) == len(ids) {
		return nil
	}
	have := lo.Map(found, func(p model.Permission, _ int) uint { return p.ID })
	missing, _ := lo.Difference(ids, have)
	return fmt.Errorf("permissions %v: %w", missing, ErrNotFound)
}

func toRoleResponse(r model.Role) RoleResponse {
	var perms []PermissionResponse
	if len(r.Permissions) > 0 {
		perms = toPermissionResponses(r.Permissions)
	}

	return RoleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem(),
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:   r.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toRoleSummaryResponse(r repository.RoleSummary) RoleResponse {
	users, perms := r.UserCount, r.PermissionCount
	return RoleResponse{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		IsSystem:        model.IsSystemRole(r.Name),
		UserCount:       &users,
		PermissionCount: &perms,
		CreatedAt:       r.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:       r.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}
