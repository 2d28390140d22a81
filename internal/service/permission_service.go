package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ispmanager/internal/model"
	"ispmanager/internal/repository"

	"go.uber.org/zap"
)

// --- DTOs ---

type CreatePermissionRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=100,permname"`
	Description string `json:"description" binding:"max=255"`
	Resource    string `json:"resource" binding:"required,min=2,max=50"`
	Action      string `json:"action" binding:"required,permaction"`
}

// UpdatePermissionRequest changes only the fields that are present
type UpdatePermissionRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=2,max=100,permname"`
	Description *string `json:"description" binding:"omitempty,max=255"`
	Resource    *string `json:"resource" binding:"omitempty,min=2,max=50"`
	Action      *string `json:"action" binding:"omitempty,permaction"`
}

type PermissionResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	RoleCount   *int64 `json:"role_count,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type CountResponse struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type PermissionStatsResponse struct {
	TotalPermissions  int64           `json:"total_permissions"`
	AssignedToRoles   int64           `json:"assigned_to_roles"`
	UnusedPermissions int64           `json:"unused_permissions"`
	ByResource        []CountResponse `json:"by_resource"`
	ByAction          []CountResponse `json:"by_action"`
}

// --- Interface ---

type PermissionService interface {
	Create(ctx context.Context, req CreatePermissionRequest, actorID uint) (*PermissionResponse, error)
	Update(ctx context.Context, id uint, req UpdatePermissionRequest, actorID uint) (*PermissionResponse, error)
	Delete(ctx context.Context, id uint, actorID uint) error
	Get(ctx context.Context, id uint) (*PermissionResponse, error)
	List(ctx context.Context, f repository.PermissionFilter) ([]PermissionResponse, int64, error)
	ListByResource(ctx context.Context, resource string) ([]PermissionResponse, error)
	Resources(ctx context.Context) ([]string, error)
	Actions() []string
	Stats(ctx context.Context) (*PermissionStatsResponse, error)
}

type permissionService struct {
	perms      repository.PermissionRepository
	tx         repository.TransactionManager
	principals PrincipalService
	audit      AuditService
	log        *zap.Logger
}

func NewPermissionService(
	perms repository.PermissionRepository,
	tx repository.TransactionManager,
	principals PrincipalService,
	audit AuditService,
	log *zap.Logger,
) PermissionService {
	return &permissionService{perms: perms, tx: tx, principals: principals, audit: audit, log: log}
}

// --- Implementation ---

func (s *permissionService) Create(ctx context.Context, req CreatePermissionRequest, actorID uint) (*PermissionResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Resource = strings.TrimSpace(req.Resource)
	if err := validate(req); err != nil {
		return nil, err
	}

	perm := model.Permission{
		Name:        req.Name,
		Description: req.Description,
		Resource:    req.Resource,
		Action:      req.Action,
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.perms.FindByName(txCtx, perm.Name); err == nil {
			return duplicate("permission", perm.Name)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if err := s.perms.Create(txCtx, &perm); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return duplicate("permission", perm.Name)
			}
			return fmt.Errorf("failed to create permission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionCreatePermission,
		EntityType: model.EntityPermission, EntityID: perm.ID, EntityName: perm.Name,
		Details: req,
	})

	resp := toPermissionResponse(perm)
	return &resp, nil
}

func (s *permissionService) Update(ctx context.Context, id uint, req UpdatePermissionRequest, actorID uint) (*PermissionResponse, error) {
	req.Name = trimmed(req.Name)
	req.Resource = trimmed(req.Resource)
	if err := validate(req); err != nil {
		return nil, err
	}

	var affected []uint
	var oldName string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		perm, err := s.perms.FindByIDForUpdate(txCtx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("permission", id)
			}
			return err
		}
		oldName = perm.Name

		fields := map[string]interface{}{}
		if req.Name != nil && *req.Name != perm.Name {
			name := *req.Name
			if _, err := s.perms.FindByNameExcluding(txCtx, name, id); err == nil {
				return duplicate("permission", name)
			} else if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			fields["name"] = name
		}
		if req.Description != nil {
			fields["description"] = *req.Description
		}
		if req.Resource != nil {
			fields["resource"] = *req.Resource
		}
		if req.Action != nil {
			fields["action"] = *req.Action
		}
		if len(fields) == 0 {
			return nil
		}

		if err := s.perms.Update(txCtx, id, fields); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return duplicate("permission", fmt.Sprint(fields["name"]))
			}
			return fmt.Errorf("failed to update permission: %w", err)
		}

		if _, renamed := fields["name"]; renamed {
			if affected, err = s.perms.UserIDs(txCtx, id); err != nil {
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
		ActorID: actorID, Action: model.ActionUpdatePermission,
		EntityType: model.EntityPermission, EntityID: id, EntityName: oldName,
		Details: req,
	})

	return s.Get(ctx, id)
}

// Delete refuses while any role still grants the permission. The count and
// the delete share one transaction with the permission row locked.
func (s *permissionService) Delete(ctx context.Context, id uint, actorID uint) error {
	var name string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		perm, err := s.perms.FindByIDForUpdate(txCtx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("permission", id)
			}
			return err
		}
		name = perm.Name

		n, err := s.perms.CountRoles(txCtx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return inUse("permission", perm.Name, n)
		}

		if err := s.perms.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete permission: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionDeletePermission,
		EntityType: model.EntityPermission, EntityID: id, EntityName: name,
	})
	return nil
}

func (s *permissionService) Get(ctx context.Context, id uint) (*PermissionResponse, error) {
	perm, err := s.perms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("permission", id)
		}
		return nil, err
	}
	n, err := s.perms.CountRoles(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := toPermissionResponse(*perm)
	resp.RoleCount = &n
	return &resp, nil
}

func (s *permissionService) List(ctx context.Context, f repository.PermissionFilter) ([]PermissionResponse, int64, error) {
	if f.Action != "" && !isAction(f.Action) {
		return nil, 0, invalidField("action", "must be one of "+strings.Join(model.PermissionActions, ", "))
	}

	rows, total, err := s.perms.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(rows))
	for _, r := range rows {
		count := r.RoleCount
		res = append(res, PermissionResponse{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Resource:    r.Resource,
			Action:      r.Action,
			RoleCount:   &count,
			CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
			UpdatedAt:   r.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return res, total, nil
}

func (s *permissionService) ListByResource(ctx context.Context, resource string) ([]PermissionResponse, error) {
	perms, err := s.perms.ListByResource(ctx, strings.TrimSpace(resource))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	return toPermissionResponses(perms), nil
}

func (s *permissionService) Resources(ctx context.Context) ([]string, error) {
	resources, err := s.perms.Resources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch resources: %w", err)
	}
	if resources == nil {
		resources = []string{}
	}
	return resources, nil
}

func (s *permissionService) Actions() []string {
	return append([]string(nil), model.PermissionActions...)
}

func (s *permissionService) Stats(ctx context.Context) (*PermissionStatsResponse, error) {
	st, err := s.perms.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute permission stats: %w", err)
	}
	return &PermissionStatsResponse{
		TotalPermissions:  st.TotalPermissions,
		AssignedToRoles:   st.AssignedToRoles,
		UnusedPermissions: st.UnusedPermissions,
		ByResource:        toCountResponses(st.ByResource),
		ByAction:          toCountResponses(st.ByAction),
	}, nil
}

// --- Helpers ---

func isAction(action string) bool {
	for _, a := range model.PermissionActions {
		if a == action {
			return true
		}
	}
	return false
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Resource:    p.Resource,
		Action:      p.Action,
		CreatedAt:   p.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:   p.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toPermissionResponses(perms []model.Permission) []PermissionResponse {
	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res
}

func toCountResponses(rows []repository.GroupCount) []CountResponse {
	res := make([]CountResponse, 0, len(rows))
	for _, r := range rows {
		res = append(res, CountResponse{Name: r.Name, Count: r.Count})
	}
	return res
}
