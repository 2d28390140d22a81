package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ispmanager/internal/model"
	"ispmanager/internal/repository"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,username"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	FullName string `json:"full_name" binding:"required,max=100"`
	Phone    string `json:"phone" binding:"omitempty,max=20"`
	IsActive *bool  `json:"is_active"`
	RoleIDs  []uint `json:"role_ids" binding:"omitempty,dive,gte=1"`
}

// UpdateUserRequest changes only the fields that are present. Passwords
// change through the change-password flow only.
type UpdateUserRequest struct {
	Username *string `json:"username" binding:"omitempty,min=3,max=50,username"`
	Email    *string `json:"email" binding:"omitempty,email,max=255"`
	FullName *string `json:"full_name" binding:"omitempty,min=1,max=100"`
	Phone    *string `json:"phone" binding:"omitempty,max=20"`
	IsActive *bool   `json:"is_active"`
}

type AssignRoleRequest struct {
	RoleID uint `json:"role_id" binding:"required,gte=1"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID        uint     `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FullName  string   `json:"full_name"`
	Phone     string   `json:"phone"`
	IsActive  bool     `json:"is_active"`
	Roles     []string `json:"roles"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

type UserPermissionsResponse struct {
	UserID      uint     `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// UserService manages accounts and their role assignments
type UserService interface {
	Create(ctx context.Context, req CreateUserRequest, actorID uint) (*UserResponse, error)
	Get(ctx context.Context, id uint) (*UserResponse, error)
	List(ctx context.Context, f repository.UserFilter) ([]UserResponse, int64, error)
	Update(ctx context.Context, id uint, req UpdateUserRequest, actorID uint) (*UserResponse, error)
	Delete(ctx context.Context, id uint, actorID uint) error
	AssignRole(ctx context.Context, userID, roleID uint, actorID uint) error
	RemoveRole(ctx context.Context, userID, roleID uint, actorID uint) error
	Roles(ctx context.Context, userID uint) ([]RoleResponse, error)
	Permissions(ctx context.Context, userID uint) (*UserPermissionsResponse, error)
}

type userService struct {
	users       repository.UserRepository
	roles       repository.RoleRepository
	tx          repository.TransactionManager
	credentials CredentialService
	principals  PrincipalService
	audit       AuditService
	log         *zap.Logger
}

// NewUserService returns a new instance of UserService
func NewUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	tx repository.TransactionManager,
	credentials CredentialService,
	principals PrincipalService,
	audit AuditService,
	log *zap.Logger,
) UserService {
	return &userService{
		users:       users,
		roles:       roles,
		tx:          tx,
		credentials: credentials,
		principals:  principals,
		audit:       audit,
		log:         log,
	}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	roles := lo.Map(user.Roles, func(r model.Role, _ int) string { return r.Name })
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FullName:  user.FullName,
		Phone:     user.Phone,
		IsActive:  user.IsActive,
		Roles:     roles,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) Create(ctx context.Context, req CreateUserRequest, actorID uint) (*UserResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate(req); err != nil {
		return nil, err
	}

	hashed, err := s.credentials.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username: req.Username,
		Email:    req.Email,
		Password: hashed,
		FullName: req.FullName,
		Phone:    req.Phone,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	roleIDs := lo.Uniq(req.RoleIDs)

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkUnique(txCtx, user.Username, user.Email, 0); err != nil {
			return err
		}
		if err := s.users.Create(txCtx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return duplicate("user", user.Username)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		for _, roleID := range roleIDs {
			if _, err := s.roles.FindByID(txCtx, roleID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return notFound("role", roleID)
				}
				return err
			}
			if err := s.users.AssignRole(txCtx, user.ID, roleID); err != nil {
				return fmt.Errorf("failed to assign role: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// drop any snapshot left under a reused id
	s.principals.Invalidate(ctx, user.ID)

	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionCreateUser,
		EntityType: model.EntityUser, EntityID: user.ID, EntityName: user.Username,
		Details: map[string]interface{}{"email": user.Email, "role_ids": roleIDs},
	})

	return s.Get(ctx, user.ID)
}

func (s *userService) Get(ctx context.Context, id uint) (*UserResponse, error) {
	user, err := s.users.GetByIDWithRoles(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("user", id)
		}
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) List(ctx context.Context, f repository.UserFilter) ([]UserResponse, int64, error) {
	users, total, err := s.users.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) Update(ctx context.Context, id uint, req UpdateUserRequest, actorID uint) (*UserResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var name string
	var deactivated bool
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.users.GetByID(txCtx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("user", id)
			}
			return err
		}
		name = user.Username

		fields := map[string]interface{}{}
		username, email := "", ""
		if req.Username != nil && strings.TrimSpace(*req.Username) != user.Username {
			username = strings.TrimSpace(*req.Username)
			fields["username"] = username
		}
		if req.Email != nil && strings.ToLower(strings.TrimSpace(*req.Email)) != user.Email {
			email = strings.ToLower(strings.TrimSpace(*req.Email))
			fields["email"] = email
		}
		if err := s.checkUnique(txCtx, username, email, id); err != nil {
			return err
		}
		if req.FullName != nil {
			fields["full_name"] = *req.FullName
		}
		if req.Phone != nil {
			fields["phone"] = *req.Phone
		}
		if req.IsActive != nil && *req.IsActive != user.IsActive {
			fields["is_active"] = *req.IsActive
			deactivated = !*req.IsActive
		}
		if len(fields) == 0 {
			return nil
		}

		if err := s.users.Update(txCtx, id, fields); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return duplicate("user", name)
			}
			return fmt.Errorf("failed to update user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// principal snapshots carry the account fields and the active flag
	s.principals.Invalidate(ctx, id)
	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionUpdateUser,
		EntityType: model.EntityUser, EntityID: id, EntityName: name,
		Details: map[string]interface{}{"deactivated": deactivated},
	})

	return s.Get(ctx, id)
}

func (s *userService) Delete(ctx context.Context, id uint, actorID uint) error {
	if id == actorID {
		return ErrSelfDelete
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("user", id)
		}
		return err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.users.Delete(txCtx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.principals.Invalidate(ctx, id)
	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionDeleteUser,
		EntityType: model.EntityUser, EntityID: id, EntityName: user.Username,
	})
	return nil
}

// AssignRole is idempotent: assigning a held role succeeds without change.
func (s *userService) AssignRole(ctx context.Context, userID, roleID uint, actorID uint) error {
	role, err := s.changeRole(ctx, userID, roleID, s.users.AssignRole)
	if err != nil {
		return err
	}
	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionAssignRole,
		EntityType: model.EntityUser, EntityID: userID, EntityName: role.Name,
		Details: map[string]interface{}{"role_id": roleID},
	})
	return nil
}

// RemoveRole is idempotent: removing a role the user lacks succeeds.
func (s *userService) RemoveRole(ctx context.Context, userID, roleID uint, actorID uint) error {
	role, err := s.changeRole(ctx, userID, roleID, s.users.RemoveRole)
	if err != nil {
		return err
	}
	s.audit.Record(ctx, AuditEntry{
		ActorID: actorID, Action: model.ActionRemoveRole,
		EntityType: model.EntityUser, EntityID: userID, EntityName: role.Name,
		Details: map[string]interface{}{"role_id": roleID},
	})
	return nil
}

func (s *userService) changeRole(ctx context.Context, userID, roleID uint, fn func(ctx context.Context, userID, roleID uint) error) (*model.Role, error) {
	if err := validate(AssignRoleRequest{RoleID: roleID}); err != nil {
		return nil, err
	}

	var role *model.Role
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.users.GetByID(txCtx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("user", userID)
			}
			return err
		}
		var err error
		role, err = s.roles.FindByID(txCtx, roleID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("role", roleID)
			}
			return err
		}
		return fn(txCtx, userID, roleID)
	})
	if err != nil {
		return nil, err
	}

	s.principals.Invalidate(ctx, userID)
	return role, nil
}

func (s *userService) Roles(ctx context.Context, userID uint) ([]RoleResponse, error) {
	user, err := s.users.GetByIDWithRoles(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("user", userID)
		}
		return nil, err
	}

	res := make([]RoleResponse, 0, len(user.Roles))
	for _, r := range user.Roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *userService) Permissions(ctx context.Context, userID uint) (*UserPermissionsResponse, error) {
	p, err := s.principals.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserPermissionsResponse{UserID: p.UserID, Roles: p.Roles, Permissions: p.Permissions}, nil
}

// checkUnique rejects a username or email already used by another account.
// Empty values are skipped.
func (s *userService) checkUnique(ctx context.Context, username, email string, excludeID uint) error {
	if username != "" {
		if u, err := s.users.GetByUsername(ctx, username); err == nil && u.ID != excludeID {
			return duplicate("user", username)
		} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	if email != "" {
		if u, err := s.users.GetByEmail(ctx, email); err == nil && u.ID != excludeID {
			return duplicate("user", email)
		} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	return nil
}
