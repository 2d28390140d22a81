package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ispmanager/internal/model"
	"ispmanager/internal/repository"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// SeedOptions configures the bootstrap administrator
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
}

type SeedService interface {
	SeedDefaultRolesAndPermissions(ctx context.Context, opts SeedOptions) error
}

type seedService struct {
	users       repository.UserRepository
	roles       repository.RoleRepository
	perms       repository.PermissionRepository
	tx          repository.TransactionManager
	credentials CredentialService
	principals  PrincipalService
	log         *zap.Logger
}

func NewSeedService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	tx repository.TransactionManager,
	credentials CredentialService,
	principals PrincipalService,
	log *zap.Logger,
) SeedService {
	return &seedService{
		users:       users,
		roles:       roles,
		perms:       perms,
		tx:          tx,
		credentials: credentials,
		principals:  principals,
		log:         log,
	}
}

var seedResources = map[string][]string{
	"users":             {model.ActionView, model.ActionCreate, model.ActionUpdate, model.ActionDelete},
	"roles":             {model.ActionView, model.ActionCreate, model.ActionUpdate, model.ActionDelete},
	"permissions":       {model.ActionView, model.ActionCreate, model.ActionUpdate, model.ActionDelete},
	"customers":         {model.ActionView, model.ActionCreate, model.ActionUpdate, model.ActionDelete},
	"subscriptions":     {model.ActionView, model.ActionCreate, model.ActionUpdate, model.ActionDelete},
	"service_packages":  {model.ActionView, model.ActionCreate, model.ActionUpdate, model.ActionDelete},
	"tickets":           {model.ActionView, model.ActionCreate, model.ActionUpdate, model.ActionDelete, model.ActionManage},
	"ticket_categories": {model.ActionView, model.ActionCreate, model.ActionUpdate, model.ActionDelete},
}

var seedRoles = []struct {
	Name        string
	Description string
	Permissions []string // nil means every seeded permission
}{
	{Name: model.RoleAdmin, Description: "Administrator with full access"},
	{
		Name:        model.RoleStaff,
		Description: "Support and sales staff",
		Permissions: []string{
			"customers.view", "customers.create", "customers.update",
			"subscriptions.view", "subscriptions.create", "subscriptions.update",
			"service_packages.view",
			"tickets.view", "tickets.create", "tickets.update", "tickets.manage",
			"ticket_categories.view",
		},
	},
	{
		Name:        model.RoleCustomer,
		Description: "Subscriber with self-service access",
		Permissions: []string{
			"service_packages.view", "subscriptions.view",
			"tickets.view", "tickets.create",
		},
	},
}

// SeedDefaultRolesAndPermissions creates the default permissions, the system
// roles and the bootstrap admin when they are not already present. Existing
// grants are only added to, never removed.
func (s *seedService) SeedDefaultRolesAndPermissions(ctx context.Context, opts SeedOptions) error {
	var touched []uint
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		byName := map[string]uint{}
		resources := lo.Keys(seedResources)
		sort.Strings(resources)
		for _, resource := range resources {
			for _, action := range seedResources[resource] {
				p := &model.Permission{
					Name:        resource + "." + action,
					Description: action + " " + resource,
					Resource:    resource,
					Action:      action,
				}
				if err := s.perms.FindOrCreate(txCtx, p); err != nil {
					return fmt.Errorf("failed to seed permission '%s': %w", p.Name, err)
				}
				byName[p.Name] = p.ID
			}
		}

		roleIDs := map[string]uint{}
		for _, def := range seedRoles {
			role, err := s.roles.FindByName(txCtx, def.Name)
			if errors.Is(err, repository.ErrNotFound) {
				role = &model.Role{Name: def.Name, Description: def.Description}
				err = s.roles.Create(txCtx, role)
			}
			if err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", def.Name, err)
			}
			roleIDs[def.Name] = role.ID

			ids := lo.Values(byName)
			if def.Permissions != nil {
				ids = lo.FilterMap(def.Permissions, func(name string, _ int) (uint, bool) {
					id, ok := byName[name]
					return id, ok
				})
			}
			if err := s.roles.AddPermissions(txCtx, role.ID, ids); err != nil {
				return fmt.Errorf("failed to assign permissions to role '%s': %w", def.Name, err)
			}

			users, err := s.roles.UserIDs(txCtx, role.ID)
			if err != nil {
				return err
			}
			touched = append(touched, users...)
		}

		if opts.AdminEmail == "" || opts.AdminPassword == "" {
			return nil
		}
		return s.seedAdmin(txCtx, opts, roleIDs[model.RoleAdmin])
	})
	if err != nil {
		return err
	}

	s.principals.Invalidate(ctx, lo.Uniq(touched)...)
	s.log.Info("seeded default roles and permissions", zap.Int("roles", len(seedRoles)))
	return nil
}

func (s *seedService) seedAdmin(ctx context.Context, opts SeedOptions, adminRoleID uint) error {
	user, err := s.users.GetByEmail(ctx, opts.AdminEmail)
	if errors.Is(err, repository.ErrNotFound) {
		hashed, hashErr := s.credentials.Hash(opts.AdminPassword)
		if hashErr != nil {
			return hashErr
		}
		user = &model.User{
			Username: "admin",
			Email:    opts.AdminEmail,
			Password: hashed,
			FullName: "System Administrator",
			IsActive: true,
		}
		err = s.users.Create(ctx, user)
		if err == nil {
			s.log.Info("created bootstrap admin", zap.String("email", opts.AdminEmail))
		}
	}
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	return s.users.AssignRole(ctx, user.ID, adminRoleID)
}
