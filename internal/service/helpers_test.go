package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"ispmanager/internal/cache"
	"ispmanager/internal/metrics"
	"ispmanager/internal/model"
	"ispmanager/internal/repository"
	"ispmanager/internal/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type notifierSpy struct {
	mu    sync.Mutex
	calls [][]uint
}

func (n *notifierSpy) AccessChanged(ids []uint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, append([]uint(nil), ids...))
}

func (n *notifierSpy) all() []uint {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []uint
	for _, c := range n.calls {
		out = append(out, c...)
	}
	return out
}

type harness struct {
	db          *gorm.DB
	userRepo    repository.UserRepository
	roleRepo    repository.RoleRepository
	permRepo    repository.PermissionRepository
	auditRepo   repository.AuditRepository
	tx          repository.TransactionManager
	cache       cache.PrincipalCache
	notifier    *notifierSpy
	metrics     *metrics.Metrics
	credentials CredentialService
	tokens      TokenService
	principals  PrincipalService
	audit       AuditService
	perms       PermissionService
	roles       RoleService
	users       UserService
	auth        AuthService
	seed        SeedService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	log := zap.NewNop()
	h := &harness{
		db:        db,
		userRepo:  repository.NewUserRepository(db),
		roleRepo:  repository.NewRoleRepository(db),
		permRepo:  repository.NewPermissionRepository(db),
		auditRepo: repository.NewAuditRepository(db),
		tx:        repository.NewTransactionManager(db),
		cache:     cache.NewMemory(100, time.Minute),
		notifier:  &notifierSpy{},
		metrics:   metrics.NewNop(),
	}

	h.credentials = NewCredentialService(h.userRepo, bcrypt.MinCost, log)
	h.tokens = NewTokenService([]byte("test-secret"), time.Hour, "ispmanager")
	h.principals = NewPrincipalService(repository.NewPrincipalRepository(db), h.metrics, log,
		WithPrincipalCache(h.cache), WithAccessNotifier(h.notifier))
	h.audit = NewAuditService(h.auditRepo, log)
	h.perms = NewPermissionService(h.permRepo, h.tx, h.principals, h.audit, log)
	h.roles = NewRoleService(h.roleRepo, h.permRepo, h.tx, h.principals, h.audit, log)
	h.users = NewUserService(h.userRepo, h.roleRepo, h.tx, h.credentials, h.principals, h.audit, log)
	h.auth = NewAuthService(h.credentials, h.tokens, h.principals, h.users, h.roleRepo, h.audit, h.metrics, log)
	h.seed = NewSeedService(h.userRepo, h.roleRepo, h.permRepo, h.tx, h.credentials, h.principals, log)
	return h
}

func (h *harness) permission(t *testing.T, name string) *PermissionResponse {
	t.Helper()
	resource, action := splitPermission(name)
	p, err := h.perms.Create(context.Background(), CreatePermissionRequest{Name: name, Resource: resource, Action: action}, 0)
	require.NoError(t, err)
	return p
}

func (h *harness) role(t *testing.T, name string, perms ...*PermissionResponse) *RoleResponse {
	t.Helper()
	ids := make([]uint, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	r, err := h.roles.Create(context.Background(), CreateRoleRequest{Name: name, Permissions: ids}, 0)
	require.NoError(t, err)
	return r
}

// systemRole inserts a built-in role directly, the way seeding does
func (h *harness) systemRole(t *testing.T, name string) *model.Role {
	t.Helper()
	r := &model.Role{Name: name}
	require.NoError(t, h.roleRepo.Create(context.Background(), r))
	return r
}

func (h *harness) user(t *testing.T, username, password string, roleIDs ...uint) *UserResponse {
	t.Helper()
	u, err := h.users.Create(context.Background(), CreateUserRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		FullName: "Test " + username,
		RoleIDs:  roleIDs,
	}, 0)
	require.NoError(t, err)
	return u
}

func splitPermission(name string) (string, string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return name, model.ActionView
}
