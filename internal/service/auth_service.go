package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ispmanager/internal/authz"
	"ispmanager/internal/metrics"
	"ispmanager/internal/model"
	"ispmanager/internal/repository"

	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,username"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	FullName string `json:"full_name" binding:"required,max=100"`
	Phone    string `json:"phone" binding:"omitempty,max=20"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6,max=72"`
}

type LoginResponse struct {
	User        UserResponse `json:"user"`
	Roles       []string     `json:"roles"`
	Permissions []string     `json:"permissions"`
	Token       string       `json:"token"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// AuthService turns credentials into tokens and tokens into principals
type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error)
	Authenticate(ctx context.Context, token string) (*authz.Principal, error)
	ChangePassword(ctx context.Context, userID uint, req ChangePasswordRequest) error
}

type authService struct {
	credentials CredentialService
	tokens      TokenService
	principals  PrincipalService
	users       UserService
	roles       repository.RoleRepository
	audit       AuditService
	metrics     *metrics.Metrics
	log         *zap.Logger
}

func NewAuthService(
	credentials CredentialService,
	tokens TokenService,
	principals PrincipalService,
	users UserService,
	roles repository.RoleRepository,
	audit AuditService,
	m *metrics.Metrics,
	log *zap.Logger,
) AuthService {
	return &authService{
		credentials: credentials,
		tokens:      tokens,
		principals:  principals,
		users:       users,
		roles:       roles,
		audit:       audit,
		metrics:     m,
		log:         log,
	}
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.credentials.Verify(ctx, strings.ToLower(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.metrics.LoginsTotal.WithLabelValues("denied").Inc()
		} else {
			s.metrics.LoginsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	res, err := s.issue(ctx, user.ID, user.Email)
	if err != nil {
		s.metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	s.metrics.LoginsTotal.WithLabelValues("success").Inc()
	return res, nil
}

// Register creates an active account holding the customer role.
func (s *authService) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	create := CreateUserRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	}

	role, err := s.roles.FindByName(ctx, model.RoleCustomer)
	switch {
	case err == nil:
		create.RoleIDs = []uint{role.ID}
	case errors.Is(err, repository.ErrNotFound):
		s.log.Warn("default role missing, registering without roles", zap.String("role", model.RoleCustomer))
	default:
		return nil, err
	}

	user, err := s.users.Create(ctx, create, 0)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, user.ID, user.Email)
}

func (s *authService) issue(ctx context.Context, userID uint, email string) (*LoginResponse, error) {
	p, err := s.principals.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve principal: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(userID, email)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		User: UserResponse{
			ID:       p.UserID,
			Username: p.Username,
			Email:    p.Email,
			FullName: p.FullName,
			IsActive: p.IsActive,
			Roles:    p.Roles,
		},
		Roles:       p.Roles,
		Permissions: p.Permissions,
		Token:       token,
		ExpiresAt:   expiresAt,
	}, nil
}

// Authenticate verifies the token and resolves the principal it names.
// Deleted and deactivated accounts are rejected even with a valid token.
func (s *authService) Authenticate(ctx context.Context, token string) (*authz.Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		var te *TokenError
		if errors.As(err, &te) {
			s.metrics.TokenRejectsTotal.WithLabelValues(string(te.Kind)).Inc()
		}
		return nil, err
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	p, err := s.principals.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.TokenRejectsTotal.WithLabelValues("unknown_user").Inc()
			return nil, fmt.Errorf("user %d no longer exists: %w", userID, ErrUnauthenticated)
		}
		return nil, err
	}
	if !p.IsActive {
		s.metrics.TokenRejectsTotal.WithLabelValues("inactive").Inc()
		return nil, fmt.Errorf("user %d is deactivated: %w", userID, ErrUnauthenticated)
	}
	return p, nil
}

func (s *authService) ChangePassword(ctx context.Context, userID uint, req ChangePasswordRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	if err := s.credentials.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID: userID, Action: model.ActionChangePassword,
		EntityType: model.EntityUser, EntityID: userID,
	})
	return nil
}
