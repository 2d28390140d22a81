package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ispmanager/internal/model"
	"ispmanager/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// CredentialService verifies and stores password hashes
type CredentialService interface {
	Verify(ctx context.Context, email, password string) (*model.User, error)
	Hash(plain string) (string, error)
	Compare(hash, plain string) bool
	ChangePassword(ctx context.Context, userID uint, current, next string) error
}

type credentialService struct {
	users repository.UserRepository
	cost  int
	log   *zap.Logger
}

func NewCredentialService(users repository.UserRepository, cost int, log *zap.Logger) CredentialService {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &credentialService{users: users, cost: cost, log: log}
}

// Verify returns the user when email and password match an active account.
// Every failure is a *CredentialError reading "invalid credentials".
func (s *credentialService) Verify(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.refuse(email, CauseUnknownUser)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !user.IsActive {
		return nil, s.refuse(email, CauseInactive)
	}

	if !s.Compare(user.Password, password) {
		return nil, s.refuse(email, CausePasswordMismatch)
	}
	return user, nil
}

func (s *credentialService) refuse(email string, cause CredentialCause) error {
	s.log.Info("credential check refused", zap.String("email", email), zap.String("cause", string(cause)))
	return &CredentialError{Cause: cause}
}

func (s *credentialService) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (s *credentialService) Compare(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func (s *credentialService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("user", userID)
		}
		return err
	}

	if !s.Compare(user.Password, current) {
		return ErrWrongCurrentPassword
	}

	hashed, err := s.Hash(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hashed)
}
