package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClaims is the payload of an access token
type TokenClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim
func (c *TokenClaims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, &TokenError{Kind: TokenMalformed, Err: fmt.Errorf("invalid subject %q", c.Subject)}
	}
	return uint(id), nil
}

// TokenService issues and verifies signed, stateless access tokens.
// Tokens stay valid until expiry; there is no revocation list.
type TokenService interface {
	Issue(userID uint, email string) (string, time.Time, error)
	Verify(token string) (*TokenClaims, error)
	TTL() time.Duration
}

type TokenOption func(*tokenService)

// WithClock replaces time.Now, for tests that need to cross the expiry deadline
func WithClock(now func() time.Time) TokenOption {
	return func(s *tokenService) { s.now = now }
}

type tokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenService(secret []byte, ttl time.Duration, issuer string, opts ...TokenOption) TokenService {
	s := &tokenService{secret: secret, ttl: ttl, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *tokenService) TTL() time.Duration { return s.ttl }

func (s *tokenService) Issue(userID uint, email string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := TokenClaims{
		Email:     email,
		SessionID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

func (s *tokenService) Verify(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, &TokenError{Kind: TokenMalformed, Err: errors.New("empty token")}
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &TokenError{Kind: TokenExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &TokenError{Kind: TokenBadSignature, Err: err}
	}
	return &TokenError{Kind: TokenMalformed, Err: err}
}
