package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ispmanager/internal/authz"
	"ispmanager/internal/cache"
	"ispmanager/internal/metrics"
	"ispmanager/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// AccessNotifier is told which users' effective access just changed
type AccessNotifier interface {
	AccessChanged(userIDs []uint)
}

// PrincipalService resolves a user id into roles and effective permissions.
type PrincipalService interface {
	Resolve(ctx context.Context, userID uint) (*authz.Principal, error)
	Invalidate(ctx context.Context, userIDs ...uint)
}

// RetryPolicy bounds read retries on transient store failures
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
}

type PrincipalOption func(*principalService)

func WithPrincipalCache(c cache.PrincipalCache) PrincipalOption {
	return func(s *principalService) { s.cache = c }
}

func WithRetryPolicy(p RetryPolicy) PrincipalOption {
	return func(s *principalService) { s.retry = p }
}

func WithAccessNotifier(n AccessNotifier) PrincipalOption {
	return func(s *principalService) { s.notifier = n }
}

type principalService struct {
	repo     repository.PrincipalRepository
	cache    cache.PrincipalCache
	retry    RetryPolicy
	notifier AccessNotifier
	metrics  *metrics.Metrics
	log      *zap.Logger

	// gens counts invalidations per user. A load that saw an older
	// generation must not write its snapshot back to the cache.
	mu   sync.Mutex
	gens map[uint]uint64
}

func NewPrincipalService(repo repository.PrincipalRepository, m *metrics.Metrics, log *zap.Logger, opts ...PrincipalOption) PrincipalService {
	s := &principalService{
		repo:    repo,
		cache:   cache.Noop{},
		retry:   DefaultRetryPolicy,
		metrics: m,
		log:     log,
		gens:    make(map[uint]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *principalService) Resolve(ctx context.Context, userID uint) (*authz.Principal, error) {
	if p, ok, err := s.cache.Get(ctx, userID); err != nil {
		s.log.Warn("principal cache read failed", zap.Uint("user_id", userID), zap.Error(err))
	} else if ok {
		s.metrics.CacheHitsTotal.Inc()
		return p, nil
	}
	s.metrics.CacheMissesTotal.Inc()

	gen := s.generation(userID)
	rec, err := s.load(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("user", userID)
		}
		s.metrics.ResolveErrorsTotal.Inc()
		return nil, err
	}

	p := &authz.Principal{
		UserID:      rec.User.ID,
		Username:    rec.User.Username,
		Email:       rec.User.Email,
		FullName:    rec.User.FullName,
		IsActive:    rec.User.IsActive,
		Roles:       rec.Roles,
		Permissions: rec.Permissions,
	}

	if s.generation(userID) != gen {
		// invalidated while loading: serve this snapshot but do not cache it
		return p, nil
	}
	if err := s.cache.Set(ctx, p); err != nil {
		s.log.Warn("principal cache write failed", zap.Uint("user_id", userID), zap.Error(err))
		return p, nil
	}
	// Invalidate bumps before it deletes, so one that bumps after this
	// re-check removes the entry on its own.
	if s.generation(userID) != gen {
		if err := s.cache.Delete(context.WithoutCancel(ctx), userID); err != nil {
			s.log.Error("principal cache invalidation failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return p, nil
}

func (s *principalService) generation(userID uint) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID]
}

// load retries transient failures only. The query is read-only.
func (s *principalService) load(ctx context.Context, userID uint) (*repository.PrincipalRecord, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retry.InitialInterval
	eb.MaxInterval = s.retry.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, s.retry.MaxRetries), ctx)

	op := func() (*repository.PrincipalRecord, error) {
		rec, err := s.repo.Load(ctx, userID)
		if err != nil && !repository.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return rec, err
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn("retrying principal load", zap.Uint("user_id", userID), zap.Duration("wait", wait), zap.Error(err))
	}
	return backoff.RetryNotifyWithData(op, policy, notify)
}

func (s *principalService) Invalidate(ctx context.Context, userIDs ...uint) {
	if len(userIDs) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range userIDs {
		s.gens[id]++
	}
	s.mu.Unlock()
	if err := s.cache.Delete(context.WithoutCancel(ctx), userIDs...); err != nil {
		s.log.Error("principal cache invalidation failed", zap.Uints("user_ids", userIDs), zap.Error(err))
	}
	if s.notifier != nil {
		s.notifier.AccessChanged(userIDs)
	}
}
