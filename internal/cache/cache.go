// Package cache holds short-lived snapshots of resolved principals.
//
// A snapshot may be stale by at most the configured TTL. Writers that change
// role or permission membership call Delete for every affected user.
package cache

import (
	"context"
	"fmt"
	"time"

	"ispmanager/internal/authz"

	"github.com/redis/go-redis/v9"
)

const (
	KindNone   = "none"
	KindMemory = "memory"
	KindRedis  = "redis"
)

// PrincipalCache stores principals keyed by user id
type PrincipalCache interface {
	Get(ctx context.Context, userID uint) (*authz.Principal, bool, error)
	Set(ctx context.Context, p *authz.Principal) error
	Delete(ctx context.Context, userIDs ...uint) error
}

// Options selects and sizes a cache backend
type Options struct {
	Kind  string
	TTL   time.Duration
	Size  int
	Redis *redis.Client
}

// New returns the configured backend. A zero TTL disables caching.
func New(opts Options) (PrincipalCache, error) {
	if opts.TTL <= 0 || opts.Kind == KindNone || opts.Kind == "" {
		return Noop{}, nil
	}
	switch opts.Kind {
	case KindMemory:
		return NewMemory(opts.Size, opts.TTL), nil
	case KindRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("cache: redis backend requires a client")
		}
		return NewRedis(opts.Redis, opts.TTL), nil
	}
	return nil, fmt.Errorf("cache: unknown kind %q", opts.Kind)
}

// Noop never stores anything
type Noop struct{}

func (Noop) Get(context.Context, uint) (*authz.Principal, bool, error) { return nil, false, nil }

func (Noop) Set(context.Context, *authz.Principal) error { return nil }

func (Noop) Delete(context.Context, ...uint) error { return nil }

func clone(p *authz.Principal) *authz.Principal {
	c := *p
	c.Roles = append([]string(nil), p.Roles...)
	c.Permissions = append([]string(nil), p.Permissions...)
	return &c
}
