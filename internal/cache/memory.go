package cache

import (
	"context"
	"time"

	"ispmanager/internal/authz"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemorySize = 10000

// Memory is an in-process LRU with per-entry expiry
type Memory struct {
	lru *expirable.LRU[uint, *authz.Principal]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = defaultMemorySize
	}
	return &Memory{lru: expirable.NewLRU[uint, *authz.Principal](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, userID uint) (*authz.Principal, bool, error) {
	p, ok := m.lru.Get(userID)
	if !ok {
		return nil, false, nil
	}
	return clone(p), true, nil
}

func (m *Memory) Set(_ context.Context, p *authz.Principal) error {
	m.lru.Add(p.UserID, clone(p))
	return nil
}

func (m *Memory) Delete(_ context.Context, userIDs ...uint) error {
	for _, id := range userIDs {
		m.lru.Remove(id)
	}
	return nil
}
