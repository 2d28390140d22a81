package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ispmanager/internal/authz"
	"ispmanager/internal/cache"
	"ispmanager/internal/metrics"
	"ispmanager/internal/model"
	"ispmanager/internal/repository"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyRepo fails the first `failures` loads with err, then returns rec
type flakyRepo struct {
	calls    atomic.Int32
	failures int32
	err      error
	rec      *repository.PrincipalRecord
}

func (f *flakyRepo) Load(_ context.Context, userID uint) (*repository.PrincipalRecord, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	if f.rec == nil {
		return nil, repository.ErrNotFound
	}
	rec := *f.rec
	rec.User.ID = userID
	return &rec, nil
}

var fastRetry = RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestResolveUnionsRolePermissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view := h.permission(t, "tickets.view")
	create := h.permission(t, "tickets.create")
	reports := h.permission(t, "reports.view")

	support := h.role(t, "support", view, create)
	analyst := h.role(t, "analyst", view, reports)

	cases := map[string]struct {
		roles []uint
		perms []string
		names []string
	}{
		"no roles":          {nil, []string{}, []string{}},
		"one role":          {[]uint{support.ID}, []string{"tickets.create", "tickets.view"}, []string{"support"}},
		"overlapping roles": {[]uint{support.ID, analyst.ID}, []string{"reports.view", "tickets.create", "tickets.view"}, []string{"analyst", "support"}},
	}

	i := 0
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			i++
			u := h.user(t, "user_"+string(rune('a'+i)), "password1", tc.roles...)

			p, err := h.principals.Resolve(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, u.ID, p.UserID)
			assert.True(t, p.IsActive)
			assert.ElementsMatch(t, tc.names, p.Roles)
			assert.Equal(t, tc.perms, nonNil(p.Permissions))
		})
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func TestResolveUnknownUser(t *testing.T) {
	h := newHarness(t)

	_, err := h.principals.Resolve(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveReportsInactiveUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u := h.user(t, "alice", "password1")
	active := false
	_, err := h.users.Update(ctx, u.ID, UpdateUserRequest{IsActive: &active}, 0)
	require.NoError(t, err)

	p, err := h.principals.Resolve(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, p.IsActive)
}

func TestResolveServesFromCache(t *testing.T) {
	repo := &flakyRepo{rec: &repository.PrincipalRecord{
		User:        model.User{Username: "alice", IsActive: true},
		Permissions: []string{"tickets.view"},
	}}
	m := metrics.NewNop()
	svc := NewPrincipalService(repo, m, zap.NewNop(), WithPrincipalCache(cache.NewMemory(10, time.Minute)))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := svc.Resolve(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, []string{"tickets.view"}, p.Permissions)
	}
	assert.Equal(t, int32(1), repo.calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))

	svc.Invalidate(ctx, 7)
	_, err := svc.Resolve(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.calls.Load(), "invalidation forces a reload")
}

func TestResolveWithoutCacheAlwaysLoads(t *testing.T) {
	repo := &flakyRepo{rec: &repository.PrincipalRecord{User: model.User{IsActive: true}}}
	svc := NewPrincipalService(repo, metrics.NewNop(), zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := svc.Resolve(context.Background(), 1)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), repo.calls.Load())
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	repo := &flakyRepo{
		failures: 2,
		err:      driver.ErrBadConn,
		rec:      &repository.PrincipalRecord{User: model.User{IsActive: true}, Roles: []string{"staff"}},
	}
	svc := NewPrincipalService(repo, metrics.NewNop(), zap.NewNop(), WithRetryPolicy(fastRetry))

	p, err := svc.Resolve(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff"}, p.Roles)
	assert.Equal(t, int32(3), repo.calls.Load())
}

func TestResolveGivesUpAfterRetryBudget(t *testing.T) {
	repo := &flakyRepo{failures: 100, err: driver.ErrBadConn}
	m := metrics.NewNop()
	svc := NewPrincipalService(repo, m, zap.NewNop(), WithRetryPolicy(fastRetry))

	_, err := svc.Resolve(context.Background(), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(4), repo.calls.Load(), "one attempt plus three retries")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolveErrorsTotal))
}

func TestResolveDoesNotRetryPermanentFailures(t *testing.T) {
	boom := errors.New("syntax error")
	repo := &flakyRepo{failures: 100, err: boom}
	svc := NewPrincipalService(repo, metrics.NewNop(), zap.NewNop(), WithRetryPolicy(fastRetry))

	_, err := svc.Resolve(context.Background(), 3)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), repo.calls.Load())
}

func TestInvalidateNotifies(t *testing.T) {
	h := newHarness(t)

	h.principals.Invalidate(context.Background())
	assert.Empty(t, h.notifier.all(), "no ids, no notification")

	h.principals.Invalidate(context.Background(), 4, 5)
	assert.Equal(t, []uint{4, 5}, h.notifier.all())
}

// gatedRepo holds its first load until release is closed. Later loads
// return fresh.
type gatedRepo struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	stale   *repository.PrincipalRecord
	fresh   *repository.PrincipalRecord
}

func (g *gatedRepo) Load(_ context.Context, userID uint) (*repository.PrincipalRecord, error) {
	rec := *g.fresh
	if g.calls.Add(1) == 1 {
		close(g.started)
		<-g.release
		rec = *g.stale
	}
	rec.User.ID = userID
	return &rec, nil
}

func TestInvalidateDuringLoadIsNotUndone(t *testing.T) {
	repo := &gatedRepo{
		started: make(chan struct{}),
		release: make(chan struct{}),
		stale:   &repository.PrincipalRecord{User: model.User{IsActive: true}, Permissions: []string{"tickets.delete"}},
		fresh:   &repository.PrincipalRecord{User: model.User{IsActive: true}, Permissions: []string{}},
	}
	c := cache.NewMemory(10, time.Minute)
	svc := NewPrincipalService(repo, metrics.NewNop(), zap.NewNop(), WithPrincipalCache(c))
	ctx := context.Background()

	type result struct {
		p   *authz.Principal
		err error
	}
	done := make(chan result, 1)
	go func() {
		p, err := svc.Resolve(ctx, 7)
		done <- result{p, err}
	}()

	// the grant is revoked and committed while the first load is in flight
	<-repo.started
	svc.Invalidate(ctx, 7)
	close(repo.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, []string{"tickets.delete"}, res.p.Permissions, "the in-flight caller still sees its own snapshot")

	_, ok, err := c.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok, "a snapshot older than the invalidation is not cached")

	p, err := svc.Resolve(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, p.Permissions)
	assert.Equal(t, int32(2), repo.calls.Load())
}
