package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ispmanager/internal/authz"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ispmanager:principal:"

// Redis shares snapshots between API replicas
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func key(userID uint) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

func (r *Redis) Get(ctx context.Context, userID uint) (*authz.Principal, bool, error) {
	raw, err := r.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get principal %d: %w", userID, err)
	}

	var p authz.Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("cache: decode principal %d: %w", userID, err)
	}
	return &p, true, nil
}

func (r *Redis) Set(ctx context.Context, p *authz.Principal) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache: encode principal %d: %w", p.UserID, err)
	}
	if err := r.client.Set(ctx, key(p.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set principal %d: %w", p.UserID, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, userIDs ...uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, key(id))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: delete principals: %w", err)
	}
	return nil
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return client, nil
}
