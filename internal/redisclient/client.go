package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned when a requested KPI result is not cached.
var ErrCacheMiss = errors.New("cache miss")

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks connectivity, used by the readiness probe
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func kpiKey(engine, name string) string {
	return fmt.Sprintf("kpi:%s:%s", engine, name)
}

// SetKPIResult caches a KPI result as JSON under kpi:{engine}:{name}
func (c *Client) SetKPIResult(ctx context.Context, engine, name string, payload interface{}, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal KPI result: %w", err)
	}
	return c.rdb.Set(ctx, kpiKey(engine, name), data, ttl).Err()
}

// GetKPIResult loads a cached KPI result into dest. Returns ErrCacheMiss
// when the key does not exist.
func (c *Client) GetKPIResult(ctx context.Context, engine, name string, dest interface{}) error {
	data, err := c.rdb.Get(ctx, kpiKey(engine, name)).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("%w: %s", ErrCacheMiss, kpiKey(engine, name))
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// InvalidateKPIResults deletes every cached result for an engine and
// returns the number of keys removed. Called when a pipeline run
// supersedes the cached values.
func (c *Client) InvalidateKPIResults(ctx context.Context, engine string) (int64, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, kpiKey(engine, "*"), 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan for KPI keys failed: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return c.rdb.Del(ctx, keys...).Result()
}

// AcquireLock acquires a distributed lock, so a cleanup pass runs on only
// one replica at a time
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
