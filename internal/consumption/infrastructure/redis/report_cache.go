package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "billing:"

// NewClient creates a Redis client and checks connectivity.
func NewClient(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("report cache: ping: %w", err)
	}
	return client, nil
}

// ReportCache stores encoded reports in Redis under a bumpable version.
type ReportCache struct {
	client *goredis.Client
	prefix string
}

// CacheOption configures the cache.
type CacheOption func(*ReportCache)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) CacheOption {
	return func(c *ReportCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// NewReportCache constructs a report cache.
func NewReportCache(client *goredis.Client, opts ...CacheOption) (*ReportCache, error) {
	if client == nil {
		return nil, errors.New("report cache: nil client")
	}
	c := &ReportCache{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Version returns the current cache version. A missing counter is version 0.
func (c *ReportCache) Version(ctx context.Context) (int64, error) {
	version, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// BumpVersion orphans every cached report by advancing the version.
func (c *ReportCache) BumpVersion(ctx context.Context) (int64, error) {
	return c.client.Incr(ctx, c.versionKey()).Result()
}

// OverridesChanged bumps the version after a cutoff override write.
func (c *ReportCache) OverridesChanged(ctx context.Context) error {
	_, err := c.BumpVersion(ctx)
	return err
}

// Get returns a cached value.
func (c *ReportCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a value. A zero ttl keeps it until evicted.
func (c *ReportCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

func (c *ReportCache) versionKey() string {
	return c.prefix + "report:version"
}
