package main

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/countstat/pkg/config"
	"github.com/platinummonkey/countstat/pkg/lock"
	"github.com/platinummonkey/countstat/pkg/storage"
)

// newLocker builds the pass lock. The redis client is returned so the
// caller can close it and report on it; it is nil for other backends.
func newLocker(ctx context.Context, cfg *config.Config) (lock.Locker, *redis.Client, error) {
	switch cfg.Lock.Backend {
	case config.LockRedis:
		client, err := storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return lock.NewRedisLocker(client, cfg.Lock.Key, cfg.Lock.TTL), client, nil
	case config.LockFile:
		return lock.NewFileLocker(cfg.Lock.Path), nil, nil
	default:
		return lock.NopLocker{}, nil, nil
	}
}
