package main

import (
	"context"

	"camrelay/internal/obs"
)

// newStatusStore creates either the in-memory store or the Redis-publishing
// one based on configuration.
func newStatusStore(ctx context.Context, names []string) (statusStore, error) {
	if cfg.RedisAddr == "" {
		obs.Info("status.backend", obs.Fields{"type": "in-memory"})
		return newMemoryStatusStore(names), nil
	}
	obs.Info("status.backend", obs.Fields{"type": "redis", "addr": cfg.RedisAddr})
	r, err := newRedisStatusStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, names)
	if err != nil {
		return nil, err
	}
	go r.startMaintenance(ctx)
	return r, nil
}
