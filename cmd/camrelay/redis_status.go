package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"camrelay/internal/obs"
	"camrelay/internal/proto"
	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "camrelay:source:"

// redisStatusStore keeps the in-memory store authoritative and additionally
// publishes each source's status document to Redis, so external dashboards can
// read relay state without talking to this instance. Documents carry a TTL
// refreshed by the maintenance loop; a dead instance's keys age out on their own.
type redisStatusStore struct {
	*memoryStatusStore
	client            *redis.Client
	keyTTL            time.Duration
	heartbeatInterval time.Duration
}

func newRedisStatusStore(addr, password string, db int, names []string) (*redisStatusStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	r := &redisStatusStore{
		memoryStatusStore: newMemoryStatusStore(names),
		client:            rdb,
		keyTTL:            24 * time.Hour,
		heartbeatInterval: 30 * time.Second,
	}
	for _, st := range r.snapshot() {
		r.publish(st)
	}
	return r, nil
}

var _ statusStore = (*redisStatusStore)(nil)

func (r *redisStatusStore) publish(st proto.SourceStatus) {
	b, err := json.Marshal(st)
	if err != nil {
		obs.Error("redis.status.marshal", obs.Fields{"err": err.Error(), "source": st.Name})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Set(ctx, statusKeyPrefix+st.Name, b, r.keyTTL).Err(); err != nil {
		obs.Error("redis.status.set", obs.Fields{"err": err.Error(), "source": st.Name})
	}
}

func (r *redisStatusStore) publishSource(name string) {
	for _, st := range r.snapshot() {
		if st.Name == name {
			r.publish(st)
			return
		}
	}
}

func (r *redisStatusStore) SessionState(source, state string) {
	r.memoryStatusStore.SessionState(source, state)
	r.publishSource(source)
}

func (r *redisStatusStore) Viewers(source string, n int) {
	r.memoryStatusStore.Viewers(source, n)
	r.publishSource(source)
}

// Bytes moves on every relayed chunk; publishing it synchronously would put
// Redis on the distribution path, so the heartbeat picks it up instead.
func (r *redisStatusStore) Bytes(source string, n int) {
	r.memoryStatusStore.Bytes(source, n)
}

// startMaintenance periodically republishes all documents, refreshing byte
// counters and key TTLs.
func (r *redisStatusStore) startMaintenance(ctx context.Context) {
	t := time.NewTicker(r.heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, st := range r.snapshot() {
				r.publish(st)
			}
		}
	}
}
